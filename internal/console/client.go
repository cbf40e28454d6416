// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package console provides a local line-oriented transport for developing
// and exercising plugins without a protocol socket: stdin lines become
// message events, outgoing messages are printed to stdout.
package console

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/samber/oops"

	"github.com/chatling/chatling/internal/transport"
	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// Default identities for the local account and its peer chat.
const (
	SelfJID = "10000000000@s.whatsapp.net"
	SelfLID = "1000@lid"
	ChatJID = "20000000000@s.whatsapp.net"
)

// Client implements transport.Client against a local writer. Sends are
// echoed as lines; group and block-list state lives in memory.
type Client struct {
	mu      sync.Mutex
	out     io.Writer
	groups  map[string]*transport.GroupMetadata
	blocked []string
}

// NewClient creates a console client writing outgoing traffic to out.
func NewClient(out io.Writer) *Client {
	return &Client{
		out:    out,
		groups: make(map[string]*transport.GroupMetadata),
	}
}

// JID returns the local account's classic identity.
func (c *Client) JID() string { return SelfJID }

// LID returns the local account's anonymized identity.
func (c *Client) LID() string { return SelfLID }

// AddGroup seeds a group record so group-addressed lines resolve.
func (c *Client) AddGroup(meta *transport.GroupMetadata) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups[meta.ID] = meta
}

func (c *Client) GroupMetadata(_ context.Context, jid string) (*transport.GroupMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if meta, ok := c.groups[jid]; ok {
		return meta, nil
	}
	return nil, oops.Code("GROUP_NOT_FOUND").With("jid", jid).Errorf("no such group")
}

func (c *Client) GroupFetchAll(context.Context) (map[string]*transport.GroupMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	all := make(map[string]*transport.GroupMetadata, len(c.groups))
	for jid, meta := range c.groups {
		all[jid] = meta
	}
	return all, nil
}

func (c *Client) FetchBlocklist(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.blocked...), nil
}

func (c *Client) UpdateBlockStatus(_ context.Context, jid string, block bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if block {
		c.blocked = append(c.blocked, jid)
		return nil
	}
	kept := c.blocked[:0]
	for _, b := range c.blocked {
		if b != jid {
			kept = append(kept, b)
		}
	}
	c.blocked = kept
	return nil
}

func (c *Client) SendMessage(_ context.Context, chat string, content *transport.MessageContent, opts *transport.SendOptions) (*transport.Message, error) {
	c.print(chat, content, opts)
	return &transport.Message{
		Key:     pluginsdk.MessageKey{RemoteJID: chat, ID: opts.MessageID, FromMe: true},
		Content: content,
	}, nil
}

func (c *Client) RelayMessage(_ context.Context, chat string, content *transport.MessageContent, opts *transport.SendOptions) (string, error) {
	c.print(chat, content, opts)
	return opts.MessageID, nil
}

func (c *Client) Download(context.Context, *transport.MessageContent) ([]byte, error) {
	return nil, oops.Code("NO_MEDIA").Errorf("console transport carries no media")
}

func (c *Client) ChatModify(_ context.Context, chat string, action pluginsdk.ChatAction, _ pluginsdk.MessageKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "* chat %s: %s\n", action, chat)
	return nil
}

func (c *Client) ReadMessages(context.Context, []pluginsdk.MessageKey) error {
	return nil
}

func (c *Client) print(chat string, content *transport.MessageContent, opts *transport.SendOptions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	flat := content.Flatten()
	if opts != nil && opts.EphemeralExpiration > 0 {
		fmt.Fprintf(c.out, "[%s] %s (expires %ds)\n", chat, flat.Text, opts.EphemeralExpiration)
		return
	}
	fmt.Fprintf(c.out, "[%s] %s\n", chat, flat.Text)
}
