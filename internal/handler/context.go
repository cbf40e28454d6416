// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package handler

import (
	"context"
	"strings"

	"github.com/samber/oops"

	"github.com/chatling/chatling/internal/transport"
	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

var errNoQuotedMessage = oops.Code("NO_QUOTED_MESSAGE").Errorf("message has no quoted content")

// BuildContext constructs the uniform per-event value handed to every
// plugin invocation. Construction never fails: with no usable transport
// the capability closures are left nil and plugins fail lazily when
// invoking them.
func (h *Handler) BuildContext(ctx context.Context, ev *transport.Event) *pluginsdk.Context {
	c := &pluginsdk.Context{
		EventName: ev.Name,
		EventType: ev.Type,
		ParseJIDs: transport.ParseJIDs,
	}

	switch {
	case ev.Message != nil:
		h.fillFromMessage(c, ev.Message)
	case ev.Participants != nil:
		c.Chat = transport.NormalizeJID(ev.Participants.ChatID)
		c.EventType = ev.Participants.Action
	case ev.Group != nil:
		c.Chat = transport.NormalizeJID(ev.Group.ID)
	case ev.Presence != nil:
		c.Chat = transport.NormalizeJID(ev.Presence.ChatID)
		c.Sender = transport.NormalizeJID(ev.Presence.Sender)
	case ev.Call != nil:
		c.Chat = transport.NormalizeJID(ev.Call.ChatID)
		c.Sender = transport.NormalizeJID(ev.Call.From)
	}

	h.resolveNames(c)
	if h.client != nil && c.Chat != "" {
		h.bindChatCapabilities(ctx, c)
	}
	if h.client != nil && ev.Message != nil {
		h.bindMessageCapabilities(ctx, c, ev.Message)
	}
	return c
}

// fillFromMessage derives addressing, flattened content, quote metadata,
// and the parsed command form from a message event.
func (h *Handler) fillFromMessage(c *pluginsdk.Context, msg *transport.Message) {
	key := msg.Key
	c.Key = key
	c.ID = key.ID
	c.Chat = transport.NormalizeJID(key.RemoteJID)
	c.PushName = msg.PushName

	c.Sender = c.Chat
	if key.Participant != "" {
		c.Sender = transport.NormalizeJID(key.Participant)
	}
	c.FromMe = key.FromMe || h.isSelf(c.Sender)

	flat := msg.Content.Flatten()
	c.Text = flat.Text
	c.MessageType = flat.Type
	if info := flat.ContextInfo; info != nil {
		c.Expiration = info.Expiration
		c.QuotedID = info.StanzaID
		c.QuotedSender = transport.NormalizeJID(info.Participant)
		c.QuotedText = info.QuotedMessage.Flatten().Text
		c.Mentioned = info.MentionedJID
	}

	h.parseCommand(c)
}

// isSelf matches a sender against the account's classic and anonymized
// identities.
func (h *Handler) isSelf(sender string) bool {
	if h.client == nil || sender == "" {
		return false
	}
	return transport.SameUser(sender, h.client.JID()) || transport.SameUser(sender, h.client.LID())
}

// parseCommand splits the leading whitespace-delimited token out of the
// text and resolves it against the current command table.
func (h *Handler) parseCommand(c *pluginsdk.Context) {
	fields := strings.Fields(c.Text)
	if len(fields) == 0 {
		return
	}
	c.Pattern = fields[0]
	c.Cmd = strings.ToLower(c.Pattern)
	c.Args = fields[1:]

	result := h.freshResult()
	_, c.IsCmd = result.Command[c.Cmd]
}

// resolveNames fills human-readable chat/sender names from the group and
// contact caches, falling back to the raw identifier.
func (h *Handler) resolveNames(c *pluginsdk.Context) {
	c.ChatName = c.Chat
	if transport.IsGroupJID(c.Chat) {
		if meta, ok := h.Group(c.Chat); ok && meta.Subject != "" {
			c.ChatName = meta.Subject
		}
	} else if contact, ok := h.Contact(c.Chat); ok && contact.Name != "" {
		c.ChatName = contact.Name
	}

	c.SenderName = c.Sender
	if contact, ok := h.Contact(c.Sender); ok && contact.Name != "" {
		c.SenderName = contact.Name
	} else if c.PushName != "" {
		c.SenderName = c.PushName
	}
}

// bindChatCapabilities attaches the closures that only need a resolved
// chat. For non-message events Reply is unquoted; the message-keyed
// closures stay nil until bindMessageCapabilities runs.
func (h *Handler) bindChatCapabilities(ctx context.Context, c *pluginsdk.Context) {
	chat := c.Chat

	c.Reply = func(text string) error {
		content := &transport.MessageContent{
			ExtendedText: &transport.ExtendedText{Text: text},
		}
		_, err := h.SendMessage(ctx, chat, content, nil)
		return err
	}
	c.ReplyRelay = func(text string) error {
		_, err := h.RelayMessage(ctx, chat, &transport.MessageContent{Conversation: text}, nil)
		return err
	}
}

// bindMessageCapabilities attaches the closures that need the triggering
// message, and upgrades Reply to quote it. The Context is discarded with
// the closures after dispatch.
func (h *Handler) bindMessageCapabilities(ctx context.Context, c *pluginsdk.Context, msg *transport.Message) {
	chat := c.Chat

	c.Reply = func(text string) error {
		content := &transport.MessageContent{
			ExtendedText: &transport.ExtendedText{Text: text},
		}
		_, err := h.SendMessage(ctx, chat, content, &transport.SendOptions{Quoted: msg})
		return err
	}
	c.React = func(emoji string) error {
		content := &transport.MessageContent{
			Reaction: &transport.Reaction{Key: msg.Key, Text: emoji},
		}
		_, err := h.SendMessage(ctx, chat, content, nil)
		return err
	}
	c.Download = func() ([]byte, error) {
		return h.client.Download(ctx, msg.Content)
	}
	c.DownloadQuoted = func() ([]byte, error) {
		flat := msg.Content.Flatten()
		if flat.ContextInfo == nil || flat.ContextInfo.QuotedMessage == nil {
			return nil, errNoQuotedMessage
		}
		return h.client.Download(ctx, flat.ContextInfo.QuotedMessage)
	}
	c.ChatModify = func(action pluginsdk.ChatAction) error {
		return h.client.ChatModify(ctx, chat, action, msg.Key)
	}
	c.ReadMessages = func() error {
		return h.client.ReadMessages(ctx, []pluginsdk.MessageKey{msg.Key})
	}
}
