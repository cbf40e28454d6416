// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package transport

import (
	"context"

	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// SendOptions carries per-send overrides. A zero MessageID means the caller
// wants one generated; a zero EphemeralExpiration means no timer injection
// happened.
type SendOptions struct {
	MessageID           string
	Quoted              *Message
	EphemeralExpiration int
}

// Client is the surface of the authenticated protocol socket the runtime
// calls back into. The socket implementation lives outside this module; a
// fake satisfies this interface in tests.
type Client interface {
	// JID returns the account's classic identity, LID its anonymized one.
	JID() string
	LID() string

	// GroupMetadata fetches the full metadata record for one group.
	GroupMetadata(ctx context.Context, jid string) (*GroupMetadata, error)

	// GroupFetchAll fetches metadata for every joined group, keyed by JID.
	GroupFetchAll(ctx context.Context) (map[string]*GroupMetadata, error)

	// FetchBlocklist returns the server-side block list.
	FetchBlocklist(ctx context.Context) ([]string, error)

	// UpdateBlockStatus blocks or unblocks a JID on the server.
	UpdateBlockStatus(ctx context.Context, jid string, block bool) error

	// SendMessage sends content to a chat through the full send pipeline.
	SendMessage(ctx context.Context, chat string, content *MessageContent, opts *SendOptions) (*Message, error)

	// RelayMessage pushes a prebuilt message node directly, returning the
	// message id.
	RelayMessage(ctx context.Context, chat string, content *MessageContent, opts *SendOptions) (string, error)

	// Download retrieves the media bytes for a media content.
	Download(ctx context.Context, content *MessageContent) ([]byte, error)

	// ChatModify applies a chat state change (archive, pin, read, ...).
	ChatModify(ctx context.Context, chat string, action pluginsdk.ChatAction, key pluginsdk.MessageKey) error

	// ReadMessages marks the given message keys as read.
	ReadMessages(ctx context.Context, keys []pluginsdk.MessageKey) error
}
