// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package handler

import (
	"context"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/chatling/chatling/internal/transport"
)

// newMessageID generates a random outgoing message id.
func newMessageID() string {
	return strings.ToUpper(ulid.Make().String())
}

// prepareSend fills in a generated message id when the caller omitted one
// and injects the chat's stored ephemeral timer. A chat with no stored
// timer gets no expiration attached.
func (h *Handler) prepareSend(chat string, opts *transport.SendOptions) *transport.SendOptions {
	prepared := transport.SendOptions{}
	if opts != nil {
		prepared = *opts
	}
	if prepared.MessageID == "" {
		prepared.MessageID = newMessageID()
	}
	if prepared.EphemeralExpiration == 0 {
		prepared.EphemeralExpiration = h.Timer(chat)
	}
	return &prepared
}

// SendMessage sends content to a chat through the transport's full send
// pipeline. A nil content fails before any transport call.
func (h *Handler) SendMessage(ctx context.Context, chat string, content *transport.MessageContent, opts *transport.SendOptions) (*transport.Message, error) {
	if content == nil {
		return nil, oops.Code("EMPTY_CONTENT").With("chat", chat).Errorf("send requires message content")
	}
	return h.client.SendMessage(ctx, chat, content, h.prepareSend(chat, opts))
}

// RelayMessage pushes a prebuilt message node directly. A bare text body
// is rewritten into the extended form so the expiration metadata has
// somewhere to ride; the minimal form cannot carry it.
func (h *Handler) RelayMessage(ctx context.Context, chat string, content *transport.MessageContent, opts *transport.SendOptions) (string, error) {
	if content == nil {
		return "", oops.Code("EMPTY_CONTENT").With("chat", chat).Errorf("relay requires message content")
	}
	prepared := h.prepareSend(chat, opts)
	if content.Conversation != "" && prepared.EphemeralExpiration > 0 {
		content = &transport.MessageContent{
			ExtendedText: &transport.ExtendedText{
				Text:        content.Conversation,
				ContextInfo: &transport.ContextInfo{Expiration: prepared.EphemeralExpiration},
			},
		}
	}
	return h.client.RelayMessage(ctx, chat, content, prepared)
}
