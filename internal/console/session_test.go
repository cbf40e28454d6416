// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatling/chatling/internal/transport"
)

type recordingDispatcher struct {
	events []*transport.Event
}

func (r *recordingDispatcher) Handle(_ context.Context, ev *transport.Event) {
	r.events = append(r.events, ev)
}

func TestSessionSynthesizesOneEventPerLine(t *testing.T) {
	rec := &recordingDispatcher{}
	s := NewSession(strings.NewReader(".ping\n\n  \nhello there\n"), rec)

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, rec.events, 2, "blank lines are skipped")

	first := rec.events[0]
	assert.Equal(t, transport.EventMessagesUpsert, first.Name)
	assert.Equal(t, transport.UpsertNotify, first.Type)
	assert.Equal(t, ChatJID, first.Message.Key.RemoteJID)
	assert.Equal(t, ".ping", first.Message.Content.Conversation)
	assert.NotEmpty(t, first.Message.Key.ID)
	assert.NotEqual(t, first.Message.Key.ID, rec.events[1].Message.Key.ID)
}

func TestSessionCustomChat(t *testing.T) {
	rec := &recordingDispatcher{}
	s := NewSession(strings.NewReader("hi\n"), rec, WithChat("555@g.us"))

	require.NoError(t, s.Run(context.Background()))
	require.Len(t, rec.events, 1)
	assert.Equal(t, "555@g.us", rec.events[0].Message.Key.RemoteJID)
}

func TestSessionStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recordingDispatcher{}
	s := NewSession(strings.NewReader("hi\n"), rec)
	assert.ErrorIs(t, s.Run(ctx), context.Canceled)
}

func TestClientEchoesSends(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(&buf)

	_, err := c.SendMessage(context.Background(), ChatJID,
		&transport.MessageContent{Conversation: "pong"},
		&transport.SendOptions{MessageID: "ID-1"})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "pong")

	buf.Reset()
	_, err = c.SendMessage(context.Background(), ChatJID,
		&transport.MessageContent{Conversation: "pong"},
		&transport.SendOptions{MessageID: "ID-2", EphemeralExpiration: 86400})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "expires 86400s")
}

func TestClientBlocklistRoundTrip(t *testing.T) {
	c := NewClient(&bytes.Buffer{})

	require.NoError(t, c.UpdateBlockStatus(context.Background(), "bad@s.whatsapp.net", true))
	jids, err := c.FetchBlocklist(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"bad@s.whatsapp.net"}, jids)

	require.NoError(t, c.UpdateBlockStatus(context.Background(), "bad@s.whatsapp.net", false))
	jids, err = c.FetchBlocklist(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jids)
}
