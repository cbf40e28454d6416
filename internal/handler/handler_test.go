// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package handler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatling/chatling/internal/plugin"
	"github.com/chatling/chatling/internal/transport"
	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

var errUnknownGroup = errors.New("unknown group")

type sentCall struct {
	chat    string
	content *transport.MessageContent
	opts    *transport.SendOptions
}

// fakeClient satisfies transport.Client and records every call.
type fakeClient struct {
	mu            sync.Mutex
	jid           string
	lid           string
	groups        map[string]*transport.GroupMetadata
	blocklist     []string
	blockErr      error
	metadataCalls int
	sent          []sentCall
	relayed       []sentCall
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		jid:    "15550001111@s.whatsapp.net",
		lid:    "99912345@lid",
		groups: make(map[string]*transport.GroupMetadata),
	}
}

func (f *fakeClient) JID() string { return f.jid }
func (f *fakeClient) LID() string { return f.lid }

func (f *fakeClient) GroupMetadata(_ context.Context, jid string) (*transport.GroupMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadataCalls++
	if meta, ok := f.groups[jid]; ok {
		return meta, nil
	}
	return nil, errUnknownGroup
}

func (f *fakeClient) GroupFetchAll(context.Context) (map[string]*transport.GroupMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups, nil
}

func (f *fakeClient) FetchBlocklist(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocklist, nil
}

func (f *fakeClient) UpdateBlockStatus(_ context.Context, _ string, _ bool) error {
	return f.blockErr
}

func (f *fakeClient) SendMessage(_ context.Context, chat string, content *transport.MessageContent, opts *transport.SendOptions) (*transport.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentCall{chat: chat, content: content, opts: opts})
	return &transport.Message{Key: pluginsdk.MessageKey{RemoteJID: chat, ID: opts.MessageID, FromMe: true}, Content: content}, nil
}

func (f *fakeClient) RelayMessage(_ context.Context, chat string, content *transport.MessageContent, opts *transport.SendOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relayed = append(f.relayed, sentCall{chat: chat, content: content, opts: opts})
	return opts.MessageID, nil
}

func (f *fakeClient) Download(context.Context, *transport.MessageContent) ([]byte, error) {
	return []byte("media"), nil
}

func (f *fakeClient) ChatModify(context.Context, string, pluginsdk.ChatAction, pluginsdk.MessageKey) error {
	return nil
}

func (f *fakeClient) ReadMessages(context.Context, []pluginsdk.MessageKey) error {
	return nil
}

func (f *fakeClient) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// stubLoader satisfies plugin.Loader for managers populated through
// Register in tests.
type stubLoader struct{}

func (stubLoader) Matches(string) bool { return false }
func (stubLoader) Load(context.Context, string) ([]pluginsdk.Descriptor, error) {
	return nil, nil
}

func newTestHandler(t *testing.T, opts ...Option) (*Handler, *fakeClient, *plugin.Manager) {
	t.Helper()
	client := newFakeClient()
	manager := plugin.NewManager(stubLoader{})
	h := New(client, manager, []string{".", "/"}, opts...)
	return h, client, manager
}

func textEvent(id, chat, text string) *transport.Event {
	return &transport.Event{
		Name: transport.EventMessagesUpsert,
		Type: transport.UpsertNotify,
		Message: &transport.Message{
			Key:     pluginsdk.MessageKey{RemoteJID: chat, ID: id},
			Content: &transport.MessageContent{Conversation: text},
		},
	}
}

func TestHandleDispatchesCommandOnce(t *testing.T) {
	h, client, manager := newTestHandler(t)

	var pings, listens, misfires int
	manager.Register("plugins/ping.lua", []pluginsdk.Descriptor{{
		Cmd: []string{"ping"},
		Exec: func(c *pluginsdk.Context) error {
			pings++
			return c.Reply("pong")
		},
	}})
	manager.Register("plugins/log.lua", []pluginsdk.Descriptor{{
		Exec: func(*pluginsdk.Context) error {
			listens++
			return nil
		},
	}})
	manager.Register("plugins/gated.lua", []pluginsdk.Descriptor{{
		Guard: pluginsdk.Fail("OFF", "disabled"),
		Exec: func(*pluginsdk.Context) error {
			misfires++
			return nil
		},
	}})

	h.Handle(context.Background(), textEvent("MSG-1", "123@s.whatsapp.net", ".ping"))

	assert.Equal(t, 1, pings, "command runs exactly once")
	assert.Equal(t, 1, listens, "unguarded listener runs")
	assert.Zero(t, misfires, "guarded listener does not run")
	require.Equal(t, 1, client.sentCount())
	assert.Equal(t, "pong", client.sent[0].content.ExtendedText.Text)

	// Same id again: dedup window blocks the command, listeners still run.
	h.Handle(context.Background(), textEvent("MSG-1", "123@s.whatsapp.net", ".ping"))
	assert.Equal(t, 1, pings)
	assert.Equal(t, 2, listens)
}

func TestHandleParticipantsListenerCanRelay(t *testing.T) {
	h, client, manager := newTestHandler(t)
	client.groups[testGroup] = &transport.GroupMetadata{ID: testGroup, Subject: "devs"}

	manager.Register("plugins/greeter.lua", []pluginsdk.Descriptor{{
		Guard: func(c *pluginsdk.Context) pluginsdk.Reason {
			if c.EventName != transport.EventParticipantsUpdate || c.EventType != transport.ParticipantAdd {
				return pluginsdk.Denied("NOT_A_JOIN", "not a group join")
			}
			return pluginsdk.Passed()
		},
		Exec: func(c *pluginsdk.Context) error {
			require.NotNil(t, c.ReplyRelay, "chat capabilities bind without a message")
			require.NotNil(t, c.Reply)
			assert.Nil(t, c.React, "message-keyed capabilities need a message")
			assert.Nil(t, c.Download)
			return c.ReplyRelay("welcome aboard")
		},
	}})

	h.Handle(context.Background(), &transport.Event{
		Name: transport.EventParticipantsUpdate,
		Participants: &transport.ParticipantsUpdate{
			ChatID:       testGroup,
			Action:       transport.ParticipantAdd,
			Participants: []string{"777@s.whatsapp.net"},
		},
	})

	require.Len(t, client.relayed, 1)
	assert.Equal(t, testGroup, client.relayed[0].chat)
	assert.Equal(t, "welcome aboard", client.relayed[0].content.Conversation)
}

func TestHandleUnknownCommandIsSilent(t *testing.T) {
	h, client, _ := newTestHandler(t)
	h.Handle(context.Background(), textEvent("MSG-2", "123@s.whatsapp.net", ".nosuch"))
	assert.Zero(t, client.sentCount())
}

func TestHandleIsolatesPluginFailures(t *testing.T) {
	h, _, manager := newTestHandler(t)

	var finals []pluginsdk.Reason
	var survivor int
	manager.Register("plugins/a_panics.lua", []pluginsdk.Descriptor{{
		Exec: func(*pluginsdk.Context) error { panic("boom") },
		Final: func(_ *pluginsdk.Context, r pluginsdk.Reason) {
			finals = append(finals, r)
		},
	}})
	manager.Register("plugins/b_survives.lua", []pluginsdk.Descriptor{{
		Exec: func(*pluginsdk.Context) error {
			survivor++
			return nil
		},
	}})

	h.Handle(context.Background(), textEvent("MSG-3", "123@s.whatsapp.net", "hello"))

	assert.Equal(t, 1, survivor, "one listener panicking does not stop the rest")
	require.Len(t, finals, 1)
	assert.Equal(t, pluginsdk.CodeExecError, finals[0].Code)
	assert.Contains(t, finals[0].Message, "boom")
}

func TestHandleGuardPanicBecomesGuardError(t *testing.T) {
	h, _, manager := newTestHandler(t)

	var reason pluginsdk.Reason
	manager.Register("plugins/badguard.lua", []pluginsdk.Descriptor{{
		Guard: func(*pluginsdk.Context) pluginsdk.Reason { panic("guard bug") },
		Exec:  func(*pluginsdk.Context) error { t.Fatal("exec must not run"); return nil },
		Final: func(_ *pluginsdk.Context, r pluginsdk.Reason) { reason = r },
	}})

	h.Handle(context.Background(), textEvent("MSG-4", "123@s.whatsapp.net", "hello"))

	assert.Equal(t, pluginsdk.CodeGuardError, reason.Code)
	assert.Contains(t, reason.Message, "guard bug")
}

func TestHandleRebuildsTablesAfterReload(t *testing.T) {
	h, client, manager := newTestHandler(t)

	manager.Register("plugins/ping.lua", []pluginsdk.Descriptor{{
		Cmd:  []string{"ping"},
		Exec: func(c *pluginsdk.Context) error { return c.Reply("pong") },
	}})
	h.Handle(context.Background(), textEvent("MSG-5", "123@s.whatsapp.net", ".ping"))
	require.Equal(t, 1, client.sentCount())

	// The location now exports nothing: the next event sees fresh tables.
	manager.Remove("plugins/ping.lua")
	h.Handle(context.Background(), textEvent("MSG-6", "123@s.whatsapp.net", ".ping"))
	assert.Equal(t, 1, client.sentCount())
}
