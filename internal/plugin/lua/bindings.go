// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package lua

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/chatling/chatling/internal/transport"
	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// buildContextTable converts a Context into the table Lua plugins receive.
// Scalar fields are copied; capability closures become functions returning
// an error string (or nil) in the last position.
func buildContextTable(L *lua.LState, c *pluginsdk.Context) *lua.LTable {
	t := L.NewTable()

	L.SetField(t, "event_name", lua.LString(c.EventName))
	L.SetField(t, "event_type", lua.LString(c.EventType))
	L.SetField(t, "chat", lua.LString(c.Chat))
	L.SetField(t, "sender", lua.LString(c.Sender))
	L.SetField(t, "id", lua.LString(c.ID))
	L.SetField(t, "from_me", lua.LBool(c.FromMe))
	L.SetField(t, "is_group", lua.LBool(transport.IsGroupJID(c.Chat)))
	L.SetField(t, "push_name", lua.LString(c.PushName))
	L.SetField(t, "chat_name", lua.LString(c.ChatName))
	L.SetField(t, "sender_name", lua.LString(c.SenderName))
	L.SetField(t, "text", lua.LString(c.Text))
	L.SetField(t, "message_type", lua.LString(c.MessageType))
	L.SetField(t, "expiration", lua.LNumber(c.Expiration))
	L.SetField(t, "quoted_id", lua.LString(c.QuotedID))
	L.SetField(t, "quoted_sender", lua.LString(c.QuotedSender))
	L.SetField(t, "quoted_text", lua.LString(c.QuotedText))
	L.SetField(t, "mentioned", stringsToTable(L, c.Mentioned))
	L.SetField(t, "pattern", lua.LString(c.Pattern))
	L.SetField(t, "cmd", lua.LString(c.Cmd))
	L.SetField(t, "args", stringsToTable(L, c.Args))
	L.SetField(t, "is_cmd", lua.LBool(c.IsCmd))
	L.SetField(t, "body", lua.LString(c.Body()))

	L.SetField(t, "reply", textCapability(L, c.Reply))
	L.SetField(t, "reply_relay", textCapability(L, c.ReplyRelay))
	L.SetField(t, "react", textCapability(L, c.React))
	L.SetField(t, "download", downloadCapability(L, c.Download))
	L.SetField(t, "download_quoted", downloadCapability(L, c.DownloadQuoted))

	L.SetField(t, "chat_modify", L.NewFunction(func(ls *lua.LState) int {
		if c.ChatModify == nil {
			ls.Push(lua.LString("capability not available"))
			return 1
		}
		action := pluginsdk.ChatAction(ls.CheckString(1))
		if err := c.ChatModify(action); err != nil {
			ls.Push(lua.LString(err.Error()))
			return 1
		}
		ls.Push(lua.LNil)
		return 1
	}))

	L.SetField(t, "read_messages", L.NewFunction(func(ls *lua.LState) int {
		if c.ReadMessages == nil {
			ls.Push(lua.LString("capability not available"))
			return 1
		}
		if err := c.ReadMessages(); err != nil {
			ls.Push(lua.LString(err.Error()))
			return 1
		}
		ls.Push(lua.LNil)
		return 1
	}))

	L.SetField(t, "parse_jids", L.NewFunction(func(ls *lua.LState) int {
		s := ls.CheckString(1)
		var jids []string
		if c.ParseJIDs != nil {
			jids = c.ParseJIDs(s)
		} else {
			jids = transport.ParseJIDs(s)
		}
		ls.Push(stringsToTable(ls, jids))
		return 1
	}))

	return t
}

// buildReasonTable converts a Reason for the finalizer's second argument.
func buildReasonTable(L *lua.LState, r pluginsdk.Reason) *lua.LTable {
	t := L.NewTable()
	L.SetField(t, "ok", lua.LBool(r.OK))
	L.SetField(t, "code", lua.LString(r.Code))
	L.SetField(t, "message", lua.LString(r.Message))
	return t
}

// textCapability wraps a single-string capability closure. The Lua function
// returns nil on success or an error string.
func textCapability(L *lua.LState, fn func(string) error) lua.LValue {
	return L.NewFunction(func(ls *lua.LState) int {
		if fn == nil {
			ls.Push(lua.LString("capability not available"))
			return 1
		}
		if err := fn(ls.CheckString(1)); err != nil {
			ls.Push(lua.LString(err.Error()))
			return 1
		}
		ls.Push(lua.LNil)
		return 1
	})
}

// downloadCapability wraps a media download closure. The Lua function
// returns (data, nil) on success or (nil, error string).
func downloadCapability(L *lua.LState, fn func() ([]byte, error)) lua.LValue {
	return L.NewFunction(func(ls *lua.LState) int {
		if fn == nil {
			ls.Push(lua.LNil)
			ls.Push(lua.LString("capability not available"))
			return 2
		}
		data, err := fn()
		if err != nil {
			ls.Push(lua.LNil)
			ls.Push(lua.LString(err.Error()))
			return 2
		}
		ls.Push(lua.LString(data))
		return 2
	})
}

func stringsToTable(L *lua.LState, values []string) *lua.LTable {
	t := L.NewTable()
	for _, v := range values {
		t.Append(lua.LString(v))
	}
	return t
}
