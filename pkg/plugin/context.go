// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package pluginsdk

// MessageKey is the stable per-message addressing key supplied by the
// transport: which chat, which participant within it, the message id, and
// whether the runtime's own account sent it.
type MessageKey struct {
	RemoteJID   string
	Participant string
	ID          string
	FromMe      bool
}

// ChatAction names a chat state modification for Context.ChatModify.
type ChatAction string

const (
	ChatArchive   ChatAction = "archive"
	ChatUnarchive ChatAction = "unarchive"
	ChatPin       ChatAction = "pin"
	ChatUnpin     ChatAction = "unpin"
	ChatMarkRead  ChatAction = "read"
	ChatDelete    ChatAction = "delete"
)

// Context is the uniform value constructed once per inbound event and passed
// to every plugin invocation for that event. It is discarded after dispatch;
// plugins must not retain it.
//
// The capability closures at the bottom are bound by the runtime and close
// over the handler, so plugins never touch transport internals directly.
// On a Context built without a usable handler they are nil.
type Context struct {
	// Event envelope.
	EventName string // e.g. "messages.upsert"
	EventType string // transport discriminator for group/contact/call events

	// Addressing, derived from the message key when present.
	Chat   string
	Sender string
	ID     string
	FromMe bool
	Key    MessageKey

	// Resolved display names; fall back to the raw identifier.
	PushName   string
	ChatName   string
	SenderName string

	// Flattened message content.
	Text        string
	MessageType string
	Expiration  int // seconds, from the message context info

	// Quoted (replied-to) message, when the content carries one.
	QuotedID     string
	QuotedSender string
	QuotedText   string
	Mentioned    []string

	// Parsed command form of Text. Pattern is the leading token as typed,
	// Cmd is the token lower-cased, Args the remaining tokens. IsCmd is
	// true when Pattern resolves in the current command table.
	Pattern string
	Cmd     string
	Args    []string
	IsCmd   bool

	// Capability closures.
	Reply          func(text string) error
	ReplyRelay     func(text string) error
	React          func(emoji string) error
	Download       func() ([]byte, error)
	DownloadQuoted func() ([]byte, error)
	ChatModify     func(action ChatAction) error
	ReadMessages   func() error
	ParseJIDs      func(s string) []string
}

// Body returns the argument remainder of a command invocation, or the full
// text for non-command messages.
func (c *Context) Body() string {
	if !c.IsCmd {
		return c.Text
	}
	if len(c.Pattern) >= len(c.Text) {
		return ""
	}
	rest := c.Text[len(c.Pattern):]
	for len(rest) > 0 && (rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n') {
		rest = rest[1:]
	}
	return rest
}
