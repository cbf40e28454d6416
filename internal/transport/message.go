// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package transport

import (
	"time"

	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// Message content type names, matching the wire field that carried the
// content.
const (
	TypeConversation    = "conversation"
	TypeExtendedText    = "extendedTextMessage"
	TypeImage           = "imageMessage"
	TypeVideo           = "videoMessage"
	TypeAudio           = "audioMessage"
	TypeDocument        = "documentMessage"
	TypeSticker         = "stickerMessage"
	TypeReaction        = "reactionMessage"
	TypeProtocol        = "protocolMessage"
	TypeKeyDistribution = "senderKeyDistributionMessage"
)

// Protocol message sub-types.
const (
	ProtocolEdit             = "messageEdit"
	ProtocolEphemeralSetting = "ephemeralSetting"
	ProtocolRevoke           = "revoke"
)

// Message is one inbound or outbound chat message.
type Message struct {
	Key       pluginsdk.MessageKey
	PushName  string
	Timestamp time.Time
	Content   *MessageContent
}

// MessageContent mirrors the wire message union: at most one substantive
// field is populated. MessageContextInfo is device housekeeping that rides
// alongside real content and is never reported as the content type.
type MessageContent struct {
	Conversation    string
	ExtendedText    *ExtendedText
	Image           *Media
	Video           *Media
	Audio           *Media
	Document        *Media
	Sticker         *Media
	Reaction        *Reaction
	Protocol        *ProtocolMessage
	KeyDistribution *KeyDistribution

	MessageContextInfo *DeviceContextInfo
}

// ExtendedText is the rich text form, required whenever context metadata
// (quotes, mentions, expiration) must ride with the text.
type ExtendedText struct {
	Text        string
	ContextInfo *ContextInfo
}

// Media is the shared shape of image/video/audio/document/sticker content.
type Media struct {
	URL         string
	MimeType    string
	Caption     string
	FileLength  uint64
	ContextInfo *ContextInfo
}

// Reaction is an emoji reaction to an earlier message.
type Reaction struct {
	Key  pluginsdk.MessageKey
	Text string
}

// ProtocolMessage carries in-band protocol operations such as edits and
// per-chat ephemeral timer changes.
type ProtocolMessage struct {
	Type                string
	Key                 pluginsdk.MessageKey
	EditedMessage       *MessageContent
	EphemeralExpiration int
}

// KeyDistribution is sender-key housekeeping traffic. It has a content type
// but is never safe to treat as a command trigger.
type KeyDistribution struct {
	GroupID string
}

// DeviceContextInfo is the non-content wrapper excluded from content type
// resolution.
type DeviceContextInfo struct {
	DeviceListMetadataVersion int
}

// ContextInfo is the per-content metadata envelope: quoting, mentions, and
// the disappearing-message expiration.
type ContextInfo struct {
	StanzaID      string
	Participant   string
	QuotedMessage *MessageContent
	MentionedJID  []string
	Expiration    int // seconds; 0 means no timer
}

// Flat is the flattened view of a MessageContent: the first populated
// content field reduced to text, type name, and context metadata.
type Flat struct {
	Text        string
	Type        string
	ContextInfo *ContextInfo
}

// Flatten reduces the content union to its first populated field, following
// one level of edited-message indirection. MessageContextInfo never becomes
// the reported type. A nil or empty content flattens to the zero Flat.
func (m *MessageContent) Flatten() Flat {
	if m == nil {
		return Flat{}
	}
	if m.Protocol != nil && m.Protocol.EditedMessage != nil {
		inner := m.Protocol.EditedMessage.flattenLeaf()
		if inner.Type != "" {
			return inner
		}
	}
	return m.flattenLeaf()
}

func (m *MessageContent) flattenLeaf() Flat {
	switch {
	case m == nil:
		return Flat{}
	case m.Conversation != "":
		return Flat{Text: m.Conversation, Type: TypeConversation}
	case m.ExtendedText != nil:
		return Flat{Text: m.ExtendedText.Text, Type: TypeExtendedText, ContextInfo: m.ExtendedText.ContextInfo}
	case m.Image != nil:
		return Flat{Text: m.Image.Caption, Type: TypeImage, ContextInfo: m.Image.ContextInfo}
	case m.Video != nil:
		return Flat{Text: m.Video.Caption, Type: TypeVideo, ContextInfo: m.Video.ContextInfo}
	case m.Audio != nil:
		return Flat{Type: TypeAudio, ContextInfo: m.Audio.ContextInfo}
	case m.Document != nil:
		return Flat{Text: m.Document.Caption, Type: TypeDocument, ContextInfo: m.Document.ContextInfo}
	case m.Sticker != nil:
		return Flat{Type: TypeSticker, ContextInfo: m.Sticker.ContextInfo}
	case m.Reaction != nil:
		return Flat{Text: m.Reaction.Text, Type: TypeReaction}
	case m.Protocol != nil:
		return Flat{Type: TypeProtocol}
	case m.KeyDistribution != nil:
		return Flat{Type: TypeKeyDistribution}
	default:
		return Flat{}
	}
}
