// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten_Conversation(t *testing.T) {
	f := (&MessageContent{Conversation: "hello"}).Flatten()
	assert.Equal(t, "hello", f.Text)
	assert.Equal(t, TypeConversation, f.Type)
	assert.Nil(t, f.ContextInfo)
}

func TestFlatten_ExtendedTextCarriesContextInfo(t *testing.T) {
	ci := &ContextInfo{Expiration: 86400, MentionedJID: []string{"1@s.whatsapp.net"}}
	f := (&MessageContent{ExtendedText: &ExtendedText{Text: "hi", ContextInfo: ci}}).Flatten()
	assert.Equal(t, "hi", f.Text)
	assert.Equal(t, TypeExtendedText, f.Type)
	assert.Same(t, ci, f.ContextInfo)
}

func TestFlatten_MediaCaption(t *testing.T) {
	f := (&MessageContent{Image: &Media{Caption: "look"}}).Flatten()
	assert.Equal(t, "look", f.Text)
	assert.Equal(t, TypeImage, f.Type)
}

func TestFlatten_EditedMessageIndirection(t *testing.T) {
	edited := &MessageContent{Conversation: "fixed typo"}
	f := (&MessageContent{Protocol: &ProtocolMessage{Type: ProtocolEdit, EditedMessage: edited}}).Flatten()
	assert.Equal(t, "fixed typo", f.Text)
	assert.Equal(t, TypeConversation, f.Type)
}

func TestFlatten_ProtocolWithoutEdit(t *testing.T) {
	f := (&MessageContent{Protocol: &ProtocolMessage{Type: ProtocolEphemeralSetting}}).Flatten()
	assert.Equal(t, TypeProtocol, f.Type)
	assert.Empty(t, f.Text)
}

func TestFlatten_DeviceContextInfoNeverReported(t *testing.T) {
	f := (&MessageContent{MessageContextInfo: &DeviceContextInfo{DeviceListMetadataVersion: 2}}).Flatten()
	assert.Empty(t, f.Type)
}

func TestFlatten_KeyDistribution(t *testing.T) {
	f := (&MessageContent{KeyDistribution: &KeyDistribution{GroupID: "g@g.us"}}).Flatten()
	assert.Equal(t, TypeKeyDistribution, f.Type)
}

func TestFlatten_Nil(t *testing.T) {
	var m *MessageContent
	assert.Equal(t, Flat{}, m.Flatten())
}

func TestFlatten_AudioAndStickerHaveNoText(t *testing.T) {
	assert.Equal(t, TypeAudio, (&MessageContent{Audio: &Media{}}).Flatten().Type)
	assert.Equal(t, TypeSticker, (&MessageContent{Sticker: &Media{}}).Flatten().Type)
}
