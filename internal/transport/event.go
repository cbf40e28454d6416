// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package transport defines the boundary to the external protocol socket:
// the event envelope it emits, the message and group data model, and the
// client interface the runtime calls back into. The authenticated socket
// itself is an external collaborator; everything here is the contract it
// must satisfy.
package transport

import "time"

// Event names emitted by the transport. The transport collapses batched
// protocol updates into one Event per logical sub-event before handing it
// to the handler.
const (
	EventMessagesUpsert     = "messages.upsert"
	EventGroupsUpdate       = "groups.update"
	EventGroupsUpsert       = "groups.upsert"
	EventParticipantsUpdate = "group-participants.update"
	EventContactsUpsert     = "contacts.upsert"
	EventContactsUpdate     = "contacts.update"
	EventBlocklistSet       = "blocklist.set"
	EventBlocklistUpdate    = "blocklist.update"
	EventConnectionUpdate   = "connection.update"
	EventPresenceUpdate     = "presence.update"
	EventCall               = "call"
)

// Message delivery types for messages.upsert events.
const (
	UpsertNotify = "notify"
	UpsertAppend = "append" // backfill / history sync, never a command trigger
)

// Event is the envelope for one logical protocol event. Name identifies the
// event class, Type is the class-specific discriminator (delivery type for
// messages, action for participant updates), and exactly one payload field
// is populated.
type Event struct {
	Name string
	Type string

	Message      *Message
	Group        *GroupUpdate
	Groups       []*GroupMetadata
	Participants *ParticipantsUpdate
	Contacts     []Contact
	Blocklist    *BlocklistUpdate
	Connection   *ConnectionUpdate
	Presence     *PresenceUpdate
	Call         *CallEvent
}

// Contact is a minimal address-book entry.
type Contact struct {
	JID  string
	Name string
}

// Blocklist actions carried by blocklist.update events. An empty action on
// a blocklist.set event means full replacement.
const (
	BlocklistAdd    = "add"
	BlocklistRemove = "remove"
)

// BlocklistUpdate carries either a delta (Action add/remove) or, for a bare
// set, the full replacement list.
type BlocklistUpdate struct {
	Action string
	JIDs   []string
}

// ConnectionUpdate reports socket lifecycle transitions.
type ConnectionUpdate struct {
	Status string // "connecting", "open", "close"
}

// PresenceUpdate reports a participant's presence in a chat.
type PresenceUpdate struct {
	ChatID   string
	Sender   string
	Presence string
	Seen     time.Time
}

// CallEvent reports an incoming or updated call.
type CallEvent struct {
	ID     string
	ChatID string
	From   string
	Status string
}
