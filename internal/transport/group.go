// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package transport

import "time"

// Participant admin ranks.
const (
	RankMember     = ""
	RankAdmin      = "admin"
	RankSuperAdmin = "superadmin"
)

// Participant update actions.
const (
	ParticipantAdd     = "add"
	ParticipantRemove  = "remove"
	ParticipantPromote = "promote"
	ParticipantDemote  = "demote"
	ParticipantModify  = "modify"
)

// Addressing modes for a group: classic phone-number JIDs or anonymized
// lid identifiers.
const (
	AddressingPN  = "pn"
	AddressingLID = "lid"
)

// GroupParticipant is one member of a group.
type GroupParticipant struct {
	JID   string
	LID   string
	Admin string // RankMember, RankAdmin, or RankSuperAdmin
}

// GroupMetadata is the cached record for one group chat. Size is derived
// from the participant list and recomputed after every successful update.
type GroupMetadata struct {
	ID                string
	Subject           string
	SubjectOwner      string
	SubjectTime       time.Time
	Owner             string
	Desc              string
	Size              int
	Participants      []GroupParticipant
	EphemeralDuration int
	AddressingMode    string
	Announce          bool
	Restrict          bool
	Creation          time.Time
}

// GroupUpdate is a partial group-settings change. Nil fields are untouched
// by the merge; ID and Owner are immutable and never merged.
type GroupUpdate struct {
	ID                string
	Subject           *string
	SubjectOwner      *string
	Desc              *string
	Announce          *bool
	Restrict          *bool
	EphemeralDuration *int
	AddressingMode    *string
}

// ParticipantsUpdate is a group membership change event.
type ParticipantsUpdate struct {
	ChatID       string
	Action       string
	Participants []string
}
