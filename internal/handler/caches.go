// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package handler

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/chatling/chatling/internal/transport"
)

// taskBlocklistRefetch is the fixed id deduplicating post-connect block
// list refetches through the task registry.
const taskBlocklistRefetch = "blocklist.refetch"

// blocklistRefetchDelay gives the socket time to settle after reporting
// itself open before the block list is fetched. Variable so tests can
// shrink it.
var blocklistRefetchDelay = 3 * time.Second

// Store key prefixes for the durable cache backing.
const (
	kvGroupPrefix   = "group:"
	kvContactPrefix = "contact:"
	kvTimerPrefix   = "timer:"
)

// updateData applies event-type-specific cache mutations. Fetch failures
// leave the cached value stale; they are logged and retried on the next
// triggering event.
func (h *Handler) updateData(ctx context.Context, ev *transport.Event) {
	switch ev.Name {
	case transport.EventMessagesUpsert:
		h.updateTimerFromMessage(ev)
	case transport.EventGroupsUpsert:
		for _, meta := range ev.Groups {
			h.setGroup(meta)
		}
	case transport.EventGroupsUpdate:
		h.applyGroupUpdate(ctx, ev.Group)
	case transport.EventParticipantsUpdate:
		h.applyParticipantsUpdate(ctx, ev.Participants)
	case transport.EventContactsUpsert, transport.EventContactsUpdate:
		for _, contact := range ev.Contacts {
			h.setContact(contact)
		}
	case transport.EventBlocklistSet, transport.EventBlocklistUpdate:
		h.applyBlocklistUpdate(ev.Blocklist)
	case transport.EventConnectionUpdate:
		if ev.Connection != nil && ev.Connection.Status == "open" {
			h.scheduleBlocklistRefetch(ctx)
		}
	}
}

// updateTimerFromMessage maintains the per-chat ephemeral timer from the
// bot's own outgoing messages. Backfill deliveries and key-distribution
// housekeeping never touch the timer.
func (h *Handler) updateTimerFromMessage(ev *transport.Event) {
	msg := ev.Message
	if msg == nil || !msg.Key.FromMe || ev.Type == transport.UpsertAppend {
		return
	}
	if msg.Content == nil || msg.Content.KeyDistribution != nil {
		return
	}

	chat := transport.NormalizeJID(msg.Key.RemoteJID)
	if p := msg.Content.Protocol; p != nil && p.Type == transport.ProtocolEphemeralSetting {
		h.setTimer(chat, p.EphemeralExpiration)
		return
	}
	if info := msg.Content.Flatten().ContextInfo; info != nil {
		h.setTimer(chat, info.Expiration)
	}
}

// Timer returns the stored disappearing-message duration for a chat, or
// zero when none is set.
func (h *Handler) Timer(chat string) int {
	chat = transport.NormalizeJID(chat)
	h.mu.RLock()
	seconds, ok := h.timers[chat]
	h.mu.RUnlock()
	if !ok && h.kv != nil {
		if raw, found, err := h.kv.Get(context.Background(), kvTimerPrefix+chat); err == nil && found {
			if json.Unmarshal(raw, &seconds) == nil && seconds > 0 {
				h.mu.Lock()
				h.timers[chat] = seconds
				h.mu.Unlock()
			}
		}
	}
	return seconds
}

// setTimer stores a chat's timer. A zero duration deletes the entry
// rather than storing zero.
func (h *Handler) setTimer(chat string, seconds int) {
	chat = transport.NormalizeJID(chat)
	h.mu.Lock()
	if seconds == 0 {
		delete(h.timers, chat)
	} else {
		h.timers[chat] = seconds
	}
	h.mu.Unlock()

	if h.kv == nil {
		return
	}
	if seconds == 0 {
		if err := h.kv.Delete(context.Background(), kvTimerPrefix+chat); err != nil {
			h.logger.Warn("timer cache delete failed", "chat", chat, "error", err)
		}
		return
	}
	h.persist(kvTimerPrefix+chat, seconds)
}

// Contact returns the cached contact for a JID.
func (h *Handler) Contact(jid string) (transport.Contact, bool) {
	jid = transport.NormalizeJID(jid)
	h.mu.RLock()
	contact, ok := h.contacts[jid]
	h.mu.RUnlock()
	if ok || h.kv == nil {
		return contact, ok
	}
	raw, found, err := h.kv.Get(context.Background(), kvContactPrefix+jid)
	if err != nil || !found || json.Unmarshal(raw, &contact) != nil {
		return transport.Contact{}, false
	}
	h.mu.Lock()
	h.contacts[jid] = contact
	h.mu.Unlock()
	return contact, true
}

func (h *Handler) setContact(contact transport.Contact) {
	jid := transport.NormalizeJID(contact.JID)
	if jid == "" {
		return
	}
	contact.JID = jid
	h.mu.Lock()
	h.contacts[jid] = contact
	h.mu.Unlock()
	h.persist(kvContactPrefix+jid, contact)
}

// Group returns the cached metadata record for a group chat.
func (h *Handler) Group(jid string) (*transport.GroupMetadata, bool) {
	jid = transport.NormalizeJID(jid)
	h.mu.RLock()
	meta, ok := h.groups[jid]
	h.mu.RUnlock()
	if ok || h.kv == nil {
		return meta, ok
	}
	raw, found, err := h.kv.Get(context.Background(), kvGroupPrefix+jid)
	if err != nil || !found {
		return nil, false
	}
	loaded := new(transport.GroupMetadata)
	if json.Unmarshal(raw, loaded) != nil {
		return nil, false
	}
	h.mu.Lock()
	h.groups[jid] = loaded
	h.mu.Unlock()
	return loaded, true
}

// FetchGroup returns the cached record, fetching from the transport on a
// miss.
func (h *Handler) FetchGroup(ctx context.Context, jid string) (*transport.GroupMetadata, error) {
	if meta, ok := h.Group(jid); ok {
		return meta, nil
	}
	return h.refetchGroup(ctx, jid)
}

// setGroup stores a group record, recomputing its size from the
// participant list and propagating its ephemeral duration into the timer
// cache.
func (h *Handler) setGroup(meta *transport.GroupMetadata) {
	if meta == nil || meta.ID == "" {
		return
	}
	meta.Size = len(meta.Participants)
	h.mu.Lock()
	h.groups[meta.ID] = meta
	h.mu.Unlock()
	h.persist(kvGroupPrefix+meta.ID, meta)
	h.setTimer(meta.ID, meta.EphemeralDuration)
}

// refetchGroup replaces the cached record with a full fetch from the
// transport.
func (h *Handler) refetchGroup(ctx context.Context, jid string) (*transport.GroupMetadata, error) {
	meta, err := h.client.GroupMetadata(ctx, jid)
	if err != nil {
		h.logger.Warn("group metadata fetch failed", "chat", jid, "error", err)
		return nil, err
	}
	h.setGroup(meta)
	return meta, nil
}

// applyGroupUpdate merges a partial settings change into the cached
// record field by field, skipping the immutable id and owner. With no
// cached record the incremental path has nothing to patch, so it falls
// back to a full fetch.
func (h *Handler) applyGroupUpdate(ctx context.Context, update *transport.GroupUpdate) {
	if update == nil || update.ID == "" {
		return
	}
	meta, ok := h.Group(update.ID)
	if !ok {
		h.refetchGroup(ctx, update.ID) //nolint:errcheck // stale on failure, retried next event
		return
	}

	patched := *meta
	if update.Subject != nil {
		patched.Subject = *update.Subject
	}
	if update.SubjectOwner != nil {
		patched.SubjectOwner = *update.SubjectOwner
	}
	if update.Desc != nil {
		patched.Desc = *update.Desc
	}
	if update.Announce != nil {
		patched.Announce = *update.Announce
	}
	if update.Restrict != nil {
		patched.Restrict = *update.Restrict
	}
	if update.EphemeralDuration != nil {
		patched.EphemeralDuration = *update.EphemeralDuration
	}
	if update.AddressingMode != nil {
		patched.AddressingMode = *update.AddressingMode
	}
	h.setGroup(&patched)
}

// applyParticipantsUpdate patches the cached participant list in place
// for add/remove/promote/demote. Actions the incremental path cannot
// express force a full refetch. An add of an anonymized-lid participant
// mutates the list without marking the record changed; kept as observed.
func (h *Handler) applyParticipantsUpdate(ctx context.Context, update *transport.ParticipantsUpdate) {
	if update == nil || update.ChatID == "" {
		return
	}
	meta, ok := h.Group(update.ChatID)
	if !ok {
		h.refetchGroup(ctx, update.ChatID) //nolint:errcheck // stale on failure, retried next event
		return
	}

	patched := *meta
	patched.Participants = slices.Clone(meta.Participants)
	changed := false

	switch update.Action {
	case transport.ParticipantAdd:
		for _, jid := range update.Participants {
			jid = transport.NormalizeJID(jid)
			if participantIndex(patched.Participants, jid) >= 0 {
				continue
			}
			member := transport.GroupParticipant{JID: jid}
			if transport.IsLID(jid) {
				member.JID = ""
				member.LID = jid
			}
			patched.Participants = append(patched.Participants, member)
			changed = changed || !transport.IsLID(jid)
		}
	case transport.ParticipantRemove:
		for _, jid := range update.Participants {
			if i := participantIndex(patched.Participants, transport.NormalizeJID(jid)); i >= 0 {
				patched.Participants = slices.Delete(patched.Participants, i, i+1)
				changed = true
			}
		}
	case transport.ParticipantPromote, transport.ParticipantDemote:
		rank := transport.RankAdmin
		if update.Action == transport.ParticipantDemote {
			rank = transport.RankMember
		}
		for _, jid := range update.Participants {
			if i := participantIndex(patched.Participants, transport.NormalizeJID(jid)); i >= 0 {
				patched.Participants[i].Admin = rank
				changed = true
			}
		}
	default:
		h.refetchGroup(ctx, update.ChatID) //nolint:errcheck // stale on failure, retried next event
		return
	}

	if changed {
		h.setGroup(&patched)
		return
	}
	// List mutated but not marked changed (lid-only adds): the record is
	// swapped in without the size recompute or persistence pass.
	h.mu.Lock()
	h.groups[patched.ID] = &patched
	h.mu.Unlock()
}

// participantIndex finds a member by either addressing scheme.
func participantIndex(participants []transport.GroupParticipant, jid string) int {
	return slices.IndexFunc(participants, func(p transport.GroupParticipant) bool {
		return (p.JID != "" && p.JID == jid) || (p.LID != "" && p.LID == jid)
	})
}

// Blocked reports whether a JID is on the block list.
func (h *Handler) Blocked(jid string) bool {
	jid = transport.NormalizeJID(jid)
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Contains(h.blocked, jid)
}

// Blocklist returns a copy of the ordered block list.
func (h *Handler) Blocklist() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.blocked)
}

// UpdateBlockStatus blocks or unblocks a JID on the server, updating the
// local set only on success.
func (h *Handler) UpdateBlockStatus(ctx context.Context, jid string, block bool) error {
	jid = transport.NormalizeJID(jid)
	if err := h.client.UpdateBlockStatus(ctx, jid, block); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if block {
		if !slices.Contains(h.blocked, jid) {
			h.blocked = append(h.blocked, jid)
		}
	} else {
		h.blocked = slices.DeleteFunc(h.blocked, func(b string) bool { return b == jid })
	}
	return nil
}

// applyBlocklistUpdate merges a transport block-list event: explicit
// add/remove deltas, or full replacement on a bare set.
func (h *Handler) applyBlocklistUpdate(update *transport.BlocklistUpdate) {
	if update == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	switch update.Action {
	case transport.BlocklistAdd:
		for _, jid := range update.JIDs {
			jid = transport.NormalizeJID(jid)
			if !slices.Contains(h.blocked, jid) {
				h.blocked = append(h.blocked, jid)
			}
		}
	case transport.BlocklistRemove:
		for _, jid := range update.JIDs {
			jid = transport.NormalizeJID(jid)
			h.blocked = slices.DeleteFunc(h.blocked, func(b string) bool { return b == jid })
		}
	default:
		replacement := make([]string, 0, len(update.JIDs))
		for _, jid := range update.JIDs {
			replacement = append(replacement, transport.NormalizeJID(jid))
		}
		h.blocked = replacement
	}
}

// scheduleBlocklistRefetch starts a delayed one-shot full block-list
// fetch. The fixed task id coalesces repeated "open" signals in quick
// succession into a single fetch.
func (h *Handler) scheduleBlocklistRefetch(ctx context.Context) {
	h.tasks.Go(taskBlocklistRefetch, func() error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(blocklistRefetchDelay):
		}

		backoff := retry.WithMaxRetries(2, retry.NewFibonacci(time.Second))
		err := retry.Do(ctx, backoff, func(ctx context.Context) error {
			jids, err := h.client.FetchBlocklist(ctx)
			if err != nil {
				return retry.RetryableError(err)
			}
			h.applyBlocklistUpdate(&transport.BlocklistUpdate{JIDs: jids})
			return nil
		})
		if err != nil {
			h.logger.Warn("block list refetch failed", "error", err)
		}
		return err
	})
}

// persist writes a cache record through to the durable store when one is
// configured.
func (h *Handler) persist(key string, value any) {
	if h.kv == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := h.kv.Set(context.Background(), key, raw); err != nil {
		h.logger.Warn("cache persist failed", "key", key, "error", err)
	}
}
