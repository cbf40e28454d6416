// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package handler

import (
	"sync"

	"github.com/chatling/chatling/internal/transport"
)

// idWindow is a bounded FIFO of recently seen event ids with O(1)
// membership checks. It is safe for concurrent use.
type idWindow struct {
	mu    sync.Mutex
	cap   int
	order []string
	seen  map[string]struct{}
}

func newIDWindow(capacity int) *idWindow {
	return &idWindow{
		cap:  capacity,
		seen: make(map[string]struct{}, capacity),
	}
}

// observe records id and reports whether it was seen for the first time.
// Once the window exceeds capacity the oldest id is evicted.
func (w *idWindow) observe(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[id]; ok {
		return false
	}
	w.seen[id] = struct{}{}
	w.order = append(w.order, id)
	if len(w.order) > w.cap {
		oldest := w.order[0]
		w.order = w.order[1:]
		delete(w.seen, oldest)
	}
	return true
}

// IsSafe reports whether the event may trigger a command. Backfill
// deliveries, key-distribution housekeeping, messages of unknown type, and
// ids already present in the recent-id window are all unsafe. The window
// is populated as a side effect: the first call for an id marks it seen.
func (h *Handler) IsSafe(ev *transport.Event) bool {
	if ev == nil || ev.Message == nil {
		return false
	}
	if ev.Type == transport.UpsertAppend {
		return false
	}
	flat := ev.Message.Content.Flatten()
	if flat.Type == "" || flat.Type == transport.TypeKeyDistribution {
		return false
	}
	return h.seen.observe(ev.Message.Key.ID)
}
