// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package store provides the optional durable key-value backing for the
// handler's group/contact/timer caches. The core only requires map-like
// get/set/delete semantics; values survive process restarts when the
// SQLite implementation is used.
package store

import "context"

// KV is the map-like store contract. Implementations must be safe for
// concurrent use.
type KV interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores the value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases underlying resources.
	Close() error
}
