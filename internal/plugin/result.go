// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package plugin

// Entry is one row of a Result table. GetPlugin resolves through the
// manager's live map, so an entry generated before a reload still resolves
// to the current Plugin afterwards, as long as the location kept a plugin
// at the same index. A vanished plugin resolves to nil and must be treated
// as "command removed".
type Entry struct {
	// Prefix is the command prefix this entry was expanded under; empty
	// for listeners and bare (NoPrefix) commands.
	Prefix    string
	PluginKey string
	Location  string
	GetPlugin func() *Plugin
}

// Result is an immutable snapshot of the plugin set as lookup tables.
// Command maps full patterns (prefix+alias, or the bare alias for NoPrefix
// commands) to entries; Listener maps plugin keys to entries. The handler
// discards and rebuilds a Result wholesale, never mutates one.
type Result struct {
	Command  map[string]Entry
	Listener map[string]Entry

	// UpdatedAt is the manager load version the snapshot was built from.
	UpdatedAt int64
}
