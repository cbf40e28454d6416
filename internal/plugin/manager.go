// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package plugin

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gobwas/glob"
	"github.com/samber/oops"

	"github.com/chatling/chatling/internal/observability"
	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// Loader turns a plugin source file into descriptors. The Lua loader is the
// default implementation; tests supply fakes.
type Loader interface {
	// Matches reports whether the loader handles the given path.
	Matches(path string) bool

	// Load evaluates the file and returns the descriptor(s) it exports.
	Load(ctx context.Context, path string) ([]pluginsdk.Descriptor, error)
}

// Subscription registers interest in reloads processed after GenPlugins.
// Registering a second subscription under the same Unique id replaces the
// previous callback: at most one callback per subscriber.
type Subscription struct {
	Unique   string
	Callback func(location string, m *Manager)
}

// FilterFunc excludes plugins from a generated Result without removing them
// from the manager.
type FilterFunc func(p *Plugin, m *Manager) bool

// Manager owns the full set of discovered plugins keyed by source location,
// watches the plugin tree for changes, and produces Result snapshots on
// demand. It is safe for concurrent use.
type Manager struct {
	loader Loader
	logger *slog.Logger
	ignore []glob.Glob

	mu      sync.RWMutex
	plugins map[string]map[string]*Plugin // location → pluginKey → Plugin
	subs    map[string]Subscription

	// version is the monotonic load counter bumped on every successful
	// register/remove; the handler uses it as a cheap staleness token.
	version atomic.Int64

	watcher *watcher
}

// ManagerOption configures the Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithIgnoreGlobs adds glob patterns for file names to skip during scans,
// on top of the built-in underscore/dot/test-file rules. Invalid patterns
// are rejected at construction by MustCompile semantics, so pass literals.
func WithIgnoreGlobs(patterns []string) ManagerOption {
	return func(m *Manager) {
		for _, p := range patterns {
			m.ignore = append(m.ignore, glob.MustCompile(p))
		}
	}
}

// NewManager creates a plugin manager using the given loader.
func NewManager(loader Loader, opts ...ManagerOption) *Manager {
	m := &Manager{
		loader:  loader,
		logger:  slog.Default(),
		plugins: make(map[string]map[string]*Plugin),
		subs:    make(map[string]Subscription),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// UpdatedAt returns the monotonic load version. It moves on every
// successful register or remove.
func (m *Manager) UpdatedAt() int64 {
	return m.version.Load()
}

// skippable reports whether a directory entry name is excluded from
// discovery: underscore/dot prefixes, test files, and configured globs.
func (m *Manager) skippable(name string) bool {
	if strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
		return true
	}
	base := strings.TrimSuffix(name, filepath.Ext(name))
	if strings.HasSuffix(base, "_test") {
		return true
	}
	for _, g := range m.ignore {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Scan walks the plugin tree rooted at root and loads every eligible file.
// Directories are recursed before sibling files so nested plugins register
// first. A file that fails to load is logged and skipped; the scan
// continues.
func (m *Manager) Scan(ctx context.Context, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return oops.In("plugin").With("root", root).Hint("failed to read plugin directory").Wrap(err)
	}

	// Directories first, then files, each group in name order.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if m.skippable(entry.Name()) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if entry.IsDir() {
			if err := m.Scan(ctx, path); err != nil {
				return err
			}
			continue
		}
		if !m.loader.Matches(path) {
			continue
		}
		if err := m.Reload(ctx, path); err != nil {
			m.logger.Error("failed to load plugin file",
				"location", path,
				"error", err)
		}
	}
	return nil
}

// Reload loads one source file and registers its descriptors, atomically
// replacing whatever the location exported before.
func (m *Manager) Reload(ctx context.Context, location string) error {
	descriptors, err := m.loader.Load(ctx, location)
	if err != nil {
		observability.RecordPluginLoadFailure()
		return oops.In("plugin").With("location", location).Hint("plugin load failed").Wrap(err)
	}
	m.Register(location, descriptors)
	return nil
}

// Register replaces the location's plugin set with the given descriptors.
// It is idempotent: keys are derived fresh from the new index order, so
// reordering a file's exports changes their keys. Descriptors without an
// Exec are excluded - not a command, not a listener, not callable.
func (m *Manager) Register(location string, descriptors []pluginsdk.Descriptor) {
	inner := make(map[string]*Plugin, len(descriptors))
	for i, desc := range descriptors {
		if desc.Exec == nil {
			continue
		}
		p := NewPlugin(desc, location, i)
		inner[p.Key()] = p
	}

	m.mu.Lock()
	m.plugins[location] = inner
	m.mu.Unlock()
	m.version.Add(1)

	observability.RecordPluginReload()
	m.logger.Debug("registered plugin location",
		"location", location,
		"plugins", len(inner))
	m.notify(location)
}

// Remove deletes a location and all of its plugin keys. Stale table entries
// pointing at the location resolve to nil afterwards.
func (m *Manager) Remove(location string) {
	m.mu.Lock()
	_, existed := m.plugins[location]
	delete(m.plugins, location)
	m.mu.Unlock()

	if !existed {
		return
	}
	m.version.Add(1)
	m.logger.Debug("removed plugin location", "location", location)
	m.notify(location)
}

// GetPlugin resolves a (location, key) pair against the live map. Returns
// nil when the plugin vanished since the caller's table was built.
func (m *Manager) GetPlugin(location, key string) *Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plugins[location][key]
}

// Plugins returns all registered plugins in location order.
func (m *Manager) Plugins() []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()

	locations := make([]string, 0, len(m.plugins))
	for loc := range m.plugins {
		locations = append(locations, loc)
	}
	sort.Strings(locations)

	var out []*Plugin
	for _, loc := range locations {
		keys := make([]string, 0, len(m.plugins[loc]))
		for k := range m.plugins[loc] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = append(out, m.plugins[loc][k])
		}
	}
	return out
}

// GenPlugins builds a fresh Result from the current plugin set. filter, when
// non-nil, excludes plugins from the tables without unregistering them. sub,
// when non-nil, subscribes its callback to future reloads.
func (m *Manager) GenPlugins(prefixes []string, filter FilterFunc, sub *Subscription) *Result {
	if sub != nil && sub.Callback != nil {
		m.mu.Lock()
		m.subs[sub.Unique] = *sub
		m.mu.Unlock()
	}

	res := &Result{
		Command:   make(map[string]Entry),
		Listener:  make(map[string]Entry),
		UpdatedAt: m.UpdatedAt(),
	}

	for _, p := range m.Plugins() {
		if filter != nil && !filter(p, m) {
			continue
		}
		location, key := p.Location(), p.Key()
		entry := Entry{
			PluginKey: key,
			Location:  location,
			GetPlugin: func() *Plugin { return m.GetPlugin(location, key) },
		}

		if !p.IsCommand() {
			res.Listener[key] = entry
			continue
		}
		for _, alias := range p.Descriptor().Cmd {
			alias = strings.ToLower(alias)
			if p.Descriptor().NoPrefix {
				res.Command[alias] = entry
				continue
			}
			for _, prefix := range prefixes {
				pe := entry
				pe.Prefix = prefix
				res.Command[prefix+alias] = pe
			}
		}
	}
	return res
}

// notify invokes every reload subscription asynchronously.
func (m *Manager) notify(location string) {
	m.mu.RLock()
	subs := make([]Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	for _, s := range subs {
		go s.Callback(location, m)
	}
}

// Close stops the filesystem watcher if one is running.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.close()
	}
	return nil
}
