// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package plugin

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// fakeLoader serves descriptors from an in-memory map keyed by path.
type fakeLoader struct {
	mu    sync.Mutex
	descs map[string][]pluginsdk.Descriptor
	fail  map[string]error
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		descs: make(map[string][]pluginsdk.Descriptor),
		fail:  make(map[string]error),
	}
}

func (f *fakeLoader) Matches(path string) bool {
	return filepath.Ext(path) == ".lua"
}

func (f *fakeLoader) Load(_ context.Context, path string) ([]pluginsdk.Descriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[path]; err != nil {
		return nil, err
	}
	return f.descs[path], nil
}

func (f *fakeLoader) set(path string, descs ...pluginsdk.Descriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.descs[path] = descs
}

func noopExec(*pluginsdk.Context) error { return nil }

func command(aliases ...string) pluginsdk.Descriptor {
	return pluginsdk.Descriptor{Cmd: aliases, Exec: noopExec}
}

func listener() pluginsdk.Descriptor {
	return pluginsdk.Descriptor{Exec: noopExec}
}

func TestRegister_ReplacesLocationAtomically(t *testing.T) {
	m := NewManager(newFakeLoader())

	m.Register("a.lua", []pluginsdk.Descriptor{command("ping"), listener()})
	assert.Len(t, m.Plugins(), 2)

	m.Register("a.lua", []pluginsdk.Descriptor{command("pong")})
	plugins := m.Plugins()
	require.Len(t, plugins, 1)
	assert.Equal(t, []string{"pong"}, plugins[0].Descriptor().Cmd)
}

func TestRegister_SkipsDescriptorsWithoutExec(t *testing.T) {
	m := NewManager(newFakeLoader())
	m.Register("a.lua", []pluginsdk.Descriptor{
		{Cmd: []string{"broken"}}, // no Exec: not callable
		command("ok"),
	})
	plugins := m.Plugins()
	require.Len(t, plugins, 1)
	assert.Equal(t, []string{"ok"}, plugins[0].Descriptor().Cmd)
}

func TestRegister_BumpsUpdatedAt(t *testing.T) {
	m := NewManager(newFakeLoader())
	v0 := m.UpdatedAt()
	m.Register("a.lua", []pluginsdk.Descriptor{listener()})
	v1 := m.UpdatedAt()
	assert.Greater(t, v1, v0)

	m.Remove("a.lua")
	assert.Greater(t, m.UpdatedAt(), v1)
}

func TestRemove_UnknownLocationIsNoop(t *testing.T) {
	m := NewManager(newFakeLoader())
	v := m.UpdatedAt()
	m.Remove("never-registered.lua")
	assert.Equal(t, v, m.UpdatedAt())
}

func TestGetPlugin_ResolvesLiveAndVanished(t *testing.T) {
	m := NewManager(newFakeLoader())
	m.Register("a.lua", []pluginsdk.Descriptor{command("ping"), listener()})

	key0 := Key("a.lua", 0)
	key1 := Key("a.lua", 1)
	require.NotNil(t, m.GetPlugin("a.lua", key0))
	require.NotNil(t, m.GetPlugin("a.lua", key1))

	// Reload with one fewer descriptor: the vacated key resolves to nil.
	m.Register("a.lua", []pluginsdk.Descriptor{command("ping")})
	assert.NotNil(t, m.GetPlugin("a.lua", key0))
	assert.Nil(t, m.GetPlugin("a.lua", key1))
}

func TestGenPlugins_CommandExpansion(t *testing.T) {
	m := NewManager(newFakeLoader())
	m.Register("ping.lua", []pluginsdk.Descriptor{command("Ping")})
	m.Register("bare.lua", []pluginsdk.Descriptor{{
		Cmd:      []string{"status"},
		NoPrefix: true,
		Exec:     noopExec,
	}})
	m.Register("listen.lua", []pluginsdk.Descriptor{listener()})

	res := m.GenPlugins([]string{".", "/"}, nil, nil)

	// Prefixed command: every prefix x every alias, lower-cased.
	require.Contains(t, res.Command, ".ping")
	require.Contains(t, res.Command, "/ping")
	assert.Equal(t, ".", res.Command[".ping"].Prefix)

	// NoPrefix command: bare token only.
	require.Contains(t, res.Command, "status")
	assert.NotContains(t, res.Command, ".status")
	assert.Empty(t, res.Command["status"].Prefix)

	// Listener table keyed by plugin key.
	assert.Len(t, res.Listener, 1)
	for key, e := range res.Listener {
		assert.Equal(t, key, e.PluginKey)
		assert.Equal(t, "listen.lua", e.Location)
	}
}

func TestGenPlugins_GetPluginTracksReloads(t *testing.T) {
	m := NewManager(newFakeLoader())
	m.Register("ping.lua", []pluginsdk.Descriptor{command("ping")})

	res := m.GenPlugins([]string{"."}, nil, nil)
	entry := res.Command[".ping"]
	require.NotNil(t, entry.GetPlugin())

	// Hot-swap the location; the old entry resolves to the new Plugin.
	m.Register("ping.lua", []pluginsdk.Descriptor{{
		Cmd:         []string{"ping"},
		Description: "v2",
		Exec:        noopExec,
	}})
	got := entry.GetPlugin()
	require.NotNil(t, got)
	assert.Equal(t, "v2", got.Descriptor().Description)

	// Remove the location; the entry now resolves to nil.
	m.Remove("ping.lua")
	assert.Nil(t, entry.GetPlugin())
}

func TestGenPlugins_FilterExcludesWithoutUnregistering(t *testing.T) {
	m := NewManager(newFakeLoader())
	m.Register("a.lua", []pluginsdk.Descriptor{command("ping")})
	m.Register("b.lua", []pluginsdk.Descriptor{command("pong")})

	res := m.GenPlugins([]string{"."}, func(p *Plugin, _ *Manager) bool {
		return p.Location() != "b.lua"
	}, nil)

	assert.Contains(t, res.Command, ".ping")
	assert.NotContains(t, res.Command, ".pong")
	assert.Len(t, m.Plugins(), 2)
}

func TestGenPlugins_SubscriptionNotifiedOnReload(t *testing.T) {
	m := NewManager(newFakeLoader())

	notified := make(chan string, 4)
	m.GenPlugins(nil, nil, &Subscription{
		Unique: "test",
		Callback: func(location string, _ *Manager) {
			notified <- location
		},
	})

	m.Register("a.lua", []pluginsdk.Descriptor{listener()})
	select {
	case loc := <-notified:
		assert.Equal(t, "a.lua", loc)
	case <-time.After(time.Second):
		t.Fatal("subscription callback never fired")
	}
}

func TestGenPlugins_DuplicateUniqueReplacesCallback(t *testing.T) {
	m := NewManager(newFakeLoader())

	first := make(chan string, 4)
	second := make(chan string, 4)
	m.GenPlugins(nil, nil, &Subscription{Unique: "x", Callback: func(loc string, _ *Manager) { first <- loc }})
	m.GenPlugins(nil, nil, &Subscription{Unique: "x", Callback: func(loc string, _ *Manager) { second <- loc }})

	m.Register("a.lua", []pluginsdk.Descriptor{listener()})

	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("replacement callback never fired")
	}
	select {
	case <-first:
		t.Fatal("replaced callback still registered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestScan_LoadsTreeAndIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "tools")
	require.NoError(t, os.Mkdir(sub, 0o750))

	files := map[string]string{
		filepath.Join(dir, "ping.lua"):      "",
		filepath.Join(dir, "broken.lua"):    "",
		filepath.Join(dir, "_disabled.lua"): "",
		filepath.Join(dir, ".hidden.lua"):   "",
		filepath.Join(dir, "ping_test.lua"): "",
		filepath.Join(dir, "notes.txt"):     "",
		filepath.Join(sub, "nested.lua"):    "",
	}
	for path := range files {
		require.NoError(t, os.WriteFile(path, []byte("-- stub"), 0o600))
	}

	loader := newFakeLoader()
	loader.set(filepath.Join(dir, "ping.lua"), command("ping"))
	loader.set(filepath.Join(sub, "nested.lua"), listener())
	loader.fail[filepath.Join(dir, "broken.lua")] = assert.AnError
	// _disabled, .hidden, and ping_test must never reach the loader.
	loader.set(filepath.Join(dir, "_disabled.lua"), command("disabled"))

	m := NewManager(loader)
	require.NoError(t, m.Scan(context.Background(), dir))

	res := m.GenPlugins([]string{"."}, nil, nil)
	assert.Contains(t, res.Command, ".ping")
	assert.NotContains(t, res.Command, ".disabled")
	assert.Len(t, res.Listener, 1)
}

func TestScan_MissingRootIsNotAnError(t *testing.T) {
	m := NewManager(newFakeLoader())
	assert.NoError(t, m.Scan(context.Background(), filepath.Join(t.TempDir(), "nope")))
}

func TestScan_IgnoreGlobs(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip-me.lua"), []byte(""), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.lua"), []byte(""), 0o600))

	loader := newFakeLoader()
	loader.set(filepath.Join(dir, "skip-me.lua"), command("skipped"))
	loader.set(filepath.Join(dir, "keep.lua"), command("kept"))

	m := NewManager(loader, WithIgnoreGlobs([]string{"skip-*"}))
	require.NoError(t, m.Scan(context.Background(), dir))

	res := m.GenPlugins([]string{"."}, nil, nil)
	assert.Contains(t, res.Command, ".kept")
	assert.NotContains(t, res.Command, ".skipped")
}
