// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package plugin

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/samber/oops"
)

// watcher pushes filesystem change notifications for the plugin tree into
// the manager: add/change reloads the affected location, unlink drops it.
type watcher struct {
	fsw     *fsnotify.Watcher
	manager *Manager
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// Watch subscribes to change notifications under root and applies them to
// the manager until ctx is canceled or the manager is closed. New
// directories are watched as they appear.
func (m *Manager) Watch(ctx context.Context, root string) error {
	if m.watcher != nil {
		return oops.In("plugin").New("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return oops.In("plugin").Hint("failed to create filesystem watcher").Wrap(err)
	}

	w := &watcher{
		fsw:     fsw,
		manager: m,
		done:    make(chan struct{}),
	}
	if err := w.addRecursive(root); err != nil {
		_ = fsw.Close()
		return err
	}
	m.watcher = w

	w.wg.Add(1)
	go w.loop(ctx)
	return nil
}

func (w *watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries, keep walking
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.manager.skippable(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return oops.In("plugin").With("path", path).Hint("failed to watch directory").Wrap(err)
		}
		return nil
	})
}

func (w *watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.manager.logger.Error("plugin watcher error", "error", err)
		}
	}
}

func (w *watcher) handle(ctx context.Context, event fsnotify.Event) {
	m := w.manager
	name := filepath.Base(event.Name)

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		// The path is gone; drop whatever it exported. For directories
		// this removes every location underneath.
		m.Remove(event.Name)
		m.removePrefix(event.Name + string(filepath.Separator))

	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		if m.skippable(name) {
			return
		}
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if event.Op.Has(fsnotify.Create) {
				if err := w.addRecursive(event.Name); err != nil {
					m.logger.Error("failed to watch new plugin directory",
						"path", event.Name,
						"error", err)
				}
				if err := m.Scan(ctx, event.Name); err != nil {
					m.logger.Error("failed to scan new plugin directory",
						"path", event.Name,
						"error", err)
				}
			}
			return
		}
		if !m.loader.Matches(event.Name) {
			return
		}
		if err := m.Reload(ctx, event.Name); err != nil {
			m.logger.Error("failed to reload plugin file",
				"location", event.Name,
				"error", err)
		}
	}
}

func (w *watcher) close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

// removePrefix drops every registered location under the given path prefix.
func (m *Manager) removePrefix(prefix string) {
	m.mu.RLock()
	var victims []string
	for loc := range m.plugins {
		if len(loc) > len(prefix) && loc[:len(prefix)] == prefix {
			victims = append(victims, loc)
		}
	}
	m.mu.RUnlock()

	for _, loc := range victims {
		m.Remove(loc)
	}
}
