// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package xdg provides XDG Base Directory paths for Chatling.
package xdg

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "chatling"

// ConfigDir returns the XDG config directory for chatling.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default configuration file path.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// DataDir returns the XDG data directory for chatling.
// Checks XDG_DATA_HOME first, falls back to ~/.local/share.
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "share")
	}
	return filepath.Join(base, appName)
}

// PluginsDir returns the default plugin tree location.
func PluginsDir() string {
	return filepath.Join(DataDir(), "plugins")
}

// StateDir returns the XDG state directory for chatling.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, appName)
}

// CacheFile returns the default durable cache database path.
func CacheFile() string {
	return filepath.Join(StateDir(), "cache.db")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}
