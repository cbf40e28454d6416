// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package xdg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestConfigDir_EnvVar(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := ConfigDir(), "/custom/config/chatling"; got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigDir_Default(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", "/home/testuser")
	if got, want := ConfigDir(), "/home/testuser/.config/chatling"; got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := ConfigFile(), "/custom/config/chatling/config.yaml"; got != want {
		t.Errorf("ConfigFile() = %q, want %q", got, want)
	}
}

func TestDataDir_EnvVar(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := DataDir(), "/custom/data/chatling"; got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}
}

func TestDataDir_Default(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("HOME", "/home/testuser")
	if got, want := DataDir(), "/home/testuser/.local/share/chatling"; got != want {
		t.Errorf("DataDir() = %q, want %q", got, want)
	}
}

func TestPluginsDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got, want := PluginsDir(), "/custom/data/chatling/plugins"; got != want {
		t.Errorf("PluginsDir() = %q, want %q", got, want)
	}
}

func TestStateDir_EnvVar(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/custom/state")
	if got, want := StateDir(), "/custom/state/chatling"; got != want {
		t.Errorf("StateDir() = %q, want %q", got, want)
	}
}

func TestStateDir_Default(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "")
	t.Setenv("HOME", "/home/testuser")
	if got, want := StateDir(), "/home/testuser/.local/state/chatling"; got != want {
		t.Errorf("StateDir() = %q, want %q", got, want)
	}
}

func TestCacheFile(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/custom/state")
	if got, want := CacheFile(), "/custom/state/chatling/cache.db"; got != want {
		t.Errorf("CacheFile() = %q, want %q", got, want)
	}
}

func TestEnsureDir(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "nested", "dir")

	if err := EnsureDir(testPath); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}

	info, err := os.Stat(testPath)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if !info.IsDir() {
		t.Error("Expected directory, got file")
	}
}

func TestEnsureDir_Permissions(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "secure", "dir")

	if err := EnsureDir(testPath); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}

	info, err := os.Stat(testPath)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}

	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("EnsureDir() permissions = %o, want %o", perm, 0o700)
	}
}

func TestEnsureDir_Idempotent(t *testing.T) {
	tmpDir := t.TempDir()
	testPath := filepath.Join(tmpDir, "idempotent")

	if err := EnsureDir(testPath); err != nil {
		t.Fatalf("First EnsureDir() error = %v", err)
	}
	if err := EnsureDir(testPath); err != nil {
		t.Fatalf("Second EnsureDir() error = %v", err)
	}
}
