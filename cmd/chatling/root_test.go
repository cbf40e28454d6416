// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdHasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "plugins")
}

func TestPluginsCmdListsDiscoveredPlugins(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ping.lua"), []byte(`
return {
  cmd = "ping",
  category = "utility",
  version = "1.0.0",
  exec = function(c) c.reply("pong") end,
}
`), 0o600))

	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"plugins", "--plugins.root", root, "--log.level", "error"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), ".ping")
	assert.Contains(t, out.String(), "/ping")
	assert.Contains(t, out.String(), "utility")
	assert.Contains(t, out.String(), "1.0.0")
}

func TestPluginsCmdEmptyTree(t *testing.T) {
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"plugins", "--plugins.root", t.TempDir()})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "no plugins found")
}
