// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/chatling/chatling/internal/config"
	"github.com/chatling/chatling/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Chatling CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chatling",
		Short: "Chatling - an event-driven chat-bot plugin runtime",
		Long: `Chatling runs hot-reloadable Lua plugins against a chat transport:
commands trigger on prefixed tokens, listeners run on every event.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG config dir)")

	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewPluginsCmd())

	return cmd
}

// registerConfigFlags declares the flags that override file configuration.
// Flag names are the koanf key paths so the two sources merge directly.
func registerConfigFlags(flags *pflag.FlagSet) {
	defaults := config.Default()
	flags.StringSlice("prefixes", defaults.Prefixes, "command prefixes")
	flags.String("plugins.root", defaults.Plugins.Root, "plugin tree root")
	flags.Bool("plugins.watch", defaults.Plugins.Watch, "hot-reload plugins on change")
	flags.StringSlice("plugins.ignore", nil, "glob patterns of plugin files to skip")
	flags.String("store.path", "", "durable cache database path (empty = memory only)")
	flags.String("observability.addr", defaults.Observability.Addr, "metrics/health HTTP address (empty = disabled)")
	flags.String("log.level", defaults.Log.Level, "log level (debug, info, warn, error)")
	flags.String("log.format", defaults.Log.Format, "log format (text or json)")
}

// loadConfig resolves the effective configuration for a subcommand.
func loadConfig(flags *pflag.FlagSet) (config.Config, error) {
	path := configFile
	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}
	return config.Load(path, explicit, flags)
}
