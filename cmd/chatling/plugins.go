// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chatling/chatling/internal/logging"
	"github.com/chatling/chatling/internal/plugin"
	luaplugin "github.com/chatling/chatling/internal/plugin/lua"
)

// NewPluginsCmd creates the plugins subcommand.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List the plugins discovered in the plugin tree",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}

			logger := logging.Setup("chatling", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level), cmd.ErrOrStderr())
			loader := luaplugin.NewLoader(luaplugin.WithLogger(logger))
			manager := plugin.NewManager(loader,
				plugin.WithLogger(logger),
				plugin.WithIgnoreGlobs(cfg.Plugins.Ignore),
			)
			defer manager.Close() //nolint:errcheck

			if err := manager.Scan(cmd.Context(), cfg.Plugins.Root); err != nil {
				return err
			}

			plugins := manager.Plugins()
			if len(plugins) == 0 {
				cmd.Printf("no plugins found under %s\n", cfg.Plugins.Root)
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tKIND\tPATTERNS\tCATEGORY\tVERSION\tLOCATION")
			for _, p := range plugins {
				desc := p.Descriptor()
				kind := "listener"
				patterns := "-"
				if p.IsCommand() {
					kind = "command"
					patterns = strings.Join(commandPatterns(desc.Cmd, desc.NoPrefix, cfg.Prefixes), " ")
				}
				version := desc.Version
				if version == "" {
					version = "-"
				}
				category := desc.Category
				if category == "" {
					category = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					p.Key(), kind, patterns, category, version, p.Location())
			}
			return w.Flush()
		},
	}
	registerConfigFlags(cmd.Flags())
	return cmd
}

// commandPatterns expands aliases the same way the dispatch table does.
func commandPatterns(aliases []string, noPrefix bool, prefixes []string) []string {
	var out []string
	for _, alias := range aliases {
		alias = strings.ToLower(alias)
		if noPrefix {
			out = append(out, alias)
			continue
		}
		for _, prefix := range prefixes {
			out = append(out, prefix+alias)
		}
	}
	return out
}
