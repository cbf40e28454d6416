// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chatling/chatling/internal/config"
	"github.com/chatling/chatling/internal/console"
	"github.com/chatling/chatling/internal/handler"
	"github.com/chatling/chatling/internal/logging"
	"github.com/chatling/chatling/internal/observability"
	"github.com/chatling/chatling/internal/plugin"
	luaplugin "github.com/chatling/chatling/internal/plugin/lua"
	"github.com/chatling/chatling/internal/store"
	"github.com/chatling/chatling/internal/transport"
	"github.com/chatling/chatling/pkg/errutil"
)

// NewRunCmd creates the run subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the bot against the console transport",
		Long: `Scan and watch the plugin tree, then read lines from stdin as
incoming messages. Replies are printed to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg)
		},
	}
	registerConfigFlags(cmd.Flags())
	return cmd
}

func runBot(ctx context.Context, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.SetDefault("chatling", version, cfg.Log.Format, logging.ParseLevel(cfg.Log.Level))

	kv, err := openStore(ctx, cfg.Store.Path)
	if err != nil {
		errutil.LogError(logger, "opening cache store", err)
		return err
	}
	if kv != nil {
		defer kv.Close() //nolint:errcheck
	}

	loader := luaplugin.NewLoader(luaplugin.WithLogger(logger))
	manager := plugin.NewManager(loader,
		plugin.WithLogger(logger),
		plugin.WithIgnoreGlobs(cfg.Plugins.Ignore),
	)
	defer manager.Close() //nolint:errcheck

	if err := manager.Scan(ctx, cfg.Plugins.Root); err != nil {
		errutil.LogError(logger, "scanning plugin tree", err)
		return err
	}
	if cfg.Plugins.Watch {
		if err := manager.Watch(ctx, cfg.Plugins.Root); err != nil {
			errutil.LogError(logger, "watching plugin tree", err)
			return err
		}
	}

	client := console.NewClient(os.Stdout)
	opts := []handler.Option{handler.WithLogger(logger)}
	if kv != nil {
		opts = append(opts, handler.WithStore(kv))
	}
	h := handler.New(client, manager, cfg.Prefixes, opts...)

	var attached atomic.Bool
	if cfg.Observability.Addr != "" {
		obs := observability.NewServer(cfg.Observability.Addr, attached.Load)
		errCh, err := obs.Start()
		if err != nil {
			errutil.LogError(logger, "starting observability server", err)
			return err
		}
		go func() {
			if err := <-errCh; err != nil {
				errutil.LogError(logger, "observability server failed", err)
			}
		}()
		defer func() {
			if err := obs.Stop(context.Background()); err != nil {
				logger.Warn("stopping observability server", "error", err)
			}
		}()
		logger.Info("observability server listening", "addr", obs.Addr())
	}

	// The console transport is connected by construction; announce it so
	// the handler schedules its block-list sync.
	attached.Store(true)
	h.Handle(ctx, &transport.Event{
		Name:       transport.EventConnectionUpdate,
		Connection: &transport.ConnectionUpdate{Status: "open"},
	})

	logger.Info("bot running",
		"plugins", len(manager.Plugins()),
		"prefixes", cfg.Prefixes,
		"root", cfg.Plugins.Root)

	session := console.NewSession(os.Stdin, h, console.WithLogger(logger))
	if err := session.Run(ctx); err != nil && !isShutdown(err) {
		errutil.LogError(logger, "console session failed", err)
		return err
	}
	logger.Info("shutting down")
	return nil
}

// openStore opens the durable cache backing, creating parent directories
// as needed. An empty path means memory-only caches.
func openStore(ctx context.Context, path string) (store.KV, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return store.NewSQLite(ctx, path)
}

func isShutdown(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
