// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package handler implements the dispatch core: it consumes transport
// events, keeps the runtime caches, and routes every event through the
// listener and command tables generated by the plugin manager.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/chatling/chatling/internal/observability"
	"github.com/chatling/chatling/internal/plugin"
	"github.com/chatling/chatling/internal/store"
	"github.com/chatling/chatling/internal/transport"
	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

var tracer = otel.Tracer("chatling/handler")

// Dispatch phases, used for error metrics and synthesized reasons.
const (
	phaseListener = "listener"
	phaseCommand  = "command"
)

// recentWindowCap bounds the dedup window of recently seen event ids.
const recentWindowCap = 100

// Handler is the dispatch core. One Handler is created per transport
// attachment; its caches persist for the process lifetime unless cleared.
type Handler struct {
	client  transport.Client
	manager *plugin.Manager
	logger  *slog.Logger

	prefixes []string
	filter   plugin.FilterFunc
	kv       store.KV // optional durable backing for the caches

	mu       sync.RWMutex
	result   *plugin.Result
	groups   map[string]*transport.GroupMetadata
	contacts map[string]transport.Contact
	timers   map[string]int // chat → disappearing-message seconds
	blocked  []string       // ordered set of normalized JIDs

	seen  *idWindow
	tasks *TaskRegistry
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithStore enables durable write-through for the group/contact/timer
// caches.
func WithStore(kv store.KV) Option {
	return func(h *Handler) {
		h.kv = kv
	}
}

// WithFilter excludes plugins from the generated tables without removing
// them from the manager.
func WithFilter(filter plugin.FilterFunc) Option {
	return func(h *Handler) {
		h.filter = filter
	}
}

// New creates a Handler attached to the given transport client and plugin
// manager. prefixes are the command prefixes the command table is expanded
// under.
func New(client transport.Client, manager *plugin.Manager, prefixes []string, opts ...Option) *Handler {
	h := &Handler{
		client:   client,
		manager:  manager,
		logger:   slog.Default(),
		prefixes: prefixes,
		groups:   make(map[string]*transport.GroupMetadata),
		contacts: make(map[string]transport.Contact),
		timers:   make(map[string]int),
		seen:     newIDWindow(recentWindowCap),
		tasks:    NewTaskRegistry(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle is the single entry point the transport invokes, once per logical
// sub-event. Failures at any plugin boundary are isolated; one plugin's
// failure never aborts dispatch to the others.
func (h *Handler) Handle(ctx context.Context, ev *transport.Event) {
	if ev == nil {
		return
	}
	ctx, span := tracer.Start(ctx, "handler.handle")
	span.SetAttributes(attribute.String("event.name", ev.Name))
	defer span.End()

	observability.RecordEventProcessed(ev.Name)

	result := h.freshResult()
	c := h.BuildContext(ctx, ev)
	h.updateData(ctx, ev)
	h.dispatchListeners(ctx, result, c)
	h.dispatchCommand(ctx, result, ev, c)
}

// freshResult returns the current table snapshot, rebuilding it when the
// manager's load version moved since it was generated. Reload propagation
// is pull-based: a reload applies before the next event is processed.
func (h *Handler) freshResult() *plugin.Result {
	version := h.manager.UpdatedAt()

	h.mu.RLock()
	result := h.result
	h.mu.RUnlock()
	if result != nil && result.UpdatedAt == version {
		return result
	}

	result = h.manager.GenPlugins(h.prefixes, h.filter, nil)
	h.mu.Lock()
	h.result = result
	h.mu.Unlock()
	h.logger.Debug("rebuilt plugin tables",
		"commands", len(result.Command),
		"listeners", len(result.Listener),
		"version", result.UpdatedAt)
	return result
}

// dispatchListeners evaluates every listener independently, in key order
// for deterministic logging, awaiting each in turn so cache side effects
// stay ordered within one event.
func (h *Handler) dispatchListeners(ctx context.Context, result *plugin.Result, c *pluginsdk.Context) {
	keys := make([]string, 0, len(result.Listener))
	for key := range result.Listener {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		entry := result.Listener[key]
		p := entry.GetPlugin()
		if p == nil {
			// Removed since the table was built.
			continue
		}
		h.dispatchPlugin(ctx, p, c, phaseListener)
	}
}

// dispatchCommand runs at most one command for the event: the context must
// carry a pattern, the event must pass the safety gate, and the pattern
// must resolve in the command table. An unknown command ends dispatch
// silently.
func (h *Handler) dispatchCommand(ctx context.Context, result *plugin.Result, ev *transport.Event, c *pluginsdk.Context) {
	if c.Pattern == "" || !h.IsSafe(ev) {
		return
	}
	entry, ok := result.Command[strings.ToLower(c.Pattern)]
	if !ok {
		return
	}
	p := entry.GetPlugin()
	if p == nil {
		// Command vanished in a reload after the table was built.
		return
	}
	if h.dispatchPlugin(ctx, p, c, phaseCommand) {
		observability.RecordCommandExecuted(strings.ToLower(c.Pattern))
	}
}

// dispatchPlugin runs one plugin's guard/exec/final cycle and reports
// whether exec ran cleanly. Guard denial routes the Reason to the
// finalizer; a guard panic is treated as a guard failure; an exec error or
// panic is routed to the finalizer with a synthesized Reason.
func (h *Handler) dispatchPlugin(ctx context.Context, p *plugin.Plugin, c *pluginsdk.Context, phase string) bool {
	_, span := tracer.Start(ctx, "handler.dispatch")
	span.SetAttributes(
		attribute.String("plugin.key", p.Key()),
		attribute.String("plugin.location", p.Location()),
		attribute.String("plugin.phase", phase),
	)
	defer span.End()

	reason := h.checkGuard(p, c)
	if !reason.OK {
		observability.RecordGuardFailure(reason.Code)
		if reason.Code != pluginsdk.CodeGuardDenied {
			h.logger.Debug("plugin guard denied",
				"plugin", p.Key(),
				"location", p.Location(),
				"phase", phase,
				"reason", reason.String())
		}
		h.finalize(p, c, reason)
		return false
	}

	if err := h.execPlugin(p, c); err != nil {
		observability.RecordPluginError(phase)
		h.logger.Error("plugin execution failed",
			"plugin", p.Key(),
			"location", p.Location(),
			"phase", phase,
			"error", err)
		h.finalize(p, c, pluginsdk.Denied(pluginsdk.CodeExecError, err.Error()))
		return false
	}
	return true
}

// checkGuard evaluates the guard chain, converting a panic into a guard
// failure so a broken guard cannot take down dispatch.
func (h *Handler) checkGuard(p *plugin.Plugin, c *pluginsdk.Context) (reason pluginsdk.Reason) {
	defer func() {
		if r := recover(); r != nil {
			reason = pluginsdk.Deniedf(pluginsdk.CodeGuardError, "guard panicked: %v", r)
		}
	}()
	return p.Check(c)
}

// execPlugin runs the action, converting a panic into an error.
func (h *Handler) execPlugin(p *plugin.Plugin, c *pluginsdk.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin panicked: %v", r)
		}
	}()
	return p.Exec(c)
}

// finalize invokes the finalizer, isolating its own panics.
func (h *Handler) finalize(p *plugin.Plugin, c *pluginsdk.Context, reason pluginsdk.Reason) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("plugin finalizer panicked",
				"plugin", p.Key(),
				"location", p.Location(),
				"panic", r)
		}
	}()
	p.Final(c, reason)
}
