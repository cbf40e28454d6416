// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package lua

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	lua "github.com/yuin/gopher-lua"

	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// Loader loads plugin descriptors from Lua scripts. A script returns either
// one descriptor table or a list of descriptor tables:
//
//	return {
//	    cmd = "ping",                 -- or { "ping", "p" }
//	    no_prefix = false,
//	    guard = function(ctx) return ctx.is_group, "GROUP_ONLY", "groups only" end,
//	    exec = function(ctx) ctx.reply("pong") end,
//	    final = function(ctx, reason) end,
//	    category = "tools",
//	    tags = { "diagnostics" },
//	    description = "round-trip check",
//	    timeout_seconds = 30,
//	    version = "1.2.0",
//	}
//
// Guard/exec/final run in a fresh sandboxed state per invocation, so a
// reloaded script takes effect on the next event without any shared state
// carried over.
type Loader struct {
	factory *StateFactory
	logger  *slog.Logger
}

// LoaderOption configures the Loader.
type LoaderOption func(*Loader)

// WithLogger sets the loader's logger.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a Lua plugin loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		factory: NewStateFactory(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Matches reports whether the path is a Lua script.
func (l *Loader) Matches(path string) bool {
	return filepath.Ext(path) == ".lua"
}

// Load evaluates the script and returns its exported descriptors. The
// returned descriptors' functions capture the source as loaded here; a
// later reload produces fresh descriptors with fresh captures.
func (l *Loader) Load(ctx context.Context, path string) ([]pluginsdk.Descriptor, error) {
	code, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, oops.In("lua").With("location", path).Hint("failed to read plugin file").Wrap(err)
	}
	source := string(code)

	L, err := l.factory.NewState(ctx)
	if err != nil {
		return nil, oops.In("lua").With("location", path).Wrap(err)
	}
	defer L.Close()

	tables, err := evalDescriptors(L, source, path)
	if err != nil {
		return nil, err
	}

	descriptors := make([]pluginsdk.Descriptor, 0, len(tables))
	for i, t := range tables {
		desc, err := parseMetadata(t, path, i)
		if err != nil {
			return nil, err
		}
		l.bindFunctions(&desc, t, source, path, i)
		descriptors = append(descriptors, desc)
	}
	return descriptors, nil
}

// evalDescriptors runs the script and normalizes its return value into a
// slice of descriptor tables.
func evalDescriptors(L *lua.LState, source, path string) ([]*lua.LTable, error) {
	top := L.GetTop()
	if err := L.DoString(source); err != nil {
		return nil, oops.In("lua").With("location", path).Hint("script error").Wrap(err)
	}
	if L.GetTop() == top {
		return nil, oops.In("lua").With("location", path).New("script returned nothing; expected a descriptor table")
	}
	ret := L.Get(top + 1)
	L.SetTop(top)

	root, ok := ret.(*lua.LTable)
	if !ok {
		return nil, oops.In("lua").With("location", path).With("got", ret.Type().String()).New("script must return a descriptor table")
	}

	// A list of descriptors has a table at index 1; a single descriptor
	// has string keys only.
	if first, isList := root.RawGetInt(1).(*lua.LTable); isList {
		tables := []*lua.LTable{first}
		for i := 2; ; i++ {
			v := root.RawGetInt(i)
			if v == lua.LNil {
				break
			}
			t, ok := v.(*lua.LTable)
			if !ok {
				return nil, oops.In("lua").With("location", path).With("index", i).New("descriptor list entry is not a table")
			}
			tables = append(tables, t)
		}
		return tables, nil
	}
	return []*lua.LTable{root}, nil
}

// parseMetadata extracts the non-function descriptor fields.
func parseMetadata(t *lua.LTable, path string, index int) (pluginsdk.Descriptor, error) {
	var desc pluginsdk.Descriptor

	switch cmd := t.RawGetString("cmd").(type) {
	case lua.LString:
		desc.Cmd = []string{string(cmd)}
	case *lua.LTable:
		cmd.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				desc.Cmd = append(desc.Cmd, string(s))
			}
		})
	}

	desc.NoPrefix = lua.LVAsBool(t.RawGetString("no_prefix"))
	desc.Category = lua.LVAsString(t.RawGetString("category"))
	desc.Description = lua.LVAsString(t.RawGetString("description"))
	if n, ok := t.RawGetString("timeout_seconds").(lua.LNumber); ok {
		desc.TimeoutSeconds = int(n)
	}
	if tags, ok := t.RawGetString("tags").(*lua.LTable); ok {
		tags.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				desc.Tags = append(desc.Tags, string(s))
			}
		})
	}

	if v := t.RawGetString("version"); v != lua.LNil {
		version := lua.LVAsString(v)
		if _, err := semver.NewVersion(version); err != nil {
			return desc, oops.In("lua").
				With("location", path).
				With("index", index).
				With("version", version).
				Hint("descriptor version is not valid semver").
				Wrap(err)
		}
		desc.Version = version
	}
	return desc, nil
}

// bindFunctions wires the descriptor's guard/exec/final to closures that
// re-evaluate the captured source in a fresh sandboxed state per call.
func (l *Loader) bindFunctions(desc *pluginsdk.Descriptor, t *lua.LTable, source, path string, index int) {
	if t.RawGetString("exec").Type() == lua.LTFunction {
		desc.Exec = func(c *pluginsdk.Context) error {
			rets, err := l.invoke(source, path, index, "exec", c, nil)
			if err != nil {
				return err
			}
			return execError(path, rets)
		}
	}
	if t.RawGetString("guard").Type() == lua.LTFunction {
		desc.Guard = func(c *pluginsdk.Context) pluginsdk.Reason {
			rets, err := l.invoke(source, path, index, "guard", c, nil)
			if err != nil {
				return pluginsdk.Denied(pluginsdk.CodeGuardError, err.Error())
			}
			return guardReason(rets)
		}
	}
	if t.RawGetString("final").Type() == lua.LTFunction {
		desc.Final = func(c *pluginsdk.Context, r pluginsdk.Reason) {
			if _, err := l.invoke(source, path, index, "final", c, &r); err != nil {
				l.logger.Warn("plugin finalizer failed",
					"location", path,
					"index", index,
					"error", err)
			}
		}
	}
}

// invoke runs one descriptor function in a fresh state. The script is
// re-evaluated to materialize the function, then called with the bound
// context table (and, for finalizers, the reason table).
func (l *Loader) invoke(source, path string, index int, fnName string, c *pluginsdk.Context, reason *pluginsdk.Reason) ([]lua.LValue, error) {
	L, err := l.factory.NewState(context.Background())
	if err != nil {
		return nil, oops.In("lua").With("location", path).Wrap(err)
	}
	defer L.Close()

	tables, err := evalDescriptors(L, source, path)
	if err != nil {
		return nil, err
	}
	if index >= len(tables) {
		return nil, oops.In("lua").With("location", path).With("index", index).New("descriptor vanished from script")
	}
	fn := tables[index].RawGetString(fnName)
	if fn.Type() != lua.LTFunction {
		return nil, oops.In("lua").With("location", path).With("index", index).With("fn", fnName).New("descriptor function missing")
	}

	args := []lua.LValue{buildContextTable(L, c)}
	if reason != nil {
		args = append(args, buildReasonTable(L, *reason))
	}

	top := L.GetTop()
	if err := L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    lua.MultRet,
		Protect: true,
	}, args...); err != nil {
		return nil, oops.In("lua").With("location", path).With("index", index).With("fn", fnName).Wrap(err)
	}

	nret := L.GetTop() - top
	rets := make([]lua.LValue, 0, nret)
	for i := top + 1; i <= L.GetTop(); i++ {
		rets = append(rets, L.Get(i))
	}
	return rets, nil
}

// execError interprets an action's return values: capabilities return an
// error string or nil, so a script forwarding that value with
// "return c.reply(...)" surfaces send failures here.
func execError(path string, rets []lua.LValue) error {
	if len(rets) == 0 || rets[0] == lua.LNil {
		return nil
	}
	if s := lua.LVAsString(rets[0]); s != "" {
		return oops.In("lua").With("location", path).New(s)
	}
	return nil
}

// guardReason interprets a Lua guard's return values: a truthy first value
// passes; otherwise the optional second and third values supply the reason
// code and message.
func guardReason(rets []lua.LValue) pluginsdk.Reason {
	if len(rets) > 0 && lua.LVAsBool(rets[0]) {
		return pluginsdk.Passed()
	}
	code := pluginsdk.CodeGuardDenied
	message := "guard denied"
	if len(rets) > 1 {
		if s := strings.TrimSpace(lua.LVAsString(rets[1])); s != "" {
			code = s
		}
	}
	if len(rets) > 2 {
		if s := lua.LVAsString(rets[2]); s != "" {
			message = s
		}
	}
	return pluginsdk.Denied(code, message)
}
