// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package plugin implements the Chatling plugin core: discovery, hashing,
// hot-reload, and the derived command/listener tables the dispatch handler
// consumes.
package plugin

import (
	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// Plugin wraps exactly one registered descriptor together with its source
// location and derived key. A Plugin is immutable once constructed; a reload
// replaces it wholesale, never mutates it in place.
type Plugin struct {
	desc     pluginsdk.Descriptor
	location string
	key      string
}

// NewPlugin wraps a descriptor registered at the given location and index.
func NewPlugin(desc pluginsdk.Descriptor, location string, index int) *Plugin {
	return &Plugin{
		desc:     desc,
		location: location,
		key:      Key(location, index),
	}
}

// Location returns the source path the plugin was loaded from.
func (p *Plugin) Location() string { return p.location }

// Key returns the globally unique plugin key.
func (p *Plugin) Key() string { return p.key }

// Descriptor returns the wrapped descriptor.
func (p *Plugin) Descriptor() *pluginsdk.Descriptor { return &p.desc }

// IsCommand reports whether the plugin registers command aliases.
func (p *Plugin) IsCommand() bool { return p.desc.IsCommand() }

// Check evaluates the guard chain. A nil guard always passes.
func (p *Plugin) Check(c *pluginsdk.Context) pluginsdk.Reason {
	if p.desc.Guard == nil {
		return pluginsdk.Passed()
	}
	return p.desc.Guard(c)
}

// Exec runs the plugin action.
func (p *Plugin) Exec(c *pluginsdk.Context) error {
	return p.desc.Exec(c)
}

// Final invokes the finalizer with the failure reason, if one is configured.
func (p *Plugin) Final(c *pluginsdk.Context, r pluginsdk.Reason) {
	if p.desc.Final != nil {
		p.desc.Final(c, r)
	}
}
