// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

// Package pluginsdk defines the contract between the Chatling runtime and
// plugin authors: the descriptor a plugin exports, the Context it receives
// per event, and the guard/reason types gating execution.
package pluginsdk

// Descriptor is the author-supplied definition of one plugin. A descriptor
// with command aliases is a command, invoked when inbound text matches a
// registered prefixed (or bare) token; a descriptor without aliases is a
// listener, invoked on every event that passes its guard.
//
// Descriptors are read-only after registration. A descriptor without Exec
// is not callable and is excluded from registration entirely.
type Descriptor struct {
	// Cmd lists the command aliases, matched case-insensitively.
	// Empty means the plugin is a listener.
	Cmd []string

	// NoPrefix makes command aliases match as bare tokens, without any
	// of the configured prefixes.
	NoPrefix bool

	// Guard gates execution. Nil means always pass.
	Guard Guard

	// Exec is the plugin action. Required.
	Exec func(*Context) error

	// Final is invoked with the failure Reason when the guard denies
	// execution or Exec returns an error. Optional.
	Final func(*Context, Reason)

	// Informational metadata. The runtime records these but does not
	// enforce TimeoutSeconds; a wrapping collaborator may.
	Category       string
	Tags           []string
	Description    string
	TimeoutSeconds int

	// Version is an optional semver string validated at load time.
	Version string
}

// IsCommand reports whether the descriptor registers command aliases.
func (d *Descriptor) IsCommand() bool {
	return len(d.Cmd) > 0
}
