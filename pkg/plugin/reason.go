// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package pluginsdk

import "fmt"

// Reason codes identifying the dispatch phase that produced a failure.
// Guards may also use free-form codes of their own; these are the codes
// the runtime synthesizes at plugin boundaries.
const (
	CodeGuardDenied = "GUARD_DENIED"
	CodeGuardError  = "GUARD_ERROR"
	CodeExecError   = "EXEC_ERROR"
)

// Reason is the structured outcome of a guard evaluation. A zero Reason is
// not meaningful; construct with Passed or Denied.
type Reason struct {
	OK      bool
	Code    string
	Message string
}

// Passed returns a passing Reason.
func Passed() Reason {
	return Reason{OK: true}
}

// Denied returns a failing Reason with a code and message.
func Denied(code, message string) Reason {
	return Reason{Code: code, Message: message}
}

// Deniedf returns a failing Reason with a formatted message.
func Deniedf(code, format string, args ...any) Reason {
	return Reason{Code: code, Message: fmt.Sprintf(format, args...)}
}

func (r Reason) String() string {
	if r.OK {
		return "ok"
	}
	if r.Code == "" {
		return r.Message
	}
	return r.Code + ": " + r.Message
}
