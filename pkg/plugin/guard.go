// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package pluginsdk

// Guard decides whether a plugin may execute for a given event. Guards must
// be pure: no side effects, no retained references to the Context.
type Guard func(*Context) Reason

// Pass is a guard that always passes.
func Pass(*Context) Reason {
	return Passed()
}

// Fail returns a guard that always fails with the given code and message.
func Fail(code, message string) Guard {
	return func(*Context) Reason {
		return Denied(code, message)
	}
}

// And returns a guard that passes only when every guard passes. Evaluation
// short-circuits on the first failure, which becomes the combined Reason.
func And(guards ...Guard) Guard {
	return func(c *Context) Reason {
		for _, g := range guards {
			if r := g(c); !r.OK {
				return r
			}
		}
		return Passed()
	}
}

// Or returns a guard that passes when any guard passes. Evaluation
// short-circuits on the first pass; otherwise the last failure is returned.
// An empty Or fails.
func Or(guards ...Guard) Guard {
	return func(c *Context) Reason {
		last := Denied(CodeGuardDenied, "no guards to evaluate")
		for _, g := range guards {
			r := g(c)
			if r.OK {
				return r
			}
			last = r
		}
		return last
	}
}

// Not inverts a guard, failing with the given code and message when the
// inner guard passes.
func Not(g Guard, code, message string) Guard {
	return func(c *Context) Reason {
		if r := g(c); !r.OK {
			return Passed()
		}
		return Denied(code, message)
	}
}
