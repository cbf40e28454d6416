// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package handler

import "golang.org/x/sync/singleflight"

// TaskRegistry coalesces concurrent work under string ids: while a task
// for an id is in flight, further calls for the same id join it instead of
// starting a duplicate. Entries are removed when the task settles, so a
// later call starts a fresh execution.
type TaskRegistry struct {
	group singleflight.Group
}

// NewTaskRegistry creates an empty registry.
func NewTaskRegistry() *TaskRegistry {
	return &TaskRegistry{}
}

// Run executes fn under id, blocking until it settles. Concurrent callers
// with the same id all receive the result of the single execution; shared
// reports whether the caller joined an execution started by someone else.
func (r *TaskRegistry) Run(id string, fn func() error) (err error, shared bool) {
	_, err, shared = r.group.Do(id, func() (any, error) {
		return nil, fn()
	})
	return err, shared
}

// Go starts fn under id without waiting for it. A call while id is in
// flight joins the running execution and starts nothing new. The returned
// channel settles with the task's error (nil on success).
func (r *TaskRegistry) Go(id string, fn func() error) <-chan error {
	results := r.group.DoChan(id, func() (any, error) {
		return nil, fn()
	})
	done := make(chan error, 1)
	go func() {
		res := <-results
		done <- res.Err
	}()
	return done
}
