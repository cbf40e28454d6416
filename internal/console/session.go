// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Chatling Contributors

package console

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/chatling/chatling/internal/transport"
	pluginsdk "github.com/chatling/chatling/pkg/plugin"
)

// Dispatcher consumes the events a session synthesizes.
type Dispatcher interface {
	Handle(ctx context.Context, ev *transport.Event)
}

// Session reads lines from a local reader and feeds them to a dispatcher
// as message events, one event per line.
type Session struct {
	reader     *bufio.Reader
	dispatcher Dispatcher
	logger     *slog.Logger
	chat       string
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithLogger sets the session's logger.
func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithChat addresses synthesized events to the given chat instead of the
// default peer.
func WithChat(chat string) SessionOption {
	return func(s *Session) {
		s.chat = chat
	}
}

// NewSession creates a session reading from in.
func NewSession(in io.Reader, dispatcher Dispatcher, opts ...SessionOption) *Session {
	s := &Session{
		reader:     bufio.NewReader(in),
		dispatcher: dispatcher,
		logger:     slog.Default(),
		chat:       ChatJID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks reading lines until the reader is exhausted or the context is
// cancelled. Blank lines are skipped.
func (s *Session) Run(ctx context.Context) error {
	lineCh := make(chan string)
	errCh := make(chan error, 1)

	// The reader goroutine cannot be interrupted mid-ReadString; on
	// cancellation it stays parked until the input closes. For a
	// process-lifetime stdin reader that leak is accepted.
	go func() {
		for {
			line, err := s.reader.ReadString('\n')
			if line = strings.TrimSpace(line); line != "" {
				select {
				case lineCh <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				errCh <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err

		case line := <-lineCh:
			s.dispatcher.Handle(ctx, s.event(line))
		}
	}
}

// event synthesizes a live message delivery for one typed line.
func (s *Session) event(line string) *transport.Event {
	return &transport.Event{
		Name: transport.EventMessagesUpsert,
		Type: transport.UpsertNotify,
		Message: &transport.Message{
			Key: pluginsdk.MessageKey{
				RemoteJID: s.chat,
				ID:        ulid.Make().String(),
			},
			PushName:  "console",
			Timestamp: time.Now(),
			Content:   &transport.MessageContent{Conversation: line},
		},
	}
}
