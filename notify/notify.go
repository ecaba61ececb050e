/*
Package notify provides leave.NotificationSink implementations.

Delivery is best-effort by contract: the core logs sink failures and never
rolls back the operation that emitted the event. LogSink is the default
production sink until a real mail/in-app channel is wired; Memory captures
events for tests.
*/
package notify

import (
	"context"
	"sync"

	"github.com/daking/leave-engine/leave"
	"go.uber.org/zap"
)

// LogSink writes every event to the structured log.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Notify(_ context.Context, event leave.Event) error {
	s.log.Info("notification",
		zap.String("kind", string(event.Kind)),
		zap.String("leave_id", event.LeaveID),
		zap.Int64("user_id", event.UserID),
		zap.Int64s("recipients", event.Recipients),
		zap.String("message", event.Message))
	return nil
}

// =============================================================================
// MEMORY SINK - Captures events (for testing)
// =============================================================================

// Memory records every event it receives. Set failWith via FailWith to
// simulate a broken channel.
type Memory struct {
	mu       sync.Mutex
	events   []leave.Event
	failWith error
}

func NewMemory() *Memory {
	return &Memory{}
}

// FailWith makes every subsequent Notify return err. Pass nil to heal.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

func (m *Memory) Notify(_ context.Context, event leave.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything received so far.
func (m *Memory) Events() []leave.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]leave.Event{}, m.events...)
}

// EventsOfKind filters captured events by kind.
func (m *Memory) EventsOfKind(kind leave.EventKind) []leave.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []leave.Event
	for _, e := range m.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
