// Package audit emits security events about accounts. Emission never fails
// the request that caused it; sink errors are logged and dropped.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/marquee/internal/auth/domain"
	"github.com/aussiebroadwan/marquee/pkg/slogx"
)

// Emitter records audit events.
type Emitter interface {
	Emit(ctx context.Context, ev domain.AuditEvent)
}

// Event builds an event stamped with the current time.
func Event(name, accountID string, attrs ...string) domain.AuditEvent {
	ev := domain.AuditEvent{Name: name, AccountID: accountID, At: time.Now().UTC()}
	if len(attrs) > 1 {
		ev.Attrs = make(map[string]string, len(attrs)/2)
		for i := 0; i+1 < len(attrs); i += 2 {
			ev.Attrs[attrs[i]] = attrs[i+1]
		}
	}
	return ev
}

// LogEmitter writes events to the request logger under the "audit" group.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, ev domain.AuditEvent) {
	attrs := []any{slog.String("event", ev.Name)}
	if ev.AccountID != "" {
		attrs = append(attrs, slog.String("account_id", ev.AccountID))
	}
	if ev.Actor != "" {
		attrs = append(attrs, slog.String("actor", ev.Actor))
	}
	if ev.IP != "" {
		attrs = append(attrs, slog.String("ip", ev.IP))
	}
	for k, v := range ev.Attrs {
		attrs = append(attrs, slog.String(k, v))
	}
	slogx.FromContext(ctx).InfoContext(ctx, "audit", slog.Group("audit", attrs...))
}

// Multi fans an event out to every emitter in order.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev domain.AuditEvent) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, ev)
		}
	}
}

// Recorder keeps events in memory. Tests and the CLI dry-run use it.
type Recorder struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *Recorder) Emit(_ context.Context, ev domain.AuditEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []domain.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AuditEvent(nil), r.events...)
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}
