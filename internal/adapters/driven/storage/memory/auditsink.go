package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
)

// Ensure AuditSink implements the interface.
var _ driven.AuditSink = (*AuditSink)(nil)

// AuditSink keeps every recorded event in memory.
type AuditSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

// NewAuditSink creates an empty sink.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

// Record appends the event.
func (a *AuditSink) Record(_ context.Context, event domain.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

// Events returns a copy of the recorded events in arrival order.
func (a *AuditSink) Events() []domain.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.events)
}
