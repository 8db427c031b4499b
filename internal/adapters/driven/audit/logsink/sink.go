// Package logsink writes audit events to the structured logger. It is
// the default sink when no broker is configured.
package logsink

import (
	"context"
	"log/slog"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/logger"
)

// Ensure Sink implements the interface.
var _ driven.AuditSink = (*Sink)(nil)

// Sink logs each event at info level, or warn for failures.
type Sink struct {
	log *slog.Logger
}

// New creates a sink on the "audit" component logger.
func New() *Sink {
	return &Sink{log: logger.WithComponent("audit")}
}

// NewWithLogger creates a sink on the given logger.
func NewWithLogger(l *slog.Logger) *Sink {
	return &Sink{log: l}
}

// Record logs the event.
func (s *Sink) Record(ctx context.Context, event domain.AuditEvent) error {
	level := slog.LevelInfo
	if event.Outcome == domain.IngestFailed {
		level = slog.LevelWarn
	}
	attrs := []any{
		"action", event.Action,
		"source", event.Source,
		"outcome", string(event.Outcome),
		"duration", event.Duration,
	}
	if event.DocumentID != "" {
		attrs = append(attrs, "document_id", event.DocumentID)
	}
	if event.Stage != "" {
		attrs = append(attrs, "stage", string(event.Stage))
	}
	if event.Error != "" {
		attrs = append(attrs, "error", event.Error)
	}
	s.log.Log(ctx, level, "audit", attrs...)
	return nil
}
