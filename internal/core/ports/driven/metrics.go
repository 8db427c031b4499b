package driven

import (
	"time"

	"github.com/custodia-labs/legalvault/internal/core/domain"
)

// Metrics receives pipeline observations. Nil-safe wrappers live in services.
type Metrics interface {
	// ObserveIngest records one finished ingestion attempt.
	ObserveIngest(status domain.IngestStatus, duration time.Duration)

	// ObserveStageFailure records a failure at the given stage.
	ObserveStageFailure(stage domain.Stage)

	// ObserveEmbedding records one embedding call.
	ObserveEmbedding(op string, err error, duration time.Duration)

	// ObserveRetrieval records the number of blocks returned for a query.
	ObserveRetrieval(results int)
}
