package interfaces

import (
	"context"
	"time"

	"incident-analyzer/pkg/models"
)

// FetchConfig contains configuration for pulling raw log lines from a
// remote store.
type FetchConfig struct {
	TimeRange  models.TimeRange
	Indices    []string
	MaxResults int
	Timeout    time.Duration
}

// Normalizer turns raw access-log lines into Events. Malformed lines are
// skipped and counted, never fatal, so the signature carries no error.
type Normalizer interface {
	Normalize(lines []string) ([]models.Event, int)
}

// Aggregator computes the canonical metrics document from an event set.
// It fails only on programmer-error configuration (non-positive window).
type Aggregator interface {
	Compute(events []models.Event, rejectedLines int) (*models.Metrics, error)
}

// Validator checks a generated report against the metrics document.
// Report text is untrusted input; the verdict is never an error.
type Validator interface {
	Validate(reportText string, metrics *models.Metrics) models.ValidationResult
}

// Generator is the external report-generation collaborator: opaque,
// possibly slow, possibly rate-limited, non-deterministic.
type Generator interface {
	Generate(ctx context.Context, metrics *models.Metrics) (string, error)
}

// Fetcher retrieves raw access-log lines from a remote source. The lines
// go through the same Normalizer as file input.
type Fetcher interface {
	Fetch(ctx context.Context, config FetchConfig) ([]string, error)
}
