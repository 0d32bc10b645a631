// Package record persists batch summaries.
//
// Every backend inserts a summary atomically and returns the stored copy
// with its generated identifier. Backends:
//   - MongoDB (document per batch, ObjectID identifiers)
//   - PostgreSQL (pgx, text[] addresses)
//   - SQLite (pure Go driver, JSON addresses)
//   - Google Sheets (one row per batch)
//   - in-memory
package record

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ingest/pkg/models"
)

// DefaultListLimit caps List when the caller passes a non-positive limit.
const DefaultListLimit = 100

var (
	// ErrInsertFailed is returned when a summary could not be persisted.
	ErrInsertFailed = errors.New("batch summary insert failed")

	// ErrInvalidSummary is returned for summaries that cannot be stored.
	ErrInvalidSummary = errors.New("invalid batch summary")
)

// Store persists batch summaries.
type Store interface {
	// Insert stores summary and returns the stored record including its
	// generated ID. Either the whole summary is stored or nothing is.
	Insert(ctx context.Context, summary models.BatchSummary) (*models.BatchSummary, error)

	// List returns up to limit summaries, newest first.
	List(ctx context.Context, limit int) ([]models.BatchSummary, error)

	// Close releases the backend's connections.
	Close(ctx context.Context) error
}

// prepare validates summary and fills CreatedAt.
func prepare(summary models.BatchSummary, now time.Time) (models.BatchSummary, error) {
	if summary.BatchName == "" {
		return summary, fmt.Errorf("%w: batch name is required", ErrInvalidSummary)
	}
	if summary.Addresses == nil {
		summary.Addresses = []string{}
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = now
	}
	summary.CreatedAt = summary.CreatedAt.UTC()
	return summary, nil
}

func insertError(backend string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInsertFailed, backend, err)
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}
