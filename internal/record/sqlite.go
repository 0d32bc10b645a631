package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"ingest/internal/logger"
	"ingest/pkg/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	batch_name TEXT NOT NULL UNIQUE,
	addresses  TEXT NOT NULL,
	created_at TEXT NOT NULL
)`

// SQLiteStore stores summaries in a local SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	const op = "OpenSQLite"

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: create schema: %w", op, err)
	}

	log := logger.WithComponent("sqlite")
	log.Info().Str("path", path).Msg("SQLite record store ready")
	return &SQLiteStore{db: db, log: log}, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, summary models.BatchSummary) (*models.BatchSummary, error) {
	stored, err := prepare(summary, time.Now())
	if err != nil {
		return nil, err
	}
	stored.ID = uuid.NewString()

	addrs, err := json.Marshal(stored.Addresses)
	if err != nil {
		return nil, insertError("sqlite", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO batches (id, batch_name, addresses, created_at) VALUES (?, ?, ?, ?)`,
		stored.ID, stored.BatchName, string(addrs), stored.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		s.log.Error().Err(err).Str("batch_name", stored.BatchName).Msg("Insert failed")
		return nil, insertError("sqlite", err)
	}
	return &stored, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]models.BatchSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, batch_name, addresses, created_at FROM batches ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var out []models.BatchSummary
	for rows.Next() {
		var (
			rec       models.BatchSummary
			addrs     string
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.BatchName, &addrs, &createdAt); err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(addrs), &rec.Addresses); err != nil {
			return nil, fmt.Errorf("List: decode addresses of %s: %w", rec.ID, err)
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("List: parse created_at of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close(context.Context) error {
	return s.db.Close()
}
