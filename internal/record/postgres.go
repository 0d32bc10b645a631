package record

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"ingest/internal/logger"
	"ingest/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS batches (
	id         TEXT PRIMARY KEY,
	batch_name TEXT NOT NULL UNIQUE,
	addresses  TEXT[] NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore stores summaries in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// OpenPostgres connects to dsn and ensures the batches table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	const op = "OpenPostgres"
	log := logger.WithComponent("postgres")

	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: parse DSN: %w", op, err)
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "ingest"

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		log.Error().Err(err).Msg("Failed to connect to database")
		return nil, fmt.Errorf("%s: connect: %w", op, err)
	}

	if _, err := pool.Exec(dialCtx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s: create schema: %w", op, err)
	}

	log.Info().Msg("Connected to database")
	return &PostgresStore{pool: pool, log: log}, nil
}

func (p *PostgresStore) Insert(ctx context.Context, summary models.BatchSummary) (*models.BatchSummary, error) {
	rec, err := prepare(summary, time.Now())
	if err != nil {
		return nil, err
	}

	var stored models.BatchSummary
	err = p.pool.QueryRow(ctx,
		`INSERT INTO batches (id, batch_name, addresses, created_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, batch_name, addresses, created_at`,
		uuid.NewString(), rec.BatchName, rec.Addresses, rec.CreatedAt,
	).Scan(&stored.ID, &stored.BatchName, &stored.Addresses, &stored.CreatedAt)
	if err != nil {
		p.log.Error().Err(err).Str("batch_name", rec.BatchName).Msg("Insert failed")
		return nil, insertError("postgres", err)
	}
	stored.CreatedAt = stored.CreatedAt.UTC()
	return &stored, nil
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]models.BatchSummary, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT id, batch_name, addresses, created_at FROM batches ORDER BY created_at DESC LIMIT $1`,
		listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var out []models.BatchSummary
	for rows.Next() {
		var rec models.BatchSummary
		if err := rows.Scan(&rec.ID, &rec.BatchName, &rec.Addresses, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresStore) Close(context.Context) error {
	p.pool.Close()
	return nil
}
