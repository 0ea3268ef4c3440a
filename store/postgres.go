package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"kimland-sync/internal/types"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS sync_runs (
		run_id      TEXT PRIMARY KEY,
		successful  INTEGER NOT NULL,
		failed      INTEGER NOT NULL,
		total       INTEGER NOT NULL,
		duration_ms BIGINT NOT NULL,
		cancelled   BOOLEAN NOT NULL DEFAULT FALSE,
		stopped_at  INTEGER,
		finished_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS sync_results (
		id               BIGSERIAL PRIMARY KEY,
		run_id           TEXT,
		identifier       TEXT NOT NULL,
		local_product_id BIGINT NOT NULL,
		status           TEXT NOT NULL,
		error_message    TEXT,
		remote_product   JSONB,
		updates          INTEGER NOT NULL DEFAULT 0,
		errors           INTEGER NOT NULL DEFAULT 0,
		synced_at        TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS sync_results_identifier_idx ON sync_results (identifier, synced_at DESC)`,
}

// PostgresStore keeps sync results in Postgres
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the tables when missing
func NewPostgresStore(ctx context.Context, dsn string, maxConns int) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	cfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	b := &pgx.Batch{}
	for _, stmt := range schemaStatements {
		b.Queue(stmt)
	}
	br := s.pool.SendBatch(ctx, b)
	for range schemaStatements {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return br.Close()
}

// SaveResult inserts one product result
func (s *PostgresStore) SaveResult(ctx context.Context, runID string, result types.SyncResult) error {
	var remote []byte
	if result.RemoteProduct != nil {
		var err error
		if remote, err = json.Marshal(result.RemoteProduct); err != nil {
			return fmt.Errorf("failed to encode remote product: %w", err)
		}
	}

	var run, message *string
	if runID != "" {
		run = &runID
	}
	if result.ErrorMessage != "" {
		message = &result.ErrorMessage
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_results
		(run_id, identifier, local_product_id, status, error_message, remote_product, updates, errors, synced_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		run, result.Identifier, result.LocalProductID, string(result.Status), message, remote,
		result.Updates.Updates, result.Updates.Errors, result.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

// SaveRun inserts or replaces a batch summary
func (s *PostgresStore) SaveRun(ctx context.Context, summary types.BatchSummary) error {
	var stoppedAt *int
	if summary.Cancelled {
		stoppedAt = &summary.StoppedAt
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_runs (run_id, successful, failed, total, duration_ms, cancelled, stopped_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (run_id) DO UPDATE SET
			successful = EXCLUDED.successful,
			failed = EXCLUDED.failed,
			total = EXCLUDED.total,
			duration_ms = EXCLUDED.duration_ms,
			cancelled = EXCLUDED.cancelled,
			stopped_at = EXCLUDED.stopped_at,
			finished_at = now()`,
		summary.RunID, summary.Successful, summary.Failed, summary.Total, summary.DurationMs,
		summary.Cancelled, stoppedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// LastResult returns the most recent status recorded for identifier
func (s *PostgresStore) LastResult(ctx context.Context, identifier string) (types.SyncStatus, error) {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM sync_results WHERE identifier = $1 ORDER BY synced_at DESC LIMIT 1`,
		identifier,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", types.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return types.SyncStatus(status), nil
}

// Close closes the pool
func (s *PostgresStore) Close() {
	s.pool.Close()
}
