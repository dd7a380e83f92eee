package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rewardLedger/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Store provides Postgres persistence for ledger events and snapshots.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PutEventBatch inserts event records. Records already stored under the same
// (pool, seq) are left untouched so replays are harmless.
func (s *Store) PutEventBatch(ctx context.Context, records []model.EventRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		ingestedAt, err := time.Parse(time.RFC3339Nano, rec.IngestedAt)
		if err != nil {
			return fmt.Errorf("parse ingested_at of seq %d: %w", rec.Seq, err)
		}
		batch.Queue(`
			INSERT INTO ledger_events (
				pool, seq, event_name, topics, data, event_ts, ingested_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (pool, seq) DO NOTHING
		`,
			rec.Pool,
			int64(rec.Seq),
			rec.EventName,
			rec.Topics,
			rec.Data,
			int64(rec.Timestamp),
			ingestedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// LoadState returns the snapshot document stored under name.
func (s *Store) LoadState(ctx context.Context, name string) ([]byte, bool, error) {
	if name == "" {
		return nil, false, fmt.Errorf("state name required")
	}
	var doc []byte
	row := s.pool.QueryRow(ctx, `SELECT snapshot FROM ledger_state WHERE name=$1`, name)
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return doc, true, nil
}

// SaveState upserts the snapshot document for name.
func (s *Store) SaveState(ctx context.Context, name string, doc []byte) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ledger_state (name, snapshot, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET snapshot = EXCLUDED.snapshot, updated_at = now()
	`, name, doc)
	return err
}
