// Package store keeps the history of comparison reports in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/compare"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS comparison_reports (
    id          BIGSERIAL PRIMARY KEY,
    fingerprint TEXT NOT NULL,
    data        JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS comparison_reports_fingerprint_idx
    ON comparison_reports (fingerprint, created_at DESC);
`

// Store persists comparison reports in the comparison_reports table.
type Store struct {
	db     *postgres.Client
	retain int
	logger *slog.Logger
}

// Entry is one stored report.
type Entry struct {
	ID        int64          `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Report    compare.Report `json:"report"`
}

// New creates a Store. retain bounds how many reports are kept per
// fingerprint; zero keeps all of them.
func New(db *postgres.Client, retain int) *Store {
	return &Store{
		db:     db,
		retain: retain,
		logger: slog.Default().With("component", "report-store"),
	}
}

// EnsureSchema creates the table and index if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating comparison_reports: %w", err)
	}
	return nil
}

// Save inserts r and trims older reports with the same fingerprint beyond
// the retain limit, in one transaction.
func (s *Store) Save(ctx context.Context, r *compare.Report) (int64, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return 0, fmt.Errorf("marshaling report: %w", err)
	}

	var id int64
	var pruned int64
	err = s.db.InTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`INSERT INTO comparison_reports (fingerprint, data, created_at) VALUES ($1, $2, $3) RETURNING id`,
			r.Fingerprint, data, time.Now().UTC(),
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("inserting report: %w", err)
		}
		if s.retain <= 0 {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`DELETE FROM comparison_reports
			 WHERE fingerprint = $1 AND id NOT IN (
			     SELECT id FROM comparison_reports WHERE fingerprint = $1
			     ORDER BY created_at DESC, id DESC LIMIT $2)`,
			r.Fingerprint, s.retain,
		)
		if err != nil {
			return fmt.Errorf("pruning reports: %w", err)
		}
		pruned, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("comparison report saved",
		"id", id,
		"fingerprint", r.Fingerprint,
		"pruned", pruned,
	)
	return id, nil
}

// Latest returns the newest report for fingerprint, or for any fingerprint
// when it is empty. It returns nil, nil when nothing matches.
func (s *Store) Latest(ctx context.Context, fingerprint string) (*Entry, error) {
	var (
		e    Entry
		data []byte
	)
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, data, created_at FROM comparison_reports
		 WHERE $1 = '' OR fingerprint = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		fingerprint,
	).Scan(&e.ID, &data, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest report: %w", err)
	}
	if err := json.Unmarshal(data, &e.Report); err != nil {
		return nil, fmt.Errorf("unmarshaling report %d: %w", e.ID, err)
	}
	return &e, nil
}

// List returns up to limit reports, newest first. Rows that no longer decode
// are skipped.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT id, data, created_at FROM comparison_reports ORDER BY created_at DESC, id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e    Entry
			data []byte
		)
		if err := rows.Scan(&e.ID, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning report row: %w", err)
		}
		if err := json.Unmarshal(data, &e.Report); err != nil {
			s.logger.Warn("skipping corrupt report", "id", e.ID, "error", err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
