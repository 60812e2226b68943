// Package aggregator persists analytics snapshots so totals survive
// restarts and can be charted over time.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/pkg/postgres"
)

var schemas = map[postgres.Dialect]string{
	postgres.DialectPostgres: `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          BIGSERIAL PRIMARY KEY,
    data        JSONB NOT NULL,
    captured_ms BIGINT NOT NULL
)`,
	postgres.DialectSQLite: `
CREATE TABLE IF NOT EXISTS analytics_snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    data        TEXT NOT NULL,
    captured_ms INTEGER NOT NULL
)`,
}

// Store writes snapshots to the analytics_snapshots table.
type Store struct {
	db      *sql.DB
	dialect postgres.Dialect
	now     func() time.Time
	logger  *slog.Logger
}

func NewStore(db *sql.DB, dialect postgres.Dialect) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		logger:  slog.Default().With("component", "analytics-store", "dialect", string(dialect)),
	}
}

func (s *Store) Migrate(ctx context.Context) error {
	ddl, ok := schemas[s.dialect]
	if !ok {
		return fmt.Errorf("unsupported dialect %q", s.dialect)
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrating analytics_snapshots: %w", err)
	}
	return nil
}

// SaveSnapshot stores stats stamped with the current time.
func (s *Store) SaveSnapshot(ctx context.Context, stats analytics.Stats) error {
	stats.CapturedAt = s.now().UTC()
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		s.dialect.Rebind(`INSERT INTO analytics_snapshots (data, captured_ms) VALUES (?, ?)`),
		string(data), stats.CapturedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved",
		"forecasts", stats.Forecasts,
		"documents_indexed", stats.DocumentsIndexed,
	)
	return nil
}

// LatestSnapshot returns the newest snapshot, or nil when none exist.
func (s *Store) LatestSnapshot(ctx context.Context) (*analytics.Stats, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM analytics_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest snapshot: %w", err)
	}
	var stats analytics.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &stats, nil
}

// ListSnapshots returns up to limit snapshots, newest first. Corrupt rows
// are skipped.
func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		s.dialect.Rebind(`SELECT data FROM analytics_snapshots ORDER BY id DESC LIMIT ?`),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []analytics.Stats
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		var stats analytics.Stats
		if err := json.Unmarshal(data, &stats); err != nil {
			s.logger.Warn("skipping corrupt snapshot", "error", err)
			continue
		}
		snapshots = append(snapshots, stats)
	}
	return snapshots, rows.Err()
}

// Prune deletes snapshots older than retention and reports how many went.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention).UnixMilli()
	var n int64
	err := postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.dialect.Rebind(`DELETE FROM analytics_snapshots WHERE captured_ms < ?`), cutoff)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return n, nil
}

// StartPeriodicSave snapshots agg every interval and once more on shutdown.
// A positive retention prunes old snapshots after each save.
func (s *Store) StartPeriodicSave(ctx context.Context, agg *analytics.Aggregator, interval, retention time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SaveSnapshot(ctx, agg.Stats()); err != nil {
					s.logger.Error("periodic snapshot failed", "error", err)
					continue
				}
				if retention > 0 {
					if n, err := s.Prune(ctx, retention); err != nil {
						s.logger.Error("snapshot pruning failed", "error", err)
					} else if n > 0 {
						s.logger.Info("old snapshots pruned", "deleted", n)
					}
				}
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				if err := s.SaveSnapshot(shutdownCtx, agg.Stats()); err != nil {
					s.logger.Error("final snapshot failed", "error", err)
				}
				cancel()
				return
			}
		}
	}()
	s.logger.Info("periodic snapshot started", "interval", interval, "retention", retention)
	return done
}
