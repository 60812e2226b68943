package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/esgpulse/esg-analytics/internal/forecast"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS esg_scores (
    company_id INTEGER NOT NULL,
    year       INTEGER NOT NULL,
    score      DOUBLE PRECISION NOT NULL CHECK (score >= 0 AND score <= 100),
    PRIMARY KEY (company_id, year)
)`

// SQLSource reads score histories from the esg_scores table.
type SQLSource struct {
	db      *sql.DB
	dialect postgres.Dialect
	logger  *slog.Logger
}

func NewSQLSource(db *sql.DB, dialect postgres.Dialect) *SQLSource {
	return &SQLSource{
		db:      db,
		dialect: dialect,
		logger:  slog.Default().With("component", "history-store", "dialect", string(dialect)),
	}
}

func (s *SQLSource) Name() string {
	return "esg_scores (" + string(s.dialect) + ")"
}

// Migrate creates the esg_scores table if needed.
func (s *SQLSource) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating esg_scores: %w", err)
	}
	return nil
}

func (s *SQLSource) History(ctx context.Context, companyID int) ([]forecast.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT year, score FROM esg_scores WHERE company_id = ? ORDER BY year`),
		companyID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history for company %d: %w", companyID, err)
	}
	defer rows.Close()

	var points []forecast.Point
	for rows.Next() {
		var p forecast.Point
		if err := rows.Scan(&p.Year, &p.Score); err != nil {
			return nil, fmt.Errorf("scanning history row: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading history rows: %w", err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrCompanyNotFound, companyID)
	}
	return points, nil
}

// Upsert writes points for a company in one transaction, replacing scores of
// years already present.
func (s *SQLSource) Upsert(ctx context.Context, companyID int, points []forecast.Point) error {
	for _, p := range points {
		if p.Score < 0 || p.Score > 100 {
			return fmt.Errorf("%w: score %v for year %d outside [0,100]", apperrors.ErrInvalidInput, p.Score, p.Year)
		}
	}
	query := s.rebind(`INSERT INTO esg_scores (company_id, year, score) VALUES (?, ?, ?)
		ON CONFLICT (company_id, year) DO UPDATE SET score = excluded.score`)

	err := postgres.InTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing upsert: %w", err)
		}
		defer stmt.Close()
		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, companyID, p.Year, p.Score); err != nil {
				return fmt.Errorf("upserting year %d: %w", p.Year, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storing history for company %d: %w", companyID, err)
	}
	s.logger.Info("history stored", "company_id", companyID, "points", len(points))
	return nil
}

func (s *SQLSource) rebind(query string) string {
	return s.dialect.Rebind(query)
}
