// Package history supplies yearly ESG score series per company.
package history

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/esgpulse/esg-analytics/internal/forecast"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
)

// Source returns the score history of a company ordered by year.
type Source interface {
	History(ctx context.Context, companyID int) ([]forecast.Point, error)
	Name() string
}

const (
	mockStartYear = 2018
	mockBaseScore = 75
	mockSpread    = 10
)

// MockSource generates a plausible series from 2018 through the current year.
// The series is seeded by the company ID so repeated calls agree.
type MockSource struct {
	BaseScore float64
	Now       func() time.Time
}

func NewMockSource() *MockSource {
	return &MockSource{BaseScore: mockBaseScore, Now: time.Now}
}

func (m *MockSource) Name() string {
	return "Mock Data (ESG Book API in production)"
}

func (m *MockSource) History(_ context.Context, companyID int) ([]forecast.Point, error) {
	if companyID <= 0 {
		return nil, fmt.Errorf("%w: company id must be positive, got %d", apperrors.ErrInvalidInput, companyID)
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	base := m.BaseScore
	if base == 0 {
		base = mockBaseScore
	}

	rng := rand.New(rand.NewSource(int64(companyID)))
	currentYear := now().Year()
	points := make([]forecast.Point, 0, currentYear-mockStartYear+1)
	for year := mockStartYear; year <= currentYear; year++ {
		variation := (rng.Float64() - 0.5) * mockSpread
		score := math.Max(0, math.Min(100, math.Round(base+variation)))
		points = append(points, forecast.Point{Year: year, Score: score})
	}
	return points, nil
}
