// Package forecast fits an ordinary least-squares line to yearly ESG scores
// and extrapolates it over a requested horizon.
package forecast

import (
	"fmt"
	"math"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
)

const (
	// StableThreshold is the absolute slope, in score points per year, below
	// which a series is reported as stable.
	StableThreshold = 0.5

	minScore = 0
	maxScore = 100
)

// Trend classifies the direction of the fitted line.
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// Point is one yearly ESG score.
type Point struct {
	Year  int     `json:"year"`
	Score float64 `json:"score"`
}

// Result is the outcome of a forecast.
type Result struct {
	Historical []Point `json:"historicalData"`
	Predicted  []Point `json:"predictedData"`
	Trend      Trend   `json:"trend"`
	Confidence int     `json:"confidence"`
}

// Fit holds the regression coefficients for a series.
type Fit struct {
	Slope     float64
	Intercept float64
	RSquared  float64
}

// Predict fits a line to historical and produces yearsToPredict consecutive
// yearly predictions starting the year after the latest observation.
// Input order does not matter and the input slice is not modified.
func Predict(historical []Point, yearsToPredict int) (*Result, error) {
	fit, err := Regress(historical)
	if err != nil {
		return nil, err
	}

	lastYear := historical[0].Year
	for _, p := range historical[1:] {
		if p.Year > lastYear {
			lastYear = p.Year
		}
	}

	n := max(yearsToPredict, 0)
	predicted := make([]Point, 0, n)
	for i := 1; i <= n; i++ {
		year := lastYear + i
		predicted = append(predicted, Point{
			Year:  year,
			Score: clamp(math.Round(fit.Slope*float64(year)+fit.Intercept), minScore, maxScore),
		})
	}

	hist := make([]Point, len(historical))
	copy(hist, historical)

	return &Result{
		Historical: hist,
		Predicted:  predicted,
		Trend:      Classify(fit.Slope),
		Confidence: int(clamp(math.Round(fit.RSquared*100), 0, 100)),
	}, nil
}

// Regress computes the least-squares slope, intercept and coefficient of
// determination for the series. A series whose scores are all equal is a
// perfect horizontal fit and reports R² = 1.
func Regress(points []Point) (Fit, error) {
	if len(points) < 2 {
		return Fit{}, fmt.Errorf("%w: need at least 2 points, got %d", apperrors.ErrInsufficientData, len(points))
	}
	for _, p := range points {
		if math.IsNaN(p.Score) || math.IsInf(p.Score, 0) {
			return Fit{}, fmt.Errorf("%w: non-finite score for year %d", apperrors.ErrInvalidInput, p.Year)
		}
	}

	// Year sums stay in integers so the denominator is exact.
	var sumX, sumXX int64
	var sumY, sumXY float64
	for _, p := range points {
		x := int64(p.Year)
		sumX += x
		sumXX += x * x
		sumY += p.Score
		sumXY += float64(p.Year) * p.Score
	}
	n := int64(len(points))
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return Fit{}, fmt.Errorf("%w: all points share year %d", apperrors.ErrDegenerateInput, points[0].Year)
	}

	nf := float64(n)
	slope := (nf*sumXY - float64(sumX)*sumY) / float64(denom)
	intercept := (sumY - slope*float64(sumX)) / nf

	return Fit{
		Slope:     slope,
		Intercept: intercept,
		RSquared:  rSquared(points, slope, intercept, sumY/nf),
	}, nil
}

func rSquared(points []Point, slope, intercept, mean float64) float64 {
	allEqual := true
	for _, p := range points[1:] {
		if p.Score != points[0].Score {
			allEqual = false
			break
		}
	}
	if allEqual {
		return 1
	}

	var ssRes, ssTot float64
	for _, p := range points {
		fitted := slope*float64(p.Year) + intercept
		ssRes += (p.Score - fitted) * (p.Score - fitted)
		ssTot += (p.Score - mean) * (p.Score - mean)
	}
	return 1 - ssRes/ssTot
}

// Classify maps a slope onto a Trend.
func Classify(slope float64) Trend {
	switch {
	case math.Abs(slope) < StableThreshold:
		return TrendStable
	case slope > 0:
		return TrendIncreasing
	default:
		return TrendDecreasing
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
