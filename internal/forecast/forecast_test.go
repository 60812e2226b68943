package forecast

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
)

func TestPredictLinearClampsToHundred(t *testing.T) {
	hist := []Point{{2020, 20}, {2021, 40}, {2022, 60}, {2023, 80}}

	res, err := Predict(hist, 2)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}

	want := []Point{{2024, 100}, {2025, 100}}
	if !reflect.DeepEqual(res.Predicted, want) {
		t.Errorf("predicted = %v, want %v", res.Predicted, want)
	}
	if res.Trend != TrendIncreasing {
		t.Errorf("trend = %s, want increasing", res.Trend)
	}
	if res.Confidence != 100 {
		t.Errorf("confidence = %d, want 100", res.Confidence)
	}

	fit, err := Regress(hist)
	if err != nil {
		t.Fatalf("Regress() error: %v", err)
	}
	if math.Abs(fit.Slope-20) > 1e-9 {
		t.Errorf("slope = %v, want 20", fit.Slope)
	}
}

func TestPredictConstantSeries(t *testing.T) {
	res, err := Predict([]Point{{2020, 50}, {2021, 50}, {2022, 50}}, 3)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if res.Trend != TrendStable {
		t.Errorf("trend = %s, want stable", res.Trend)
	}
	if res.Confidence != 100 {
		t.Errorf("confidence = %d, want 100", res.Confidence)
	}
	for _, p := range res.Predicted {
		if p.Score != 50 {
			t.Errorf("predicted %d = %v, want 50", p.Year, p.Score)
		}
	}
}

func TestPredictDecreasingUnordered(t *testing.T) {
	hist := []Point{{2022, 70}, {2020, 80}, {2021, 75}}

	res, err := Predict(hist, 2)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	want := []Point{{2023, 65}, {2024, 60}}
	if !reflect.DeepEqual(res.Predicted, want) {
		t.Errorf("predicted = %v, want %v", res.Predicted, want)
	}
	if res.Trend != TrendDecreasing {
		t.Errorf("trend = %s, want decreasing", res.Trend)
	}
	if !reflect.DeepEqual(res.Historical, hist) {
		t.Errorf("historical = %v, want input order %v", res.Historical, hist)
	}
}

func TestPredictRoundsHalfAwayFromZero(t *testing.T) {
	// y = 0.5x - 1000.5 fits exactly; 2005 lands on 2.0 and 2004 on 1.5.
	hist := []Point{{2001, 0}, {2003, 1}}

	res, err := Predict(hist, 1)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	if res.Predicted[0].Year != 2004 || res.Predicted[0].Score != 2 {
		t.Errorf("predicted = %v, want {2004 2}", res.Predicted[0])
	}
	if res.Trend != TrendIncreasing {
		t.Errorf("slope 0.5 should be increasing, got %s", res.Trend)
	}
}

func TestPredictConfidenceFromRSquared(t *testing.T) {
	hist := []Point{{2020, 60}, {2021, 70}, {2022, 60}, {2023, 70}}

	res, err := Predict(hist, 1)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	// slope = 2, SSres = 80, SStot = 100 -> R² = 0.2
	if res.Confidence != 20 {
		t.Errorf("confidence = %d, want 20", res.Confidence)
	}
	if res.Trend != TrendIncreasing {
		t.Errorf("trend = %s, want increasing", res.Trend)
	}
}

func TestPredictHorizon(t *testing.T) {
	hist := []Point{{2019, 70}, {2020, 71}}
	for _, years := range []int{0, -3} {
		res, err := Predict(hist, years)
		if err != nil {
			t.Fatalf("Predict(%d) error: %v", years, err)
		}
		if res.Predicted == nil || len(res.Predicted) != 0 {
			t.Errorf("Predict(%d) predicted = %#v, want empty non-nil", years, res.Predicted)
		}
	}
}

func TestPredictErrors(t *testing.T) {
	tests := []struct {
		name string
		hist []Point
		want error
	}{
		{"empty", nil, apperrors.ErrInsufficientData},
		{"single", []Point{{2020, 50}}, apperrors.ErrInsufficientData},
		{"duplicate years", []Point{{2020, 50}, {2020, 60}}, apperrors.ErrDegenerateInput},
		{"nan", []Point{{2020, math.NaN()}, {2021, 60}}, apperrors.ErrInvalidInput},
		{"inf", []Point{{2020, 50}, {2021, math.Inf(1)}}, apperrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Predict(tt.hist, 3)
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPredictProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		n := 2 + rng.Intn(10)
		years := rng.Perm(40)[:n]
		hist := make([]Point, n)
		last := 0
		for j, y := range years {
			year := 1990 + y
			hist[j] = Point{Year: year, Score: rng.Float64() * 100}
			if year > last {
				last = year
			}
		}
		// Push some series to extreme slopes.
		if i%5 == 0 {
			hist[0].Score = 0
			hist[n-1].Score = 100
		}
		horizon := 1 + rng.Intn(15)

		res, err := Predict(hist, horizon)
		if err != nil {
			t.Fatalf("case %d: Predict() error: %v", i, err)
		}
		if len(res.Predicted) != horizon {
			t.Fatalf("case %d: got %d points, want %d", i, len(res.Predicted), horizon)
		}
		for k, p := range res.Predicted {
			if p.Year != last+k+1 {
				t.Fatalf("case %d: year[%d] = %d, want %d", i, k, p.Year, last+k+1)
			}
			if p.Score < 0 || p.Score > 100 || p.Score != math.Trunc(p.Score) {
				t.Fatalf("case %d: score %v out of range or not integral", i, p.Score)
			}
		}
		if res.Confidence < 0 || res.Confidence > 100 {
			t.Fatalf("case %d: confidence %d out of range", i, res.Confidence)
		}

		again, err := Predict(hist, horizon)
		if err != nil || !reflect.DeepEqual(res, again) {
			t.Fatalf("case %d: repeated call differs", i)
		}
	}
}

func TestPredictDoesNotMutateInput(t *testing.T) {
	hist := []Point{{2023, 40}, {2021, 60}, {2022, 50}}
	orig := append([]Point(nil), hist...)

	res, err := Predict(hist, 1)
	if err != nil {
		t.Fatalf("Predict() error: %v", err)
	}
	res.Historical[0].Score = 0
	if !reflect.DeepEqual(hist, orig) {
		t.Errorf("input mutated: %v", hist)
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		slope float64
		want  Trend
	}{
		{0, TrendStable},
		{0.49, TrendStable},
		{-0.49, TrendStable},
		{0.5, TrendIncreasing},
		{-0.5, TrendDecreasing},
		{12, TrendIncreasing},
	}
	for _, c := range cases {
		if got := Classify(c.slope); got != c.want {
			t.Errorf("Classify(%v) = %s, want %s", c.slope, got, c.want)
		}
	}
}

func BenchmarkPredict(b *testing.B) {
	hist := make([]Point, 0, 30)
	for y := 1995; y < 2025; y++ {
		hist = append(hist, Point{Year: y, Score: float64(50 + y%7)})
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := Predict(hist, 5); err != nil {
			b.Fatal(err)
		}
	}
}
