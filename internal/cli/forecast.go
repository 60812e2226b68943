package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/esgpulse/esg-analytics/internal/forecast"
	"github.com/esgpulse/esg-analytics/internal/history"
	"github.com/esgpulse/esg-analytics/internal/prediction"
	"github.com/esgpulse/esg-analytics/pkg/postgres"
	"github.com/esgpulse/esg-analytics/pkg/sqlite"
	"github.com/spf13/cobra"
)

type forecastOptions struct {
	file    string
	db      string
	company int
	years   int
}

func newForecastCmd(root *rootOptions) *cobra.Command {
	opts := &forecastOptions{}
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Forecast ESG scores from a history file or database",
		Long: `Fits a least-squares line to a company's yearly ESG scores and
projects it forward. The history comes from a JSON file (--file) or from
the esg_scores table of a SQLite database (--db with --company).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := runForecast(cmd, opts)
			if err != nil {
				return err
			}
			if root.json {
				return writeJSON(cmd, result)
			}
			return printForecast(cmd.OutOrStdout(), result)
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "JSON history file")
	cmd.Flags().StringVar(&opts.db, "db", "", "SQLite database with an esg_scores table")
	cmd.Flags().IntVar(&opts.company, "company", 0, "company ID (with --db)")
	cmd.Flags().IntVar(&opts.years, "years", 3, "number of years to predict")
	cmd.MarkFlagsMutuallyExclusive("file", "db")
	cmd.MarkFlagsOneRequired("file", "db")
	cmd.MarkFlagsRequiredTogether("db", "company")
	return cmd
}

func runForecast(cmd *cobra.Command, opts *forecastOptions) (*forecast.Result, error) {
	if opts.file != "" {
		points, err := loadPoints(opts.file)
		if err != nil {
			return nil, err
		}
		return forecast.Predict(points, opts.years)
	}

	db, err := sqlite.Open(opts.db)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	svc := prediction.NewService(history.NewSQLSource(db, postgres.DialectSQLite))
	resp, _, err := svc.Predict(cmd.Context(), opts.company, opts.years)
	if err != nil {
		return nil, err
	}
	return resp.Prediction, nil
}

// loadPoints reads a history file holding either a bare array of
// {"year", "score"} points or an object with a historicalData array.
func loadPoints(path string) ([]forecast.Point, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	var points []forecast.Point
	if err := json.Unmarshal(data, &points); err == nil {
		return points, nil
	}
	var wrapped struct {
		HistoricalData []forecast.Point `json:"historicalData"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if wrapped.HistoricalData == nil {
		return nil, errors.New("history file has no historicalData array")
	}
	return wrapped.HistoricalData, nil
}

func printForecast(w io.Writer, r *forecast.Result) error {
	fmt.Fprintf(w, "Trend: %s (confidence %d%%)\n\n", r.Trend, r.Confidence)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "YEAR\tSCORE\tKIND")
	for _, p := range r.Historical {
		fmt.Fprintf(tw, "%d\t%.1f\thistorical\n", p.Year, p.Score)
	}
	for _, p := range r.Predicted {
		fmt.Fprintf(tw, "%d\t%.1f\tpredicted\n", p.Year, p.Score)
	}
	return tw.Flush()
}
