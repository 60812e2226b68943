package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/esgpulse/esg-analytics/internal/loadtest"
	"github.com/spf13/cobra"
)

func newLoadTestCmd(root *rootOptions) *cobra.Command {
	cfg := loadtest.Config{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Drive forecast and search traffic at a running esg-api",
		Long: `Sends concurrent forecast requests, interleaved with searches of
--document when one is given, and reports latency percentiles, status codes
and prediction cache hits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cfg.Requests > 0 && !cmd.Flags().Changed("duration") {
				cfg.Duration = 0
			}
			w := cmd.OutOrStdout()
			if !root.json {
				fmt.Fprintf(w, "Target:      %s\n", cfg.BaseURL)
				fmt.Fprintf(w, "Concurrency: %d\n", cfg.Concurrency)
				if cfg.Requests > 0 {
					fmt.Fprintf(w, "Requests:    %d\n", cfg.Requests)
				} else {
					fmt.Fprintf(w, "Duration:    %s\n", cfg.Duration)
				}
				fmt.Fprintln(w)
			}

			report, err := loadtest.Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if root.json {
				if err := writeJSON(cmd, report); err != nil {
					return err
				}
			} else {
				report.Print(w)
			}
			if report.Total == 0 {
				return errors.New("no requests completed, is the service running?")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of esg-api")
	cmd.Flags().IntVarP(&cfg.Concurrency, "concurrency", "c", 10, "number of concurrent workers")
	cmd.Flags().DurationVarP(&cfg.Duration, "duration", "d", 30*time.Second, "test duration")
	cmd.Flags().IntVarP(&cfg.Requests, "requests", "n", 0, "stop after this many requests; an explicit --duration still bounds the run")
	cmd.Flags().IntVar(&cfg.Companies, "companies", 10, "number of company IDs to forecast")
	cmd.Flags().StringVar(&cfg.DocumentID, "document", "", "document ID to search")
	cmd.Flags().StringSliceVar(&cfg.Queries, "query", nil, "search queries (repeatable)")
	return cmd
}
