// Package cli implements the esgctl command tree.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/esgpulse/esg-analytics/pkg/logger"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	json     bool
	logLevel string
}

// NewRootCmd builds a fresh esgctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "esgctl",
		Short: "ESG analytics operator tool",
		Long: `esgctl forecasts ESG score trends from local histories, imports
histories into a SQLite database, and chunks and searches report text
without a running API.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			slog.SetDefault(logger.New(cmd.ErrOrStderr(), opts.logLevel, "text"))
		},
	}
	root.PersistentFlags().BoolVar(&opts.json, "json", false, "output as JSON")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newForecastCmd(opts),
		newHistoryCmd(opts),
		newChunkCmd(opts),
		newSearchCmd(opts),
		newLoadTestCmd(opts),
	)
	return root
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
