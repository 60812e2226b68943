package cli

import (
	"fmt"

	"github.com/esgpulse/esg-analytics/internal/history"
	"github.com/esgpulse/esg-analytics/pkg/postgres"
	"github.com/esgpulse/esg-analytics/pkg/sqlite"
	"github.com/spf13/cobra"
)

func newHistoryCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Manage stored ESG score histories",
	}
	cmd.AddCommand(newHistoryImportCmd(root))
	return cmd
}

func newHistoryImportCmd(root *rootOptions) *cobra.Command {
	var (
		db      string
		company int
		file    string
	)
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON history into a SQLite database",
		Long: `Creates the esg_scores table if needed and upserts every point of the
history file for the company. Scores must lie in [0, 100].`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if company <= 0 {
				return fmt.Errorf("--company must be a positive integer, got %d", company)
			}
			points, err := loadPoints(file)
			if err != nil {
				return err
			}

			conn, err := sqlite.Open(db)
			if err != nil {
				return err
			}
			defer conn.Close()

			source := history.NewSQLSource(conn, postgres.DialectSQLite)
			if err := source.Migrate(cmd.Context()); err != nil {
				return err
			}
			if err := source.Upsert(cmd.Context(), company, points); err != nil {
				return err
			}

			if root.json {
				return writeJSON(cmd, map[string]any{"companyId": company, "imported": len(points), "db": db})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d points for company %d into %s\n", len(points), company, db)
			return nil
		},
	}
	cmd.Flags().StringVar(&db, "db", "", "SQLite database path")
	cmd.Flags().IntVar(&company, "company", 0, "company ID")
	cmd.Flags().StringVar(&file, "file", "", "JSON history file")
	for _, name := range []string{"db", "company", "file"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
