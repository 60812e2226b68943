// Command esgctl is the operator CLI: offline forecasts, score history
// imports into a local SQLite database, and document chunking and search.
//
// Usage:
//
//	esgctl forecast --file history.json --years 3
//	esgctl history import --db scores.db --company 1 --file history.json
//	esgctl search --file report.txt --query "carbon emissions"
package main

import (
	"os"

	"github.com/esgpulse/esg-analytics/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
