package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/esgpulse/esg-analytics/internal/chat"
	"github.com/esgpulse/esg-analytics/internal/document"
	"github.com/spf13/cobra"
)

const defaultChunkSize = 500

// documentID names a document after its file, without the extension.
func documentID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func newChunkCmd(root *rootOptions) *cobra.Command {
	var (
		file string
		size int
	)
	cmd := &cobra.Command{
		Use:   "chunk",
		Short: "Split report text into sentence-bounded chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			text, err := readFile(file)
			if err != nil {
				return err
			}
			chunks := document.Build(documentID(file), string(text), size, time.Now())
			if root.json {
				return writeJSON(cmd, chunks)
			}
			w := cmd.OutOrStdout()
			for _, c := range chunks {
				fmt.Fprintf(w, "%s  page %d  %s\n  %s\n\n", c.ID, c.Metadata.Page, c.Metadata.Section, c.Content)
			}
			fmt.Fprintf(w, "%d chunks\n", len(chunks))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "plain-text report")
	cmd.Flags().IntVar(&size, "size", defaultChunkSize, "maximum chunk length in characters")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newSearchCmd(root *rootOptions) *cobra.Command {
	var (
		file   string
		query  string
		limit  int
		size   int
		scorer string
	)
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Rank a report's chunks against a keyword query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			relevance, err := document.ScorerByName(scorer)
			if err != nil {
				return err
			}
			text, err := readFile(file)
			if err != nil {
				return err
			}

			store := document.NewMemoryStore()
			docID := documentID(file)
			if _, err := document.NewIndexer(store).Ingest(cmd.Context(), docID, string(text), size); err != nil {
				return err
			}
			ranked, err := document.NewRanker(store, relevance).Rank(cmd.Context(), docID, query, limit)
			if err != nil {
				return err
			}

			if root.json {
				return writeJSON(cmd, ranked)
			}
			w := cmd.OutOrStdout()
			if len(ranked) == 0 {
				fmt.Fprintln(w, "No chunks found.")
				return nil
			}
			for i, r := range ranked {
				fmt.Fprintf(w, "[%d] %s (score %d, page %d, %s)\n    %s\n",
					i+1, r.ID, r.Score, r.Metadata.Page, r.Metadata.Section, chat.Snippetize(r.Content))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "plain-text report")
	cmd.Flags().StringVarP(&query, "query", "q", "", "keyword query")
	cmd.Flags().IntVarP(&limit, "limit", "n", document.DefaultLimit, "maximum number of chunks")
	cmd.Flags().IntVar(&size, "size", defaultChunkSize, "maximum chunk length in characters")
	cmd.Flags().StringVar(&scorer, "scorer", "substring", "relevance scorer (substring or term)")
	_ = cmd.MarkFlagRequired("file")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}
