package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dbxagent/internal/vectorsearch"
)

func newSearchCommand(c *cli) *cobra.Command {
	var (
		endpoint   string
		k          int
		columns    []string
		textColumn string
		filter     string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "search <index> <query>",
		Short: "Run a similarity search against a vector index",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseFilterFlag(filter)
			if err != nil {
				return err
			}
			ctn, err := c.container(cmd.Context(), withoutSupervisor())
			if err != nil {
				return err
			}
			defer closeContainer(ctn)
			if ctn.Indexes == nil {
				return fmt.Errorf("vector search is not configured: %w", errNoWorkspace)
			}
			if endpoint == "" {
				endpoint = ctn.Config.VectorSearch.Endpoint
			}

			index, err := ctn.Indexes.Open(endpoint, args[0])
			if err != nil {
				return err
			}
			retriever := vectorsearch.NewRetriever(index)
			retriever.Columns = columns
			retriever.Filter = parsed
			if textColumn != "" {
				retriever.TextColumn = textColumn
			}
			if k > 0 {
				retriever.NumResults = k
			}

			docs, err := retriever.Retrieve(cmd.Context(), strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, docs)
			}
			fmt.Fprintln(out, newMarkdownRenderer(out, c.plain).Render(vectorsearch.FormatDocuments(docs)))
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&endpoint, "endpoint", "", "vector search endpoint (default from config)")
	flags.IntVarP(&k, "k", "k", 0, "number of results")
	flags.StringSliceVar(&columns, "columns", nil, "columns to return")
	flags.StringVar(&textColumn, "text-column", "", "column holding the passage text")
	flags.StringVar(&filter, "filter", "", `filter as JSON, e.g. {"comparator":"eq","attribute":"source","value":"guide.pdf"}`)
	flags.BoolVar(&asJSON, "json", false, "print documents as JSON")
	return cmd
}

func parseFilterFlag(raw string) (vectorsearch.Filter, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var node any
	if err := json.Unmarshal([]byte(raw), &node); err != nil {
		return nil, fmt.Errorf("decode --filter: %w", err)
	}
	filter, err := vectorsearch.ParseFilter(node)
	if err != nil {
		return nil, fmt.Errorf("--filter: %w", err)
	}
	return filter, nil
}
