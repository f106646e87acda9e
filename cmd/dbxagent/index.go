package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"dbxagent/internal/vectorsearch"
)

var errNoLocalStore = errors.New(`index management needs vector_search.backend "local"`)

func newIndexCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage documents in the local vector store",
	}
	cmd.AddCommand(newIndexAddCommand(c), newIndexDeleteCommand(c))
	return cmd
}

func (c *cli) localIndex(cmd *cobra.Command, name string) (*Container, *vectorsearch.LocalIndex, error) {
	ctn, err := c.container(cmd.Context(), withoutSupervisor())
	if err != nil {
		return nil, nil, err
	}
	if ctn.Local == nil {
		closeContainer(ctn)
		return nil, nil, errNoLocalStore
	}
	index, err := ctn.Local.OpenIndex(name)
	if err != nil {
		closeContainer(ctn)
		return nil, nil, err
	}
	return ctn, index, nil
}

func newIndexAddCommand(c *cli) *cobra.Command {
	var metadata map[string]string
	cmd := &cobra.Command{
		Use:   "add <index> <file>...",
		Short: "Embed files and store them, one document per file",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := make([]vectorsearch.IndexedDocument, 0, len(args)-1)
			for _, path := range args[1:] {
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				if strings.TrimSpace(string(content)) == "" {
					continue
				}
				meta := map[string]string{"source": filepath.Base(path)}
				for k, v := range metadata {
					meta[k] = v
				}
				docs = append(docs, vectorsearch.IndexedDocument{
					ID:       filepath.Clean(path),
					Content:  string(content),
					Metadata: meta,
				})
			}

			ctn, index, err := c.localIndex(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeContainer(ctn)
			if err := index.Add(cmd.Context(), docs); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s indexed %d documents into %s (%d total)\n",
				green("✓"), len(docs), index.Name(), index.Count())
			return nil
		},
	}
	cmd.Flags().StringToStringVar(&metadata, "meta", nil, "extra metadata for every document, e.g. --meta team=finance")
	return cmd
}

func newIndexDeleteCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <index> <id>...",
		Short: "Remove documents by id",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctn, index, err := c.localIndex(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeContainer(ctn)
			if err := index.Delete(cmd.Context(), args[1:]...); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d documents left in %s\n", green("✓"), index.Count(), index.Name())
			return nil
		},
	}
}
