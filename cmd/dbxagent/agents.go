package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"dbxagent/internal/supervisor"
)

func newAgentsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "Inspect the configured agents",
	}
	cmd.AddCommand(newAgentsListCommand(c), newAgentsValidateCommand(c))
	return cmd
}

func newAgentsListCommand(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents in routing order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctn, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer closeContainer(ctn)

			reg := ctn.Supervisor.Registry()
			out := cmd.OutOrStdout()
			if asJSON {
				type row struct {
					Name        string   `json:"name"`
					Type        string   `json:"type"`
					Description string   `json:"description,omitempty"`
					Keywords    []string `json:"keywords,omitempty"`
					Enabled     bool     `json:"enabled"`
					Default     bool     `json:"default"`
				}
				rows := make([]row, 0, len(reg.Agents()))
				for _, agent := range reg.Agents() {
					rows = append(rows, row{agent.Name, string(agent.Type), agent.Description, agent.Keywords, agent.Enabled, agent.Name == reg.Default()})
				}
				return writeJSON(out, rows)
			}
			printAgents(out, reg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print agents as JSON")
	return cmd
}

func printAgents(w io.Writer, reg *supervisor.Registry) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Name", "Type", "Enabled", "Keywords", "Description"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, agent := range reg.Agents() {
		name := agent.Name
		if name == reg.Default() {
			name += " *"
		}
		table.Append([]string{
			name,
			string(agent.Type),
			strconv.FormatBool(agent.Enabled),
			strings.Join(agent.Keywords, ", "),
			agent.Description,
		})
	}
	table.Render()
}

func newAgentsValidateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and the agent bindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctn, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer closeContainer(ctn)

			reg := ctn.Supervisor.Registry()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d agents (%d enabled), default %s, routing %s\n",
				green("✓"), len(reg.Agents()), len(reg.Enabled()), reg.Default(), ctn.Config.Supervisor.RoutingStrategy)
			return nil
		},
	}
}
