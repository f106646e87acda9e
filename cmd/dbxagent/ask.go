package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"dbxagent/internal/supervisor"
)

func newAskCommand(c *cli) *cobra.Command {
	var (
		agent  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question through the supervisor",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctn, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer closeContainer(ctn)

			var opts []supervisor.InvokeOption
			if agent != "" {
				opts = append(opts, supervisor.WithAgent(agent))
			}
			state := ctn.Supervisor.Invoke(cmd.Context(), strings.Join(args, " "), opts...)

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, state)
			}
			printAnswer(out, newMarkdownRenderer(out, c.plain), state)
			return nil
		},
	}
	cmd.Flags().StringVarP(&agent, "agent", "a", "", "send the question to this agent without routing")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full invocation state as JSON")
	return cmd
}

func printAnswer(w io.Writer, md *markdownRenderer, state *supervisor.State) {
	fmt.Fprintln(w, md.Render(state.FinalResponse))

	note := "agent: " + state.NextAgent
	switch {
	case state.Fallback:
		note += yellow(" (answered by fallback)")
	case state.Failed:
		note += red(" (failed)")
	}
	fmt.Fprintln(w, gray(note))
}
