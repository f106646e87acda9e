package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

func newChatCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctn, err := c.container(cmd.Context())
			if err != nil {
				return err
			}
			defer closeContainer(ctn)

			out := cmd.OutOrStdout()
			historyFile := ""
			if home, err := os.UserHomeDir(); err == nil {
				historyFile = filepath.Join(home, ".dbxagent_history")
			}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:            promptStyle.Render("? "),
				HistoryFile:       historyFile,
				InterruptPrompt:   "^C",
				EOFPrompt:         "exit",
				HistorySearchFold: true,
				Stdin:             io.NopCloser(cmd.InOrStdin()),
				Stdout:            out,
				Stderr:            cmd.ErrOrStderr(),
			})
			if err != nil {
				return fmt.Errorf("initialize readline: %w", err)
			}
			defer rl.Close()

			names := make([]string, 0)
			for _, agent := range ctn.Supervisor.Registry().Enabled() {
				names = append(names, agent.Name)
			}
			fmt.Fprintln(out, bannerStyle.Render("dbxagent chat"))
			fmt.Fprintln(out, gray("agents: "+strings.Join(names, ", ")+"  |  type exit to quit"))

			md := newMarkdownRenderer(out, c.plain)
			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if err != nil {
					break
				}
				line = strings.TrimSpace(line)
				switch line {
				case "":
					continue
				case "exit", "quit":
					return nil
				}
				if cmd.Context().Err() != nil {
					return nil
				}

				state := ctn.Supervisor.Invoke(cmd.Context(), line)
				fmt.Fprintln(out)
				printAnswer(out, md, state)
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}
