package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"dbxagent/internal/genie"
)

var errNoWorkspace = errors.New("workspace host is not configured (set --host or DATABRICKS_HOST)")

func newGenieCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genie",
		Short: "Ask a Genie space directly",
	}
	cmd.AddCommand(newGenieQueryCommand(c), newGenieGetCommand(c), newGenieHistoryCommand(c))
	return cmd
}

// genieContainer builds a container that only needs the Genie client.
func (c *cli) genieContainer(cmd *cobra.Command) (*Container, error) {
	ctn, err := c.container(cmd.Context(), withoutSupervisor())
	if err != nil {
		return nil, err
	}
	if ctn.Genie == nil {
		closeContainer(ctn)
		return nil, errNoWorkspace
	}
	return ctn, nil
}

func newGenieQueryCommand(c *cli) *cobra.Command {
	var (
		conversation string
		timeout      time.Duration
		maxRows      int
		asJSON       bool
	)
	cmd := &cobra.Command{
		Use:   "query <space-id> <question>",
		Short: "Send a question and wait for the query result",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctn, err := c.genieContainer(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(ctn)

			ctx := cmd.Context()
			space, question := args[0], strings.Join(args[1:], " ")
			var msg *genie.Message
			if conversation != "" {
				msg, err = ctn.Genie.ContinueConversation(ctx, space, conversation, question)
			} else {
				msg, err = ctn.Genie.StartConversation(ctx, space, question)
			}
			if err != nil {
				return err
			}
			if !msg.HasResult() {
				if timeout <= 0 {
					timeout = ctn.Config.Genie.Timeout
				}
				if msg, err = ctn.Genie.WaitForCompletion(ctx, space, msg.ConversationID, msg.ID, timeout); err != nil {
					return err
				}
			}

			result := genie.Extract(msg)
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, map[string]any{
					"conversation_id": msg.ConversationID,
					"message_id":      msg.ID,
					"status":          msg.Status,
					"result":          result,
				})
			}
			if !result.OK() {
				return fmt.Errorf("genie space %s: %s", space, result.Error)
			}
			if maxRows <= 0 {
				maxRows = ctn.Config.Genie.MaxRows
			}
			fmt.Fprintln(out, newMarkdownRenderer(out, c.plain).Render(genie.FormatMarkdownTable(result, maxRows)))
			fmt.Fprintln(out, gray(fmt.Sprintf("conversation: %s  message: %s", msg.ConversationID, msg.ID)))
			return nil
		},
	}
	cmd.Flags().StringVar(&conversation, "conversation", "", "continue this conversation instead of starting a new one")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "how long to wait for the query (default from config)")
	cmd.Flags().IntVar(&maxRows, "max-rows", 0, "rows to show in the table (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the extracted result as JSON")
	return cmd
}

func newGenieGetCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <space-id> <conversation-id> <message-id>",
		Short: "Print the current state of a message",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctn, err := c.genieContainer(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(ctn)

			msg, err := ctn.Genie.GetMessage(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), msg)
		},
	}
}

func newGenieHistoryCommand(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <space-id> <conversation-id>",
		Short: "List the messages of a conversation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctn, err := c.genieContainer(cmd)
			if err != nil {
				return err
			}
			defer closeContainer(ctn)

			messages, err := ctn.Genie.ConversationHistory(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, messages)
			}
			printHistory(out, messages)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print messages as JSON")
	return cmd
}

func printHistory(w io.Writer, messages []genie.Message) {
	if len(messages) == 0 {
		fmt.Fprintln(w, gray("no messages"))
		return
	}
	for _, msg := range messages {
		status := msg.Status.String()
		switch msg.Status {
		case genie.StatusCompleted:
			status = green(status)
		case genie.StatusFailed:
			status = red(status)
		default:
			status = yellow(status)
		}
		fmt.Fprintf(w, "%s  %s  %s\n", gray(msg.ID), status, msg.Content)
	}
}
