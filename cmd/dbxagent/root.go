package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dbxagent/internal/config"
)

// cli carries state shared by subcommands.
type cli struct {
	viper      *viper.Viper
	configPath string
	plain      bool
	logOutput  io.Writer
	extra      []ContainerOption
}

func newRootCommand(opts ...ContainerOption) *cobra.Command {
	c := &cli{viper: viper.New(), extra: opts}

	root := &cobra.Command{
		Use:   "dbxagent",
		Short: "Route questions across Databricks Genie, vector search and model agents",
		Long: fmt.Sprintf(`%s

Answers questions with a supervisor that routes each query to one of the
configured agents: Genie spaces for data questions, vector indexes for
document questions, and serving endpoints for everything else.

%s
  dbxagent ask "What were Q4 sales?"
  dbxagent chat
  dbxagent genie query 01ef... "Top 5 regions by revenue"
  dbxagent search main.docs.chunks "how do clusters autoscale"
  dbxagent serve --addr :8080`, bold("dbxagent"), bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			c.logOutput = cmd.ErrOrStderr()
			return bindOverrides(c.viper, cmd.Flags())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&c.configPath, "config", "c", "", "config file (default: ./dbxagent.yaml or ~/.dbxagent/config.yaml)")
	flags.String("host", "", "workspace URL (env DATABRICKS_HOST)")
	flags.String("token", "", "workspace token (env DATABRICKS_TOKEN)")
	flags.StringP("model", "m", "", "default serving endpoint (env DATABRICKS_LLM_ENDPOINT)")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&c.plain, "plain", false, "print raw markdown")

	root.AddCommand(
		newAskCommand(c),
		newChatCommand(c),
		newGenieCommand(c),
		newSearchCommand(c),
		newIndexCommand(c),
		newServeCommand(c),
		newAgentsCommand(c),
	)
	return root
}

func (c *cli) settings() (config.Config, error) {
	cfg, _, err := loadSettings(c.viper, c.configPath)
	return cfg, err
}

// container loads settings and builds the composition root. Callers must
// close it.
func (c *cli) container(ctx context.Context, opts ...ContainerOption) (*Container, error) {
	cfg, err := c.settings()
	if err != nil {
		return nil, err
	}
	all := append([]ContainerOption{withLogOutput(c.logOutput)}, c.extra...)
	return BuildContainer(ctx, cfg, append(all, opts...)...)
}

func closeContainer(ctn *Container) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ctn.Close(ctx); err != nil {
		ctn.Logger.Warn("Shutdown: %v", err)
	}
}
