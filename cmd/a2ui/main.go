package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/wilhg/a2ui/pkg/config"
	"github.com/wilhg/a2ui/pkg/logging"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configFile string
}

// load resolves the configuration and a logger writing to out.
func (o *rootOptions) load(out io.Writer) (config.Config, *slog.Logger, error) {
	v, err := config.New(o.configFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, nil, err
	}
	log := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: out})
	return cfg, log, nil
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "a2ui",
		Short: "A2UI - agent-authored UI surfaces",
		Long: `a2ui serves agent-authored UI surfaces. Agents build component trees,
persist them with optimistic versions and broadcast every change on the
owning user's realtime channel.

Settings come from defaults, an optional --config file and A2UI_*
environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&o.configFile, "config", "", "config file (yaml, json or toml)")
	root.AddCommand(
		newServeCmd(o),
		newMigrateCmd(o),
		newMCPCmd(o),
		newWatchCmd(o),
		newPromptsCmd(o),
		newEvalCmd(o),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "a2ui %s (commit=%s, date=%s)\n", version, commit, date)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
