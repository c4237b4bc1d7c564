package main

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wilhg/a2ui/pkg/mcpserver"
)

func newMCPCmd(o *rootOptions) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the booking agent as MCP tools over stdio",
		Long: `mcp serves booking_init, booking_action and list_surfaces over stdio
for a single user. Logs go to stderr; stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, log, err := o.load(os.Stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			s, err := mcpserver.New(a.dispatcher, a.store, userID, version, mcpserver.WithLogger(log))
			if err != nil {
				return err
			}
			return s.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user the tools act for")
	return cmd
}
