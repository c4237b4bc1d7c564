package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wilhg/a2ui/pkg/agent"
	"github.com/wilhg/a2ui/pkg/auth"
	"github.com/wilhg/a2ui/pkg/config"
	"github.com/wilhg/a2ui/pkg/httpapi"
	a2otel "github.com/wilhg/a2ui/pkg/otel"
)

const shutdownGrace = 10 * time.Second

func newServeCmd(o *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the channel listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := o.load(os.Stdout)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides A2UI_ADDR)")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	shutdownOtel, err := a2otel.Init(ctx, a2otel.Config{ServiceName: "a2ui", ServiceVersion: version, UseStdout: cfg.OtelStdout, Writer: os.Stderr})
	if err != nil {
		return err
	}
	defer func() { _ = shutdownOtel(context.Background()) }()

	verifier, err := auth.NewVerifier(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		return err
	}
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	opts := []httpapi.Option{httpapi.WithLogger(log)}
	if cfg.ActionMode == config.ActionModeBroadcast {
		l := agent.NewListener(a.broker, a.store, a.dispatcher, log)
		if err := l.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = l.Close() }()
		opts = append(opts, httpapi.WithListener(l))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.New(a.dispatcher, a.store, verifier, opts...).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("a2ui listening",
		slog.String("addr", cfg.Addr),
		slog.String("broker", cfg.Broker),
		slog.String("action_mode", cfg.ActionMode),
		slog.String("version", version))

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shCtx)
}
