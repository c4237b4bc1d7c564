package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/channel/gochannel"
	redisbroker "github.com/wilhg/a2ui/pkg/channel/redis"
	"github.com/wilhg/a2ui/pkg/client"
	"github.com/wilhg/a2ui/pkg/client/cache"
	"github.com/wilhg/a2ui/pkg/config"
	"github.com/wilhg/a2ui/pkg/render"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

type watchOptions struct {
	server  string
	token   string
	userID  string
	agentID string
	once    bool
}

// view is one printed surface.
type view struct {
	SurfaceID string          `json:"surfaceId"`
	Removed   bool            `json:"removed,omitempty"`
	Version   int             `json:"version,omitempty"`
	Step      surface.Step    `json:"step,omitempty"`
	Tree      *render.Element `json:"tree,omitempty"`
}

func newWatchCmd(o *rootOptions) *cobra.Command {
	w := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a user's surfaces and print each rendered change as JSON",
		Long: `watch loads a user's surfaces from the HTTP API, merges the local cache
and follows the user's channel, printing one JSON line per rendered change.
Following needs the redis broker; with --once or the memory broker it prints
the current surfaces and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if w.userID == "" || w.token == "" {
				return errors.New("--user and --token are required")
			}
			cfg, log, err := o.load(os.Stderr)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return watch(ctx, cfg, log, w, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&w.server, "server", "http://localhost:8080", "a2ui server URL")
	cmd.Flags().StringVar(&w.token, "token", "", "bearer token")
	cmd.Flags().StringVar(&w.userID, "user", "", "user whose channel to follow")
	cmd.Flags().StringVar(&w.agentID, "agent", "", "only surfaces of this agent")
	cmd.Flags().BoolVar(&w.once, "once", false, "print the current surfaces and exit")
	return cmd
}

func watch(ctx context.Context, cfg config.Config, log *slog.Logger, w *watchOptions, out io.Writer) error {
	src, err := client.NewHTTP(w.server, client.StaticToken(w.token))
	if err != nil {
		return err
	}
	var broker channel.Broker
	if cfg.Broker == config.BrokerRedis {
		broker = redisbroker.New(redisbroker.Options{Addr: cfg.RedisAddr, Log: log})
	} else {
		broker = gochannel.New(log)
		w.once = true
	}
	defer func() { _ = broker.Close() }()

	renderer := render.New(render.WithLogger(log))
	p := &printer{out: out, renderer: renderer, log: log}
	opts := []client.Option{client.WithLogger(log), client.WithOnChange(p.changed)}
	if cfg.ActionMode == config.ActionModeHTTP {
		opts = append(opts, client.WithActionPoster(src))
	}
	if cfg.CachePath != "" {
		c, err := cache.Open(ctx, cfg.CachePath, cache.WithTTL(cfg.CacheTTL))
		if err != nil {
			return err
		}
		defer func() { _ = c.Close() }()
		if n, err := c.Prune(ctx); err == nil && n > 0 {
			log.Info("pruned expired surfaces", slog.Int("count", n))
		}
		opts = append(opts, client.WithCache(c))
	}
	sy, err := client.New(store.Filter{UserID: w.userID, AgentID: w.agentID}, src, broker, opts...)
	if err != nil {
		return err
	}

	if w.once {
		if err := sy.Load(ctx); err != nil {
			return err
		}
		return p.all(ctx, sy.Surfaces())
	}
	if err := sy.Start(ctx); err != nil {
		log.Warn("initial load failed; following the channel", slog.Any("err", err))
	}
	if err := p.all(ctx, sy.Surfaces()); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

type printer struct {
	mu       sync.Mutex
	out      io.Writer
	renderer *render.Renderer
	log      *slog.Logger
}

func (p *printer) all(ctx context.Context, all client.Surfaces) error {
	ids := make([]string, 0, len(all))
	for id := range all {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		s := all[id]
		if err := p.print(ctx, id, &s); err != nil {
			return err
		}
	}
	return nil
}

func (p *printer) changed(id string, s *surface.Surface) {
	if err := p.print(context.Background(), id, s); err != nil {
		p.log.Warn("print surface", slog.String("surface_id", id), slog.Any("err", err))
	}
}

func (p *printer) print(ctx context.Context, id string, s *surface.Surface) error {
	v := view{SurfaceID: id, Removed: s == nil}
	if s != nil {
		v.Version = s.Version
		v.Step = s.Step()
		v.Tree = p.renderer.Render(ctx, *s, nil)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err = p.out.Write(append(b, '\n'))
	return err
}
