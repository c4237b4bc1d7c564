package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/wilhg/a2ui/pkg/adapters/embedding"
	_ "github.com/wilhg/a2ui/pkg/adapters/embedding/fake"
	_ "github.com/wilhg/a2ui/pkg/adapters/embedding/gemini"
	_ "github.com/wilhg/a2ui/pkg/adapters/embedding/openai"
	"github.com/wilhg/a2ui/pkg/adapters/llm"
	_ "github.com/wilhg/a2ui/pkg/adapters/llm/gemini"
	_ "github.com/wilhg/a2ui/pkg/adapters/llm/openai"
	"github.com/wilhg/a2ui/pkg/adapters/rooms/daily"
	"github.com/wilhg/a2ui/pkg/adapters/rooms/fake"
	"github.com/wilhg/a2ui/pkg/adapters/vectorstore"
	_ "github.com/wilhg/a2ui/pkg/adapters/vectorstore/chromadb"
	_ "github.com/wilhg/a2ui/pkg/adapters/vectorstore/memory"
	"github.com/wilhg/a2ui/pkg/agent"
	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/booking/memdir"
	"github.com/wilhg/a2ui/pkg/booking/semantic"
	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/channel/gochannel"
	redisbroker "github.com/wilhg/a2ui/pkg/channel/redis"
	"github.com/wilhg/a2ui/pkg/config"
	"github.com/wilhg/a2ui/pkg/narrate"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/store/memstore"
	"github.com/wilhg/a2ui/pkg/store/sqlstore"
	"github.com/wilhg/a2ui/pkg/telemetry"
)

// defaultTokenizerModel sizes prompts when the configured model has no
// known tokenizer.
const defaultTokenizerModel = "gpt-4o"

// app is the wired server-side graph shared by serve, mcp and eval.
type app struct {
	cfg        config.Config
	log        *slog.Logger
	store      store.Store
	dir        booking.Directory
	broker     channel.Broker
	reporter   *telemetry.Async
	audit      *audit.Logger
	agent      *booking.Agent
	dispatcher *agent.Dispatcher

	closers []func() error
}

type providerUpserter interface {
	UpsertProvider(ctx context.Context, p booking.Provider) error
}

func buildApp(ctx context.Context, cfg config.Config, log *slog.Logger) (a *app, err error) {
	a = &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if err = a.openStore(ctx); err != nil {
		return nil, err
	}
	if err = a.openSemantic(ctx); err != nil {
		return nil, err
	}
	if err = a.seed(ctx); err != nil {
		return nil, err
	}
	if err = a.openBroker(ctx); err != nil {
		return nil, err
	}
	narrator, err := newNarrator(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	rooms, err := newRooms(cfg)
	if err != nil {
		return nil, err
	}

	a.reporter = telemetry.NewAsync(log, 256)
	a.closers = append(a.closers, func() error { a.reporter.Close(); return nil })
	a.audit = audit.New(log, audit.WithSink(a.store))

	opts := []booking.Option{
		booking.WithBroker(a.broker),
		booking.WithNarrator(narrator),
		booking.WithReporter(a.reporter),
		booking.WithAudit(a.audit),
		booking.WithLogger(log),
	}
	if rooms != nil {
		opts = append(opts, booking.WithRooms(rooms))
	}
	a.agent = booking.New(a.store, a.store, a.dir, opts...)
	reg, err := agent.NewRegistry(a.agent)
	if err != nil {
		return nil, err
	}
	a.dispatcher = agent.NewDispatcher(reg,
		agent.WithReporter(a.reporter),
		agent.WithAudit(a.audit),
		agent.WithLogger(log),
	)
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if a.cfg.DatabaseURL == config.MemoryDatabase {
		a.store = memstore.New()
		a.dir = memdir.New()
		return nil
	}
	st, err := sqlstore.Open(ctx, a.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, st.Close)
	if err := st.Migrate(ctx); err != nil {
		return err
	}
	a.store, a.dir = st, st
	return nil
}

// openSemantic wraps the directory with embedding search when an embedder is
// configured and indexes the providers it already holds.
func (a *app) openSemantic(ctx context.Context) error {
	if a.cfg.Embedder == "" {
		return nil
	}
	e, err := embedding.New(ctx, a.cfg.Embedder, map[string]any{"model": a.cfg.EmbeddingModel})
	if err != nil {
		return err
	}
	kind := a.cfg.VectorStore
	if kind == "" {
		kind = config.VectorStoreMemory
	}
	index, err := vectorstore.New(ctx, kind, map[string]any{"base_url": a.cfg.ChromaDBURL})
	if err != nil {
		return err
	}
	dir := semantic.New(a.dir, e, index, semantic.WithLogger(a.log))
	n, err := dir.Reindex(ctx)
	if err != nil {
		return fmt.Errorf("index providers: %w", err)
	}
	a.log.Info("semantic search enabled", slog.String("embedder", e.Name()), slog.String("vector_store", kind), slog.Int("indexed", n))
	a.dir = dir
	return nil
}

// seed loads the provider seed file, if configured, into the directory.
func (a *app) seed(ctx context.Context) error {
	if a.cfg.ProviderSeed == "" {
		return nil
	}
	data, err := os.ReadFile(a.cfg.ProviderSeed)
	if err != nil {
		return fmt.Errorf("read provider seed: %w", err)
	}
	providers, err := booking.LoadProviders(data)
	if err != nil {
		return err
	}
	up, ok := a.dir.(providerUpserter)
	if !ok {
		return fmt.Errorf("directory %T cannot be seeded", a.dir)
	}
	for _, p := range providers {
		if err := up.UpsertProvider(ctx, p); err != nil {
			return err
		}
	}
	a.log.Info("providers seeded", slog.Int("count", len(providers)), slog.String("file", a.cfg.ProviderSeed))
	return nil
}

func (a *app) openBroker(ctx context.Context) error {
	switch a.cfg.Broker {
	case config.BrokerRedis:
		b := redisbroker.New(redisbroker.Options{Addr: a.cfg.RedisAddr, Log: a.log})
		a.closers = append(a.closers, b.Close)
		if err := b.Ping(ctx); err != nil {
			return err
		}
		a.broker = b
	default:
		b := gochannel.New(a.log)
		a.closers = append(a.closers, b.Close)
		a.broker = b
	}
	return nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func newNarrator(ctx context.Context, cfg config.Config, log *slog.Logger) (narrate.Narrator, error) {
	prompts := narrate.DefaultPrompts()
	if cfg.PromptsFile != "" {
		data, err := os.ReadFile(cfg.PromptsFile)
		if err != nil {
			return nil, fmt.Errorf("read prompts: %w", err)
		}
		if _, err := prompts.LoadYAML(data); err != nil {
			return nil, err
		}
	}
	tpl := narrate.NewTemplates(prompts)
	if cfg.Narrator == "template" {
		return tpl, nil
	}
	model, err := llm.New(ctx, cfg.Narrator, map[string]any{"model": cfg.NarratorLLM})
	if err != nil {
		return nil, err
	}
	tokenizer := cfg.NarratorLLM
	if tokenizer == "" {
		tokenizer = defaultTokenizerModel
	}
	est, err := narrate.NewTikTokenEstimator(tokenizer)
	if err != nil {
		log.Warn("no tokenizer for model; counting runes", slog.String("model", tokenizer), slog.Any("err", err))
		est = narrate.RuneEstimator
	}
	return narrate.NewModel(tpl, model,
		narrate.WithBudget(narrate.NewBudget(est, narrate.DefaultPromptTokens)),
		narrate.WithLogger(log),
	), nil
}

func newRooms(cfg config.Config) (booking.RoomProvisioner, error) {
	switch cfg.Rooms {
	case config.RoomsFake:
		return fake.New(), nil
	case config.RoomsDaily:
		return daily.New(cfg.RoomsAPIURL, cfg.RoomsAPIKey)
	default:
		if cfg.RoomsAPIKey == "" {
			return nil, nil
		}
		return daily.New(cfg.RoomsAPIURL, cfg.RoomsAPIKey)
	}
}
