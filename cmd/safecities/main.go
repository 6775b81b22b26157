package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/safecities/safecities/internal/api"
	"github.com/safecities/safecities/internal/audit"
	"github.com/safecities/safecities/internal/cache"
	"github.com/safecities/safecities/internal/chatbot"
	"github.com/safecities/safecities/internal/config"
	"github.com/safecities/safecities/internal/documents"
	"github.com/safecities/safecities/internal/inference"
	"github.com/safecities/safecities/internal/logging"
	"github.com/safecities/safecities/internal/memory"
	"github.com/safecities/safecities/internal/models"
	"github.com/safecities/safecities/internal/scenario"
	"github.com/safecities/safecities/internal/simulation"
	"github.com/safecities/safecities/internal/tokenizer"
	"github.com/safecities/safecities/internal/watcher"
)

const version = "0.3.0"

const offlineDimensions = 384

// app holds everything one session needs, plus what must be closed
type app struct {
	cfg     config.Config
	bot     *chatbot.Orchestrator
	store   *documents.Store
	auditDB *audit.SQLite
	watch   *watcher.Dir
	logger  *slog.Logger
	closers []func()
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config")
	promptsPath := flag.String("prompts", "config/prompts.yaml", "path to the YAML prompt templates")
	offline := flag.Bool("offline", false, "embed with the local hash embedder instead of the provider")
	serve := flag.Bool("serve", false, "run the HTTP API instead of the terminal chat")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx, *configPath, *promptsPath, *offline)
	if err != nil {
		fmt.Fprintf(os.Stderr, "safecities: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	if a.watch != nil {
		go a.watch.Run(ctx)
	}

	if *serve {
		err = a.serve(ctx)
	} else {
		printBanner()
		err = a.repl(ctx, os.Stdin, os.Stdout, true)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("exiting", "err", err)
		os.Exit(1)
	}
}

func setup(ctx context.Context, configPath, promptsPath string, offline bool) (*app, error) {
	cfg, err := config.Load(configPath, true)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	slog.SetDefault(logger)
	for _, path := range []string{configPath, promptsPath} {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Info("file not found, using defaults", "path", path)
		}
	}

	prompts, err := config.LoadPrompts(promptsPath, true)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	var tok tokenizer.Tokenizer = tokenizer.Runes{}
	if tk, err := tokenizer.ForModel(cfg.Models.ChatModel); err == nil {
		tok = tk
	} else {
		logger.Warn("tokenizer unavailable, counting runes", "model", cfg.Models.ChatModel, "err", err)
	}
	counter := tokenizer.NewCounter(tok)

	timeout, err := cfg.Models.TimeoutDuration()
	if err != nil {
		return nil, err
	}
	client := inference.NewClient(&inference.Config{
		Provider:       inference.Provider(cfg.Models.Provider),
		BaseURL:        cfg.Models.BaseURL,
		APIKey:         cfg.Models.APIKey,
		ChatModel:      cfg.Models.ChatModel,
		EmbeddingModel: cfg.Models.EmbeddingModel,
		Temperature:    cfg.Models.Temperature,
		Timeout:        timeout,
	})

	limiter := inference.NewRateLimiter()
	limiter.RegisterService(inference.ServiceCompletion, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)
	limiter.RegisterService(inference.ServiceEmbedding, cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst)

	var embedder inference.Embedder = client
	embedModel := cfg.Models.EmbeddingModel
	if offline {
		embedder = inference.NewHashEmbedder(offlineDimensions)
		embedModel = fmt.Sprintf("hash-%d", offlineDimensions)
	}
	limited := inference.NewLimited(embedder, client, limiter)

	embedder = limited
	store, err := openCache(cfg)
	if err != nil {
		logger.Warn("embedding cache disabled", "backend", cfg.Cache.Backend, "err", err)
	} else if store != nil {
		embedder = cache.NewEmbedder(limited, store, embedModel, logger)
		a.closers = append(a.closers, func() { store.Close() })
	}

	pool := inference.NewPool(embedder, &inference.PoolConfig{
		Workers:       cfg.Ingest.Workers,
		QueueSize:     256,
		MaxConcurrent: cfg.Ingest.Workers,
	})
	a.closers = append(a.closers, func() { pool.Shutdown(5 * time.Second) })

	a.store = documents.NewStore(embedder, counter,
		documents.WithPool(pool),
		documents.WithMaxEmbedTokens(cfg.Models.EmbeddingMaxTokens),
		documents.WithLogger(logger),
	)
	a.loadDocuments(ctx)

	registry := scenario.LoadRegistry(cfg.Paths.SimulationTemplates, logger)
	engine := simulation.NewEngine(limited, registry, logger)

	botCfg := chatbot.DefaultConfig()
	botCfg.Prompts = prompts
	botCfg.EventPlanning = cfg.EventPlanning
	botCfg.Simulation = cfg.Simulation
	botCfg.Counter = counter
	botCfg.Logger = logger

	if cfg.Paths.AuditDB != "" {
		db, err := audit.NewSQLite(cfg.Paths.AuditDB)
		if err != nil {
			logger.Warn("audit log disabled", "path", cfg.Paths.AuditDB, "err", err)
		} else {
			a.auditDB = db
			botCfg.Auditor = db
			a.closers = append(a.closers, func() { db.Close() })
		}
	}

	a.bot = chatbot.NewOrchestrator(a.store, memory.NewConversation(cfg.Memory.MaxMessages), engine, limited, botCfg)

	if cfg.Ingest.Watch {
		if err := a.startWatcher(); err != nil {
			logger.Warn("document watcher disabled", "err", err)
		}
	}
	return a, nil
}

// openCache returns nil, nil when caching is off
func openCache(cfg config.Config) (cache.Store, error) {
	switch cfg.Cache.Backend {
	case "", "none":
		return nil, nil
	case "memory":
		return cache.NewMemory(), nil
	case "badger":
		dir := cfg.Paths.CacheDir
		if dir == "" {
			dir = "~/.safecities/embeddings"
		}
		return cache.NewBadger(dir)
	case "redis":
		ttl, err := cfg.Cache.TTLDuration()
		if err != nil {
			return nil, err
		}
		return cache.NewRedis(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
			TTL:      ttl,
		})
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}
}

// loadDocuments prefers the embeddings snapshot and falls back to the
// document directories
func (a *app) loadDocuments(ctx context.Context) {
	if path := a.cfg.Paths.Embeddings; path != "" {
		if err := a.store.LoadFromFile(path); err == nil {
			return
		}
	}
	a.store.LoadFromDirectory(ctx, a.cfg.Paths.SVAFramework, models.SourceSVAFramework)
	a.store.LoadFromDirectory(ctx, a.cfg.Paths.GoriziaEvent, models.SourceGoriziaEvent)
}

func (a *app) startWatcher() error {
	d, err := watcher.NewDir(a.store.Extensions(), a.logger)
	if err != nil {
		return err
	}
	for dir, sourceType := range map[string]models.SourceType{
		a.cfg.Paths.SVAFramework: models.SourceSVAFramework,
		a.cfg.Paths.GoriziaEvent: models.SourceGoriziaEvent,
	} {
		if err := d.Add(dir, sourceType); err != nil {
			a.logger.Warn("directory not watched", "dir", dir, "err", err)
		}
	}
	a.watch = d
	a.closers = append(a.closers, func() { d.Close() })
	return nil
}

// ingestChanges applies file changes seen since the last query
func (a *app) ingestChanges(ctx context.Context) {
	if a.watch == nil {
		return
	}
	if events := a.watch.Drain(); len(events) > 0 {
		watcher.Apply(ctx, events, a.store, a.logger)
	}
}

func (a *app) serve(ctx context.Context) error {
	opts := api.Options{
		Addr:        a.cfg.Server.Listen,
		BeforeQuery: a.ingestChanges,
		Logger:      a.logger,
	}
	if a.auditDB != nil {
		opts.Stats = a.auditDB
	}
	return api.NewServer(a.bot, opts).Serve(ctx)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func printBanner() {
	fmt.Printf(`
╔═════════════════════════════════════════════════════════╗
║          Safe Cities Event Safety Assistant %s       ║
║      SVA framework · event planning · simulations       ║
╚═════════════════════════════════════════════════════════╝

`, version)
}
