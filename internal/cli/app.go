package cli

import (
	"context"
	"fmt"

	"github.com/Kavirubc/gh-triage/internal/cache"
	"github.com/Kavirubc/gh-triage/internal/compose"
	"github.com/Kavirubc/gh-triage/internal/config"
	"github.com/Kavirubc/gh-triage/internal/cost"
	"github.com/Kavirubc/gh-triage/internal/embedding"
	"github.com/Kavirubc/gh-triage/internal/engine"
	"github.com/Kavirubc/gh-triage/internal/events"
	"github.com/Kavirubc/gh-triage/internal/evidence"
	"github.com/Kavirubc/gh-triage/internal/github"
	"github.com/Kavirubc/gh-triage/internal/llm"
	"github.com/Kavirubc/gh-triage/internal/logger"
	"github.com/Kavirubc/gh-triage/internal/pipeline"
	"github.com/Kavirubc/gh-triage/internal/rules"
	"github.com/Kavirubc/gh-triage/internal/tracer"
	"github.com/Kavirubc/gh-triage/internal/triage"
	"github.com/Kavirubc/gh-triage/internal/vectordb"
)

// loadConfig reads .env, finds and parses the config file and validates it
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}

	cfgPath := config.FindConfigPath(cfgFile)
	if cfgPath == "" {
		return nil, fmt.Errorf("config file not found (run 'gh-triage config init')")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			printWarning("config error: %v", e)
		}
		return nil, fmt.Errorf("invalid configuration")
	}
	return cfg, nil
}

// app holds every long-lived component of one command invocation
type app struct {
	cfg        *config.Config
	log        *logger.ZapLogger
	gh         *github.Client
	embedder   embedding.Provider
	store      vectordb.Store
	reasoner   llm.Provider
	locker     *cache.RedisLocker
	indexer    *evidence.Indexer
	engine     *engine.Engine
	stopTracer func(context.Context) error
}

// newApp wires the engine from config
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{
		cfg:        cfg,
		log:        logger.NewZapLogger(cfg.Logging.File, cfg.Logging.Production),
		stopTracer: tracer.InitTracer(&cfg.Telemetry),
	}

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	var err error
	if a.gh, err = github.NewClient(cfg.Timeouts.GitHub); err != nil {
		return nil, err
	}
	if a.embedder, err = embedding.NewFallbackProvider(ctx, &cfg.Embedding, a.log); err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if a.store, err = vectordb.NewStore(&cfg.VectorStore, a.log); err != nil {
		return nil, fmt.Errorf("failed to create vector store: %w", err)
	}
	if a.reasoner, err = llm.NewProvider(ctx, &cfg.LLM, &cfg.Timeouts); err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}

	evaluator, err := rules.NewEvaluator(&cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("failed to build rules: %w", err)
	}

	accountant := cost.NewAccountant(cfg.Cost)
	gatherer := evidence.NewGatherer(a.embedder, a.store, evidence.Options{
		K:                cfg.Triage.EvidenceK,
		EmbeddingTimeout: cfg.Timeouts.Embedding,
		QueryTimeout:     cfg.Timeouts.VectorQuery,
	}, a.log)
	a.indexer = evidence.NewIndexer(a.embedder, a.store, 50, dryRun, a.log)

	// Responses are drafted by the compose step, not by the synthesizer
	synthesizer := triage.NewSynthesizer(cfg, a.reasoner, accountant, nil, a.log)

	pipe, err := pipeline.NewBuilder(cfg, pipeline.Deps{
		Rules:       evaluator,
		Gatherer:    gatherer,
		Synthesizer: synthesizer,
		Composer:    compose.New(cfg.Triage.Signature),
		Indexer:     a.indexer,
		Log:         a.log,
	}, dryRun).BuildFromConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	analyses, err := a.openCache(ctx, accountant)
	if err != nil {
		return nil, err
	}

	publisher, err := events.NewPublisher(&cfg.Events)
	if err != nil {
		a.log.Warn("events", "Event publishing disabled", map[string]interface{}{"error": err.Error()})
		publisher = events.NopPublisher{}
	}

	a.engine = engine.New(cfg, engine.Deps{
		Issues:     a.gh,
		Applier:    github.NewExecutor(a.gh, dryRun, a.log),
		Analyzer:   pipe,
		Cache:      analyses,
		Searcher:   gatherer,
		Accountant: accountant,
		Publisher:  publisher,
		Log:        a.log,
	})

	ok = true
	return a, nil
}

func (a *app) openCache(ctx context.Context, accountant *cost.Accountant) (*cache.AnalysisCache, error) {
	store, err := cache.OpenSQLiteStore(a.cfg.Cache.Path)
	if err != nil {
		return nil, err
	}

	opts := cache.Options{HotTTL: a.cfg.Cache.HotTTL, LockTTL: a.cfg.Cache.LockTTL}
	if a.cfg.Cache.RedisURL != "" {
		locker, err := cache.NewRedisLocker(ctx, a.cfg.Cache.RedisURL)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.locker = locker
		opts.Remote = locker
	}

	return cache.New(store, accountant, opts, a.log), nil
}

// corpusIndexer builds the indexer used by the index command
func (a *app) corpusIndexer() *engine.CorpusIndexer {
	return engine.NewCorpusIndexer(a.gh, a.indexer, a.store, a.cfg.Embedding.Primary.Dimensions, dryRun, a.log)
}

// Close releases everything newApp opened, in reverse order
func (a *app) Close() {
	if a.engine != nil {
		_ = a.engine.Close()
	}
	if a.locker != nil {
		_ = a.locker.Close()
	}
	if a.reasoner != nil {
		_ = a.reasoner.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.gh != nil {
		_ = a.gh.Close()
	}
	_ = a.stopTracer(context.Background())
	_ = a.log.Sync()
}
