package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/leadflow/internal/agents"
	"github.com/wolfman30/leadflow/internal/api/router"
	appconfig "github.com/wolfman30/leadflow/internal/config"
	"github.com/wolfman30/leadflow/internal/conversation"
	"github.com/wolfman30/leadflow/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/leadflow/internal/http/middleware"
	"github.com/wolfman30/leadflow/internal/leads"
	"github.com/wolfman30/leadflow/internal/observability/metrics"
	"github.com/wolfman30/leadflow/internal/worker"
	"github.com/wolfman30/leadflow/pkg/logging"
)

// App is the assembled API process.
type App struct {
	Handler   http.Handler
	Pipeline  *conversation.Pipeline
	Knowledge *conversation.KnowledgeBase
	Providers *conversation.ProviderSet
	Runner    *worker.Runner
	Limiter   *httpmiddleware.RateLimiter

	pool   *pgxpool.Pool
	redis  *redis.Client
	closer func()
	logger *logging.Logger
}

// Stores groups the persistence backends the pipeline needs.
type Stores struct {
	Agents       agents.Repository
	Leads        leads.Repository
	Conversation conversation.Store
	Knowledge    conversation.KnowledgeStore
}

// BuildStores picks Postgres when a pool is given, in-memory otherwise.
// Agent lookups are cached in Redis when a client is available.
func BuildStores(pool *pgxpool.Pool, redisClient *redis.Client, cacheTTL time.Duration, logger *logging.Logger) Stores {
	var s Stores
	var agentRepo agents.Repository
	if pool != nil {
		agentRepo = agents.NewPostgresRepository(pool)
		s.Leads = leads.NewPostgresRepository(pool)
		s.Conversation = conversation.NewPostgresStore(pool)
		s.Knowledge = conversation.NewPostgresKnowledgeStore(pool)
	} else {
		agentRepo = agents.NewInMemoryRepository()
		s.Leads = leads.NewInMemoryRepository()
		s.Conversation = conversation.NewMemoryStore()
		s.Knowledge = conversation.NewMemoryKnowledgeStore()
	}
	if redisClient != nil {
		agentRepo = agents.NewCachedRepository(agentRepo, redisClient, cacheTTL, logger.Component("agents"))
	}
	s.Agents = agentRepo
	return s
}

// New wires config into a ready-to-serve App. reg receives the pipeline
// metrics and backs /metrics.
func New(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	app := &App{logger: logger, closer: func() {}}

	if !cfg.UseMemoryStore {
		pool, err := ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		app.pool = pool
	}
	if app.pool == nil {
		logger.Warn("using in-memory stores; data is lost on restart")
	}
	app.redis = BuildRedisClient(ctx, cfg, logger, true)

	providers, closeProviders, err := BuildProviders(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Providers = providers
	app.closer = closeProviders

	mediaArchive, err := BuildMediaArchive(ctx, cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	stores := BuildStores(app.pool, app.redis, cfg.AgentCacheTTL, logger)
	registry := BuildChannelRegistry(cfg)
	pipelineMetrics := metrics.NewPipelineMetrics(reg)

	app.Knowledge = conversation.NewKnowledgeBase(stores.Knowledge, cfg.KnowledgeTopK, logger)
	orchestrator, err := conversation.NewOrchestrator(conversation.OrchestratorConfig{
		Providers:     providers,
		History:       conversation.NewHistoryBuilder(stores.Conversation, app.redis, cfg.HistoryMessageLimit, cfg.HistoryTokenBudget, logger),
		Knowledge:     app.Knowledge,
		Leads:         stores.Leads,
		MediaMaxBytes: cfg.MediaMaxBytes,
		ModelTimeout:  cfg.ModelTimeout,
		Logger:        logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("bootstrap: orchestrator: %w", err)
	}

	var replyArchive conversation.MediaArchive
	if mediaArchive != nil {
		replyArchive = mediaArchive
	}
	app.Pipeline = conversation.NewPipeline(
		conversation.NewResolver(stores.Agents, stores.Leads, stores.Conversation, cfg.DefaultLeadStatus, logger),
		orchestrator,
		conversation.NewDispatcher(stores.Conversation, registry, replyArchive, logger),
		registry,
		pipelineMetrics,
		logger,
	)
	app.Runner = worker.NewRunner(cfg.TaskConcurrency, cfg.TaskTimeout, logger, pipelineMetrics)

	if cfg.WebhookRatePerSecond > 0 {
		app.Limiter = httpmiddleware.NewRateLimiter(cfg.WebhookRatePerSecond, cfg.WebhookBurst)
	}

	app.Handler = router.New(&router.Config{
		Logger: logger,
		Webhooks: handlers.NewWebhookHandler(handlers.WebhookConfig{
			Registry:        registry,
			Pipeline:        app.Pipeline,
			Runner:          app.Runner,
			MetaVerifyToken: cfg.MetaVerifyToken,
			MetaAppSecret:   cfg.MetaAppSecret,
			Logger:          logger,
		}),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		WebhookLimiter: app.Limiter,
	})
	return app, nil
}

// Shutdown drains background tasks, then releases clients.
func (a *App) Shutdown(ctx context.Context) error {
	var err error
	if a.Runner != nil {
		err = a.Runner.Shutdown(ctx)
	}
	a.Close()
	return err
}

// Close releases connections without waiting for tasks.
func (a *App) Close() {
	if a.closer != nil {
		a.closer()
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("failed to close redis", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
