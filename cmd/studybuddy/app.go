package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/studybuddy/agent"
	"github.com/sweetpotato0/studybuddy/config"
	"github.com/sweetpotato0/studybuddy/contrib/provider/claude"
	"github.com/sweetpotato0/studybuddy/contrib/provider/gemini"
	"github.com/sweetpotato0/studybuddy/contrib/provider/openai"
	sessionmem "github.com/sweetpotato0/studybuddy/contrib/session/inmemory"
	"github.com/sweetpotato0/studybuddy/contrib/tokenizer/tiktoken"
	"github.com/sweetpotato0/studybuddy/contrib/websearch"
	"github.com/sweetpotato0/studybuddy/contrib/websearch/duckduckgo"
	"github.com/sweetpotato0/studybuddy/contrib/websearch/tavily"
	"github.com/sweetpotato0/studybuddy/history"
	"github.com/sweetpotato0/studybuddy/llm"
	"github.com/sweetpotato0/studybuddy/middleware/limiter"
	turnlogger "github.com/sweetpotato0/studybuddy/middleware/logger"
	"github.com/sweetpotato0/studybuddy/middleware/recorder"
	"github.com/sweetpotato0/studybuddy/middleware/validator"
	"github.com/sweetpotato0/studybuddy/orchestrator"
	"github.com/sweetpotato0/studybuddy/pkg/logging"
	"github.com/sweetpotato0/studybuddy/pkg/metrics"
	"github.com/sweetpotato0/studybuddy/pkg/telemetry"
	"github.com/sweetpotato0/studybuddy/quality"
	"github.com/sweetpotato0/studybuddy/router"
	"github.com/sweetpotato0/studybuddy/session"
	sessionstore "github.com/sweetpotato0/studybuddy/session/store"
	"github.com/sweetpotato0/studybuddy/study"
	studystore "github.com/sweetpotato0/studybuddy/study/store"
	"github.com/sweetpotato0/studybuddy/tool"
	"github.com/sweetpotato0/studybuddy/tool/builtin"
	"github.com/sweetpotato0/studybuddy/tool/mcp"
	"github.com/sweetpotato0/studybuddy/topic"
)

// app holds the assembled service and everything that must be released on
// shutdown.
type app struct {
	cfg     *config.Config
	orch    *orchestrator.Orchestrator
	store   study.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	closers []func(context.Context) error
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closer(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}

// newApp wires the service from cfg. On error everything acquired so far is
// released.
func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{
		cfg:     cfg,
		metrics: metrics.New(),
		logger:  logging.WithComponent("app"),
	}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    appName,
		ServiceVersion: Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Disable:        !cfg.Telemetry.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.onClose(shutdown)

	client, err := newLLMClient(ctx, cfg.LLM)
	if err != nil {
		return nil, err
	}
	if c, ok := client.(interface{ Close() error }); ok {
		a.onClose(closer(c.Close))
	}
	client = llm.WithTimeout(client, cfg.Orchestrator.CallTimeout)

	if a.store, err = newStudyStore(ctx, cfg.Store); err != nil {
		return nil, err
	}
	a.onClose(closer(a.store.Close))

	sessions, err := a.newSessions(ctx, cfg.Session)
	if err != nil {
		return nil, err
	}

	registry := tool.NewRegistry()
	a.onClose(closer(registry.Close))
	if err := registry.Register(builtin.Tools(a.store, newSearcher(cfg.Search), cfg.Search.MaxResults)...); err != nil {
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}
	for _, srv := range cfg.MCP {
		provider, err := mcp.NewProvider(ctx, srv)
		if err != nil {
			a.logger.Warn("mcp server unavailable, skipping", "name", srv.Name, "error", err)
			continue
		}
		if err := registry.AddProvider(ctx, provider); err != nil {
			_ = provider.Close()
			a.logger.Warn("mcp tools not registered", "name", srv.Name, "error", err)
		}
	}

	oc := cfg.Orchestrator
	classifier := router.NewClassifier(client,
		router.WithMinConfidence(oc.MinConfidence),
		router.WithMaxClarifications(oc.MaxClarifications),
	)

	responder := agent.New(client,
		agent.WithTools(registry),
		agent.WithTokenBudget(oc.HistoryTokenBudget, newCounter(cfg.LLM.Model)),
	)

	invoker := tool.NewInvoker(registry,
		tool.WithTimeout(oc.ToolTimeout),
		tool.WithConcurrency(oc.ToolConcurrency),
		tool.WithObserver(func(o tool.Outcome) { a.metrics.ToolCall(o.Call.Name, o.Err) }),
	)

	var rigor []topic.Topic
	for t := range topic.NewSet(oc.RigorTopics...) {
		rigor = append(rigor, t)
	}

	a.orch = orchestrator.New(classifier, responder,
		orchestrator.WithSessions(sessions),
		orchestrator.WithInvoker(invoker),
		orchestrator.WithQualityGate(quality.NewGate(client)),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithRigorTopics(rigor...),
		orchestrator.WithMaxToolIterations(oc.MaxToolIterations),
		orchestrator.WithMinVerifyLength(oc.MinVerifyLength),
		orchestrator.WithCondenseThreshold(oc.CondenseThreshold),
		orchestrator.WithMiddleware(
			turnlogger.New(nil),
			validator.NewInputValidator(),
			limiter.NewRateLimiter(cfg.RateLimit.MaxTurns, cfg.RateLimit.Window),
			recorder.New(a.store, nil),
		),
	)
	return a, nil
}

func newLLMClient(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	switch cfg.Provider {
	case config.ProviderClaude:
		c := claude.DefaultConfig(cfg.APIKey, cfg.BaseURL)
		c.Model = cfg.Model
		c.MaxTokens = int64(cfg.MaxTokens)
		c.Temperature = cfg.Temperature
		return claude.New(c), nil
	case config.ProviderGemini:
		c := gemini.DefaultConfig(cfg.APIKey)
		c.Model = cfg.Model
		c.MaxTokens = cfg.MaxTokens
		c.Temperature = float32(cfg.Temperature)
		p, err := gemini.New(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		return p, nil
	default:
		c := openai.DefaultConfig()
		c.APIKey = cfg.APIKey
		c.BaseURL = cfg.BaseURL
		c.Model = cfg.Model
		c.MaxTokens = int64(cfg.MaxTokens)
		c.Temperature = cfg.Temperature
		return openai.New(c), nil
	}
}

func newStudyStore(ctx context.Context, cfg config.StoreConfig) (study.Store, error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		s, err := studystore.NewPostgresStore(ctx, cfg.Postgres.ConnString())
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return s, nil
	case config.BackendMongo:
		s, err := studystore.NewMongoStore(ctx, &studystore.MongoConfig{
			URI:      cfg.Mongo.URI,
			Database: cfg.Mongo.Database,
		})
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		return s, nil
	default:
		return studystore.NewInMemoryStore(), nil
	}
}

func (a *app) newSessions(ctx context.Context, cfg config.SessionConfig) (*session.Manager, error) {
	var store session.Store
	switch cfg.Backend {
	case config.BackendRedis:
		rs := sessionstore.NewRedisStore(&sessionstore.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.TTL,
		})
		a.onClose(closer(rs.Close))
		if err := rs.Ping(ctx); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		store = rs
	default:
		ms := sessionmem.NewInMemoryStore(cfg.TTL)
		ms.StartJanitor(cfg.TTL / 24)
		a.onClose(closer(ms.Close))
		store = ms
	}
	return session.NewManager(session.WithStore(store)), nil
}

func newSearcher(cfg config.SearchConfig) websearch.Searcher {
	var chain websearch.Fallback
	if cfg.TavilyAPIKey != "" {
		chain = append(chain, tavily.New(&tavily.Config{APIKey: cfg.TavilyAPIKey, Timeout: cfg.Timeout}))
	}
	return append(chain, duckduckgo.New())
}

// newCounter prefers exact token counts and falls back to the estimate when
// the model has no known encoding.
func newCounter(model string) history.Counter {
	tk, err := tiktoken.New(model)
	if err != nil {
		logging.WithComponent("app").Debug("no tokenizer for model, estimating", "model", model, "error", err)
		return history.ApproxCounter{}
	}
	return tk
}
