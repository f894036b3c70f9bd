package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LLM provider names.
const (
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// Backend names shared by the session and study stores.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Config is the root configuration of the study buddy service.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	LLM          LLMConfig          `yaml:"llm"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Session      SessionConfig      `yaml:"session"`
	Store        StoreConfig        `yaml:"store"`
	Search       SearchConfig       `yaml:"search"`
	RateLimit    RateLimitConfig    `yaml:"rate_limit"`
	Telemetry    TelemetryConfig    `yaml:"telemetry"`
	Log          LogConfig          `yaml:"log"`
	MCP          []MCPServerConfig  `yaml:"mcp"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// LLMConfig selects and configures the completion backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// OrchestratorConfig holds the deployment parameters of the turn state machine.
type OrchestratorConfig struct {
	MaxToolIterations  int           `yaml:"max_tool_iterations"`
	CallTimeout        time.Duration `yaml:"call_timeout"`
	ToolTimeout        time.Duration `yaml:"tool_timeout"`
	ToolConcurrency    int           `yaml:"tool_concurrency"`
	MinConfidence      float64       `yaml:"min_confidence"`
	MaxClarifications  int           `yaml:"max_clarifications"`
	RigorTopics        []string      `yaml:"rigor_topics"`
	MinVerifyLength    int           `yaml:"min_verify_length"`
	CondenseThreshold  int           `yaml:"condense_threshold"`
	HistoryTokenBudget int           `yaml:"history_token_budget"`
}

// SessionConfig configures the session context store.
type SessionConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// StoreConfig configures the notes/solutions/history store.
type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	Postgres PostgresConfig `yaml:"postgres"`
	Mongo    MongoConfig    `yaml:"mongo"`
}

// PostgresConfig holds PostgreSQL connection settings. DSN wins when set.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString renders the lib/pq connection string.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// MongoConfig holds MongoDB connection settings.
type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SearchConfig configures the web_search tool.
type SearchConfig struct {
	TavilyAPIKey string        `yaml:"tavily_api_key"`
	MaxResults   int           `yaml:"max_results"`
	Timeout      time.Duration `yaml:"timeout"`
}

// RateLimitConfig bounds turns per session key.
type RateLimitConfig struct {
	MaxTurns int           `yaml:"max_turns"`
	Window   time.Duration `yaml:"window"`
}

// TelemetryConfig toggles tracing.
type TelemetryConfig struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// LogConfig selects the level and format of the shared logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MCPServerConfig declares a remote MCP tool server reached by command or URL.
type MCPServerConfig struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
	URL     string   `yaml:"url"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   2048,
		},
		Orchestrator: OrchestratorConfig{
			MaxToolIterations:  5,
			CallTimeout:        30 * time.Second,
			ToolTimeout:        20 * time.Second,
			ToolConcurrency:    4,
			MinConfidence:      0.65,
			MaxClarifications:  2,
			RigorTopics:        []string{"langgraph"},
			MinVerifyLength:    200,
			CondenseThreshold:  1200,
			HistoryTokenBudget: 3000,
		},
		Session: SessionConfig{
			Backend: BackendMemory,
			TTL:     24 * time.Hour,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				DB:     1,
				Prefix: "studybuddy:session:",
			},
		},
		Store: StoreConfig{
			Backend: BackendMemory,
			Postgres: PostgresConfig{
				Host:    "localhost",
				Port:    5432,
				User:    "postgres",
				DBName:  "studybuddy",
				SSLMode: "disable",
			},
			Mongo: MongoConfig{
				URI:      "mongodb://localhost:27017",
				Database: "studybuddy",
			},
		},
		Search: SearchConfig{
			MaxResults: 5,
			Timeout:    15 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxTurns: 30,
			Window:   time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the optional YAML file at path, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("STUDYBUDDY_ADDR", c.Server.Addr)

	c.LLM.Provider = strings.ToLower(getEnv("STUDYBUDDY_LLM_PROVIDER", c.LLM.Provider))
	c.LLM.Model = getEnv("STUDYBUDDY_LLM_MODEL", c.LLM.Model)
	c.LLM.BaseURL = getEnv("STUDYBUDDY_LLM_BASE_URL", c.LLM.BaseURL)
	if c.LLM.APIKey == "" {
		switch c.LLM.Provider {
		case ProviderClaude:
			c.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderGemini:
			c.LLM.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	o := &c.Orchestrator
	o.MaxToolIterations = getEnvInt("STUDYBUDDY_MAX_TOOL_ITERATIONS", o.MaxToolIterations)
	o.CallTimeout = getEnvDuration("STUDYBUDDY_CALL_TIMEOUT", o.CallTimeout)
	o.ToolTimeout = getEnvDuration("STUDYBUDDY_TOOL_TIMEOUT", o.ToolTimeout)
	if v := os.Getenv("STUDYBUDDY_RIGOR_TOPICS"); v != "" {
		o.RigorTopics = splitList(v)
	}

	c.Session.Backend = getEnv("STUDYBUDDY_SESSION_BACKEND", c.Session.Backend)
	c.Session.TTL = getEnvDuration("STUDYBUDDY_SESSION_TTL", c.Session.TTL)
	c.Session.Redis.Addr = getEnv("REDIS_ADDR", c.Session.Redis.Addr)
	c.Session.Redis.Password = getEnv("REDIS_PASSWORD", c.Session.Redis.Password)
	c.Session.Redis.DB = getEnvInt("REDIS_DB", c.Session.Redis.DB)

	c.Store.Backend = getEnv("STUDYBUDDY_STORE_BACKEND", c.Store.Backend)
	c.Store.Postgres.DSN = getEnv("STUDYBUDDY_POSTGRES_DSN", c.Store.Postgres.DSN)
	c.Store.Postgres.Host = getEnv("POSTGRES_HOST", c.Store.Postgres.Host)
	c.Store.Postgres.Port = getEnvInt("POSTGRES_PORT", c.Store.Postgres.Port)
	c.Store.Postgres.User = getEnv("POSTGRES_USER", c.Store.Postgres.User)
	c.Store.Postgres.Password = getEnv("POSTGRES_PASSWORD", c.Store.Postgres.Password)
	c.Store.Postgres.DBName = getEnv("POSTGRES_DB", c.Store.Postgres.DBName)
	c.Store.Mongo.URI = getEnv("MONGODB_URI", c.Store.Mongo.URI)
	c.Store.Mongo.Database = getEnv("MONGODB_DB", c.Store.Mongo.Database)

	c.Search.TavilyAPIKey = getEnv("TAVILY_API_KEY", c.Search.TavilyAPIKey)

	c.Telemetry.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", c.Telemetry.OTLPEndpoint)
	if c.Telemetry.OTLPEndpoint != "" {
		c.Telemetry.Enabled = true
	}

	c.Log.Level = strings.ToLower(getEnv("STUDYBUDDY_LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("STUDYBUDDY_LOG_FORMAT", c.Log.Format))
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	v := NewValidator()
	v.RequireNonEmpty("server.addr", c.Server.Addr)
	v.Merge("llm", llmValidator(c.LLM))
	v.Merge("orchestrator", orchestratorValidator(c.Orchestrator))

	v.ValidateOneOf("session.backend", c.Session.Backend, BackendMemory, BackendRedis)
	v.RequirePositiveDuration("session.ttl", c.Session.TTL)
	if c.Session.Backend == BackendRedis {
		v.Merge("session.redis", redisValidator(c.Session.Redis))
	}

	v.ValidateOneOf("store.backend", c.Store.Backend, BackendMemory, BackendPostgres, BackendMongo)
	switch c.Store.Backend {
	case BackendPostgres:
		v.Merge("store.postgres", postgresValidator(c.Store.Postgres))
	case BackendMongo:
		v.Merge("store.mongo", mongoValidator(c.Store.Mongo))
	}

	v.ValidateRange("search.maxResults", c.Search.MaxResults, 1, 20)
	v.Merge("rateLimit", rateLimitValidator(c.RateLimit))
	v.ValidateOneOf("log.level", c.Log.Level, "debug", "info", "warn", "error")
	v.ValidateOneOf("log.format", c.Log.Format, "json", "text")
	for i, srv := range c.MCP {
		if srv.Command == "" && srv.URL == "" {
			v.RequireNonEmpty(fmt.Sprintf("mcp[%d].command", i), srv.Command)
		}
	}
	return v.Error()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
