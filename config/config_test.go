package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default() should validate: %v", err)
	}
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "studybuddy.yaml")
	raw := `
llm:
  provider: claude
  model: claude-3-5-haiku-latest
orchestrator:
  max_tool_iterations: 3
  call_timeout: 10s
  rigor_topics: [langgraph, python]
session:
  ttl: 2h
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-key")
	t.Setenv("STUDYBUDDY_MAX_TOOL_ITERATIONS", "7")
	t.Setenv("TAVILY_API_KEY", "tvly-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.Provider != ProviderClaude || cfg.LLM.APIKey != "anthropic-key" {
		t.Errorf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Orchestrator.MaxToolIterations != 7 {
		t.Errorf("env override not applied, got %d", cfg.Orchestrator.MaxToolIterations)
	}
	if cfg.Orchestrator.CallTimeout != 10*time.Second {
		t.Errorf("CallTimeout = %s, want 10s", cfg.Orchestrator.CallTimeout)
	}
	if len(cfg.Orchestrator.RigorTopics) != 2 {
		t.Errorf("RigorTopics = %v", cfg.Orchestrator.RigorTopics)
	}
	if cfg.Session.TTL != 2*time.Hour {
		t.Errorf("Session.TTL = %s, want 2h", cfg.Session.TTL)
	}
	if cfg.Search.TavilyAPIKey != "tvly-key" {
		t.Errorf("Search.TavilyAPIKey = %q", cfg.Search.TavilyAPIKey)
	}
	if cfg.Orchestrator.CondenseThreshold != 1200 {
		t.Errorf("defaults lost on partial YAML, CondenseThreshold = %d", cfg.Orchestrator.CondenseThreshold)
	}
}

func TestLoadLogSettingsFromEnv(t *testing.T) {
	t.Setenv("STUDYBUDDY_LOG_LEVEL", "DEBUG")
	t.Setenv("STUDYBUDDY_LOG_FORMAT", "text")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want debug/text", cfg.Log)
	}
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	t.Setenv("STUDYBUDDY_STORE_BACKEND", "cassandra")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown store backend")
	}
}

func TestPostgresConnString(t *testing.T) {
	c := PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "d", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=d sslmode=disable"
	if got := c.ConnString(); got != want {
		t.Errorf("ConnString() = %q, want %q", got, want)
	}
	c.DSN = "postgres://x"
	if got := c.ConnString(); got != "postgres://x" {
		t.Errorf("DSN should win, got %q", got)
	}
}
