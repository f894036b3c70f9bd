package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for field %q: %s", e.Field, e.Message)
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []ValidationError
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: []ValidationError{},
	}
}

// RequireNonEmpty validates that a string field is not empty
func (v *Validator) RequireNonEmpty(field, value string) *Validator {
	if value == "" {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: "value cannot be empty",
		})
	}
	return v
}

// RequirePositive validates that an integer field is greater than 0
func (v *Validator) RequirePositive(field string, value int) *Validator {
	if value <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be positive, got %d", value),
		})
	}
	return v
}

// ValidateRange validates that an integer field is within a range [min, max]
func (v *Validator) ValidateRange(field string, value, min, max int) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %d and %d, got %d", min, max, value),
		})
	}
	return v
}

// ValidateFloatRange validates that a float field is within a range [min, max]
func (v *Validator) ValidateFloatRange(field string, value, min, max float64) *Validator {
	if value < min || value > max {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value must be between %.2f and %.2f, got %.2f", min, max, value),
		})
	}
	return v
}

// ValidatePort validates that a port number is valid (1-65535)
func (v *Validator) ValidatePort(field string, port int) *Validator {
	return v.ValidateRange(field, port, 1, 65535)
}

// ValidateDBNumber validates that a database number is valid (0-15 for Redis)
func (v *Validator) ValidateDBNumber(field string, db int) *Validator {
	return v.ValidateRange(field, db, 0, 15)
}

// ValidateOneOf validates that a string value is one of the allowed options
func (v *Validator) ValidateOneOf(field string, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if a == value {
			return v
		}
	}
	v.errors = append(v.errors, ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be one of %v, got %q", allowed, value),
	})
	return v
}

// RequirePositiveDuration validates that a duration field is greater than 0
func (v *Validator) RequirePositiveDuration(field string, value time.Duration) *Validator {
	if value <= 0 {
		v.errors = append(v.errors, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("duration must be positive, got %s", value),
		})
	}
	return v
}

// Merge folds the errors of another validator into v, prefixing their fields.
func (v *Validator) Merge(prefix string, other *Validator) *Validator {
	if other == nil {
		return v
	}
	for _, e := range other.errors {
		e.Field = prefix + "." + e.Field
		v.errors = append(v.errors, e)
	}
	return v
}

// HasErrors returns true if there are any validation errors
func (v *Validator) HasErrors() bool {
	return len(v.errors) > 0
}

// Error returns a combined error message or nil if no errors
func (v *Validator) Error() error {
	if !v.HasErrors() {
		return nil
	}

	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for _, e := range v.errors {
		fmt.Fprintf(&b, "  - %s: %s\n", e.Field, e.Message)
	}
	return errors.New(b.String())
}

// Errors returns all validation errors
func (v *Validator) Errors() []ValidationError {
	return v.errors
}

// Section validators. Config.Validate merges them under the section's
// field prefix.

func postgresValidator(c PostgresConfig) *Validator {
	v := NewValidator()
	if c.DSN != "" {
		return v
	}
	v.RequireNonEmpty("host", c.Host)
	v.ValidatePort("port", c.Port)
	v.RequireNonEmpty("user", c.User)
	v.RequireNonEmpty("password", c.Password)
	v.RequireNonEmpty("dbName", c.DBName)
	v.ValidateOneOf("sslMode", c.SSLMode, "disable", "require", "verify-ca", "verify-full")
	return v
}

func redisValidator(c RedisConfig) *Validator {
	v := NewValidator()
	v.RequireNonEmpty("addr", c.Addr)
	v.ValidateDBNumber("db", c.DB)
	v.RequireNonEmpty("prefix", c.Prefix)
	return v
}

func mongoValidator(c MongoConfig) *Validator {
	v := NewValidator()
	v.RequireNonEmpty("uri", c.URI)
	v.RequireNonEmpty("database", c.Database)
	return v
}

// llmValidator leaves the API key to the provider SDKs, which read it from
// the environment when the config has none.
func llmValidator(c LLMConfig) *Validator {
	v := NewValidator()
	v.ValidateOneOf("provider", c.Provider, ProviderOpenAI, ProviderClaude, ProviderGemini)
	v.RequireNonEmpty("model", c.Model)
	v.ValidateFloatRange("temperature", c.Temperature, 0.0, 2.0)
	v.RequirePositive("maxTokens", c.MaxTokens)
	return v
}

func orchestratorValidator(c OrchestratorConfig) *Validator {
	v := NewValidator()
	v.RequirePositive("maxToolIterations", c.MaxToolIterations)
	v.RequirePositiveDuration("callTimeout", c.CallTimeout)
	v.RequirePositiveDuration("toolTimeout", c.ToolTimeout)
	v.RequirePositive("toolConcurrency", c.ToolConcurrency)
	v.ValidateFloatRange("minConfidence", c.MinConfidence, 0, 1)
	v.ValidateRange("maxClarifications", c.MaxClarifications, 0, 10)
	v.ValidateRange("minVerifyLength", c.MinVerifyLength, 0, 1<<20)
	v.RequirePositive("condenseThreshold", c.CondenseThreshold)
	v.RequirePositive("historyTokenBudget", c.HistoryTokenBudget)
	return v
}

func rateLimitValidator(c RateLimitConfig) *Validator {
	v := NewValidator()
	v.RequirePositive("maxTurns", c.MaxTurns)
	v.RequirePositiveDuration("window", c.Window)
	return v
}
