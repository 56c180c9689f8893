// Package config loads runtime configuration from the environment.
//
// All settings use the REFRESH_ prefix (REFRESH_HTTP_ADDR,
// REFRESH_MODEL_PROVIDER, ...) with sensible local-mode defaults, so the
// binary starts with no configuration at all.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the resolved runtime configuration for cmd/refreshd.
type Config struct {
	// Model selection and credentials.
	ModelProvider   string // "openai", "anthropic", or "mock"
	ModelName       string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Study deployment identifiers.
	BucketName string
	CorpusName string
	CorpusID   string
	ListLimit  int

	// Remote login toolset.
	ToolboxURL     string
	ToolsetTimeout time.Duration

	// HTTP front door.
	HTTPAddr string

	// Session persistence.
	SessionBackend string // "memory" or "sqlite"
	SQLitePath     string

	// Logging.
	LogLevel  string
	LogFormat string // "json" or "text"
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("refresh")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.name", "")
	v.SetDefault("openai.api.key", "")
	v.SetDefault("anthropic.api.key", "")

	v.SetDefault("bucket.name", "study-materials")
	v.SetDefault("corpus.name", "study-corpus")
	v.SetDefault("corpus.id", "study-corpus")
	v.SetDefault("list.limit", 100)

	v.SetDefault("toolbox.url", "")
	v.SetDefault("toolset.timeout", "15s")

	v.SetDefault("http.addr", ":8080")

	v.SetDefault("session.backend", "memory")
	v.SetDefault("sqlite.path", "refresh.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	cfg := &Config{
		ModelProvider:   v.GetString("model.provider"),
		ModelName:       v.GetString("model.name"),
		OpenAIAPIKey:    v.GetString("openai.api.key"),
		AnthropicAPIKey: v.GetString("anthropic.api.key"),
		BucketName:      v.GetString("bucket.name"),
		CorpusName:      v.GetString("corpus.name"),
		CorpusID:        v.GetString("corpus.id"),
		ListLimit:       v.GetInt("list.limit"),
		ToolboxURL:      v.GetString("toolbox.url"),
		ToolsetTimeout:  v.GetDuration("toolset.timeout"),
		HTTPAddr:        v.GetString("http.addr"),
		SessionBackend:  v.GetString("session.backend"),
		SQLitePath:      v.GetString("sqlite.path"),
		LogLevel:        v.GetString("log.level"),
		LogFormat:       v.GetString("log.format"),
	}

	switch cfg.SessionBackend {
	case "memory", "sqlite":
	default:
		return nil, fmt.Errorf("invalid session backend %q (want memory or sqlite)", cfg.SessionBackend)
	}

	switch cfg.ModelProvider {
	case "openai", "anthropic", "mock":
	default:
		return nil, fmt.Errorf("invalid model provider %q (want openai, anthropic, or mock)", cfg.ModelProvider)
	}

	return cfg, nil
}
