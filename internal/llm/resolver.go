package llm

import (
	"context"
	"log/slog"
)

// SettingsSource supplies a learner's persisted backend override. The
// conversation store implements this; keeping the dependency as an
// interface avoids coupling providers to the persistence layer.
type SettingsSource interface {
	// ModelSettings returns the learner's chosen provider name and API
	// key. Empty provider means no override.
	ModelSettings(ctx context.Context, learnerID int64) (provider, apiKey string, err error)
}

// ResolverConfig carries the process-wide backend defaults.
type ResolverConfig struct {
	Default string // anthropic, groq, ollama

	AnthropicAPIKey string
	AnthropicModel  string

	GroqAPIKey string
	GroqModel  string

	OllamaBaseURL string
	OllamaModel   string
}

// Resolver picks the provider for one request: the learner's persisted
// override when present, the configured default otherwise. Resolution
// happens once per turn so no process-global mutable state is involved.
type Resolver struct {
	cfg      ResolverConfig
	settings SettingsSource
	logger   *slog.Logger
}

// NewResolver creates a provider resolver. settings may be nil, in which
// case every learner gets the configured default.
func NewResolver(cfg ResolverConfig, settings SettingsSource, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{cfg: cfg, settings: settings, logger: logger}
}

// For returns the provider for a learner's turn. Settings-store failures
// degrade to the default backend rather than failing the turn.
func (r *Resolver) For(ctx context.Context, learnerID int64) Provider {
	if r.settings != nil && learnerID > 0 {
		provider, apiKey, err := r.settings.ModelSettings(ctx, learnerID)
		if err != nil {
			r.logger.Warn("model settings lookup failed, using default backend",
				"learner", learnerID, "error", err)
		} else if provider == "groq" && apiKey != "" {
			return NewGroq(apiKey, r.cfg.GroqModel, r.logger)
		}
	}
	return r.defaultProvider()
}

// Default returns the configured default provider, bypassing per-learner
// settings. Used for learner-independent calls (prompt enhancement).
func (r *Resolver) Default() Provider {
	return r.defaultProvider()
}

func (r *Resolver) defaultProvider() Provider {
	switch r.cfg.Default {
	case "groq":
		return NewGroq(r.cfg.GroqAPIKey, r.cfg.GroqModel, r.logger)
	case "ollama":
		return NewOllama(r.cfg.OllamaBaseURL, r.cfg.OllamaModel, r.logger)
	default:
		return NewAnthropic(r.cfg.AnthropicAPIKey, r.cfg.AnthropicModel, r.logger)
	}
}
