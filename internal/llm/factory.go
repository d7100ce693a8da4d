package llm

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// FactoryOptions carries the collaborators of NewProvider. All are optional.
type FactoryOptions struct {
	Events  EventRecorder
	Logger  *zap.Logger
	Observe StateObserver

	// Mock supplies the provider used when Config.Provider is "mock".
	Mock Provider
}

// NewProvider creates a Provider from configuration.
// It returns the provider wrapped with timeout, retry, circuit breaker and
// logging middleware.
func NewProvider(ctx context.Context, cfg Config, opts FactoryOptions) (Provider, error) {
	var base Provider
	var err error

	switch cfg.Provider {
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openrouter":
		base, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "mock":
		base = opts.Mock
		if base == nil {
			base = NewMockProvider()
		}
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	// Wrap with middleware: caller → timeout → retry → breaker → logging → base
	logged := WithLogging(base, cfg.Provider, opts.Events, opts.Logger)
	guarded := WithCircuitBreaker(logged, "llm-"+cfg.Provider, cfg.Breaker, opts.Logger, opts.Observe)
	retried := WithRetry(guarded, cfg.Retry)

	return WithTimeout(retried, cfg.Timeout), nil
}
