package captcha

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/autobond/internal/common"
	"github.com/ternarybob/autobond/internal/interfaces"
)

// NewSolver builds the configured solver. It is constructed once per process and injected.
func NewSolver(ctx context.Context, cfg common.CaptchaConfig, logger arbor.ILogger) (interfaces.CaptchaSolver, error) {
	durations, err := cfg.Durations()
	if err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if durations.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Every(durations.RateLimit), 1)
	}

	var solver interfaces.CaptchaSolver
	switch cfg.Provider {
	case "http", "":
		solver = NewHTTPSolver(cfg.Endpoint, durations.Timeout, logger)
	case "gemini":
		apiKey, err := cfg.ResolveAPIKey()
		if err != nil {
			return nil, err
		}
		solver, err = NewGeminiSolver(ctx, apiKey, cfg.Model, limiter, logger)
		if err != nil {
			return nil, err
		}
	case "claude":
		apiKey, err := cfg.ResolveAPIKey()
		if err != nil {
			return nil, err
		}
		solver = NewClaudeSolver(apiKey, cfg.Model, limiter, logger)
	default:
		return nil, fmt.Errorf("unsupported captcha provider %q", cfg.Provider)
	}

	logger.Info().
		Str("provider", solver.Name()).
		Str("model", cfg.Model).
		Str("rate_limit", durations.RateLimit.String()).
		Msg("Captcha solver ready")

	return solver, nil
}
