// Package captcha reads the login captcha through a pluggable solver and retries with fresh images.
package captcha

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/models"
)

// RefreshSettle is how long the new image gets to load after a refresh click
const RefreshSettle = 500 * time.Millisecond

var codePattern = regexp.MustCompile(`^\d{4}$`)

// RetryLoop solves the captcha with up to retries tries
type RetryLoop struct {
	solver  interfaces.CaptchaSolver
	retries int
	timeout time.Duration
	logger  arbor.ILogger
}

func NewRetryLoop(solver interfaces.CaptchaSolver, retries int, timeout time.Duration, logger arbor.ILogger) *RetryLoop {
	if retries < 1 {
		retries = 1
	}
	return &RetryLoop{
		solver:  solver,
		retries: retries,
		timeout: timeout,
		logger:  logger,
	}
}

// Solve returns a 4-digit code read from image.
// A failed try refreshes the image by clicking it; a failing refresh aborts with ErrUIInteraction.
func (l *RetryLoop) Solve(ctx context.Context, page interfaces.Page, image interfaces.Element) (string, error) {
	var lastErr error

	for try := 1; try <= l.retries; try++ {
		code, err := l.read(ctx, image)
		if err == nil && codePattern.MatchString(code) {
			l.logger.Info().
				Str("solver", l.solver.Name()).
				Str("try", models.Attempt{Number: try, Of: l.retries}.String()).
				Str("code", code).
				Msg("Captcha solved")
			return code, nil
		}
		if err == nil {
			err = fmt.Errorf("unexpected captcha result %q", code)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err

		l.logger.Warn().
			Str("solver", l.solver.Name()).
			Str("try", models.Attempt{Number: try, Of: l.retries}.String()).
			Err(err).
			Msg("Captcha try failed")

		if try == l.retries {
			break
		}

		if err := image.Click(ctx, l.timeout); err != nil {
			return "", models.NewStepError(models.ErrUIInteraction, "refresh captcha", err)
		}
		if err := page.Idle(ctx, RefreshSettle); err != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("%w after %d tries: %v", models.ErrCaptchaExhausted, l.retries, lastErr)
}

func (l *RetryLoop) read(ctx context.Context, image interfaces.Element) (string, error) {
	png, err := image.Screenshot(ctx, l.timeout)
	if err != nil {
		return "", fmt.Errorf("failed to capture captcha image: %w", err)
	}
	code, err := l.solver.Solve(ctx, png)
	if err != nil {
		return "", fmt.Errorf("solver %s failed: %w", l.solver.Name(), err)
	}
	return code, nil
}
