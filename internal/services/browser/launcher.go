// Package browser launches UI-automation engines behind interfaces.Engine.
package browser

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
)

// Driver names the automation backend
type Driver string

const (
	DriverChromedp   Driver = "chromedp"
	DriverPlaywright Driver = "playwright"
)

// Launch starts one engine for the whole run
func Launch(kind interfaces.EngineKind, driver Driver, headless bool, logger arbor.ILogger) (interfaces.Engine, error) {
	logger.Debug().
		Str("driver", string(driver)).
		Str("engine", string(kind)).
		Bool("headless", headless).
		Msg("Launching browser")

	switch driver {
	case DriverChromedp, "":
		return NewChromedpEngine(kind, headless, logger)
	case DriverPlaywright:
		return NewPlaywrightEngine(kind, headless, logger)
	default:
		return nil, fmt.Errorf("unsupported browser driver %q", driver)
	}
}
