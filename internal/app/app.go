// -----------------------------------------------------------------------
// App - wires configuration into the purchase pipeline
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/common"
	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/models"
	"github.com/ternarybob/autobond/internal/services/batch"
	"github.com/ternarybob/autobond/internal/services/browser"
	"github.com/ternarybob/autobond/internal/services/captcha"
	"github.com/ternarybob/autobond/internal/services/notify"
	"github.com/ternarybob/autobond/internal/services/purchase"
	"github.com/ternarybob/autobond/internal/services/screenshot"
	"github.com/ternarybob/autobond/internal/services/site"
	"github.com/ternarybob/autobond/internal/storage/badger"
)

// App holds the components of one process
type App struct {
	Config *common.Config
	Logger arbor.ILogger
	Users  []models.UserCredential

	Engine   interfaces.Engine
	Notifier interfaces.Notifier
	Storage  interfaces.RunStorage
	Purchase *purchase.Service
	Runner   *batch.Runner
}

// New validates config and builds every component. Errors are configuration or launch failures.
func New(ctx context.Context, config *common.Config, logger arbor.ILogger) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	users, err := config.Credentials()
	if err != nil {
		return nil, err
	}

	a := &App{Config: config, Logger: logger, Users: users}

	profile, err := site.Load(config.Flow.SiteProfile)
	if err != nil {
		return nil, models.ConfigError("%v", err)
	}
	logger.Debug().Str("version", profile.Version).Str("login_url", profile.LoginURL).Msg("Site profile loaded")

	solver, err := captcha.NewSolver(ctx, config.Captcha, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create captcha solver: %w", err)
	}

	a.Notifier = notify.Multi{
		notify.NewPushPlus(config.Notify.PushPlusToken, config.Notify.PushPlusEndpoint, logger),
		notify.NewEmail(config.Notify, logger),
	}

	a.Storage = openHistory(config, logger)

	a.Engine, err = browser.Launch(
		interfaces.EngineKind(config.Browser.Kind),
		browser.Driver(config.Browser.Driver),
		config.Browser.Headless,
		logger,
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	archiver := screenshot.NewArchiver(config.Flow.ScreenshotDir, logger)
	a.Purchase = purchase.NewService(a.Engine, solver, profile, archiver, config.RetryPolicy(), config.Viewport(), logger)
	a.Runner = batch.NewRunner(a.Purchase, a.Notifier, a.Storage, logger)

	return a, nil
}

// openHistory opens the run history; a store that cannot be opened only disables history
func openHistory(config *common.Config, logger arbor.ILogger) interfaces.RunStorage {
	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		logger.Warn().Err(err).Msg("Run history disabled")
		return nil
	}
	return badger.NewRunStorage(db, logger)
}

// RunOnce processes every configured user and prunes old history
func (a *App) RunOnce(ctx context.Context) batch.Summary {
	summary := a.Runner.Run(ctx, a.Users)

	if a.Storage != nil {
		if retention := a.Config.HistoryRetention(); retention > 0 {
			if _, err := a.Storage.Prune(ctx, time.Now().Add(-retention)); err != nil {
				a.Logger.Warn().Err(err).Msg("Failed to prune run history")
			}
		}
	}
	return summary
}

// Close releases the browser and the history store
func (a *App) Close() {
	if a.Engine != nil {
		if err := a.Engine.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close browser")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close run history")
		}
	}
}
