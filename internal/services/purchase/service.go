// -----------------------------------------------------------------------
// Purchase Service - per-user batch new-bond subscription flow
// -----------------------------------------------------------------------

package purchase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/models"
	"github.com/ternarybob/autobond/internal/services/browser"
	"github.com/ternarybob/autobond/internal/services/captcha"
	"github.com/ternarybob/autobond/internal/services/dialog"
	"github.com/ternarybob/autobond/internal/services/screenshot"
	"github.com/ternarybob/autobond/internal/services/site"
)

// Fixed bounds of the site flow
const (
	loginNavigateTries = 3
	bannerProbe        = 1500 * time.Millisecond
	popupProbe         = 1500 * time.Millisecond
	inventoryProbe     = 3 * time.Second
	selectAllSettle    = 300 * time.Millisecond
	outcomeRace        = 3 * time.Second
	dismissTimeout     = 2 * time.Second
)

// Report is the result of one user's flow
type Report struct {
	Outcome     models.PurchaseOutcome
	Attempts    int
	Screenshots []string
}

// Service runs the purchase flow for one user at a time
type Service struct {
	engine     interfaces.Engine
	solver     interfaces.CaptchaSolver
	profile    *site.Profile
	classifier *dialog.Classifier
	archiver   *screenshot.Archiver
	policy     models.RetryPolicy
	viewport   interfaces.Viewport
	logger     arbor.ILogger

	// backoff is the wait after failed login navigation try n
	backoff func(n int) time.Duration
}

// NewService wires the flow. The engine is shared; a fresh session is opened per attempt.
func NewService(
	engine interfaces.Engine,
	solver interfaces.CaptchaSolver,
	profile *site.Profile,
	archiver *screenshot.Archiver,
	policy models.RetryPolicy,
	viewport interfaces.Viewport,
	logger arbor.ILogger,
) *Service {
	return &Service{
		engine:     engine,
		solver:     solver,
		profile:    profile,
		classifier: dialog.NewClassifier(profile.NoPurchaseKeywords),
		archiver:   archiver,
		policy:     policy,
		viewport:   viewport,
		logger:     logger,
		backoff:    func(n int) time.Duration { return time.Duration(n) * time.Second },
	}
}

// Run drives the flow to a terminal outcome, retrying whole attempts in fresh sessions.
// After FlowRetries failed attempts the outcome is Failed and the error is a *models.FlowExhaustedError.
func (s *Service) Run(ctx context.Context, user models.UserCredential) (Report, error) {
	report := Report{}
	var lastErr error

	for n := 1; n <= s.policy.FlowRetries; n++ {
		attempt := models.Attempt{Number: n, Of: s.policy.FlowRetries}
		report.Attempts = n

		s.logger.Info().
			Str("account", user.Masked()).
			Str("attempt", attempt.String()).
			Msg("Starting purchase attempt")

		outcome, shot, err := s.runAttempt(ctx, user, attempt)
		if shot != "" {
			report.Screenshots = append(report.Screenshots, shot)
		}
		if err == nil {
			s.logger.Info().
				Str("account", user.Masked()).
				Str("attempt", attempt.String()).
				Str("outcome", string(outcome.Kind)).
				Str("message", outcome.Message).
				Msg("Purchase flow finished")
			report.Outcome = outcome
			return report, nil
		}

		lastErr = err
		s.logger.Warn().
			Err(err).
			Str("account", user.Masked()).
			Str("attempt", attempt.String()).
			Msg("Purchase attempt failed")

		if ctx.Err() != nil {
			break
		}
	}

	exhausted := &models.FlowExhaustedError{Attempts: report.Attempts, Last: lastErr}
	report.Outcome = models.Failed(dialog.Normalize(exhausted.Error()))
	return report, exhausted
}

// runAttempt owns exactly one session. The session is closed on every exit path,
// and a failing attempt leaves a screenshot taken before the close.
func (s *Service) runAttempt(ctx context.Context, user models.UserCredential, attempt models.Attempt) (outcome models.PurchaseOutcome, shot string, err error) {
	session, err := s.engine.NewSession(ctx, s.viewport)
	if err != nil {
		return outcome, "", models.NewStepError(models.ErrUIInteraction, "open session", err)
	}
	defer func() {
		if closeErr := session.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("Failed to close browser session")
		}
	}()

	var page interfaces.Page
	defer func() {
		if err != nil && page != nil {
			shot = s.archiver.Capture(context.WithoutCancel(ctx), page, user.Account, attempt.Number)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("Recovered panic in purchase attempt")
			err = fmt.Errorf("panic during purchase attempt: %v", r)
		}
	}()

	page, err = session.NewPage(ctx)
	if err != nil {
		return outcome, "", models.NewStepError(models.ErrUIInteraction, "open page", err)
	}

	outcome, err = s.flow(ctx, page, user)
	return outcome, "", err
}

// flow walks the site states for one attempt
func (s *Service) flow(ctx context.Context, page interfaces.Page, user models.UserCredential) (models.PurchaseOutcome, error) {
	sel := s.profile.Selectors
	timeout := s.policy.Timeout

	if err := s.navigateLogin(ctx, page); err != nil {
		return models.PurchaseOutcome{}, err
	}

	nonTrading, err := s.probe(ctx, page.Locate(sel.NonTradingBanner), interfaces.StateVisible, bannerProbe, "detect non-trading day")
	if err != nil {
		return models.PurchaseOutcome{}, err
	}
	if nonTrading {
		s.logger.Info().Str("account", user.Masked()).Msg("Non-trading day banner present")
		return models.NonTradingDay(), nil
	}

	if err := page.Locate(sel.Account).Fill(ctx, user.Account, timeout); err != nil {
		return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "fill account", err)
	}
	if err := page.Locate(sel.Password).Fill(ctx, user.Password, timeout); err != nil {
		return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "fill password", err)
	}

	loop := captcha.NewRetryLoop(s.solver, s.policy.CaptchaRetries, timeout, s.logger)
	code, err := loop.Solve(ctx, page, page.Locate(sel.CaptchaImage))
	if err != nil {
		return models.PurchaseOutcome{}, err
	}
	if err := page.Locate(sel.CaptchaInput).Fill(ctx, code, timeout); err != nil {
		return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "fill captcha", err)
	}
	if err := page.Locate(sel.LoginConfirm).Click(ctx, timeout); err != nil {
		return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "submit login", err)
	}

	s.dismissPopup(ctx, page)

	for _, menu := range []string{s.profile.Menus.NewIssues, s.profile.Menus.BondBatch} {
		if err := page.LocateText(menu).Click(ctx, timeout); err != nil {
			return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "open menu "+menu, err)
		}
	}

	available, err := s.checkInventory(ctx, page)
	if err != nil {
		return models.PurchaseOutcome{}, err
	}
	if !available {
		return models.NoPurchasableBonds(), nil
	}

	if !s.selectAll(ctx, page) {
		return models.NoPurchasableBonds(), nil
	}

	if err := page.LocateText(s.profile.Menus.BatchSubmit).Click(ctx, timeout); err != nil {
		return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "submit batch", err)
	}

	return s.readOutcome(ctx, page)
}

// navigateLogin loads the login page with linear backoff between tries
func (s *Service) navigateLogin(ctx context.Context, page interfaces.Page) error {
	var lastErr error
	for try := 1; try <= loginNavigateTries; try++ {
		err := page.Navigate(ctx, s.profile.LoginURL, s.policy.Timeout)
		if err == nil {
			return nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn().Err(err).Int("try", try).Msg("Login page navigation failed")
		if try < loginNavigateTries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff(try)):
			}
		}
	}
	return models.NewStepError(models.ErrNavigation, "navigate login", lastErr)
}

// probe reports presence; only faults other than a timeout fail the attempt
func (s *Service) probe(ctx context.Context, el interfaces.Element, state interfaces.ElementState, timeout time.Duration, step string) (bool, error) {
	res, err := browser.Probe(ctx, el, state, timeout)
	if err != nil {
		return false, models.NewStepError(models.ErrUIInteraction, step, err)
	}
	return res == interfaces.Present, nil
}

// dismissPopup clicks the optional post-login overlay when it shows up
func (s *Service) dismissPopup(ctx context.Context, page interfaces.Page) {
	popup := page.Locate(s.profile.Selectors.PopupConfirm)
	present, err := s.probe(ctx, popup, interfaces.StateVisible, popupProbe, "detect popup")
	if err != nil {
		s.logger.Warn().Err(err).Msg("Popup probe failed")
		return
	}
	if !present {
		return
	}
	if err := popup.Click(ctx, popupProbe); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to dismiss popup")
	}
}

// checkInventory reports whether the subscription table lists at least one bond
func (s *Service) checkInventory(ctx context.Context, page interfaces.Page) (bool, error) {
	table := page.Locate(s.profile.Selectors.TableBody)
	attached, err := s.probe(ctx, table, interfaces.StateAttached, inventoryProbe, "check inventory")
	if err != nil {
		return false, err
	}
	if !attached {
		s.logger.Info().Msg("Subscription table did not appear")
		return false, nil
	}

	html, err := table.ReadHTML(ctx, s.policy.Timeout)
	if err != nil {
		return false, models.NewStepError(models.ErrUIInteraction, "read inventory", err)
	}
	rows, err := site.ParseInventory(html)
	if err != nil {
		return false, models.NewStepError(models.ErrUIInteraction, "parse inventory", err)
	}
	if site.IsEmptyInventory(rows, s.profile.NoDataText) {
		s.logger.Info().Int("rows", len(rows)).Msg("No bonds offered")
		return false, nil
	}

	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		codes = append(codes, row.Code+" "+row.Name)
	}
	s.logger.Info().Int("rows", len(rows)).Strs("bonds", codes).Msg("Bonds offered")
	return true, nil
}

// selectAll ticks the select-all box; anything short of a confirmed tick means nothing to subscribe
func (s *Service) selectAll(ctx context.Context, page interfaces.Page) bool {
	box := page.Locate(s.profile.Selectors.SelectAll)
	if err := box.Click(ctx, s.policy.Timeout); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to click select-all")
		return false
	}
	if err := page.Idle(ctx, selectAllSettle); err != nil {
		return false
	}
	checked, err := box.IsChecked(ctx, s.policy.Timeout)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read select-all state")
		return false
	}
	if !checked {
		s.logger.Info().Msg("Select-all did not stay checked")
	}
	return checked
}

type outcomeBranch int

const (
	branchNone outcomeBranch = iota
	branchConfirm
	branchDialog
)

// readOutcome races the submission confirmation against an already-open result dialog
func (s *Service) readOutcome(ctx context.Context, page interfaces.Page) (models.PurchaseOutcome, error) {
	sel := s.profile.Selectors
	// The login button shares the confirmation's id, so both lookups skip hidden matches
	confirm := page.LocateVisible(sel.SubmitConfirm)
	result := page.LocateVisible(sel.ResultDialog)

	branch, err := s.race(ctx, confirm, result)
	if err != nil {
		return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "await outcome", err)
	}

	var text string
	switch branch {
	case branchConfirm:
		if err := confirm.Click(ctx, s.policy.Timeout); err != nil {
			return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "confirm submission", err)
		}
		if text, err = result.ReadText(ctx, s.policy.Timeout); err != nil {
			return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "read result", err)
		}
	case branchDialog:
		if text, err = result.ReadText(ctx, s.policy.Timeout); err != nil {
			return models.PurchaseOutcome{}, models.NewStepError(models.ErrUIInteraction, "read result", err)
		}
		if err := page.Locate(sel.DialogClose).Click(ctx, dismissTimeout); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to dismiss result dialog")
		}
	default:
		// Neither control showed up: treated as nothing to subscribe, which has not been verified against the live site
		s.logger.Warn().Str("bound", outcomeRace.String()).Msg("No confirmation or result dialog after batch submit, assuming no purchasable bonds")
		return models.NoPurchasableBonds(), nil
	}

	if s.classifier.IsNoPurchaseAvailable(text) {
		s.logger.Info().Str("dialog", dialog.Normalize(text)).Msg("Dialog reports nothing to subscribe")
		return models.NoPurchasableBonds(), nil
	}
	return models.Submitted(dialog.CleanOutcomeText(text)), nil
}

// race probes both elements concurrently and returns the first that becomes visible
func (s *Service) race(ctx context.Context, confirm, result interfaces.Element) (outcomeBranch, error) {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type hit struct {
		branch outcomeBranch
		res    interfaces.PresenceResult
		err    error
	}
	hits := make(chan hit, 2)
	for branch, el := range map[outcomeBranch]interfaces.Element{branchConfirm: confirm, branchDialog: result} {
		go func(branch outcomeBranch, el interfaces.Element) {
			res, err := browser.Probe(raceCtx, el, interfaces.StateVisible, outcomeRace)
			hits <- hit{branch: branch, res: res, err: err}
		}(branch, el)
	}

	var firstErr error
	for i := 0; i < 2; i++ {
		h := <-hits
		if h.err == nil && h.res == interfaces.Present {
			return h.branch, nil
		}
		if h.err != nil && !errors.Is(h.err, context.Canceled) && firstErr == nil {
			firstErr = h.err
		}
	}
	if ctx.Err() != nil {
		return branchNone, ctx.Err()
	}
	return branchNone, firstErr
}
