package purchase

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/models"
	"github.com/ternarybob/autobond/internal/services/browser/browsertest"
	"github.com/ternarybob/autobond/internal/services/screenshot"
	"github.com/ternarybob/autobond/internal/services/site"
)

const offeredRows = `<tr><td><input type="checkbox"></td><td>123456</td><td>测试转债</td><td>100.00</td></tr>`

type fixedSolver struct {
	code  string
	calls int
}

func (f *fixedSolver) Name() string { return "fixed" }

func (f *fixedSolver) Solve(ctx context.Context, png []byte) (string, error) {
	f.calls++
	return f.code, nil
}

type harness struct {
	engine  *browsertest.Engine
	profile *site.Profile
	service *Service
	solver  *fixedSolver
	dir     string
}

// newHarness scripts a portal where login works and one bond is offered
func newHarness(t *testing.T) *harness {
	t.Helper()
	profile := site.Default()
	sel := profile.Selectors
	engine := browsertest.NewEngine()

	for _, s := range []string{sel.Account, sel.Password, sel.CaptchaImage, sel.CaptchaInput, sel.LoginConfirm} {
		engine.Set(s, browsertest.ElementScript{Present: true})
	}
	engine.Set(browsertest.TextSelector(profile.Menus.NewIssues), browsertest.ElementScript{Present: true})
	engine.Set(browsertest.TextSelector(profile.Menus.BondBatch), browsertest.ElementScript{Present: true})
	engine.Set(browsertest.TextSelector(profile.Menus.BatchSubmit), browsertest.ElementScript{Present: true})
	engine.Set(sel.TableBody, browsertest.ElementScript{Present: true, HTML: offeredRows})
	engine.Set(sel.SelectAll, browsertest.ElementScript{Present: true, Checked: true})

	dir := t.TempDir()
	solver := &fixedSolver{code: "1234"}
	policy := models.RetryPolicy{FlowRetries: 2, CaptchaRetries: 3, Timeout: 3 * time.Second}
	logger := arbor.NewLogger()

	service := NewService(engine, solver, profile, screenshot.NewArchiver(dir, logger), policy,
		interfaces.Viewport{Width: 1920, Height: 1080}, logger)
	service.backoff = func(int) time.Duration { return 0 }

	return &harness{engine: engine, profile: profile, service: service, solver: solver, dir: dir}
}

var user = models.UserCredential{Account: "880012345678", Password: "secret"}

func assertSessionsClosedOnce(t *testing.T, engine *browsertest.Engine) {
	t.Helper()
	for i, n := range engine.SessionCloseCounts() {
		assert.Equal(t, 1, n, "session %d closed %d times", i, n)
	}
}

func TestRun_NavigationFailureExhaustsAttempts(t *testing.T) {
	h := newHarness(t)
	h.engine.OnNavigate = func(int) error { return errors.New("net::ERR_CONNECTION_REFUSED") }

	report, err := h.service.Run(context.Background(), user)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrFlowExhausted)
	assert.ErrorIs(t, err, models.ErrNavigation)
	assert.Equal(t, models.OutcomeFailed, report.Outcome.Kind)
	assert.Contains(t, report.Outcome.Message, "ERR_CONNECTION_REFUSED")
	assert.NotContains(t, report.Outcome.Message, "\n")
	assert.Equal(t, 2, report.Attempts)
	assert.Equal(t, 2*loginNavigateTries, h.engine.Navigations())

	require.Len(t, report.Screenshots, 2)
	assert.True(t, strings.HasSuffix(report.Screenshots[0], "-5678-attempt1.png"))
	assert.True(t, strings.HasSuffix(report.Screenshots[1], "-5678-attempt2.png"))
	assert.Equal(t, h.dir, filepath.Dir(report.Screenshots[0]))

	assert.Equal(t, 2, h.engine.SessionCount())
	assertSessionsClosedOnce(t, h.engine)
}

func TestRun_NavigationRecoversWithinBackoff(t *testing.T) {
	h := newHarness(t)
	h.engine.OnNavigate = func(n int) error {
		if n < 3 {
			return errors.New("timeout")
		}
		return nil
	}
	h.engine.Set(h.profile.Selectors.TableBody, browsertest.ElementScript{Present: true, HTML: `<tr><td colspan="8">暂无数据</td></tr>`})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoPurchasableBonds, report.Outcome.Kind)
	assert.Equal(t, 1, report.Attempts)
	assert.Equal(t, 3, h.engine.Navigations())
}

func TestRun_NonTradingDayStopsBeforeLogin(t *testing.T) {
	h := newHarness(t)
	h.engine.Set(h.profile.Selectors.NonTradingBanner, browsertest.ElementScript{Present: true})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.NonTradingDay(), report.Outcome)
	assert.Equal(t, models.NonTradingDayText, report.Outcome.Text())
	assert.False(t, h.engine.Touched(h.profile.Selectors.Account))
	assert.False(t, h.engine.Touched(h.profile.Selectors.Password))
	assert.Zero(t, h.solver.calls)
	assert.Empty(t, report.Screenshots)
	assertSessionsClosedOnce(t, h.engine)
}

func TestRun_NoDataPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.engine.Set(h.profile.Selectors.TableBody, browsertest.ElementScript{Present: true, HTML: `<tr><td colspan="8">暂无数据</td></tr>`})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoPurchasableBonds, report.Outcome.Kind)
	assert.Equal(t, models.NoPurchasableBondsText, report.Outcome.Text())
	assert.Zero(t, h.engine.Count("click", h.profile.Selectors.SelectAll))
	assert.Zero(t, h.engine.Count("click", browsertest.TextSelector(h.profile.Menus.BatchSubmit)))
	assertSessionsClosedOnce(t, h.engine)
}

func TestRun_TableMissingMeansNothingOffered(t *testing.T) {
	h := newHarness(t)
	h.engine.Set(h.profile.Selectors.TableBody, browsertest.ElementScript{})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoPurchasableBonds, report.Outcome.Kind)
}

func TestRun_SelectAllUncheckedMeansNothingOffered(t *testing.T) {
	h := newHarness(t)
	h.engine.Set(h.profile.Selectors.SelectAll, browsertest.ElementScript{Present: true, Checked: false})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoPurchasableBonds, report.Outcome.Kind)
	assert.Equal(t, 1, h.engine.Count("idle", ""))
	assert.Zero(t, h.engine.Count("click", browsertest.TextSelector(h.profile.Menus.BatchSubmit)))
}

func TestRun_SubmittedThroughConfirmation(t *testing.T) {
	h := newHarness(t)
	sel := h.profile.Selectors
	h.engine.Update(browsertest.TextSelector(h.profile.Menus.BatchSubmit), func(s *browsertest.ElementScript) {
		s.OnClick = func() {
			h.engine.Update(sel.SubmitConfirm, func(c *browsertest.ElementScript) {
				c.OnClick = func() {
					h.engine.Set(sel.ResultDialog, browsertest.ElementScript{Present: true, Text: "x 申购委托已提交，委托编号 1001\n确定"})
				}
			})
		}
	})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSubmitted, report.Outcome.Kind)
	assert.Equal(t, "申购委托已提交，委托编号 1001", report.Outcome.Message)
	assert.Equal(t, 1, h.solver.calls)
	assert.Equal(t, "1234", valueOf(h.engine, "fill", sel.CaptchaInput))
	assert.Equal(t, user.Account, valueOf(h.engine, "fill", sel.Account))
	assert.Equal(t, 1, h.engine.SessionCount())
	assertSessionsClosedOnce(t, h.engine)
}

func TestRun_NoPurchaseDialogInsteadOfConfirmation(t *testing.T) {
	h := newHarness(t)
	sel := h.profile.Selectors
	h.engine.Update(browsertest.TextSelector(h.profile.Menus.BatchSubmit), func(s *browsertest.ElementScript) {
		s.OnClick = func() {
			h.engine.Set(sel.SubmitConfirm, browsertest.ElementScript{})
			h.engine.Set(sel.ResultDialog, browsertest.ElementScript{Present: true, Text: "x 当前没有可申购的债券 确定"})
			h.engine.Set(sel.DialogClose, browsertest.ElementScript{Present: true})
		}
	})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoPurchasableBonds, report.Outcome.Kind)
	assert.Equal(t, 1, h.engine.Count("click", sel.DialogClose))
}

func TestRun_NeitherConfirmationNorDialog(t *testing.T) {
	h := newHarness(t)
	sel := h.profile.Selectors
	h.engine.Update(browsertest.TextSelector(h.profile.Menus.BatchSubmit), func(s *browsertest.ElementScript) {
		s.OnClick = func() {
			h.engine.Set(sel.SubmitConfirm, browsertest.ElementScript{})
		}
	})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoPurchasableBonds, report.Outcome.Kind)
}

func TestRun_ResultDialogShowsSubmission(t *testing.T) {
	h := newHarness(t)
	sel := h.profile.Selectors
	h.engine.Update(browsertest.TextSelector(h.profile.Menus.BatchSubmit), func(s *browsertest.ElementScript) {
		s.OnClick = func() {
			h.engine.Set(sel.SubmitConfirm, browsertest.ElementScript{})
			h.engine.Set(sel.ResultDialog, browsertest.ElementScript{Present: true, Text: "x \r\n您已申购成功，委托编号 2002\n确定"})
			h.engine.Set(sel.DialogClose, browsertest.ElementScript{Present: true})
		}
	})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSubmitted, report.Outcome.Kind)
	assert.Equal(t, "您已申购成功，委托编号 2002", report.Outcome.Message)
	assert.Equal(t, 1, h.engine.Count("click", sel.DialogClose))
	assert.Equal(t, 1, h.engine.Count("click", sel.SubmitConfirm), "only the login click hits the shared confirm id")
}

func TestRun_ConfirmationBehindHiddenLoginButton(t *testing.T) {
	h := newHarness(t)
	sel := h.profile.Selectors
	h.engine.Update(browsertest.TextSelector(h.profile.Menus.BatchSubmit), func(s *browsertest.ElementScript) {
		s.OnClick = func() {
			h.engine.Update(sel.SubmitConfirm, func(c *browsertest.ElementScript) {
				c.FirstHidden = true
				c.OnClick = func() {
					h.engine.Set(sel.ResultDialog, browsertest.ElementScript{Present: true, FirstHidden: true, Text: "x 申购委托已提交 确定"})
				}
			})
		}
	})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.Submitted("申购委托已提交"), report.Outcome)
	assert.Equal(t, 2, h.engine.Count("click", sel.SubmitConfirm))
}

func TestRun_OptionalPopupDismissed(t *testing.T) {
	h := newHarness(t)
	sel := h.profile.Selectors
	h.engine.Set(sel.PopupConfirm, browsertest.ElementScript{Present: true})
	h.engine.Set(sel.TableBody, browsertest.ElementScript{Present: true, HTML: `<tr><td colspan="8">暂无数据</td></tr>`})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoPurchasableBonds, report.Outcome.Kind)
	assert.Equal(t, 1, h.engine.Count("click", sel.PopupConfirm))

	popup, menu := -1, -1
	for i, a := range h.engine.Actions() {
		if a.Kind != "click" {
			continue
		}
		if a.Selector == sel.PopupConfirm && popup < 0 {
			popup = i
		}
		if a.Selector == browsertest.TextSelector(h.profile.Menus.NewIssues) && menu < 0 {
			menu = i
		}
	}
	require.GreaterOrEqual(t, popup, 0)
	assert.Less(t, popup, menu, "popup is dismissed before the menus are opened")
}

func TestRun_PopupDismissFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	sel := h.profile.Selectors
	h.engine.Set(sel.PopupConfirm, browsertest.ElementScript{Present: true, ClickErr: errors.New("element is not clickable")})
	h.engine.Set(sel.TableBody, browsertest.ElementScript{Present: true, HTML: `<tr><td colspan="8">暂无数据</td></tr>`})

	report, err := h.service.Run(context.Background(), user)

	require.NoError(t, err)
	assert.Equal(t, models.OutcomeNoPurchasableBonds, report.Outcome.Kind)
	assert.Equal(t, 1, report.Attempts)
	assert.Equal(t, 1, h.engine.Count("click", browsertest.TextSelector(h.profile.Menus.BondBatch)))
	assert.Empty(t, report.Screenshots)
}

func TestRun_CaptchaExhaustionFailsAttempt(t *testing.T) {
	h := newHarness(t)
	h.solver.code = "abcd"

	report, err := h.service.Run(context.Background(), user)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCaptchaExhausted)
	assert.Equal(t, models.OutcomeFailed, report.Outcome.Kind)
	assert.Equal(t, 6, h.solver.calls)
	assert.Len(t, report.Screenshots, 2)
	assert.False(t, h.engine.Touched(h.profile.Selectors.CaptchaInput))
	assertSessionsClosedOnce(t, h.engine)
}

func TestRun_SessionOpenFailure(t *testing.T) {
	h := newHarness(t)
	h.engine.NewSessionErr = errors.New("browser has disconnected")

	report, err := h.service.Run(context.Background(), user)

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrUIInteraction)
	assert.Equal(t, models.OutcomeFailed, report.Outcome.Kind)
	assert.Empty(t, report.Screenshots)
}

func TestRun_PanicIsContained(t *testing.T) {
	h := newHarness(t)
	h.engine.Update(h.profile.Selectors.LoginConfirm, func(s *browsertest.ElementScript) {
		s.OnClick = func() { panic("boom") }
	})

	report, err := h.service.Run(context.Background(), user)

	require.Error(t, err)
	assert.Equal(t, models.OutcomeFailed, report.Outcome.Kind)
	assert.Contains(t, report.Outcome.Message, "boom")
	assert.Len(t, report.Screenshots, 2)
	assertSessionsClosedOnce(t, h.engine)
}

func valueOf(engine *browsertest.Engine, kind, selector string) string {
	for _, a := range engine.Actions() {
		if a.Kind == kind && a.Selector == selector {
			return a.Value
		}
	}
	return ""
}
