package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
)

// PlaywrightEngine drives Chromium, Chrome or Edge through the Playwright driver
type PlaywrightEngine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  arbor.ILogger
	mu      sync.Mutex
	closed  bool
}

// NewPlaywrightEngine starts the Playwright driver and launches the browser.
// chrome and edge launch the installed branded browser through its channel.
func NewPlaywrightEngine(kind interfaces.EngineKind, headless bool, logger arbor.ILogger) (*PlaywrightEngine, error) {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
	}
	switch kind {
	case interfaces.EngineChromium, "":
	case interfaces.EngineChrome:
		opts.Channel = playwright.String("chrome")
	case interfaces.EngineEdge:
		opts.Channel = playwright.String("msedge")
	default:
		return nil, fmt.Errorf("unsupported browser kind %q", kind)
	}
	if headless {
		opts.Args = []string{"--disable-dev-shm-usage", "--no-sandbox"}
	}

	startTime := time.Now()
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright driver: %w", err)
	}

	browser, err := pw.Chromium.Launch(opts)
	if err != nil {
		if stopErr := pw.Stop(); stopErr != nil {
			logger.Warn().Err(stopErr).Msg("Failed to stop playwright driver")
		}
		return nil, fmt.Errorf("failed to launch %s browser: %w", kind, err)
	}

	logger.Info().
		Str("engine", string(kind)).
		Str("version", browser.Version()).
		Bool("headless", headless).
		Str("startup_time", time.Since(startTime).String()).
		Msg("Playwright browser started")

	return &PlaywrightEngine{pw: pw, browser: browser, logger: logger}, nil
}

func (e *PlaywrightEngine) NewSession(ctx context.Context, viewport interfaces.Viewport) (interfaces.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("browser engine is closed")
	}

	bctx, err := e.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: viewport.Width, Height: viewport.Height},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}

	e.logger.Debug().
		Int("width", viewport.Width).
		Int("height", viewport.Height).
		Msg("Browser session opened")

	return &playwrightSession{bctx: bctx, logger: e.logger}, nil
}

func (e *PlaywrightEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	var errs []error
	if err := e.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
	}
	if err := e.pw.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright driver: %w", err))
	}

	e.logger.Info().Msg("Playwright browser closed")
	return errors.Join(errs...)
}

type playwrightSession struct {
	bctx   playwright.BrowserContext
	logger arbor.ILogger
	once   sync.Once
	err    error
}

func (s *playwrightSession) NewPage(ctx context.Context) (interfaces.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page, err := s.bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	return &playwrightPage{page: page}, nil
}

func (s *playwrightSession) Close() error {
	s.once.Do(func() {
		s.err = s.bctx.Close()
		s.logger.Debug().Msg("Browser session closed")
	})
	return s.err
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	ms, err := boundedTimeout(ctx, timeout)
	if err != nil {
		return err
	}
	_, err = p.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   ms,
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return wrapPlaywright("navigate "+url, timeout, err)
}

func (p *playwrightPage) Locate(selector string) interfaces.Element {
	return &playwrightElement{locator: p.page.Locator(selector).First(), selector: selector}
}

func (p *playwrightPage) LocateVisible(selector string) interfaces.Element {
	locator := p.page.Locator(selector).Filter(playwright.LocatorFilterOptions{Visible: playwright.Bool(true)})
	return &playwrightElement{locator: locator.First(), selector: selector}
}

func (p *playwrightPage) LocateText(text string) interfaces.Element {
	selector := fmt.Sprintf("a:text-is(%q):visible", text)
	return &playwrightElement{locator: p.page.Locator(selector).First(), selector: selector}
}

func (p *playwrightPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(fullPage),
	})
	if err != nil {
		return fmt.Errorf("page screenshot: %w", err)
	}
	return nil
}

func (p *playwrightPage) Idle(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

type playwrightElement struct {
	locator  playwright.Locator
	selector string
}

func (e *playwrightElement) Selector() string {
	return e.selector
}

func (e *playwrightElement) Fill(ctx context.Context, value string, timeout time.Duration) error {
	ms, err := boundedTimeout(ctx, timeout)
	if err != nil {
		return err
	}
	err = e.locator.Fill(value, playwright.LocatorFillOptions{Timeout: ms})
	return wrapPlaywright("fill "+e.selector, timeout, err)
}

func (e *playwrightElement) Click(ctx context.Context, timeout time.Duration) error {
	ms, err := boundedTimeout(ctx, timeout)
	if err != nil {
		return err
	}
	err = e.locator.Click(playwright.LocatorClickOptions{Timeout: ms})
	return wrapPlaywright("click "+e.selector, timeout, err)
}

func (e *playwrightElement) Screenshot(ctx context.Context, timeout time.Duration) ([]byte, error) {
	ms, err := boundedTimeout(ctx, timeout)
	if err != nil {
		return nil, err
	}
	buf, err := e.locator.Screenshot(playwright.LocatorScreenshotOptions{Timeout: ms})
	return buf, wrapPlaywright("screenshot "+e.selector, timeout, err)
}

func (e *playwrightElement) ReadText(ctx context.Context, timeout time.Duration) (string, error) {
	ms, err := boundedTimeout(ctx, timeout)
	if err != nil {
		return "", err
	}
	text, err := e.locator.InnerText(playwright.LocatorInnerTextOptions{Timeout: ms})
	return text, wrapPlaywright("read text "+e.selector, timeout, err)
}

func (e *playwrightElement) ReadHTML(ctx context.Context, timeout time.Duration) (string, error) {
	ms, err := boundedTimeout(ctx, timeout)
	if err != nil {
		return "", err
	}
	html, err := e.locator.InnerHTML(playwright.LocatorInnerHTMLOptions{Timeout: ms})
	return html, wrapPlaywright("read html "+e.selector, timeout, err)
}

func (e *playwrightElement) IsChecked(ctx context.Context, timeout time.Duration) (bool, error) {
	ms, err := boundedTimeout(ctx, timeout)
	if err != nil {
		return false, err
	}
	checked, err := e.locator.IsChecked(playwright.LocatorIsCheckedOptions{Timeout: ms})
	return checked, wrapPlaywright("read checked "+e.selector, timeout, err)
}

func (e *playwrightElement) WaitFor(ctx context.Context, state interfaces.ElementState, timeout time.Duration) error {
	var pwState *playwright.WaitForSelectorState
	switch state {
	case interfaces.StateAttached:
		pwState = playwright.WaitForSelectorStateAttached
	case interfaces.StateVisible:
		pwState = playwright.WaitForSelectorStateVisible
	case interfaces.StateHidden:
		pwState = playwright.WaitForSelectorStateHidden
	default:
		return fmt.Errorf("unsupported element state %q", state)
	}

	ms, err := boundedTimeout(ctx, timeout)
	if err != nil {
		return err
	}
	err = e.locator.WaitFor(playwright.LocatorWaitForOptions{State: pwState, Timeout: ms})
	return wrapPlaywright(fmt.Sprintf("wait %s %s", state, e.selector), timeout, err)
}

// boundedTimeout converts timeout to Playwright milliseconds, shortened to the ctx deadline
func boundedTimeout(ctx context.Context, timeout time.Duration) (*float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, context.DeadlineExceeded
		}
		if timeout <= 0 || remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		// Playwright treats 0 as "no timeout"
		return playwright.Float(0), nil
	}
	ms := timeout.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return playwright.Float(float64(ms)), nil
}

func wrapPlaywright(what string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, playwright.ErrTimeout) {
		return fmt.Errorf("%s: %w after %s", what, interfaces.ErrTimeout, timeout)
	}
	return fmt.Errorf("%s: %w", what, err)
}
