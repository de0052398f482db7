package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
)

const sessionStartTimeout = 30 * time.Second

// ChromedpEngine drives a single Chrome-family process over the DevTools protocol.
// Every session is a separate browser context, so cookies never leak between users.
type ChromedpEngine struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        arbor.ILogger
	mu            sync.Mutex
	closed        bool
}

// NewChromedpEngine launches the browser and verifies it responds
func NewChromedpEngine(kind interfaces.EngineKind, headless bool, logger arbor.ILogger) (*ChromedpEngine, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("no-sandbox", headless),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", headless),
		chromedp.Flag("disable-background-timer-throttling", false),
		chromedp.Flag("disable-renderer-backgrounding", false),
	)

	execPath, err := resolveExecPath(kind)
	if err != nil {
		return nil, err
	}
	if execPath != "" {
		allocatorOpts = append(allocatorOpts, chromedp.ExecPath(execPath))
	}

	startTime := time.Now()
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser; its lifetime is bound to browserCtx
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start %s browser: %w", kind, err)
	}

	logger.Info().
		Str("engine", string(kind)).
		Str("exec_path", execPath).
		Bool("headless", headless).
		Str("startup_time", time.Since(startTime).String()).
		Msg("Chromedp browser started")

	return &ChromedpEngine{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

// NewSession opens a fresh browser context with one tab sized to viewport
func (e *ChromedpEngine) NewSession(ctx context.Context, viewport interfaces.Viewport) (interfaces.Session, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("browser engine is closed")
	}

	tabCtx, tabCancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())

	// The first Run on tabCtx creates the target; a timeout context here would tie the
	// tab's lifetime to it, so the bound is enforced by cancelling the tab instead.
	guard := time.AfterFunc(sessionStartTimeout, tabCancel)
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx,
		emulation.SetDeviceMetricsOverride(int64(viewport.Width), int64(viewport.Height), 1, false),
	)
	guard.Stop()
	stop()
	if err != nil {
		tabCancel()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("failed to open browser session: %w", err)
	}

	e.logger.Debug().
		Int("width", viewport.Width).
		Int("height", viewport.Height).
		Msg("Browser session opened")

	return &chromedpSession{tabCtx: tabCtx, cancel: tabCancel, logger: e.logger}, nil
}

// Close shuts the browser down; later calls are no-ops
func (e *ChromedpEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true

	done := make(chan struct{})
	go func() {
		e.browserCancel()
		e.allocCancel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		e.logger.Warn().Msg("Browser shutdown timed out")
	}

	e.logger.Info().Msg("Chromedp browser closed")
	return nil
}

type chromedpSession struct {
	tabCtx context.Context
	cancel context.CancelFunc
	logger arbor.ILogger
	once   sync.Once
}

// NewPage returns the session's tab; chromedp sessions hold exactly one
func (s *chromedpSession) NewPage(ctx context.Context) (interfaces.Page, error) {
	if err := s.tabCtx.Err(); err != nil {
		return nil, fmt.Errorf("browser session is closed: %w", err)
	}
	return &chromedpPage{tabCtx: s.tabCtx}, nil
}

func (s *chromedpSession) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.logger.Debug().Msg("Browser session closed")
	})
	return nil
}

type chromedpPage struct {
	tabCtx context.Context
}

// run executes actions on the tab bounded by timeout and by the caller's ctx
func run(tabCtx, ctx context.Context, timeout time.Duration, what string, actions ...chromedp.Action) error {
	var opCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		opCtx, cancel = context.WithTimeout(tabCtx, timeout)
	} else {
		opCtx, cancel = context.WithCancel(tabCtx)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w after %s", what, interfaces.ErrTimeout, timeout)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	return run(p.tabCtx, ctx, timeout, "navigate "+url, chromedp.Navigate(url))
}

func (p *chromedpPage) Locate(selector string) interfaces.Element {
	return &chromedpElement{tabCtx: p.tabCtx, selector: selector, by: chromedp.ByQuery}
}

func (p *chromedpPage) LocateVisible(selector string) interfaces.Element {
	mark := strconv.FormatUint(visibleMarkSeq.Add(1), 10)
	return &chromedpElement{tabCtx: p.tabCtx, selector: selector, by: chromedp.ByQuery, mark: mark}
}

// LocateText matches links whose normalized text equals text exactly, so a menu
// label never resolves to a longer label that contains it.
func (p *chromedpPage) LocateText(text string) interfaces.Element {
	xpath := fmt.Sprintf("//a[normalize-space(.)=%s]", xpathLiteral(text))
	return &chromedpElement{tabCtx: p.tabCtx, selector: xpath, by: chromedp.BySearch}
}

func (p *chromedpPage) Screenshot(ctx context.Context, path string, fullPage bool) error {
	var buf []byte
	action := chromedp.CaptureScreenshot(&buf)
	if fullPage {
		// quality 100 keeps PNG encoding
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := run(p.tabCtx, ctx, sessionStartTimeout, "page screenshot", action); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf, 0644); err != nil {
		return fmt.Errorf("failed to write screenshot %s: %w", path, err)
	}
	return nil
}

func (p *chromedpPage) Idle(ctx context.Context, d time.Duration) error {
	return sleep(ctx, d)
}

// visibleMarkAttr tags the node a visible-only element resolved to, so the
// ByQuery actions that follow act on that node and not on an earlier hidden match
const visibleMarkAttr = "data-autobond-visible"

var visibleMarkSeq atomic.Uint64

type chromedpElement struct {
	tabCtx   context.Context
	selector string
	by       chromedp.QueryOption
	// mark is set for elements that only resolve to visible matches
	mark string
}

func (e *chromedpElement) Selector() string {
	return e.selector
}

// query returns the selector the actions target plus the steps that must run first
func (e *chromedpElement) query() (string, []chromedp.Action) {
	if e.mark == "" {
		return e.selector, nil
	}
	var found bool
	poll := chromedp.Poll(markVisibleScript(e.selector, e.mark), &found, chromedp.WithPollingTimeout(0))
	return fmt.Sprintf("[%s=%q]", visibleMarkAttr, e.mark), []chromedp.Action{poll}
}

func (e *chromedpElement) do(ctx context.Context, timeout time.Duration, what string, build func(sel string) []chromedp.Action) error {
	sel, actions := e.query()
	return run(e.tabCtx, ctx, timeout, what+" "+e.selector, append(actions, build(sel)...)...)
}

func (e *chromedpElement) Fill(ctx context.Context, value string, timeout time.Duration) error {
	return e.do(ctx, timeout, "fill", func(sel string) []chromedp.Action {
		return []chromedp.Action{
			chromedp.WaitVisible(sel, e.by),
			chromedp.Clear(sel, e.by),
			chromedp.SendKeys(sel, value, e.by),
		}
	})
}

func (e *chromedpElement) Click(ctx context.Context, timeout time.Duration) error {
	return e.do(ctx, timeout, "click", func(sel string) []chromedp.Action {
		return []chromedp.Action{chromedp.Click(sel, e.by, chromedp.NodeVisible)}
	})
}

func (e *chromedpElement) Screenshot(ctx context.Context, timeout time.Duration) ([]byte, error) {
	var buf []byte
	err := e.do(ctx, timeout, "screenshot", func(sel string) []chromedp.Action {
		return []chromedp.Action{chromedp.Screenshot(sel, &buf, e.by, chromedp.NodeVisible)}
	})
	return buf, err
}

func (e *chromedpElement) ReadText(ctx context.Context, timeout time.Duration) (string, error) {
	var text string
	err := e.do(ctx, timeout, "read text", func(sel string) []chromedp.Action {
		return []chromedp.Action{chromedp.Text(sel, &text, e.by)}
	})
	return text, err
}

func (e *chromedpElement) ReadHTML(ctx context.Context, timeout time.Duration) (string, error) {
	var html string
	err := e.do(ctx, timeout, "read html", func(sel string) []chromedp.Action {
		return []chromedp.Action{chromedp.InnerHTML(sel, &html, e.by)}
	})
	return html, err
}

func (e *chromedpElement) IsChecked(ctx context.Context, timeout time.Duration) (bool, error) {
	var checked bool
	err := e.do(ctx, timeout, "read checked", func(sel string) []chromedp.Action {
		return []chromedp.Action{chromedp.JavascriptAttribute(sel, "checked", &checked, e.by)}
	})
	return checked, err
}

func (e *chromedpElement) WaitFor(ctx context.Context, state interfaces.ElementState, timeout time.Duration) error {
	what := fmt.Sprintf("wait %s %s", state, e.selector)
	if e.mark != "" {
		var done bool
		switch state {
		case interfaces.StateAttached:
			return run(e.tabCtx, ctx, timeout, what, chromedp.WaitReady(e.selector, e.by))
		case interfaces.StateVisible:
			return run(e.tabCtx, ctx, timeout, what,
				chromedp.Poll(markVisibleScript(e.selector, e.mark), &done, chromedp.WithPollingTimeout(0)))
		case interfaces.StateHidden:
			return run(e.tabCtx, ctx, timeout, what,
				chromedp.Poll(noneVisibleScript(e.selector), &done, chromedp.WithPollingTimeout(0)))
		default:
			return fmt.Errorf("unsupported element state %q", state)
		}
	}

	var action chromedp.Action
	switch state {
	case interfaces.StateAttached:
		action = chromedp.WaitReady(e.selector, e.by)
	case interfaces.StateVisible:
		action = chromedp.WaitVisible(e.selector, e.by)
	case interfaces.StateHidden:
		action = chromedp.WaitNotVisible(e.selector, e.by)
	default:
		return fmt.Errorf("unsupported element state %q", state)
	}
	return run(e.tabCtx, ctx, timeout, what, action)
}

const isVisibleJS = `(n) => n.getClientRects().length > 0 && getComputedStyle(n).visibility !== "hidden"`

// markVisibleScript tags the first visible match of css with mark and reports whether one exists
func markVisibleScript(css, mark string) string {
	return fmt.Sprintf(`(() => {
	document.querySelectorAll(%[3]s).forEach((n) => n.removeAttribute(%[2]s));
	const hit = Array.from(document.querySelectorAll(%[1]s)).find(%[4]s);
	if (!hit) return false;
	hit.setAttribute(%[2]s, %[5]s);
	return true;
})()`, jsString(css), jsString(visibleMarkAttr), jsString(fmt.Sprintf("[%s=%q]", visibleMarkAttr, mark)), isVisibleJS, jsString(mark))
}

func noneVisibleScript(css string) string {
	return fmt.Sprintf(`!Array.from(document.querySelectorAll(%s)).some(%s)`, jsString(css), isVisibleJS)
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// resolveExecPath finds the binary for chrome and edge; chromium uses chromedp's own lookup
func resolveExecPath(kind interfaces.EngineKind) (string, error) {
	var candidates []string
	switch kind {
	case interfaces.EngineChromium, "":
		return "", nil
	case interfaces.EngineChrome:
		candidates = []string{
			"google-chrome",
			"google-chrome-stable",
			"chrome",
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
	case interfaces.EngineEdge:
		candidates = []string{
			"microsoft-edge",
			"microsoft-edge-stable",
			"msedge",
			`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
			"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
		}
	default:
		return "", fmt.Errorf("unsupported browser kind %q", kind)
	}

	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s executable found (tried %s)", kind, strings.Join(candidates, ", "))
}

// xpathLiteral quotes s for use inside an XPath expression
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}
