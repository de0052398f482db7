// Package browsertest provides a scripted in-memory browser engine for tests.
package browsertest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ternarybob/autobond/internal/interfaces"
)

// PNG is the image returned by element screenshots unless a script overrides it
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// ElementScript describes how one selector behaves.
// Selectors without a script are never present: waits and actions time out.
type ElementScript struct {
	Present  bool
	Text     string
	HTML     string
	Checked  bool
	Image    []byte
	FillErr  error
	ClickErr error
	ReadErr  error
	// FirstHidden puts a hidden element with the same selector ahead of this one.
	// Locate resolves to the hidden match; LocateVisible skips it.
	FirstHidden bool
	// OnClick runs after a successful click, outside the engine lock
	OnClick func()
}

// Action is one recorded element or page call
type Action struct {
	Kind     string
	Selector string
	Value    string
}

// Engine is an interfaces.Engine whose pages answer from per-selector scripts
type Engine struct {
	// OnNavigate is called with the 1-based navigation count; a non-nil error fails that navigation
	OnNavigate func(n int) error
	// NewSessionErr fails every NewSession call when set
	NewSessionErr error

	mu          sync.Mutex
	elements    map[string]*ElementScript
	sessions    []*Session
	actions     []Action
	screenshots []string
	navigations int
	closed      int
}

func NewEngine() *Engine {
	return &Engine{elements: make(map[string]*ElementScript)}
}

// TextSelector is the selector recorded for Page.LocateText(text)
func TextSelector(text string) string {
	return "text=" + text
}

// Set replaces the script for selector
func (e *Engine) Set(selector string, script ElementScript) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := script
	e.elements[selector] = &s
}

// Update mutates the script for selector, creating it when missing
func (e *Engine) Update(selector string, fn func(*ElementScript)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.elements[selector]
	if !ok {
		s = &ElementScript{}
		e.elements[selector] = s
	}
	fn(s)
}

func (e *Engine) NewSession(ctx context.Context, viewport interfaces.Viewport) (interfaces.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.NewSessionErr != nil {
		return nil, e.NewSessionErr
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &Session{engine: e, Viewport: viewport}
	e.sessions = append(e.sessions, s)
	return s, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	return nil
}

// SessionCount is the number of sessions opened so far
func (e *Engine) SessionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.sessions)
}

// SessionCloseCounts returns how many times each session was closed, in open order
func (e *Engine) SessionCloseCounts() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	counts := make([]int, len(e.sessions))
	for i, s := range e.sessions {
		counts[i] = s.closes
	}
	return counts
}

// EngineCloses is how many times Close was called on the engine
func (e *Engine) EngineCloses() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Navigations is the number of Navigate calls
func (e *Engine) Navigations() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.navigations
}

func (e *Engine) Actions() []Action {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Action(nil), e.actions...)
}

// Screenshots are the page screenshot paths written, in order
func (e *Engine) Screenshots() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.screenshots...)
}

// Count returns how many actions of kind targeted selector
func (e *Engine) Count(kind, selector string) int {
	n := 0
	for _, a := range e.Actions() {
		if a.Kind == kind && a.Selector == selector {
			n++
		}
	}
	return n
}

// Touched reports whether any fill or click targeted selector
func (e *Engine) Touched(selector string) bool {
	return e.Count("fill", selector) > 0 || e.Count("click", selector) > 0
}

func (e *Engine) record(kind, selector, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.actions = append(e.actions, Action{Kind: kind, Selector: selector, Value: value})
}

// lookup returns a copy of the script and whether it exists
func (e *Engine) lookup(selector string) (ElementScript, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.elements[selector]
	if !ok {
		return ElementScript{}, false
	}
	return *s, true
}

// Session is a fake browser context
type Session struct {
	Viewport interfaces.Viewport
	engine   *Engine
	closes   int
}

func (s *Session) NewPage(ctx context.Context) (interfaces.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Page{engine: s.engine}, nil
}

func (s *Session) Close() error {
	s.engine.mu.Lock()
	defer s.engine.mu.Unlock()
	s.closes++
	return nil
}

// Page is a fake tab
type Page struct {
	engine *Engine
}

func (p *Page) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.engine.mu.Lock()
	p.engine.navigations++
	n := p.engine.navigations
	p.engine.mu.Unlock()

	p.engine.record("navigate", url, "")
	if p.engine.OnNavigate != nil {
		return p.engine.OnNavigate(n)
	}
	return nil
}

func (p *Page) Locate(selector string) interfaces.Element {
	return &Element{engine: p.engine, selector: selector}
}

func (p *Page) LocateVisible(selector string) interfaces.Element {
	return &Element{engine: p.engine, selector: selector, visibleOnly: true}
}

func (p *Page) LocateText(text string) interfaces.Element {
	return &Element{engine: p.engine, selector: TextSelector(text)}
}

func (p *Page) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := os.WriteFile(path, PNG, 0644); err != nil {
		return err
	}
	p.engine.mu.Lock()
	p.engine.screenshots = append(p.engine.screenshots, path)
	p.engine.mu.Unlock()
	return nil
}

func (p *Page) Idle(ctx context.Context, d time.Duration) error {
	p.engine.record("idle", "", d.String())
	return ctx.Err()
}

// Element is a fake lazy element handle
type Element struct {
	engine      *Engine
	selector    string
	visibleOnly bool
}

func (e *Element) Selector() string {
	return e.selector
}

func (e *Element) timeout(op string, d time.Duration) error {
	return fmt.Errorf("%s %s: %w after %s", op, e.selector, interfaces.ErrTimeout, d)
}

// visible reports whether the element resolves to a shown node
func (e *Element) visible() (ElementScript, bool) {
	s, ok := e.engine.lookup(e.selector)
	if !ok || !s.Present {
		return s, false
	}
	return s, e.visibleOnly || !s.FirstHidden
}

func (e *Element) present(op string, d time.Duration) (ElementScript, error) {
	s, ok := e.visible()
	if !ok {
		return s, e.timeout(op, d)
	}
	return s, nil
}

func (e *Element) Fill(ctx context.Context, value string, timeout time.Duration) error {
	s, err := e.present("fill", timeout)
	if err != nil {
		return err
	}
	if s.FillErr != nil {
		return s.FillErr
	}
	e.engine.record("fill", e.selector, value)
	return nil
}

func (e *Element) Click(ctx context.Context, timeout time.Duration) error {
	s, err := e.present("click", timeout)
	if err != nil {
		return err
	}
	if s.ClickErr != nil {
		return s.ClickErr
	}
	e.engine.record("click", e.selector, "")
	if s.OnClick != nil {
		s.OnClick()
	}
	return nil
}

func (e *Element) Screenshot(ctx context.Context, timeout time.Duration) ([]byte, error) {
	s, err := e.present("screenshot", timeout)
	if err != nil {
		return nil, err
	}
	e.engine.record("screenshot", e.selector, "")
	if s.Image != nil {
		return s.Image, nil
	}
	return PNG, nil
}

func (e *Element) ReadText(ctx context.Context, timeout time.Duration) (string, error) {
	s, err := e.present("read text", timeout)
	if err != nil {
		return "", err
	}
	if s.ReadErr != nil {
		return "", s.ReadErr
	}
	return s.Text, nil
}

func (e *Element) ReadHTML(ctx context.Context, timeout time.Duration) (string, error) {
	s, err := e.present("read html", timeout)
	if err != nil {
		return "", err
	}
	if s.ReadErr != nil {
		return "", s.ReadErr
	}
	return s.HTML, nil
}

func (e *Element) IsChecked(ctx context.Context, timeout time.Duration) (bool, error) {
	s, err := e.present("read checked", timeout)
	if err != nil {
		return false, err
	}
	return s.Checked, nil
}

func (e *Element) WaitFor(ctx context.Context, state interfaces.ElementState, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.engine.record("wait", e.selector, string(state))
	s, ok := e.engine.lookup(e.selector)
	attached := ok && s.Present
	_, shown := e.visible()
	switch state {
	case interfaces.StateHidden:
		if shown {
			return e.timeout("wait hidden", timeout)
		}
	case interfaces.StateAttached:
		if !attached {
			return e.timeout("wait attached", timeout)
		}
	default:
		if !shown {
			return e.timeout("wait "+string(state), timeout)
		}
	}
	return nil
}
