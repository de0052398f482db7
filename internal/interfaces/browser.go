package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is wrapped by every browser operation that ran out of time.
// Presence probes treat it as "absent"; everywhere else it is fatal to the attempt.
var ErrTimeout = errors.New("browser operation timed out")

// EngineKind selects which browser binary is launched
type EngineKind string

const (
	EngineChromium EngineKind = "chromium"
	EngineChrome   EngineKind = "chrome"
	EngineEdge     EngineKind = "edge"
)

// ElementState is a waitable element condition
type ElementState string

const (
	StateAttached ElementState = "attached"
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
)

// PresenceResult is the answer of a presence probe
type PresenceResult int

const (
	Absent PresenceResult = iota
	Present
)

func (p PresenceResult) String() string {
	if p == Present {
		return "present"
	}
	return "absent"
}

// Viewport is the session window size
type Viewport struct {
	Width  int
	Height int
}

// Engine is a launched browser shared across users
type Engine interface {
	// NewSession opens an isolated browser context (fresh cookies and storage)
	NewSession(ctx context.Context, viewport Viewport) (Session, error)
	Close() error
}

// Session is scoped to exactly one flow attempt
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	// Close releases the context and every page in it; safe to call more than once
	Close() error
}

// Page is a single tab inside a session
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Locate returns a lazy handle to the first element matching a CSS selector
	Locate(selector string) Element
	// LocateVisible returns a lazy handle to the first visible element matching a CSS selector.
	// Hidden matches earlier in the document are skipped.
	LocateVisible(selector string) Element
	// LocateText returns a lazy handle to the first visible link containing text
	LocateText(text string) Element
	// Screenshot writes a PNG of the page to path
	Screenshot(ctx context.Context, path string, fullPage bool) error
	// Idle waits for d without touching the page
	Idle(ctx context.Context, d time.Duration) error
}

// Element is a lazy element handle; every call resolves the selector again
type Element interface {
	Selector() string
	Fill(ctx context.Context, value string, timeout time.Duration) error
	Click(ctx context.Context, timeout time.Duration) error
	Screenshot(ctx context.Context, timeout time.Duration) ([]byte, error)
	ReadText(ctx context.Context, timeout time.Duration) (string, error)
	ReadHTML(ctx context.Context, timeout time.Duration) (string, error)
	IsChecked(ctx context.Context, timeout time.Duration) (bool, error)
	WaitFor(ctx context.Context, state ElementState, timeout time.Duration) error
}
