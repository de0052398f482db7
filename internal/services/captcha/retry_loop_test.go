package captcha

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/autobond/internal/interfaces"
	"github.com/ternarybob/autobond/internal/models"
	"github.com/ternarybob/autobond/internal/services/browser/browsertest"
)

const imageSelector = "#imgValidCode"

type scriptedSolver struct {
	answers []string
	errs    []error
	calls   int
}

func (s *scriptedSolver) Name() string { return "scripted" }

func (s *scriptedSolver) Solve(ctx context.Context, png []byte) (string, error) {
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	if i < len(s.answers) {
		return s.answers[i], err
	}
	return s.answers[len(s.answers)-1], err
}

func setup(t *testing.T) (*browsertest.Engine, interfaces.Page) {
	t.Helper()
	engine := browsertest.NewEngine()
	engine.Set(imageSelector, browsertest.ElementScript{Present: true})

	session, err := engine.NewSession(context.Background(), interfaces.Viewport{Width: 1920, Height: 1080})
	require.NoError(t, err)
	page, err := session.NewPage(context.Background())
	require.NoError(t, err)
	return engine, page
}

func TestRetryLoop_ExhaustsWithNonDigitSolver(t *testing.T) {
	engine, page := setup(t)
	solver := &scriptedSolver{answers: []string{"ab1x"}}
	loop := NewRetryLoop(solver, 3, time.Second, arbor.NewLogger())

	code, err := loop.Solve(context.Background(), page, page.Locate(imageSelector))

	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCaptchaExhausted)
	assert.Empty(t, code)
	assert.Equal(t, 3, solver.calls)
	assert.Equal(t, 2, engine.Count("click", imageSelector), "refresh between tries only")
	assert.Equal(t, 2, engine.Count("idle", ""))
}

func TestRetryLoop_SucceedsAfterRefresh(t *testing.T) {
	engine, page := setup(t)
	solver := &scriptedSolver{
		answers: []string{"", "12345", "0815"},
		errs:    []error{errors.New("service unavailable")},
	}
	loop := NewRetryLoop(solver, 3, time.Second, arbor.NewLogger())

	code, err := loop.Solve(context.Background(), page, page.Locate(imageSelector))

	require.NoError(t, err)
	assert.Equal(t, "0815", code)
	assert.Equal(t, 3, solver.calls)
	assert.Equal(t, 2, engine.Count("click", imageSelector))
}

func TestRetryLoop_FirstTrySuccessDoesNotRefresh(t *testing.T) {
	engine, page := setup(t)
	solver := &scriptedSolver{answers: []string{"4321"}}
	loop := NewRetryLoop(solver, 3, time.Second, arbor.NewLogger())

	code, err := loop.Solve(context.Background(), page, page.Locate(imageSelector))

	require.NoError(t, err)
	assert.Equal(t, "4321", code)
	assert.Equal(t, 0, engine.Count("click", imageSelector))
}

func TestRetryLoop_MissingImageCountsAsFailedTry(t *testing.T) {
	engine := browsertest.NewEngine()
	session, err := engine.NewSession(context.Background(), interfaces.Viewport{Width: 1920, Height: 1080})
	require.NoError(t, err)
	page, err := session.NewPage(context.Background())
	require.NoError(t, err)

	solver := &scriptedSolver{answers: []string{"1234"}}
	loop := NewRetryLoop(solver, 1, time.Second, arbor.NewLogger())

	_, err = loop.Solve(context.Background(), page, page.Locate(imageSelector))
	assert.ErrorIs(t, err, models.ErrCaptchaExhausted)
	assert.Equal(t, 0, solver.calls)
}

func TestCleanReply(t *testing.T) {
	assert.Equal(t, "1234", cleanReply(" 1234.\n"))
	assert.Equal(t, "1234", cleanReply("`1234`"))
	assert.Equal(t, "5678", cleanReply("5678\nThe digits are shown above"))
}
