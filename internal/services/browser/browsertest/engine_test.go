package browsertest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/autobond/internal/interfaces"
)

func TestPage_HiddenFirstMatch(t *testing.T) {
	engine := NewEngine()
	engine.Set("#btnConfirm", ElementScript{Present: true, FirstHidden: true, Text: "确定"})

	session, err := engine.NewSession(context.Background(), interfaces.Viewport{Width: 800, Height: 600})
	require.NoError(t, err)
	page, err := session.NewPage(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	first := page.Locate("#btnConfirm")
	assert.ErrorIs(t, first.WaitFor(ctx, interfaces.StateVisible, time.Second), interfaces.ErrTimeout)
	assert.NoError(t, first.WaitFor(ctx, interfaces.StateAttached, time.Second))
	assert.ErrorIs(t, first.Click(ctx, time.Second), interfaces.ErrTimeout)

	shown := page.LocateVisible("#btnConfirm")
	assert.NoError(t, shown.WaitFor(ctx, interfaces.StateVisible, time.Second))
	assert.ErrorIs(t, shown.WaitFor(ctx, interfaces.StateHidden, time.Second), interfaces.ErrTimeout)
	require.NoError(t, shown.Click(ctx, time.Second))
	text, err := shown.ReadText(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "确定", text)
	assert.Equal(t, 1, engine.Count("click", "#btnConfirm"))
}

func TestPage_UnscriptedSelectorTimesOut(t *testing.T) {
	page := &Page{engine: NewEngine()}
	el := page.LocateVisible("#missing")
	assert.ErrorIs(t, el.WaitFor(context.Background(), interfaces.StateVisible, time.Second), interfaces.ErrTimeout)
	assert.NoError(t, el.WaitFor(context.Background(), interfaces.StateHidden, time.Second))
}
