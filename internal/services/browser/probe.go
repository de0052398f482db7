package browser

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/autobond/internal/interfaces"
)

// Probe waits up to timeout for el to reach state.
// Running out of time means Absent and is not an error; any other failure is returned.
func Probe(ctx context.Context, el interfaces.Element, state interfaces.ElementState, timeout time.Duration) (interfaces.PresenceResult, error) {
	err := el.WaitFor(ctx, state, timeout)
	switch {
	case err == nil:
		return interfaces.Present, nil
	case errors.Is(err, interfaces.ErrTimeout):
		return interfaces.Absent, nil
	default:
		return interfaces.Absent, err
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
