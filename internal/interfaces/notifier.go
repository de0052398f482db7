package interfaces

import "context"

// Notifier delivers an outcome message to the operator.
// Send is best-effort: transport failures are logged, never returned.
type Notifier interface {
	Send(ctx context.Context, message, title string)
}
