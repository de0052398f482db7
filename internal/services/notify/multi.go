package notify

import (
	"context"

	"github.com/ternarybob/autobond/internal/interfaces"
)

// Multi fans a message out to every sink in order
type Multi []interfaces.Notifier

func (m Multi) Send(ctx context.Context, message, title string) {
	for _, n := range m {
		n.Send(ctx, message, title)
	}
}
