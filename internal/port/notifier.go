package port

import (
	"context"

	"github.com/rl1809/kitties/internal/core/domain"
)

// Notifier publishes ledger events. Delivery is best effort and never reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, event domain.Event)
}
