package notifier

import (
	"context"

	"github.com/rl1809/kitties/internal/core/domain"
	"github.com/rl1809/kitties/internal/port"
)

type MultiNotifier []port.Notifier

func (m MultiNotifier) Notify(ctx context.Context, event domain.Event) {
	for _, n := range m {
		n.Notify(ctx, event)
	}
}
