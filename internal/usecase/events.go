package usecase

import (
	"context"

	"SpikeWatch/internal/domain/models"
)

// Dispatcher hands lifecycle events to the notification sinks. Dispatch must
// not block state transitions on slow or failing sinks.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.Event)
}

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, models.Event) {}
