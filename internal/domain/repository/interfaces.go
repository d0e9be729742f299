package repository

import (
	"context"
	"errors"
	"time"

	"SpikeWatch/internal/domain/models"
)

// ErrUnknownInstrument is returned by MarketData when the instrument does not exist or was delisted.
// Callers must not retry it.
var ErrUnknownInstrument = errors.New("unknown instrument")

// MarketData supplies recent samples, ordered ascending by timestamp.
// A zero since means "the most recent limit samples".
type MarketData interface {
	FetchSamples(ctx context.Context, instrument string, tf Timeframe, since time.Time, limit int) ([]models.Sample, error)
}

// StateStore persists whole-snapshot state. Saves are last-writer-wins.
type StateStore interface {
	LoadState(ctx context.Context) (*models.State, error)
	SaveState(ctx context.Context, state *models.State) error
}

// Notifier delivers lifecycle events. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, event models.Event) error
}

// TradeArchive keeps closed trades for later analysis.
type TradeArchive interface {
	Archive(ctx context.Context, trade *models.Trade) error
}

type Metrics interface {
	RecordJob(band int, name string, seconds float64, err error)
	RecordScanDeferred(reason string)
	RecordQueueDepth(depth int)
	RecordAnomaly(direction string)
	RecordTransition(kind string)
	RecordTradeClosed(reason string, pnlPercent float64)
	RecordFetchError(kind string)
	RecordNotifyFailure(sink string)
	RecordLatency(op string, seconds float64)
}
