package marketdata

import (
	"context"
	"errors"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// GuardOptions configures the shared fetch budget and the retry policy.
type GuardOptions struct {
	RequestsPerSec float64
	Burst          int
	RetryAttempts  int
	RetryDelay     time.Duration
}

// Guard wraps a MarketData source with a global request budget and a fixed
// delay retry. Unknown instruments are never retried.
type Guard struct {
	next     drepo.MarketData
	limiter  *rate.Limiter
	attempts int
	delay    time.Duration
	metrics  drepo.Metrics
	l        *applogger.Logger
}

var _ drepo.MarketData = (*Guard)(nil)

func NewGuard(next drepo.MarketData, opts GuardOptions, metrics drepo.Metrics, l *applogger.Logger) *Guard {
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.RetryAttempts < 1 {
		opts.RetryAttempts = 1
	}
	return &Guard{
		next:     next,
		limiter:  rate.NewLimiter(limit, opts.Burst),
		attempts: opts.RetryAttempts,
		delay:    opts.RetryDelay,
		metrics:  metrics,
		l:        l.Component("marketdata"),
	}
}

// FetchSamples waits for the shared budget, then fetches, retrying transient
// failures up to the configured number of attempts.
func (g *Guard) FetchSamples(ctx context.Context, instrument string, tf drepo.Timeframe, since time.Time, limit int) ([]models.Sample, error) {
	var out []models.Sample
	start := time.Now()

	op := func() error {
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		samples, err := g.next.FetchSamples(ctx, instrument, tf, since, limit)
		if err != nil {
			if errors.Is(err, drepo.ErrUnknownInstrument) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = samples
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.delay), uint64(g.attempts-1)),
		ctx,
	)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		g.l.Debug("retrying fetch",
			applogger.String("instrument", instrument),
			applogger.Duration("wait_ms", wait),
			applogger.Error(err),
		)
	})
	g.metrics.RecordLatency("fetch_samples", time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return out, nil
}
