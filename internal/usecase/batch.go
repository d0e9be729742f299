package usecase

import (
	"context"
	"sync"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
)

type fetchResult struct {
	instrument string
	samples    []models.Sample
	err        error
}

// fetchInBatches fetches samples for every instrument with at most batchSize
// calls in flight, waiting for each batch and pausing before the next one.
// Results keep the input order.
func fetchInBatches(
	ctx context.Context,
	market drepo.MarketData,
	instruments []string,
	tf drepo.Timeframe,
	limit int,
	batchSize int,
	pause time.Duration,
) []fetchResult {
	out := make([]fetchResult, len(instruments))
	if batchSize < 1 {
		batchSize = 1
	}

	for start := 0; start < len(instruments); start += batchSize {
		if start > 0 && !sleepCtx(ctx, pause) {
			for i := start; i < len(instruments); i++ {
				out[i] = fetchResult{instrument: instruments[i], err: ctx.Err()}
			}
			break
		}

		end := min(start+batchSize, len(instruments))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				samples, err := market.FetchSamples(ctx, instruments[i], tf, time.Time{}, limit)
				out[i] = fetchResult{instrument: instruments[i], samples: samples, err: err}
			}(i)
		}
		wg.Wait()
	}
	return out
}

// sleepCtx waits for d or until ctx is done. It returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// latest returns the last sample, if any.
func latest(samples []models.Sample) (models.Sample, bool) {
	if len(samples) == 0 {
		return models.Sample{}, false
	}
	return samples[len(samples)-1], true
}
