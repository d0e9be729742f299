package marketdata

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySource struct {
	mu       sync.Mutex
	failures int
	err      error
	calls    int
}

func (f *flakySource) FetchSamples(context.Context, string, drepo.Timeframe, time.Time, int) ([]models.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return []models.Sample{{Close: 1}}, nil
}

type nopMetrics struct{}

func (nopMetrics) RecordJob(int, string, float64, error) {}
func (nopMetrics) RecordScanDeferred(string)             {}
func (nopMetrics) RecordQueueDepth(int)                  {}
func (nopMetrics) RecordAnomaly(string)                  {}
func (nopMetrics) RecordTransition(string)               {}
func (nopMetrics) RecordTradeClosed(string, float64)     {}
func (nopMetrics) RecordFetchError(string)               {}
func (nopMetrics) RecordNotifyFailure(string)            {}
func (nopMetrics) RecordLatency(string, float64)         {}

func newTestGuard(src drepo.MarketData) *Guard {
	return NewGuard(src, GuardOptions{RetryAttempts: 3, RetryDelay: time.Millisecond}, nopMetrics{}, applogger.Nop())
}

func TestGuardRetries(t *testing.T) {
	transient := errors.New("503")
	tests := []struct {
		name      string
		failures  int
		err       error
		wantCalls int
		wantErr   error
	}{
		{"first try", 0, transient, 1, nil},
		{"recovers on third", 2, transient, 3, nil},
		{"gives up after three", 5, transient, 3, transient},
		{"unknown is not retried", 5, fmt.Errorf("lookup: %w", drepo.ErrUnknownInstrument), 1, drepo.ErrUnknownInstrument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &flakySource{failures: tt.failures, err: tt.err}
			samples, err := newTestGuard(src).FetchSamples(context.Background(), "X", drepo.TF5m, time.Time{}, 1)

			assert.Equal(t, tt.wantCalls, src.calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, samples)
				return
			}
			require.NoError(t, err)
			assert.Len(t, samples, 1)
		})
	}
}

func TestGuardStopsOnCancelledContext(t *testing.T) {
	src := &flakySource{failures: 10, err: errors.New("down")}
	g := NewGuard(src, GuardOptions{RetryAttempts: 3, RetryDelay: time.Hour}, nopMetrics{}, applogger.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := g.FetchSamples(ctx, "X", drepo.TF5m, time.Time{}, 1)

	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGuardRateLimits(t *testing.T) {
	src := &flakySource{}
	g := NewGuard(src, GuardOptions{RequestsPerSec: 20, Burst: 1, RetryAttempts: 1}, nopMetrics{}, applogger.Nop())

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := g.FetchSamples(context.Background(), "X", drepo.TF5m, time.Time{}, 1)
		require.NoError(t, err)
	}
	// burst 1 at 20/s: two waits of ~50ms
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
