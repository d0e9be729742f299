package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineDirection(t *testing.T) {
	tests := []struct {
		name      string
		price     float64
		baseline  float64
		threshold float64
		want      models.Direction
	}{
		{"spike up is short", 105, 100, 0.01, models.DirectionShort},
		{"spike down is long", 95, 100, 0.01, models.DirectionLong},
		{"inside band", 100.5, 100, 0.01, models.DirectionNone},
		{"exactly on threshold", 101, 100, 0.01, models.DirectionNone},
		{"lower threshold", 100.7, 100, 0.005, models.DirectionShort},
		{"no baseline", 105, 0, 0.01, models.DirectionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineDirection(tt.price, tt.baseline, tt.threshold))
		})
	}
}

func TestScanDetectsSpike(t *testing.T) {
	h := newHarness("SPK/USDT")
	h.market.Set("SPK/USDT", spikeSeries(20, spikeUp(), flat(105, 120)))

	rec, err := h.scanner.Scan(context.Background(), "SPK/USDT")
	require.NoError(t, err)
	require.NotNil(t, rec)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "SPK/USDT", rec.Instrument)
	assert.Equal(t, models.DirectionShort, rec.Direction)
	assert.InDelta(t, 105.0, rec.AnomalyPrice, 1e-9)
	assert.InDelta(t, 100.0, rec.BaselinePrice, 1e-9)
	assert.InDelta(t, 100.0, rec.BaselineVolume, 1e-9)
	assert.InDelta(t, 3.1, rec.VolumeLeverage, 1e-9)
	assert.Equal(t, epoch, rec.DetectedAt)
	assert.Equal(t, spikeUp(), rec.AnomalyCandle)
	assert.True(t, h.cooldown.Active("SPK/USDT", epoch.Add(59*time.Minute)))
	assert.False(t, h.cooldown.Active("SPK/USDT", epoch.Add(time.Hour)))
}

func TestScanVolumeThresholdIsStrict(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		want   bool
	}{
		{"exactly threshold", 300, false},
		{"just above", 300.0001, true},
		{"below", 250, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			c := spikeUp()
			c.Volume = tt.volume
			rec := h.scanner.Evaluate("X", spikeSeries(20, c, flat(105, 100)), epoch)
			assert.Equal(t, tt.want, rec != nil)
			assert.Equal(t, tt.want, h.cooldown.Active("X", epoch))
		})
	}
}

func TestScanZeroBaselineNeverTriggers(t *testing.T) {
	h := newHarness()
	series := make([]models.Sample, 0, 22)
	for i := 0; i < 20; i++ {
		series = append(series, flat(100, 0))
	}
	series = append(series, spikeUp(), flat(105, 0))

	assert.Nil(t, h.scanner.Evaluate("X", series, epoch))
	assert.False(t, h.cooldown.Active("X", epoch))
}

func TestScanInsufficientSamples(t *testing.T) {
	h := newHarness()
	series := spikeSeries(20, spikeUp(), flat(105, 100))
	h.market.Set("X", series[1:])

	rec, err := h.scanner.Scan(context.Background(), "X")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 1, h.market.Calls("X"))
	assert.False(t, h.cooldown.Active("X", epoch))
}

func TestScanUndeterminedDirectionStillCoolsDown(t *testing.T) {
	h := newHarness()
	c := models.Sample{Open: 100, High: 101, Low: 99.5, Close: 101, Volume: 500}

	assert.Nil(t, h.scanner.Evaluate("X", spikeSeries(20, c, flat(100, 100)), epoch))
	assert.True(t, h.cooldown.Active("X", epoch))
}

func TestScanFallbackForHighLeverage(t *testing.T) {
	tests := []struct {
		name   string
		volume float64
		want   models.Direction
	}{
		{"leverage above bound uses fallback", 2500, models.DirectionShort},
		{"leverage below bound gives up", 1500, models.DirectionNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			// mid price 100.7: 0.7% above baseline
			c := models.Sample{Open: 100.4, High: 101.2, Low: 100.2, Close: 101.0, Volume: tt.volume}
			rec := h.scanner.Evaluate("X", spikeSeries(20, c, flat(100.8, 100)), epoch)
			if tt.want == models.DirectionNone {
				assert.Nil(t, rec)
				return
			}
			require.NotNil(t, rec)
			assert.Equal(t, tt.want, rec.Direction)
		})
	}
}

func TestScanExcludesUnknownInstrument(t *testing.T) {
	h := newHarness()
	h.market.Fail("GONE/USDT", fmt.Errorf("symbol lookup: %w", drepo.ErrUnknownInstrument))

	rec, err := h.scanner.Scan(context.Background(), "GONE/USDT")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.True(t, h.scanner.IsExcluded("GONE/USDT"))
	assert.Equal(t, []string{"GONE/USDT"}, h.scanner.Excluded())

	_ = h.scanner.ScanUniverse(context.Background(), []string{"GONE/USDT"})
	assert.Equal(t, 1, h.market.Calls("GONE/USDT"))
}

func TestScanTransientErrorIsReturned(t *testing.T) {
	h := newHarness()
	boom := errors.New("connection reset")
	h.market.Fail("X", boom)

	_, err := h.scanner.Scan(context.Background(), "X")
	assert.ErrorIs(t, err, boom)
	assert.False(t, h.scanner.IsExcluded("X"))
}

func TestScanUniverseSkipsBusyInstruments(t *testing.T) {
	h := newHarness()
	for _, inst := range []string{"COOL", "WATCHED", "FREE"} {
		h.market.Set(inst, spikeSeries(20, spikeUp(), flat(105, 100)))
	}
	h.cooldown.Trigger("COOL", epoch.Add(-30*time.Minute))
	require.NoError(t, h.book.AddWatch(*models.NewWatchlistEntry(models.AnomalyRecord{Instrument: "WATCHED"})))

	found := h.scanner.ScanUniverse(context.Background(), []string{"COOL", "WATCHED", "FREE"})

	require.Len(t, found, 1)
	assert.Equal(t, "FREE", found[0].Instrument)
	assert.Zero(t, h.market.Calls("COOL"))
	assert.Zero(t, h.market.Calls("WATCHED"))
}

func TestScanUniverseKeepsOrderAcrossBatches(t *testing.T) {
	h := newHarness()
	cfg := testScannerConfig()
	cfg.BatchSize = 2
	h.scanner = NewAnomalyScanner(cfg, h.market, h.cooldown, h.book, nopMetrics{}, applogger.Nop())
	h.scanner.SetClock(h.clock.Now)

	universe := []string{"A", "B", "C", "D", "E"}
	for _, inst := range universe {
		h.market.Set(inst, spikeSeries(20, spikeUp(), flat(105, 100)))
	}

	found := h.scanner.ScanUniverse(context.Background(), universe)
	require.Len(t, found, 5)
	for i, rec := range found {
		assert.Equal(t, universe[i], rec.Instrument)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	series := spikeSeries(20, spikeDown(), flat(95, 100))

	a := newHarness().scanner.Evaluate("X", series, epoch)
	b := newHarness().scanner.Evaluate("X", series, epoch)
	require.NotNil(t, a)
	require.NotNil(t, b)

	a.ID, b.ID = "", ""
	assert.Equal(t, *a, *b)
	assert.Equal(t, models.DirectionLong, a.Direction)
}
