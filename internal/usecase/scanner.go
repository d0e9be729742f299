package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	"SpikeWatch/internal/services/features"
	applogger "SpikeWatch/pkg/logger"

	"github.com/google/uuid"
)

// ScannerConfig tunes anomaly detection.
type ScannerConfig struct {
	Timeframe        drepo.Timeframe
	HistoricalWindow int
	VolumeThreshold  float64
	PriceThreshold   float64
	// HighLeverage and FallbackPriceThreshold drive the second direction pass
	// for very strong spikes. Tunable policy.
	HighLeverage           float64
	FallbackPriceThreshold float64
	BatchSize              int
	BatchPause             time.Duration
}

// Occupancy reports whether an instrument is already watchlisted or traded.
type Occupancy interface {
	Occupied(instrument string) bool
}

// AnomalyScanner detects volume spikes against a trailing baseline.
type AnomalyScanner struct {
	cfg       ScannerConfig
	market    drepo.MarketData
	cooldown  *CooldownTracker
	occupancy Occupancy
	metrics   drepo.Metrics
	l         *applogger.Logger
	now       func() time.Time

	mu       sync.Mutex
	excluded map[string]struct{}
}

// NewAnomalyScanner creates a scanner.
func NewAnomalyScanner(
	cfg ScannerConfig,
	market drepo.MarketData,
	cooldown *CooldownTracker,
	occupancy Occupancy,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *AnomalyScanner {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	return &AnomalyScanner{
		cfg:       cfg,
		market:    market,
		cooldown:  cooldown,
		occupancy: occupancy,
		metrics:   metrics,
		l:         l.Component("scanner"),
		now:       time.Now,
		excluded:  make(map[string]struct{}),
	}
}

// SetClock overrides the wall clock.
func (s *AnomalyScanner) SetClock(now func() time.Time) { s.now = now }

// SampleLimit is the number of samples one scan needs.
func (s *AnomalyScanner) SampleLimit() int { return s.cfg.HistoricalWindow + 2 }

// DetermineDirection classifies the anomaly price against the baseline.
// A price above the baseline by more than threshold is Short, below is Long.
func DetermineDirection(anomalyPrice, baselinePrice, threshold float64) models.Direction {
	change := features.RelativeChange(anomalyPrice, baselinePrice)
	switch {
	case change > threshold:
		return models.DirectionShort
	case change < -threshold:
		return models.DirectionLong
	default:
		return models.DirectionNone
	}
}

// Exclude removes an instrument from all future scans.
func (s *AnomalyScanner) Exclude(instrument string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.excluded[instrument] = struct{}{}
}

// IsExcluded reports whether the instrument was permanently dropped.
func (s *AnomalyScanner) IsExcluded(instrument string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.excluded[instrument]
	return ok
}

// Excluded lists the permanently dropped instruments.
func (s *AnomalyScanner) Excluded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.excluded))
	for k := range s.excluded {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Eligible reports whether the instrument may be scanned at the given time.
func (s *AnomalyScanner) Eligible(instrument string, at time.Time) bool {
	if s.IsExcluded(instrument) {
		return false
	}
	if s.occupancy != nil && s.occupancy.Occupied(instrument) {
		return false
	}
	return !s.cooldown.Active(instrument, at)
}

// Scan inspects a single instrument. A nil record with a nil error means there
// is nothing to report this time.
func (s *AnomalyScanner) Scan(ctx context.Context, instrument string) (*models.AnomalyRecord, error) {
	if !s.Eligible(instrument, s.now()) {
		return nil, nil
	}
	samples, err := s.market.FetchSamples(ctx, instrument, s.cfg.Timeframe, time.Time{}, s.SampleLimit())
	if err != nil {
		return nil, s.fetchFailed(instrument, err)
	}
	return s.Evaluate(instrument, samples, s.now()), nil
}

// ScanUniverse scans every eligible instrument in bounded concurrent batches and
// returns the detected anomalies in universe order.
func (s *AnomalyScanner) ScanUniverse(ctx context.Context, universe []string) []models.AnomalyRecord {
	start := s.now()
	eligible := make([]string, 0, len(universe))
	for _, inst := range universe {
		if s.Eligible(inst, start) {
			eligible = append(eligible, inst)
		}
	}

	results := fetchInBatches(ctx, s.market, eligible, s.cfg.Timeframe, s.SampleLimit(), s.cfg.BatchSize, s.cfg.BatchPause)

	var found []models.AnomalyRecord
	skipped := 0
	for _, r := range results {
		if r.err != nil {
			if err := s.fetchFailed(r.instrument, r.err); err != nil {
				skipped++
				s.l.Warn("scan skipped instrument", applogger.String("instrument", r.instrument), applogger.Error(err))
			}
			continue
		}
		if rec := s.Evaluate(r.instrument, r.samples, s.now()); rec != nil {
			found = append(found, *rec)
		}
	}

	s.l.Info("anomaly scan finished",
		applogger.Int("universe", len(universe)),
		applogger.Int("eligible", len(eligible)),
		applogger.Int("skipped", skipped),
		applogger.Int("anomalies", len(found)),
		applogger.Duration("duration_ms", s.now().Sub(start)),
	)
	return found
}

// Evaluate applies the anomaly rules to samples ordered ascending. The
// second-to-last sample is the anomaly candle, the last one confirms it.
// A cooldown is registered whenever the volume condition holds, whether or
// not a direction could be determined.
func (s *AnomalyScanner) Evaluate(instrument string, samples []models.Sample, at time.Time) *models.AnomalyRecord {
	need := s.SampleLimit()
	if len(samples) < need {
		s.l.Debug("not enough samples",
			applogger.String("instrument", instrument),
			applogger.Int("got", len(samples)),
			applogger.Int("need", need),
		)
		return nil
	}
	samples = samples[len(samples)-need:]
	trailing := samples[:s.cfg.HistoricalWindow]
	candle := samples[s.cfg.HistoricalWindow]

	baseVolume := features.MeanVolume(trailing)
	if baseVolume <= 0 || !(candle.Volume > baseVolume*s.cfg.VolumeThreshold) {
		return nil
	}

	leverage := features.Leverage(candle.Volume, baseVolume)
	anomalyPrice := candle.MidPrice()
	basePrice := features.MeanMidPrice(trailing)

	dir := DetermineDirection(anomalyPrice, basePrice, s.cfg.PriceThreshold)
	if dir == models.DirectionNone && leverage > s.cfg.HighLeverage {
		dir = DetermineDirection(anomalyPrice, basePrice, s.cfg.FallbackPriceThreshold)
	}

	s.cooldown.Trigger(instrument, at)
	if dir == models.DirectionNone {
		s.l.Info("volume spike without direction",
			applogger.String("instrument", instrument),
			applogger.Float64("leverage", leverage),
			applogger.Float64("anomaly_price", anomalyPrice),
			applogger.Float64("baseline_price", basePrice),
		)
		return nil
	}

	return &models.AnomalyRecord{
		ID:             uuid.NewString(),
		Instrument:     instrument,
		Direction:      dir,
		DetectedAt:     at,
		AnomalyPrice:   anomalyPrice,
		BaselinePrice:  basePrice,
		BaselineVolume: baseVolume,
		VolumeLeverage: leverage,
		AnomalyCandle:  candle,
	}
}

// fetchFailed classifies a fetch error. Unknown instruments are excluded and
// reported as nil; anything else is returned wrapped.
func (s *AnomalyScanner) fetchFailed(instrument string, err error) error {
	if errors.Is(err, drepo.ErrUnknownInstrument) {
		s.Exclude(instrument)
		s.metrics.RecordFetchError("unknown_instrument")
		s.l.Warn("instrument excluded from scans", applogger.String("instrument", instrument), applogger.Error(err))
		return nil
	}
	s.metrics.RecordFetchError("transient")
	return fmt.Errorf("fetch %s: %w", instrument, err)
}
