package usecase

import (
	"sync"

	"SpikeWatch/internal/domain/models"

	"github.com/shopspring/decimal"
)

// Stats accumulates lifecycle counters. It is safe for concurrent use.
type Stats struct {
	mu sync.Mutex
	s  models.Statistics
}

func NewStats() *Stats {
	st := &Stats{}
	st.s = emptyStatistics()
	return st
}

func emptyStatistics() models.Statistics {
	return models.Statistics{
		ByDirection:     make(map[string]int),
		LeverageBuckets: make(map[string]int),
		ExitReasons:     make(map[string]int),
	}
}

// LeverageBucket names the leverage band a ratio falls into.
func LeverageBucket(leverage float64) string {
	switch {
	case leverage < 5:
		return "<5"
	case leverage < 8:
		return "5-8"
	case leverage < 10:
		return "8-10"
	case leverage < 12:
		return "10-12"
	case leverage < 16:
		return "12-16"
	case leverage < 20:
		return "16-20"
	default:
		return ">=20"
	}
}

func (st *Stats) RecordAnomaly(rec models.AnomalyRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.AnomaliesDetected++
	st.s.ByDirection[string(rec.Direction)]++
	st.s.LeverageBuckets[LeverageBucket(rec.VolumeLeverage)]++
}

func (st *Stats) RecordArmed() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Armed++
}

func (st *Stats) RecordEntered() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.Entered++
}

func (st *Stats) RecordCancelled(reason string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if reason == models.ReasonConsolidation {
		st.s.CancelledConsolidation++
		return
	}
	st.s.CancelledLevel++
}

func (st *Stats) RecordTimedOut() {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.TimedOut++
}

func (st *Stats) RecordClosed(t models.Trade) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.s.TradesClosed++
	st.s.ExitReasons[string(t.ExitReason)]++
	// summed in decimal so long histories do not drift
	st.s.TotalPnLPercent = decimal.NewFromFloat(st.s.TotalPnLPercent).
		Add(decimal.NewFromFloat(t.PnLPercent)).
		Round(4).
		InexactFloat64()
	if t.PnLPercent > 0 {
		st.s.Wins++
	} else {
		st.s.Losses++
	}
}

// Snapshot returns a deep copy of the counters.
func (st *Stats) Snapshot() models.Statistics {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := st.s
	out.ByDirection = copyCounts(st.s.ByDirection)
	out.LeverageBuckets = copyCounts(st.s.LeverageBuckets)
	out.ExitReasons = copyCounts(st.s.ExitReasons)
	return out
}

// Restore replaces the counters with persisted ones.
func (st *Stats) Restore(s models.Statistics) {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.s = s
	st.s.ByDirection = copyCounts(s.ByDirection)
	st.s.LeverageBuckets = copyCounts(s.LeverageBuckets)
	st.s.ExitReasons = copyCounts(s.ExitReasons)
}

func copyCounts(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
