package usecase

import (
	"testing"

	"SpikeWatch/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestLeverageBucket(t *testing.T) {
	tests := map[float64]string{
		3:    "<5",
		5:    "5-8",
		8:    "8-10",
		11:   "10-12",
		12:   "12-16",
		19.9: "16-20",
		20:   ">=20",
	}
	for lev, want := range tests {
		assert.Equal(t, want, LeverageBucket(lev), "leverage %v", lev)
	}
}

func TestStatsCounters(t *testing.T) {
	st := NewStats()
	st.RecordAnomaly(models.AnomalyRecord{Direction: models.DirectionShort, VolumeLeverage: 9})
	st.RecordAnomaly(models.AnomalyRecord{Direction: models.DirectionLong, VolumeLeverage: 25})
	st.RecordArmed()
	st.RecordEntered()
	st.RecordCancelled(models.ReasonConsolidation)
	st.RecordCancelled(models.ReasonCancel)
	st.RecordTimedOut()
	st.RecordClosed(models.Trade{ExitReason: models.ExitTarget, PnLPercent: 3})
	st.RecordClosed(models.Trade{ExitReason: models.ExitStop, PnLPercent: -2})

	s := st.Snapshot()
	assert.Equal(t, 2, s.AnomaliesDetected)
	assert.Equal(t, 1, s.ByDirection["short"])
	assert.Equal(t, 1, s.LeverageBuckets[">=20"])
	assert.Equal(t, 1, s.CancelledConsolidation)
	assert.Equal(t, 1, s.CancelledLevel)
	assert.Equal(t, 1, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1.0, s.TotalPnLPercent)

	s.ByDirection["short"] = 100
	assert.Equal(t, 1, st.Snapshot().ByDirection["short"])
}

func TestStatsPnLSumDoesNotDrift(t *testing.T) {
	st := NewStats()
	for i := 0; i < 10; i++ {
		st.RecordClosed(models.Trade{ExitReason: models.ExitTarget, PnLPercent: 0.1})
	}
	st.RecordClosed(models.Trade{ExitReason: models.ExitStop, PnLPercent: 0.2})

	s := st.Snapshot()
	assert.Equal(t, 1.2, s.TotalPnLPercent)
	assert.Equal(t, 11, s.TradesClosed)
}
