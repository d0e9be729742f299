package repository

import (
	"time"

	"SpikeWatch/internal/domain/models"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleState() *models.State {
	closedAt := epoch.Add(2 * time.Hour)
	rec := models.AnomalyRecord{
		ID:             "a-1",
		Instrument:     "ETH/USDT",
		Direction:      models.DirectionShort,
		DetectedAt:     epoch,
		AnomalyPrice:   106,
		BaselinePrice:  100,
		BaselineVolume: 100,
		VolumeLeverage: 3.1,
		AnomalyCandle:  models.Sample{Timestamp: epoch, Open: 104, High: 107, Low: 103, Close: 106, Volume: 310},
	}
	return &models.State{
		Trades: []models.Trade{{
			ID: "t-open", Instrument: "BTC/USDT", Direction: models.DirectionLong,
			EntryPrice: 100, StopLoss: 98, TakeProfit: 102.5, OpenedAt: epoch, Status: models.TradeOpen,
		}},
		Watchlist: []models.WatchlistEntry{{
			AnomalyRecord: rec, State: models.WatchArmed, ClosePrice: 105, EntryLevel: 105.5, CancelLevel: 99.5, Checks: 2,
		}},
		History: []models.Trade{{
			ID: "t-closed", Instrument: "SOL/USDT", Direction: models.DirectionShort,
			EntryPrice: 50, ExitPrice: 49, OpenedAt: epoch, ClosedAt: &closedAt,
			Status: models.TradeClosed, ExitReason: models.ExitTarget, PnLPercent: 2,
		}},
		Statistics: models.Statistics{
			AnomaliesDetected: 3,
			Entered:           2,
			TradesClosed:      1,
			Wins:              1,
			ByDirection:       map[string]int{"short": 2, "long": 1},
			LeverageBuckets:   map[string]int{"<5": 3},
			ExitReasons:       map[string]int{"target": 1},
			TotalPnLPercent:   2,
		},
	}
}
