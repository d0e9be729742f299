package models

import "time"

// Direction is the side a signal or trade is taken on.
type Direction string

const (
	DirectionNone  Direction = ""
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

func (d Direction) Valid() bool {
	return d == DirectionLong || d == DirectionShort
}

// AnomalyRecord describes one detected volume spike.
type AnomalyRecord struct {
	ID                 string    `json:"id"`
	Instrument         string    `json:"instrument"`
	Direction          Direction `json:"direction"`
	DetectedAt         time.Time `json:"detected_at"`
	AnomalyPrice       float64   `json:"anomaly_price"`
	BaselinePrice      float64   `json:"baseline_price"`
	BaselineVolume     float64   `json:"baseline_volume"`
	VolumeLeverage     float64   `json:"volume_leverage"`
	AnomalyCandle      Sample    `json:"anomaly_candle"`
	WatchlistEnteredAt time.Time `json:"watchlist_entered_at"`
}
