package models

import (
	"math"
	"time"
)

// Sample is one OHLCV bucket for an instrument. Slices of samples are ordered by Timestamp ascending.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// MidPrice is the mean of open and close.
func (s Sample) MidPrice() float64 {
	return (s.Open + s.Close) / 2
}

// RangeRatio is (high-low)/low. A non-positive low yields +Inf, so a corrupt
// candle never reads as a tight range.
func (s Sample) RangeRatio() float64 {
	if s.Low <= 0 {
		return math.Inf(1)
	}
	return (s.High - s.Low) / s.Low
}
