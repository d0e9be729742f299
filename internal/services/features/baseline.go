package features

import "SpikeWatch/internal/domain/models"

// MeanVolume returns the average volume of the samples, or 0 for none.
func MeanVolume(samples []models.Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s.Volume
	}
	return sum / float64(len(samples))
}

// MeanMidPrice returns the average of (open+close)/2 over the samples, or 0 for none.
func MeanMidPrice(samples []models.Sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s.MidPrice()
	}
	return sum / float64(len(samples))
}

// RelativeChange returns (price-base)/base, or 0 when base is not positive.
func RelativeChange(price, base float64) float64 {
	if base <= 0 {
		return 0
	}
	return (price - base) / base
}

// Leverage is the ratio of volume to its baseline, or 0 when the baseline is not positive.
func Leverage(volume, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	return volume / baseline
}
