package models

// WatchState is the lifecycle state of a watchlist entry.
type WatchState string

const (
	WatchConsolidating WatchState = "consolidating"
	WatchArmed         WatchState = "armed"
)

// WatchlistEntry is a candidate awaiting entry confirmation.
type WatchlistEntry struct {
	AnomalyRecord

	State          WatchState `json:"state"`
	IsConsolidated bool       `json:"is_consolidated"`
	ClosePrice     float64    `json:"close_price"`
	EntryLevel     float64    `json:"entry_level"`
	CancelLevel    float64    `json:"cancel_level"`
	MaxPriceSeen   float64    `json:"max_price_seen"`
	MinPriceSeen   float64    `json:"min_price_seen"`
	LastPrice      float64    `json:"last_price"`
	Checks         int        `json:"checks"`
}

// NewWatchlistEntry wraps a freshly detected anomaly in the consolidating state.
func NewWatchlistEntry(rec AnomalyRecord) *WatchlistEntry {
	return &WatchlistEntry{
		AnomalyRecord: rec,
		State:         WatchConsolidating,
		MaxPriceSeen:  rec.AnomalyPrice,
		MinPriceSeen:  rec.AnomalyPrice,
	}
}

// Observe records a price seen while the entry is watched.
func (w *WatchlistEntry) Observe(price float64) {
	w.LastPrice = price
	if price > w.MaxPriceSeen {
		w.MaxPriceSeen = price
	}
	if w.MinPriceSeen == 0 || price < w.MinPriceSeen {
		w.MinPriceSeen = price
	}
}
