package models

// State is the persisted snapshot of the core.
type State struct {
	Trades     []Trade          `json:"trades"`
	Watchlist  []WatchlistEntry `json:"watchlist"`
	History    []Trade          `json:"history"`
	Statistics Statistics       `json:"statistics"`
}

// Statistics are running counters derived from lifecycle transitions.
type Statistics struct {
	AnomaliesDetected      int            `json:"anomalies_detected"`
	Armed                  int            `json:"armed"`
	Entered                int            `json:"entered"`
	CancelledConsolidation int            `json:"cancelled_consolidation"`
	CancelledLevel         int            `json:"cancelled_level"`
	TimedOut               int            `json:"timed_out"`
	ByDirection            map[string]int `json:"by_direction"`
	LeverageBuckets        map[string]int `json:"leverage_buckets"`
	TradesClosed           int            `json:"trades_closed"`
	Wins                   int            `json:"wins"`
	Losses                 int            `json:"losses"`
	ExitReasons            map[string]int `json:"exit_reasons"`
	TotalPnLPercent        float64        `json:"total_pnl_percent"`
}

// ConversionRate is entered / detected, 0 when nothing was detected.
func (s Statistics) ConversionRate() float64 {
	if s.AnomaliesDetected == 0 {
		return 0
	}
	return float64(s.Entered) / float64(s.AnomaliesDetected)
}

// WinRate is wins / closed trades, 0 when nothing closed.
func (s Statistics) WinRate() float64 {
	if s.TradesClosed == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.TradesClosed)
}
