package models

import "time"

type TradeStatus string

const (
	TradeOpen   TradeStatus = "open"
	TradeClosed TradeStatus = "closed"
)

// ExitReason says why a trade was closed.
type ExitReason string

const (
	ExitTarget  ExitReason = "target"
	ExitStop    ExitReason = "stop"
	ExitTimeout ExitReason = "timeout"
)

// Trade is a simulated position.
type Trade struct {
	ID             string      `json:"id"`
	Instrument     string      `json:"instrument"`
	Direction      Direction   `json:"direction"`
	EntryPrice     float64     `json:"entry_price"`
	StopLoss       float64     `json:"stop_loss"`
	TakeProfit     float64     `json:"take_profit"`
	VolumeLeverage float64     `json:"volume_leverage"`
	AnomalyID      string      `json:"anomaly_id,omitempty"`
	OpenedAt       time.Time   `json:"opened_at"`
	LastPrice      float64     `json:"last_price"`
	LastUpdatedAt  time.Time   `json:"last_updated_at"`
	Breakeven      bool        `json:"breakeven"`
	Status         TradeStatus `json:"status"`
	ExitPrice      float64     `json:"exit_price,omitempty"`
	ExitReason     ExitReason  `json:"exit_reason,omitempty"`
	ClosedAt       *time.Time  `json:"closed_at,omitempty"`
	PnLPercent     float64     `json:"pnl_percent"`
}

// IsWin reports whether a closed trade ended in profit.
func (t *Trade) IsWin() bool {
	return t.Status == TradeClosed && t.PnLPercent > 0
}
