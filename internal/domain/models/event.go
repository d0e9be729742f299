package models

import "time"

// EventType enumerates lifecycle notifications.
type EventType string

const (
	EventAnomalyDetected    EventType = "anomaly_detected"
	EventWatchlistArmed     EventType = "watchlist_armed"
	EventWatchlistCancelled EventType = "watchlist_cancelled"
	EventWatchlistTimedOut  EventType = "watchlist_timed_out"
	EventTradeOpened        EventType = "trade_opened"
	EventTradeClosed        EventType = "trade_closed"
	EventPeriodicStatus     EventType = "periodic_status"
)

// Cancellation reasons carried by EventWatchlistCancelled.
const (
	ReasonConsolidation = "consolidation"
	ReasonCancel        = "cancel"
)

// Event is a single notification emitted by the core.
type Event struct {
	Type       EventType       `json:"type"`
	Instrument string          `json:"instrument,omitempty"`
	At         time.Time       `json:"at"`
	Reason     string          `json:"reason,omitempty"`
	Anomaly    *AnomalyRecord  `json:"anomaly,omitempty"`
	Entry      *WatchlistEntry `json:"entry,omitempty"`
	Trade      *Trade          `json:"trade,omitempty"`
	Status     *StatusReport   `json:"status,omitempty"`
}

// StatusReport is the payload of a periodic status event and of the status API.
type StatusReport struct {
	At            time.Time  `json:"at"`
	Watchlist     int        `json:"watchlist"`
	OpenTrades    int        `json:"open_trades"`
	ClosedTrades  int        `json:"closed_trades"`
	CoolingDown   int        `json:"cooling_down"`
	Excluded      int        `json:"excluded"`
	QueueDepth    int        `json:"queue_depth"`
	LastScanStart time.Time  `json:"last_scan_start"`
	LastScanTook  string     `json:"last_scan_took"`
	Statistics    Statistics `json:"statistics"`
}
