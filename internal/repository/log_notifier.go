package repository

import (
	"context"

	"SpikeWatch/internal/domain/models"
	applogger "SpikeWatch/pkg/logger"
)

// LogNotifier writes every event to the structured log. It never fails.
type LogNotifier struct {
	l *applogger.Logger
}

func NewLogNotifier(l *applogger.Logger) *LogNotifier {
	return &LogNotifier{l: l.Component("events")}
}

func (n *LogNotifier) Name() string { return "log" }

func (n *LogNotifier) Notify(_ context.Context, ev models.Event) error {
	fields := []applogger.Field{
		applogger.String("type", string(ev.Type)),
		applogger.Time("at", ev.At),
	}
	if ev.Instrument != "" {
		fields = append(fields, applogger.String("instrument", ev.Instrument))
	}
	if ev.Reason != "" {
		fields = append(fields, applogger.String("reason", ev.Reason))
	}
	switch {
	case ev.Trade != nil:
		fields = append(fields,
			applogger.String("direction", string(ev.Trade.Direction)),
			applogger.Float64("entry", ev.Trade.EntryPrice),
		)
		if ev.Trade.Status == models.TradeClosed {
			fields = append(fields,
				applogger.Float64("exit", ev.Trade.ExitPrice),
				applogger.String("exit_reason", string(ev.Trade.ExitReason)),
				applogger.Float64("pnl_percent", ev.Trade.PnLPercent),
			)
		}
	case ev.Entry != nil:
		fields = append(fields,
			applogger.String("state", string(ev.Entry.State)),
			applogger.Float64("entry_level", ev.Entry.EntryLevel),
			applogger.Float64("cancel_level", ev.Entry.CancelLevel),
		)
	case ev.Anomaly != nil:
		fields = append(fields,
			applogger.String("direction", string(ev.Anomaly.Direction)),
			applogger.Float64("volume_leverage", ev.Anomaly.VolumeLeverage),
			applogger.Float64("price", ev.Anomaly.AnomalyPrice),
		)
	case ev.Status != nil:
		fields = append(fields,
			applogger.Int("watchlist", ev.Status.Watchlist),
			applogger.Int("open_trades", ev.Status.OpenTrades),
			applogger.Int("closed_trades", ev.Status.ClosedTrades),
		)
	}
	n.l.Info("event", fields...)
	return nil
}
