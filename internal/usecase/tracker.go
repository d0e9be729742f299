package usecase

import (
	"context"
	"sort"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	"SpikeWatch/pkg/config"
	applogger "SpikeWatch/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TrackerConfig tunes simulated trade management.
type TrackerConfig struct {
	Timeframe       drepo.Timeframe
	StopLoss        float64
	BaseTakeProfit  float64
	TakeProfitBands []config.TakeProfitBand
	// BreakevenTrigger is the fraction of the target distance after which the
	// stop moves to entry. Zero disables it.
	BreakevenTrigger float64
	// MaxHold closes trades that stay open longer. Zero disables it.
	MaxHold    time.Duration
	BatchSize  int
	BatchPause time.Duration
}

// TradeMonitorResult summarises one pass over the open trades.
type TradeMonitorResult struct {
	Updated int
	Skipped int
	Closed  []models.Trade
}

// TradeTracker owns open trades: it opens them with stop and target levels and
// closes them when a level is crossed.
type TradeTracker struct {
	cfg     TrackerConfig
	bands   []config.TakeProfitBand
	market  drepo.MarketData
	book    *Book
	stats   *Stats
	archive drepo.TradeArchive
	events  Dispatcher
	metrics drepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

func NewTradeTracker(
	cfg TrackerConfig,
	market drepo.MarketData,
	book *Book,
	stats *Stats,
	archive drepo.TradeArchive,
	events Dispatcher,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *TradeTracker {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if events == nil {
		events = nopDispatcher{}
	}
	return &TradeTracker{
		cfg:     cfg,
		bands:   monotonicBands(cfg.BaseTakeProfit, cfg.TakeProfitBands),
		market:  market,
		book:    book,
		stats:   stats,
		archive: archive,
		events:  events,
		metrics: metrics,
		l:       l.Component("tracker"),
		now:     time.Now,
	}
}

// SetClock overrides the wall clock.
func (t *TradeTracker) SetClock(now func() time.Time) { t.now = now }

// monotonicBands sorts the bands by leverage and lifts any percent that would
// otherwise step down.
func monotonicBands(base float64, in []config.TakeProfitBand) []config.TakeProfitBand {
	bands := append([]config.TakeProfitBand(nil), in...)
	sort.SliceStable(bands, func(i, j int) bool { return bands[i].MinLeverage < bands[j].MinLeverage })
	floor := base
	for i := range bands {
		if bands[i].Percent < floor {
			bands[i].Percent = floor
		}
		floor = bands[i].Percent
	}
	return bands
}

// TakeProfitPercent returns the target distance for a given volume leverage.
func (t *TradeTracker) TakeProfitPercent(leverage float64) float64 {
	pct := t.cfg.BaseTakeProfit
	for _, b := range t.bands {
		if leverage < b.MinLeverage {
			break
		}
		pct = b.Percent
	}
	return pct
}

// Open builds a new trade with its stop and target levels.
func (t *TradeTracker) Open(instrument string, dir models.Direction, entryPrice, leverage float64, at time.Time) *models.Trade {
	tp := t.TakeProfitPercent(leverage)
	trade := &models.Trade{
		ID:             uuid.NewString(),
		Instrument:     instrument,
		Direction:      dir,
		EntryPrice:     entryPrice,
		VolumeLeverage: leverage,
		OpenedAt:       at,
		LastPrice:      entryPrice,
		LastUpdatedAt:  at,
		Status:         models.TradeOpen,
	}
	if dir == models.DirectionShort {
		trade.StopLoss = entryPrice * (1 + t.cfg.StopLoss)
		trade.TakeProfit = entryPrice * (1 - tp)
	} else {
		trade.StopLoss = entryPrice * (1 - t.cfg.StopLoss)
		trade.TakeProfit = entryPrice * (1 + tp)
	}
	return trade
}

// Update applies a price observation and reports whether the trade closed.
func (t *TradeTracker) Update(trade *models.Trade, price float64, at time.Time) bool {
	if trade.Status != models.TradeOpen {
		return false
	}
	trade.LastPrice = price
	trade.LastUpdatedAt = at

	reason := exitReason(trade, price)
	if reason == "" {
		t.ratchet(trade, price)
		if t.cfg.MaxHold > 0 && at.Sub(trade.OpenedAt) >= t.cfg.MaxHold {
			reason = models.ExitTimeout
		}
	}
	if reason == "" {
		return false
	}

	closedAt := at
	trade.Status = models.TradeClosed
	trade.ExitPrice = price
	trade.ExitReason = reason
	trade.ClosedAt = &closedAt
	trade.PnLPercent = PnLPercent(trade.Direction, trade.EntryPrice, price)
	return true
}

func exitReason(trade *models.Trade, price float64) models.ExitReason {
	if trade.Direction == models.DirectionShort {
		switch {
		case price <= trade.TakeProfit:
			return models.ExitTarget
		case price >= trade.StopLoss:
			return models.ExitStop
		}
		return ""
	}
	switch {
	case price >= trade.TakeProfit:
		return models.ExitTarget
	case price <= trade.StopLoss:
		return models.ExitStop
	}
	return ""
}

// ratchet moves the stop to entry once progress toward the target reaches the
// breakeven trigger. The stop never moves back.
func (t *TradeTracker) ratchet(trade *models.Trade, price float64) {
	if t.cfg.BreakevenTrigger <= 0 || trade.Breakeven {
		return
	}
	distance := trade.TakeProfit - trade.EntryPrice
	if distance == 0 {
		return
	}
	if (price-trade.EntryPrice)/distance >= t.cfg.BreakevenTrigger {
		trade.StopLoss = trade.EntryPrice
		trade.Breakeven = true
		t.l.Info("stop moved to breakeven", applogger.String("instrument", trade.Instrument))
	}
}

// PnLPercent is the signed profit in percent of entry, rounded to 4 places.
func PnLPercent(dir models.Direction, entry, exit float64) float64 {
	if entry == 0 {
		return 0
	}
	e := decimal.NewFromFloat(entry)
	move := decimal.NewFromFloat(exit).Sub(e)
	if dir == models.DirectionShort {
		move = move.Neg()
	}
	return move.Div(e).Mul(decimal.NewFromInt(100)).Round(4).InexactFloat64()
}

// Monitor refreshes every open trade with the latest price, closing those that
// hit a level. Closed trades go to history, the archive and the event sinks.
func (t *TradeTracker) Monitor(ctx context.Context) TradeMonitorResult {
	var res TradeMonitorResult
	trades := t.book.Trades()

	for start := 0; start < len(trades); start += t.cfg.BatchSize {
		if start > 0 && !sleepCtx(ctx, t.cfg.BatchPause) {
			break
		}
		chunk := trades[start:min(start+t.cfg.BatchSize, len(trades))]
		instruments := make([]string, len(chunk))
		for i := range chunk {
			instruments[i] = chunk[i].Instrument
		}

		results := fetchInBatches(ctx, t.market, instruments, t.cfg.Timeframe, 1, len(chunk), 0)
		for i, r := range results {
			sample, ok := latest(r.samples)
			if r.err != nil || !ok {
				res.Skipped++
				if r.err != nil {
					t.metrics.RecordFetchError("transient")
					t.l.Warn("trade price fetch failed", applogger.String("instrument", r.instrument), applogger.Error(r.err))
				}
				continue
			}

			trade := chunk[i]
			if !t.Update(&trade, sample.Close, t.now()) {
				res.Updated++
				if err := t.book.UpdateTrade(trade); err != nil {
					t.l.Error("trade update failed", applogger.String("instrument", trade.Instrument), applogger.Error(err))
				}
				continue
			}
			if t.close(ctx, trade) {
				res.Closed = append(res.Closed, trade)
			}
		}
	}
	return res
}

func (t *TradeTracker) close(ctx context.Context, trade models.Trade) bool {
	if err := t.book.CloseTrade(trade); err != nil {
		t.l.Error("trade close failed", applogger.String("instrument", trade.Instrument), applogger.Error(err))
		return false
	}
	t.stats.RecordClosed(trade)
	t.metrics.RecordTradeClosed(string(trade.ExitReason), trade.PnLPercent)

	if t.archive != nil {
		if err := t.archive.Archive(ctx, &trade); err != nil {
			t.l.Warn("trade archive failed", applogger.String("instrument", trade.Instrument), applogger.Error(err))
		}
	}
	t.events.Dispatch(ctx, models.Event{
		Type:       models.EventTradeClosed,
		Instrument: trade.Instrument,
		At:         *trade.ClosedAt,
		Trade:      &trade,
	})
	t.l.Info("trade closed",
		applogger.String("instrument", trade.Instrument),
		applogger.String("reason", string(trade.ExitReason)),
		applogger.Float64("exit", trade.ExitPrice),
		applogger.Float64("pnl_percent", trade.PnLPercent),
	)
	return true
}
