package usecase

import (
	"context"
	"errors"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"
)

// WatchlistConfig tunes the watchlist lifecycle.
type WatchlistConfig struct {
	Timeframe       drepo.Timeframe
	TimeoutCycles   int
	MaxAnomalyRange float64
	EntryOffset     float64
	CancelOffset    float64
	BatchSize       int
	BatchPause      time.Duration
}

// WatchTickResult summarises one pass over the watchlist.
type WatchTickResult struct {
	Processed int
	Skipped   int
	Armed     int
	Entered   int
	Cancelled int
	TimedOut  int
}

// WatchlistStateMachine drives candidates from detection to entry, cancellation
// or timeout. Entries live in the Book; this type only decides transitions.
type WatchlistStateMachine struct {
	cfg     WatchlistConfig
	market  drepo.MarketData
	book    *Book
	tracker *TradeTracker
	stats   *Stats
	events  Dispatcher
	metrics drepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
}

func NewWatchlistStateMachine(
	cfg WatchlistConfig,
	market drepo.MarketData,
	book *Book,
	tracker *TradeTracker,
	stats *Stats,
	events Dispatcher,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *WatchlistStateMachine {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if events == nil {
		events = nopDispatcher{}
	}
	return &WatchlistStateMachine{
		cfg:     cfg,
		market:  market,
		book:    book,
		tracker: tracker,
		stats:   stats,
		events:  events,
		metrics: metrics,
		l:       l.Component("watchlist"),
		now:     time.Now,
	}
}

// SetClock overrides the wall clock.
func (w *WatchlistStateMachine) SetClock(now func() time.Time) { w.now = now }

// EntryLevels computes the entry and cancel levels for an armed entry.
// A Short follows an upward spike: entry sits above the close, cancel below the
// baseline. A Long is mirrored.
func EntryLevels(dir models.Direction, closePrice, baselinePrice, entryOffset, cancelOffset float64) (entry, cancel float64) {
	if dir == models.DirectionShort {
		return closePrice * (1 + entryOffset), baselinePrice * (1 - cancelOffset)
	}
	return closePrice * (1 - entryOffset), baselinePrice * (1 + cancelOffset)
}

// Accept puts a fresh anomaly on the watchlist in the Consolidating state.
func (w *WatchlistStateMachine) Accept(ctx context.Context, rec models.AnomalyRecord) error {
	at := w.now()
	rec.WatchlistEnteredAt = at
	entry := models.NewWatchlistEntry(rec)
	if err := w.book.AddWatch(*entry); err != nil {
		return err
	}

	w.stats.RecordAnomaly(rec)
	w.metrics.RecordAnomaly(string(rec.Direction))
	w.events.Dispatch(ctx, models.Event{
		Type:       models.EventAnomalyDetected,
		Instrument: rec.Instrument,
		At:         at,
		Anomaly:    &rec,
	})
	w.l.Info("anomaly watchlisted",
		applogger.String("instrument", rec.Instrument),
		applogger.String("direction", string(rec.Direction)),
		applogger.Float64("leverage", rec.VolumeLeverage),
	)
	return nil
}

// Tick processes every watchlist entry once, in insertion order and in batches.
// Entries whose price could not be fetched are skipped and their tick is not
// counted. An unknown instrument is the exception: its tick counts, so a
// delisted entry still times out.
func (w *WatchlistStateMachine) Tick(ctx context.Context) WatchTickResult {
	var res WatchTickResult
	entries := w.book.Watchlist()

	for start := 0; start < len(entries); start += w.cfg.BatchSize {
		if start > 0 && !sleepCtx(ctx, w.cfg.BatchPause) {
			break
		}
		chunk := entries[start:min(start+w.cfg.BatchSize, len(entries))]
		instruments := make([]string, len(chunk))
		for i := range chunk {
			instruments[i] = chunk[i].Instrument
		}

		results := fetchInBatches(ctx, w.market, instruments, w.cfg.Timeframe, 1, len(chunk), 0)
		for i, r := range results {
			if r.err != nil {
				if errors.Is(r.err, drepo.ErrUnknownInstrument) {
					// a delisted instrument still ages out
					w.age(ctx, chunk[i], w.now(), &res)
					continue
				}
				res.Skipped++
				w.metrics.RecordFetchError("transient")
				w.l.Warn("watchlist price fetch failed", applogger.String("instrument", r.instrument), applogger.Error(r.err))
				continue
			}
			sample, ok := latest(r.samples)
			if !ok {
				res.Skipped++
				continue
			}
			w.advance(ctx, chunk[i], sample.Close, w.now(), &res)
		}
	}

	if res.Processed > 0 {
		w.l.Debug("watchlist tick",
			applogger.Int("processed", res.Processed),
			applogger.Int("armed", res.Armed),
			applogger.Int("entered", res.Entered),
			applogger.Int("cancelled", res.Cancelled),
			applogger.Int("timed_out", res.TimedOut),
		)
	}
	return res
}

func (w *WatchlistStateMachine) advance(ctx context.Context, e models.WatchlistEntry, price float64, at time.Time, res *WatchTickResult) {
	res.Processed++
	e.Checks++
	e.Observe(price)

	switch e.State {
	case models.WatchConsolidating:
		if e.AnomalyCandle.RangeRatio() > w.cfg.MaxAnomalyRange {
			w.cancel(ctx, e, models.ReasonConsolidation, at)
			res.Cancelled++
			return
		}
		e.ClosePrice = price
		e.EntryLevel, e.CancelLevel = EntryLevels(e.Direction, price, e.BaselinePrice, w.cfg.EntryOffset, w.cfg.CancelOffset)
		e.IsConsolidated = true
		e.State = models.WatchArmed

		res.Armed++
		w.stats.RecordArmed()
		w.metrics.RecordTransition("armed")
		w.events.Dispatch(ctx, models.Event{
			Type:       models.EventWatchlistArmed,
			Instrument: e.Instrument,
			At:         at,
			Entry:      &e,
		})

	case models.WatchArmed:
		if enteredLevel(e, price) {
			if w.enter(ctx, e, price, at) {
				res.Entered++
			}
			return
		}
		if cancelledLevel(e, price) {
			w.cancel(ctx, e, models.ReasonCancel, at)
			res.Cancelled++
			return
		}
	}

	if w.timedOut(ctx, e, at) {
		res.TimedOut++
		return
	}
	if err := w.book.UpdateWatch(e); err != nil {
		w.l.Error("watchlist update failed", applogger.String("instrument", e.Instrument), applogger.Error(err))
	}
}

// age counts a tick for an entry that has no price at all.
func (w *WatchlistStateMachine) age(ctx context.Context, e models.WatchlistEntry, at time.Time, res *WatchTickResult) {
	res.Processed++
	e.Checks++
	if w.timedOut(ctx, e, at) {
		res.TimedOut++
		return
	}
	if err := w.book.UpdateWatch(e); err != nil {
		w.l.Error("watchlist update failed", applogger.String("instrument", e.Instrument), applogger.Error(err))
	}
}

func (w *WatchlistStateMachine) timedOut(ctx context.Context, e models.WatchlistEntry, at time.Time) bool {
	if w.cfg.TimeoutCycles <= 0 || e.Checks < w.cfg.TimeoutCycles {
		return false
	}
	if _, ok := w.book.RemoveWatch(e.Instrument); !ok {
		return false
	}
	w.stats.RecordTimedOut()
	w.metrics.RecordTransition("timed_out")
	w.events.Dispatch(ctx, models.Event{
		Type:       models.EventWatchlistTimedOut,
		Instrument: e.Instrument,
		At:         at,
		Entry:      &e,
	})
	w.l.Info("watchlist entry timed out", applogger.String("instrument", e.Instrument), applogger.Int("checks", e.Checks))
	return true
}

func (w *WatchlistStateMachine) cancel(ctx context.Context, e models.WatchlistEntry, reason string, at time.Time) {
	if _, ok := w.book.RemoveWatch(e.Instrument); !ok {
		return
	}
	w.stats.RecordCancelled(reason)
	w.metrics.RecordTransition("cancelled_" + reason)
	w.events.Dispatch(ctx, models.Event{
		Type:       models.EventWatchlistCancelled,
		Instrument: e.Instrument,
		At:         at,
		Reason:     reason,
		Entry:      &e,
	})
	w.l.Info("watchlist entry cancelled",
		applogger.String("instrument", e.Instrument),
		applogger.String("reason", reason),
		applogger.Float64("price", e.LastPrice),
	)
}

func (w *WatchlistStateMachine) enter(ctx context.Context, e models.WatchlistEntry, price float64, at time.Time) bool {
	trade := w.tracker.Open(e.Instrument, e.Direction, price, e.VolumeLeverage, at)
	trade.AnomalyID = e.ID
	if err := w.book.Promote(*trade); err != nil {
		w.l.Error("promote to trade failed", applogger.String("instrument", e.Instrument), applogger.Error(err))
		return false
	}

	w.stats.RecordEntered()
	w.metrics.RecordTransition("entered")
	w.events.Dispatch(ctx, models.Event{
		Type:       models.EventTradeOpened,
		Instrument: e.Instrument,
		At:         at,
		Entry:      &e,
		Trade:      trade,
	})
	w.l.Info("trade opened",
		applogger.String("instrument", trade.Instrument),
		applogger.String("direction", string(trade.Direction)),
		applogger.Float64("entry", trade.EntryPrice),
		applogger.Float64("stop_loss", trade.StopLoss),
		applogger.Float64("take_profit", trade.TakeProfit),
	)
	return true
}

func enteredLevel(e models.WatchlistEntry, price float64) bool {
	if e.Direction == models.DirectionShort {
		return price >= e.EntryLevel
	}
	return price <= e.EntryLevel
}

func cancelledLevel(e models.WatchlistEntry, price float64) bool {
	if e.Direction == models.DirectionShort {
		return price <= e.CancelLevel
	}
	return price >= e.CancelLevel
}
