package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"
)

// StateProvider exposes scheduler state for status reports.
type StateProvider interface {
	QueueDepth() int
	LastScan() (time.Time, time.Duration)
}

// TradingCore wires the scanner, watchlist and tracker around one Book and
// exposes the scheduler jobs plus read-only snapshots.
type TradingCore struct {
	book      *Book
	stats     *Stats
	cooldown  *CooldownTracker
	scanner   *AnomalyScanner
	watchlist *WatchlistStateMachine
	tracker   *TradeTracker
	events    Dispatcher
	store     drepo.StateStore
	metrics   drepo.Metrics
	universe  []string
	l         *applogger.Logger
	now       func() time.Time

	sched StateProvider

	saveMu       sync.Mutex
	savedVersion uint64
	saved        bool
}

func NewTradingCore(
	book *Book,
	stats *Stats,
	cooldown *CooldownTracker,
	scanner *AnomalyScanner,
	watchlist *WatchlistStateMachine,
	tracker *TradeTracker,
	events Dispatcher,
	store drepo.StateStore,
	metrics drepo.Metrics,
	universe []string,
	l *applogger.Logger,
) *TradingCore {
	if events == nil {
		events = nopDispatcher{}
	}
	return &TradingCore{
		book:      book,
		stats:     stats,
		cooldown:  cooldown,
		scanner:   scanner,
		watchlist: watchlist,
		tracker:   tracker,
		events:    events,
		store:     store,
		metrics:   metrics,
		universe:  append([]string(nil), universe...),
		l:         l.Component("core"),
		now:       time.Now,
	}
}

// SetClock overrides the wall clock of the core and its components.
func (c *TradingCore) SetClock(now func() time.Time) {
	c.now = now
	c.scanner.SetClock(now)
	c.watchlist.SetClock(now)
	c.tracker.SetClock(now)
}

// AttachScheduler lets status reports include queue state.
func (c *TradingCore) AttachScheduler(p StateProvider) { c.sched = p }

// Universe returns the configured instruments.
func (c *TradingCore) Universe() []string { return append([]string(nil), c.universe...) }

// Restore loads persisted state into the book. A missing snapshot is not an error.
func (c *TradingCore) Restore(ctx context.Context) error {
	start := time.Now()
	st, err := c.store.LoadState(ctx)
	c.metrics.RecordLatency("state_load", time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if st == nil {
		c.l.Info("no persisted state, starting empty")
		return nil
	}

	dropped := c.book.Restore(*st)
	c.stats.Restore(st.Statistics)
	if len(dropped) > 0 {
		c.l.Warn("dropped conflicting entries on restore", applogger.Strings("instruments", dropped))
	}

	c.saveMu.Lock()
	c.savedVersion, c.saved = c.book.Version(), true
	c.saveMu.Unlock()

	w, o, h := c.book.Counts()
	c.l.Info("state restored",
		applogger.Int("watchlist", w),
		applogger.Int("open_trades", o),
		applogger.Int("history", h),
	)
	return nil
}

// Persist saves a snapshot if the book changed since the last save.
func (c *TradingCore) Persist(ctx context.Context) error { return c.persist(ctx, false) }

// Flush saves a snapshot unconditionally.
func (c *TradingCore) Flush(ctx context.Context) error { return c.persist(ctx, true) }

func (c *TradingCore) persist(ctx context.Context, force bool) error {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()

	version := c.book.Version()
	if !force && c.saved && version == c.savedVersion {
		return nil
	}

	st := c.Snapshot()
	start := time.Now()
	err := c.store.SaveState(ctx, &st)
	c.metrics.RecordLatency("state_save", time.Since(start).Seconds())
	if err != nil {
		c.l.Error("state save failed, keeping in-memory state", applogger.Error(err))
		return fmt.Errorf("save state: %w", err)
	}
	c.savedVersion, c.saved = version, true
	return nil
}

// Snapshot returns a copy of the whole state including statistics.
func (c *TradingCore) Snapshot() models.State {
	st := c.book.Export()
	st.Statistics = c.stats.Snapshot()
	return st
}

// ScanAnomalies scans the universe and watchlists every anomaly found.
func (c *TradingCore) ScanAnomalies(ctx context.Context) error {
	c.cooldown.Prune(c.now())

	for _, rec := range c.scanner.ScanUniverse(ctx, c.universe) {
		if err := c.watchlist.Accept(ctx, rec); err != nil {
			if errors.Is(err, ErrAlreadyWatchlisted) || errors.Is(err, ErrAlreadyTraded) {
				c.l.Debug("anomaly ignored", applogger.String("instrument", rec.Instrument), applogger.Error(err))
				continue
			}
			c.l.Error("watchlist accept failed", applogger.String("instrument", rec.Instrument), applogger.Error(err))
		}
	}
	return c.Persist(ctx)
}

// MonitorWatchlist advances every watchlist entry by one tick.
func (c *TradingCore) MonitorWatchlist(ctx context.Context) error {
	c.watchlist.Tick(ctx)
	return c.Persist(ctx)
}

// MonitorTrades refreshes open trades and closes those that hit a level.
func (c *TradingCore) MonitorTrades(ctx context.Context) error {
	c.tracker.Monitor(ctx)
	return c.Persist(ctx)
}

// ReportStatus emits a periodic status event.
func (c *TradingCore) ReportStatus(ctx context.Context) error {
	rep := c.Status()
	c.events.Dispatch(ctx, models.Event{
		Type:   models.EventPeriodicStatus,
		At:     rep.At,
		Status: &rep,
	})
	return nil
}

// Status builds a point-in-time report.
func (c *TradingCore) Status() models.StatusReport {
	now := c.now()
	w, o, h := c.book.Counts()
	rep := models.StatusReport{
		At:           now,
		Watchlist:    w,
		OpenTrades:   o,
		ClosedTrades: h,
		CoolingDown:  len(c.cooldown.Snapshot(now)),
		Excluded:     len(c.scanner.Excluded()),
		Statistics:   c.stats.Snapshot(),
	}
	if c.sched != nil {
		rep.QueueDepth = c.sched.QueueDepth()
		start, took := c.sched.LastScan()
		rep.LastScanStart = start
		if !start.IsZero() {
			rep.LastScanTook = took.String()
		}
	}
	return rep
}

func (c *TradingCore) Watchlist() []models.WatchlistEntry { return c.book.Watchlist() }

func (c *TradingCore) Trades() []models.Trade { return c.book.Trades() }

// History returns closed trades, newest first.
func (c *TradingCore) History(instrument string, limit int) []models.Trade {
	return c.book.History(instrument, limit)
}

// Cooldowns maps every cooling-down instrument to its expiry.
func (c *TradingCore) Cooldowns() map[string]time.Time {
	return c.cooldown.Snapshot(c.now())
}

// Excluded lists instruments dropped from scanning.
func (c *TradingCore) Excluded() []string { return c.scanner.Excluded() }
