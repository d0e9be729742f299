package usecase

import (
	"context"
	"sync"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	"SpikeWatch/pkg/config"
	applogger "SpikeWatch/pkg/logger"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *manualClock { return &manualClock{t: epoch} }

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakeMarket serves canned samples. The latest price of an instrument can be
// moved with SetPrice, which appends a flat sample.
type fakeMarket struct {
	mu      sync.Mutex
	samples map[string][]models.Sample
	errs    map[string]error
	calls   map[string]int
}

func newFakeMarket() *fakeMarket {
	return &fakeMarket{
		samples: make(map[string][]models.Sample),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

func (m *fakeMarket) FetchSamples(_ context.Context, instrument string, _ drepo.Timeframe, _ time.Time, limit int) ([]models.Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[instrument]++
	if err := m.errs[instrument]; err != nil {
		return nil, err
	}
	s := m.samples[instrument]
	if limit > 0 && len(s) > limit {
		s = s[len(s)-limit:]
	}
	return append([]models.Sample(nil), s...), nil
}

func (m *fakeMarket) Set(instrument string, samples []models.Sample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[instrument] = samples
}

func (m *fakeMarket) SetPrice(instrument string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples[instrument] = append(m.samples[instrument], flat(price, 100))
}

func (m *fakeMarket) Fail(instrument string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[instrument] = err
}

func (m *fakeMarket) Calls(instrument string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[instrument]
}

func flat(price, volume float64) models.Sample {
	return models.Sample{Open: price, High: price, Low: price, Close: price, Volume: volume}
}

// spikeSeries returns window flat samples at (100, 100), the anomaly candle and
// a confirmation candle.
func spikeSeries(window int, anomaly models.Sample, confirm models.Sample) []models.Sample {
	out := make([]models.Sample, 0, window+2)
	for i := 0; i < window; i++ {
		out = append(out, flat(100, 100))
	}
	return append(out, anomaly, confirm)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []models.Event
}

func (d *recordingDispatcher) Dispatch(_ context.Context, ev models.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, ev)
}

func (d *recordingDispatcher) Types() []models.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.EventType, 0, len(d.events))
	for _, ev := range d.events {
		out = append(out, ev.Type)
	}
	return out
}

func (d *recordingDispatcher) Last() models.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.events[len(d.events)-1]
}

type nopMetrics struct{}

func (nopMetrics) RecordJob(int, string, float64, error) {}
func (nopMetrics) RecordScanDeferred(string)             {}
func (nopMetrics) RecordQueueDepth(int)                  {}
func (nopMetrics) RecordAnomaly(string)                  {}
func (nopMetrics) RecordTransition(string)               {}
func (nopMetrics) RecordTradeClosed(string, float64)     {}
func (nopMetrics) RecordFetchError(string)               {}
func (nopMetrics) RecordNotifyFailure(string)            {}
func (nopMetrics) RecordLatency(string, float64)         {}

type memStore struct {
	mu    sync.Mutex
	state *models.State
	saves int
	err   error
}

func (s *memStore) LoadState(context.Context) (*models.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == nil {
		return nil, nil
	}
	cp := *s.state
	return &cp, nil
}

func (s *memStore) SaveState(_ context.Context, st *models.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	cp := *st
	s.state = &cp
	s.saves++
	return nil
}

func (s *memStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

type memArchive struct {
	mu     sync.Mutex
	trades []models.Trade
}

func (a *memArchive) Archive(_ context.Context, t *models.Trade) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, *t)
	return nil
}

func testScannerConfig() ScannerConfig {
	return ScannerConfig{
		Timeframe:              drepo.TF5m,
		HistoricalWindow:       20,
		VolumeThreshold:        3,
		PriceThreshold:         0.01,
		HighLeverage:           20,
		FallbackPriceThreshold: 0.005,
		BatchSize:              10,
	}
}

func testWatchlistConfig() WatchlistConfig {
	return WatchlistConfig{
		Timeframe:       drepo.TF5m,
		TimeoutCycles:   6,
		MaxAnomalyRange: 0.08,
		EntryOffset:     0.005,
		CancelOffset:    0.005,
		BatchSize:       5,
	}
}

func testTrackerConfig() TrackerConfig {
	return TrackerConfig{
		Timeframe:       drepo.TF5m,
		StopLoss:        0.02,
		BaseTakeProfit:  0.025,
		TakeProfitBands: config.DefaultTakeProfitBands(),
		BatchSize:       5,
	}
}

type harness struct {
	clock     *manualClock
	market    *fakeMarket
	events    *recordingDispatcher
	store     *memStore
	archive   *memArchive
	book      *Book
	stats     *Stats
	cooldown  *CooldownTracker
	scanner   *AnomalyScanner
	watchlist *WatchlistStateMachine
	tracker   *TradeTracker
	core      *TradingCore
}

func newHarness(universe ...string) *harness {
	h := &harness{
		clock:    newClock(),
		market:   newFakeMarket(),
		events:   &recordingDispatcher{},
		store:    &memStore{},
		archive:  &memArchive{},
		book:     NewBook(),
		stats:    NewStats(),
		cooldown: NewCooldownTracker(time.Hour),
	}
	l := applogger.Nop()
	h.scanner = NewAnomalyScanner(testScannerConfig(), h.market, h.cooldown, h.book, nopMetrics{}, l)
	h.tracker = NewTradeTracker(testTrackerConfig(), h.market, h.book, h.stats, h.archive, h.events, nopMetrics{}, l)
	h.watchlist = NewWatchlistStateMachine(testWatchlistConfig(), h.market, h.book, h.tracker, h.stats, h.events, nopMetrics{}, l)
	h.core = NewTradingCore(h.book, h.stats, h.cooldown, h.scanner, h.watchlist, h.tracker, h.events, h.store, nopMetrics{}, universe, l)
	h.core.SetClock(h.clock.Now)
	return h
}

// spikeUp is a Short anomaly candle: mid price 105 against a baseline of 100,
// volume 3.1x the baseline and a 3.9% range.
func spikeUp() models.Sample {
	return models.Sample{Open: 104, High: 107, Low: 103, Close: 106, Volume: 310}
}

// spikeDown is the Long mirror: mid price 95.
func spikeDown() models.Sample {
	return models.Sample{Open: 96, High: 97, Low: 93, Close: 94, Volume: 400}
}
