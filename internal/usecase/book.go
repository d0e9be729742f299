package usecase

import (
	"errors"
	"fmt"
	"sync"

	"SpikeWatch/internal/domain/models"
)

var (
	ErrAlreadyWatchlisted = errors.New("instrument already watchlisted")
	ErrAlreadyTraded      = errors.New("instrument already has an open trade")
	ErrNotWatchlisted     = errors.New("instrument not watchlisted")
	ErrNoOpenTrade        = errors.New("instrument has no open trade")
)

// Book is the in-memory source of truth for watchlist entries, open trades and
// closed trade history. An instrument is held by at most one of the watchlist
// and the open trades at any time. Readers get copies.
type Book struct {
	mu sync.RWMutex

	watch      map[string]*models.WatchlistEntry
	watchOrder []string
	trades     map[string]*models.Trade
	tradeOrder []string
	history    []models.Trade

	version uint64
}

// NewBook creates an empty book.
func NewBook() *Book {
	return &Book{
		watch:  make(map[string]*models.WatchlistEntry),
		trades: make(map[string]*models.Trade),
	}
}

// Occupied reports whether the instrument is watchlisted or traded.
func (b *Book) Occupied(instrument string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.occupiedLocked(instrument) != nil
}

func (b *Book) occupiedLocked(instrument string) error {
	if _, ok := b.watch[instrument]; ok {
		return ErrAlreadyWatchlisted
	}
	if _, ok := b.trades[instrument]; ok {
		return ErrAlreadyTraded
	}
	return nil
}

// AddWatch inserts a new watchlist entry. Double inserts are rejected.
func (b *Book) AddWatch(e models.WatchlistEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.occupiedLocked(e.Instrument); err != nil {
		return fmt.Errorf("add %s: %w", e.Instrument, err)
	}
	b.watch[e.Instrument] = &e
	b.watchOrder = append(b.watchOrder, e.Instrument)
	b.version++
	return nil
}

// UpdateWatch replaces the stored copy of an existing entry.
func (b *Book) UpdateWatch(e models.WatchlistEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.watch[e.Instrument]; !ok {
		return fmt.Errorf("update %s: %w", e.Instrument, ErrNotWatchlisted)
	}
	b.watch[e.Instrument] = &e
	b.version++
	return nil
}

// RemoveWatch deletes the entry and returns it.
func (b *Book) RemoveWatch(instrument string) (models.WatchlistEntry, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.watch[instrument]
	if !ok {
		return models.WatchlistEntry{}, false
	}
	b.removeWatchLocked(instrument)
	b.version++
	return *e, true
}

func (b *Book) removeWatchLocked(instrument string) {
	delete(b.watch, instrument)
	b.watchOrder = removeKey(b.watchOrder, instrument)
}

// Promote atomically replaces the instrument's watchlist entry with an open trade.
func (b *Book) Promote(t models.Trade) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.watch[t.Instrument]; !ok {
		return fmt.Errorf("promote %s: %w", t.Instrument, ErrNotWatchlisted)
	}
	if _, ok := b.trades[t.Instrument]; ok {
		return fmt.Errorf("promote %s: %w", t.Instrument, ErrAlreadyTraded)
	}
	b.removeWatchLocked(t.Instrument)
	b.trades[t.Instrument] = &t
	b.tradeOrder = append(b.tradeOrder, t.Instrument)
	b.version++
	return nil
}

// UpdateTrade replaces the stored copy of an open trade.
func (b *Book) UpdateTrade(t models.Trade) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.trades[t.Instrument]; !ok {
		return fmt.Errorf("update %s: %w", t.Instrument, ErrNoOpenTrade)
	}
	b.trades[t.Instrument] = &t
	b.version++
	return nil
}

// CloseTrade removes the open trade and appends the closed copy to history.
func (b *Book) CloseTrade(t models.Trade) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.trades[t.Instrument]; !ok {
		return fmt.Errorf("close %s: %w", t.Instrument, ErrNoOpenTrade)
	}
	delete(b.trades, t.Instrument)
	b.tradeOrder = removeKey(b.tradeOrder, t.Instrument)
	b.history = append(b.history, t)
	b.version++
	return nil
}

// Watchlist returns the entries in insertion order.
func (b *Book) Watchlist() []models.WatchlistEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.WatchlistEntry, 0, len(b.watchOrder))
	for _, k := range b.watchOrder {
		out = append(out, *b.watch[k])
	}
	return out
}

// Trades returns the open trades in the order they were opened.
func (b *Book) Trades() []models.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Trade, 0, len(b.tradeOrder))
	for _, k := range b.tradeOrder {
		out = append(out, *b.trades[k])
	}
	return out
}

// History returns closed trades, newest first. An empty instrument matches all,
// and limit <= 0 means no limit.
func (b *Book) History(instrument string, limit int) []models.Trade {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Trade, 0)
	for i := len(b.history) - 1; i >= 0; i-- {
		if instrument != "" && b.history[i].Instrument != instrument {
			continue
		}
		out = append(out, b.history[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Counts returns the sizes of the watchlist, open trades and history.
func (b *Book) Counts() (watch, open, closed int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.watch), len(b.trades), len(b.history)
}

// Version increases on every mutation.
func (b *Book) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Export copies the book into a persistable state without statistics.
// History is kept oldest first.
func (b *Book) Export() models.State {
	st := models.State{
		Trades:    b.Trades(),
		Watchlist: b.Watchlist(),
	}
	b.mu.RLock()
	st.History = append([]models.Trade{}, b.history...)
	b.mu.RUnlock()
	return st
}

// Restore replaces the book's content with a loaded state. Open trades win over
// watchlist entries for the same instrument, and duplicates keep the first
// occurrence. It returns the instruments that were dropped.
func (b *Book) Restore(st models.State) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.watch = make(map[string]*models.WatchlistEntry)
	b.trades = make(map[string]*models.Trade)
	b.watchOrder = nil
	b.tradeOrder = nil
	b.history = nil

	var dropped []string
	for i := range st.Trades {
		t := st.Trades[i]
		if _, dup := b.trades[t.Instrument]; dup || t.Instrument == "" {
			dropped = append(dropped, t.Instrument)
			continue
		}
		b.trades[t.Instrument] = &t
		b.tradeOrder = append(b.tradeOrder, t.Instrument)
	}
	for i := range st.Watchlist {
		e := st.Watchlist[i]
		if b.occupiedLocked(e.Instrument) != nil || e.Instrument == "" {
			dropped = append(dropped, e.Instrument)
			continue
		}
		b.watch[e.Instrument] = &e
		b.watchOrder = append(b.watchOrder, e.Instrument)
	}
	// history is stored oldest first
	b.history = append(b.history, st.History...)
	b.version++
	return dropped
}

func removeKey(keys []string, k string) []string {
	for i, v := range keys {
		if v == k {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}
