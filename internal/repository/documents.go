package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"SpikeWatch/internal/domain/models"
)

// Persisted state is split into three documents.
const (
	docTrades    = "trades"
	docWatchlist = "watchlist"
	docHistory   = "history"

	schemaVersion = 2
)

var documentNames = []string{docTrades, docWatchlist, docHistory}

type documentMeta struct {
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	Count     int       `json:"count"`
}

type document[T any] struct {
	Metadata   documentMeta       `json:"metadata"`
	Items      []T                `json:"items"`
	Statistics *models.Statistics `json:"statistics,omitempty"`
}

func newDocument[T any](items []T, now time.Time) document[T] {
	if items == nil {
		items = []T{}
	}
	return document[T]{
		Metadata: documentMeta{Version: schemaVersion, UpdatedAt: now.UTC(), Count: len(items)},
		Items:    items,
	}
}

// encodeState renders a snapshot as the three documents keyed by name.
func encodeState(st *models.State, now time.Time, indent bool) (map[string][]byte, error) {
	hist := newDocument(st.History, now)
	stats := st.Statistics
	hist.Statistics = &stats

	docs := map[string]any{
		docTrades:    newDocument(st.Trades, now),
		docWatchlist: newDocument(st.Watchlist, now),
		docHistory:   hist,
	}

	out := make(map[string][]byte, len(docs))
	for name, doc := range docs {
		var (
			b   []byte
			err error
		)
		if indent {
			b, err = json.MarshalIndent(doc, "", "  ")
		} else {
			b, err = json.Marshal(doc)
		}
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}

// decodeState assembles a snapshot from raw documents. Missing documents are
// empty. The second result names the documents still in the legacy layout
// (a bare JSON array) so callers can rewrite them.
func decodeState(raw map[string][]byte) (*models.State, []string, error) {
	var (
		st     models.State
		legacy []string
	)

	trades, old, err := decodeDocument[models.Trade](raw[docTrades])
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", docTrades, err)
	}
	if old {
		legacy = append(legacy, docTrades)
	}
	st.Trades = trades.Items

	watch, old, err := decodeDocument[models.WatchlistEntry](raw[docWatchlist])
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", docWatchlist, err)
	}
	if old {
		legacy = append(legacy, docWatchlist)
	}
	st.Watchlist = watch.Items

	hist, old, err := decodeDocument[models.Trade](raw[docHistory])
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", docHistory, err)
	}
	if old {
		legacy = append(legacy, docHistory)
	}
	st.History = hist.Items
	if hist.Statistics != nil {
		st.Statistics = *hist.Statistics
	}

	return &st, legacy, nil
}

func decodeDocument[T any](raw []byte) (document[T], bool, error) {
	var doc document[T]

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return doc, false, nil
	}
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &doc.Items); err != nil {
			return doc, false, err
		}
		return doc, true, nil
	}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return doc, false, err
	}
	if doc.Metadata.Version > schemaVersion {
		return doc, false, fmt.Errorf("unsupported schema version %d", doc.Metadata.Version)
	}
	return doc, false, nil
}

// subset picks the named documents out of an encoded snapshot.
func subset(docs map[string][]byte, names []string) map[string][]byte {
	out := make(map[string][]byte, len(names))
	for _, n := range names {
		out[n] = docs[n]
	}
	return out
}
