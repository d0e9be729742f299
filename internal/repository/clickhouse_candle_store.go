package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	pkgch "SpikeWatch/pkg/clickhouse"
	applogger "SpikeWatch/pkg/logger"
)

// CandleStore reads OHLCV buckets written by an external ingester.
type CandleStore struct {
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCandleStore(ch *pkgch.Client, table string, l *applogger.Logger) (*CandleStore, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &CandleStore{db: ch.DB(), table: table, l: l.Component("candle_store")}, nil
}

// latestSamplesQuery selects newest first so LIMIT keeps the most recent buckets.
func latestSamplesQuery(table string, withSince bool) string {
	where := "symbol = ? AND tf = ?"
	if withSince {
		where += " AND bucket >= ?"
	}
	return fmt.Sprintf(`
        SELECT bucket, open, high, low, close, volume
        FROM %s FINAL
        WHERE %s
        ORDER BY bucket DESC
        LIMIT ?`, table, where)
}

// FetchSamples returns up to limit buckets ascending. An instrument with no
// rows at all in the table is reported as unknown.
func (s *CandleStore) FetchSamples(ctx context.Context, instrument string, tf drepo.Timeframe, since time.Time, limit int) ([]models.Sample, error) {
	if !drepo.IsValidTimeframe(tf) {
		return nil, fmt.Errorf("unsupported timeframe: %s", tf)
	}
	start := time.Now()

	args := []any{instrument, string(tf)}
	if !since.IsZero() {
		args = append(args, since.UTC())
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, latestSamplesQuery(s.table, !since.IsZero()), args...)
	if err != nil {
		s.l.Error("latest samples query error",
			applogger.String("symbol", instrument),
			applogger.String("tf", string(tf)),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	out := make([]models.Sample, 0, limit)
	for rows.Next() {
		var c models.Sample
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		c.Timestamp = c.Timestamp.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseSamples(out)

	if len(out) == 0 {
		known, err := s.known(ctx, instrument)
		if err != nil {
			return nil, err
		}
		if !known {
			return nil, fmt.Errorf("%s: %w", instrument, drepo.ErrUnknownInstrument)
		}
	}

	s.l.Debug("latest samples ok",
		applogger.String("symbol", instrument),
		applogger.String("tf", string(tf)),
		applogger.Int("rows", len(out)),
		applogger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CandleStore) known(ctx context.Context, instrument string) (bool, error) {
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s WHERE symbol = ?", s.table)
	if err := s.db.QueryRowContext(ctx, q, instrument).Scan(&n); err != nil {
		return false, fmt.Errorf("count samples: %w", err)
	}
	return n > 0, nil
}

func reverseSamples(s []models.Sample) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
