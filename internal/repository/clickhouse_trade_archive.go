package repository

import (
	"context"
	"database/sql"
	"fmt"

	"SpikeWatch/internal/domain/models"
	pkgch "SpikeWatch/pkg/clickhouse"
)

// TradeArchive appends closed trades to ClickHouse.
type TradeArchive struct {
	db    *sql.DB
	table string
}

func NewTradeArchive(ch *pkgch.Client, table string) (*TradeArchive, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	return &TradeArchive{db: ch.DB(), table: table}, nil
}

func insertTradeQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (id, anomaly_id, instrument, direction, entry_price, exit_price,
        stop_loss, take_profit, volume_leverage, breakeven, exit_reason, pnl_percent, opened_at, closed_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, table)
}

func tradeRow(t *models.Trade) ([]any, error) {
	if t.Status != models.TradeClosed || t.ClosedAt == nil {
		return nil, fmt.Errorf("trade %s is not closed", t.ID)
	}
	return []any{
		t.ID,
		t.AnomalyID,
		t.Instrument,
		string(t.Direction),
		t.EntryPrice,
		t.ExitPrice,
		t.StopLoss,
		t.TakeProfit,
		t.VolumeLeverage,
		t.Breakeven,
		string(t.ExitReason),
		t.PnLPercent,
		t.OpenedAt.UTC(),
		t.ClosedAt.UTC(),
	}, nil
}

func (a *TradeArchive) Archive(ctx context.Context, t *models.Trade) error {
	args, err := tradeRow(t)
	if err != nil {
		return err
	}
	if _, err := a.db.ExecContext(ctx, insertTradeQuery(a.table), args...); err != nil {
		return fmt.Errorf("archive trade %s: %w", t.ID, err)
	}
	return nil
}

func (a *TradeArchive) Health(ctx context.Context) error {
	return a.db.PingContext(ctx)
}
