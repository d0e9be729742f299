package repository

import (
	"fmt"
	"regexp"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func checkTable(name string) error {
	if !tableName.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}

// ClickHouseSchema returns the idempotent DDL for the candles and closed trades tables.
func ClickHouseSchema(candlesTable, tradesTable string) ([]string, error) {
	if err := checkTable(candlesTable); err != nil {
		return nil, err
	}
	if err := checkTable(tradesTable); err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            symbol LowCardinality(String),
            tf     LowCardinality(String),
            bucket DateTime('UTC'),
            open   Float64,
            high   Float64,
            low    Float64,
            close  Float64,
            volume Float64
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, tf, bucket)`, candlesTable),
		fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS %s (
            id              String,
            anomaly_id      String,
            instrument      LowCardinality(String),
            direction       LowCardinality(String),
            entry_price     Float64,
            exit_price      Float64,
            stop_loss       Float64,
            take_profit     Float64,
            volume_leverage Float64,
            breakeven       Bool,
            exit_reason     LowCardinality(String),
            pnl_percent     Float64,
            opened_at       DateTime64(3, 'UTC'),
            closed_at       DateTime64(3, 'UTC')
        ) ENGINE = ReplacingMergeTree
        ORDER BY (instrument, closed_at, id)`, tradesTable),
	}, nil
}
