package main

import (
	"flag"
	"os"

	"SpikeWatch/internal/di"
	"SpikeWatch/pkg/config"
	applogger "SpikeWatch/pkg/logger"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	// bootstrap logger until the configured one exists
	boot, _ := applogger.New(&applogger.Config{Level: "info", Format: "console", Output: "stderr"})

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		boot.Error("config load failed", applogger.String("path", *configPath), applogger.Error(err))
		os.Exit(1)
	}

	boot.Info("config loaded",
		applogger.String("env", cfg.Environment),
		applogger.String("source", cfg.MarketData.Source),
		applogger.String("timeframe", cfg.MarketData.Timeframe),
		applogger.Bool("clickhouse", cfg.ClickHouse.Enabled),
		applogger.Bool("kafka", cfg.Kafka.Enabled),
		applogger.Bool("telegram", cfg.Telegram.Enabled),
	)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		boot.Error("app initialization failed", applogger.Error(err))
		os.Exit(1)
	}

	// blocks until SIGINT or SIGTERM
	if err := app.Run(); err != nil {
		boot.Error("app error", applogger.Error(err))
		os.Exit(1)
	}
}
