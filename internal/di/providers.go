package di

import (
	"context"
	"fmt"
	"time"

	drepo "SpikeWatch/internal/domain/repository"
	"SpikeWatch/internal/handler/api"
	mid "SpikeWatch/internal/middleware"
	internalrepo "SpikeWatch/internal/repository"
	"SpikeWatch/internal/service/finnhub"
	"SpikeWatch/internal/service/marketdata"
	apimetrics "SpikeWatch/internal/service/metrics"
	"SpikeWatch/internal/service/ratelimit"
	"SpikeWatch/internal/service/telegram"
	"SpikeWatch/internal/usecase"
	"SpikeWatch/pkg/cache"
	pkgch "SpikeWatch/pkg/clickhouse"
	"SpikeWatch/pkg/config"
	xhttp "SpikeWatch/pkg/http"
	pkgkafka "SpikeWatch/pkg/kafka"
	applogger "SpikeWatch/pkg/logger"
	"SpikeWatch/pkg/metrics"
	"SpikeWatch/pkg/queue"
	"SpikeWatch/pkg/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// ProvideLogger creates the root logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideRegistry creates the registry behind /metrics.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(reg *prometheus.Registry) drepo.Metrics {
	return metrics.New(metrics.WithRegisterer(reg))
}

// ProvideClickHouseClient connects and creates the tables. Nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithAddress(cfg.ClickHouse.Host, cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	stmts, err := internalrepo.ClickHouseSchema(cfg.ClickHouse.CandlesTable, cfg.ClickHouse.TradesTable)
	if err == nil {
		err = client.InitSchema(ctx, stmts)
	}
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideStreamSampler creates the live trades sampler when the stream source
// is selected. Nil otherwise.
func ProvideStreamSampler(cfg *config.Config, l *applogger.Logger) *finnhub.StreamSampler {
	if cfg.MarketData.Source != "stream" {
		return nil
	}
	return finnhub.NewStreamSampler(finnhub.StreamOptions{
		APIKey:         cfg.MarketData.APIKey,
		URL:            cfg.MarketData.WebSocketURL,
		Symbols:        cfg.Universe.Symbols,
		Timeframe:      drepo.Timeframe(cfg.MarketData.Timeframe),
		Depth:          cfg.MarketData.StreamDepth,
		ReconnectDelay: cfg.MarketData.ReconnectDelay,
		PingInterval:   cfg.MarketData.PingInterval,
	}, l)
}

// ProvideMarketData selects the configured source and wraps it with the
// shared request budget and retry policy.
func ProvideMarketData(
	cfg *config.Config,
	stream *finnhub.StreamSampler,
	ch *pkgch.Client,
	m drepo.Metrics,
	l *applogger.Logger,
) (drepo.MarketData, error) {
	var src drepo.MarketData
	switch cfg.MarketData.Source {
	case "rest":
		client := xhttp.NewClient(
			xhttp.WithTimeout(cfg.MarketData.RequestTimeout),
			xhttp.WithUserAgent("spikewatch"),
		)
		src = finnhub.NewCandleClient(client, cfg.MarketData.BaseURL, cfg.MarketData.APIKey)
	case "stream":
		if stream == nil {
			return nil, fmt.Errorf("market data: stream sampler not configured")
		}
		src = stream
	case "clickhouse":
		if ch == nil {
			return nil, fmt.Errorf("market data: clickhouse is disabled")
		}
		store, err := internalrepo.NewCandleStore(ch, cfg.ClickHouse.CandlesTable, l)
		if err != nil {
			return nil, fmt.Errorf("market data: %w", err)
		}
		src = store
	default:
		return nil, fmt.Errorf("market data: unknown source %q", cfg.MarketData.Source)
	}

	return marketdata.NewGuard(src, marketdata.GuardOptions{
		RequestsPerSec: cfg.MarketData.RequestsPerSec,
		Burst:          cfg.MarketData.Burst,
		RetryAttempts:  cfg.MarketData.RetryAttempts,
		RetryDelay:     cfg.MarketData.RetryDelay,
	}, m, l), nil
}

// ProvideRedisCache connects to Redis when it backs persistence. Nil otherwise.
func ProvideRedisCache(cfg *config.Config) (*cache.RedisCache, error) {
	if cfg.Persistence.Backend != "redis" {
		return nil, nil
	}
	c, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Host, cfg.Redis.Port),
		cache.WithRedisAuth(cfg.Redis.Password, cfg.Redis.DB),
		cache.WithRedisDialTimeout(cfg.Redis.DialTimeout),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return c, nil
}

// ProvideStateStore selects the persistence backend.
func ProvideStateStore(cfg *config.Config, rc *cache.RedisCache, l *applogger.Logger) (drepo.StateStore, error) {
	switch cfg.Persistence.Backend {
	case "redis":
		if rc == nil {
			return nil, fmt.Errorf("state store: redis is not connected")
		}
		return internalrepo.NewRedisStateStore(rc, cfg.Persistence.KeyPrefix, l), nil
	default:
		s, err := internalrepo.NewFileStateStore(cfg.Persistence.Dir, l)
		if err != nil {
			return nil, fmt.Errorf("state store: %w", err)
		}
		return s, nil
	}
}

// ProvideKafkaProducer creates a Kafka producer. Nil when disabled.
func ProvideKafkaProducer(cfg *config.Config, reg *prometheus.Registry) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchBytes, cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideNotifiers builds the sinks. The log sink is always present.
func ProvideNotifiers(cfg *config.Config, producer *pkgkafka.Producer, l *applogger.Logger) ([]drepo.Notifier, error) {
	sinks := []drepo.Notifier{internalrepo.NewLogNotifier(l)}
	if producer != nil {
		sinks = append(sinks, internalrepo.NewKafkaNotifier(producer, cfg.Kafka.Topic))
	}
	if cfg.Telegram.Enabled {
		tg, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Notifications.Timeout)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, tg)
	}
	return sinks, nil
}

// ProvideNotificationPipeline creates the fan-out with retry buffer.
func ProvideNotificationPipeline(cfg *config.Config, sinks []drepo.Notifier, m drepo.Metrics, l *applogger.Logger) *mid.NotificationPipeline {
	return mid.NewNotificationPipeline(sinks, m, l,
		mid.WithBufferSize(cfg.Notifications.BufferSize),
		mid.WithMaxAttempts(cfg.Notifications.MaxAttempts),
		mid.WithRetryDelay(cfg.Notifications.RetryDelay),
		mid.WithTimeout(cfg.Notifications.Timeout),
	)
}

// ProvideDispatcher exposes the pipeline to the use cases.
func ProvideDispatcher(p *mid.NotificationPipeline) usecase.Dispatcher { return p }

// ProvideTradeArchive archives closed trades to ClickHouse. Nil when disabled.
func ProvideTradeArchive(cfg *config.Config, ch *pkgch.Client) (drepo.TradeArchive, error) {
	if ch == nil {
		// a typed nil would defeat the tracker's nil check
		return nil, nil
	}
	a, err := internalrepo.NewTradeArchive(ch, cfg.ClickHouse.TradesTable)
	if err != nil {
		return nil, fmt.Errorf("trade archive: %w", err)
	}
	return a, nil
}

// ProvideCooldown creates the re-detection suppressor.
func ProvideCooldown(cfg *config.Config) *usecase.CooldownTracker {
	return usecase.NewCooldownTracker(cfg.Scanner.Cooldown)
}

// ProvideScanner creates the anomaly scanner.
func ProvideScanner(
	cfg *config.Config,
	market drepo.MarketData,
	cooldown *usecase.CooldownTracker,
	book *usecase.Book,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.AnomalyScanner {
	return usecase.NewAnomalyScanner(usecase.ScannerConfig{
		Timeframe:              drepo.Timeframe(cfg.MarketData.Timeframe),
		HistoricalWindow:       cfg.Scanner.HistoricalWindow,
		VolumeThreshold:        cfg.Scanner.VolumeThreshold,
		PriceThreshold:         cfg.Scanner.PriceThreshold,
		HighLeverage:           cfg.Scanner.HighLeverage,
		FallbackPriceThreshold: cfg.Scanner.FallbackPriceThreshold,
		BatchSize:              cfg.Scanner.BatchSize,
		BatchPause:             cfg.Scanner.BatchPause,
	}, market, cooldown, book, m, l)
}

// ProvideTradeTracker creates the open trade monitor.
func ProvideTradeTracker(
	cfg *config.Config,
	market drepo.MarketData,
	book *usecase.Book,
	stats *usecase.Stats,
	archive drepo.TradeArchive,
	events usecase.Dispatcher,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.TradeTracker {
	return usecase.NewTradeTracker(usecase.TrackerConfig{
		Timeframe:        drepo.Timeframe(cfg.MarketData.Timeframe),
		StopLoss:         cfg.Trading.StopLoss,
		BaseTakeProfit:   cfg.Trading.BaseTakeProfit,
		TakeProfitBands:  cfg.Trading.TakeProfitBands,
		BreakevenTrigger: cfg.Trading.BreakevenTrigger,
		MaxHold:          cfg.Trading.MaxHold,
		BatchSize:        cfg.Trading.BatchSize,
		BatchPause:       cfg.Trading.BatchPause,
	}, market, book, stats, archive, events, m, l)
}

// ProvideWatchlist creates the watchlist state machine.
func ProvideWatchlist(
	cfg *config.Config,
	market drepo.MarketData,
	book *usecase.Book,
	tracker *usecase.TradeTracker,
	stats *usecase.Stats,
	events usecase.Dispatcher,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.WatchlistStateMachine {
	return usecase.NewWatchlistStateMachine(usecase.WatchlistConfig{
		Timeframe:       drepo.Timeframe(cfg.MarketData.Timeframe),
		TimeoutCycles:   cfg.Watchlist.TimeoutCycles,
		MaxAnomalyRange: cfg.Watchlist.MaxAnomalyRange,
		EntryOffset:     cfg.Watchlist.EntryOffset,
		CancelOffset:    cfg.Watchlist.CancelOffset,
		BatchSize:       cfg.Watchlist.BatchSize,
		BatchPause:      cfg.Watchlist.BatchPause,
	}, market, book, tracker, stats, events, m, l)
}

// ProvideTradingCore wires the core around the book.
func ProvideTradingCore(
	cfg *config.Config,
	book *usecase.Book,
	stats *usecase.Stats,
	cooldown *usecase.CooldownTracker,
	scanner *usecase.AnomalyScanner,
	watchlist *usecase.WatchlistStateMachine,
	tracker *usecase.TradeTracker,
	events usecase.Dispatcher,
	store drepo.StateStore,
	m drepo.Metrics,
	l *applogger.Logger,
) *usecase.TradingCore {
	return usecase.NewTradingCore(book, stats, cooldown, scanner, watchlist, tracker, events, store, m, cfg.Universe.Symbols, l)
}

// ProvideScheduler creates the job scheduler and attaches it to the core's
// status reports.
func ProvideScheduler(cfg *config.Config, core *usecase.TradingCore, m drepo.Metrics, l *applogger.Logger) *usecase.Scheduler {
	q := queue.NewPriorityQueue(queue.WithMaxDepth(cfg.Scheduler.MaxQueueDepth))
	s := usecase.NewScheduler(usecase.SchedulerConfig{
		TradeInterval:     cfg.Scheduler.TradeInterval,
		WatchlistInterval: cfg.Scheduler.WatchlistInterval,
		ScanInterval:      cfg.Scheduler.ScanInterval,
		StatusInterval:    cfg.Scheduler.StatusInterval,
		MinScanInterval:   cfg.Scheduler.MinScanInterval,
		MaxScanDuration:   cfg.Scheduler.MaxScanDuration,
		IdlePoll:          cfg.Scheduler.IdlePoll,
	}, q, core, m, l)
	core.AttachScheduler(s)
	return s
}

// ProvideStatusHandler creates the read-only status API.
func ProvideStatusHandler(cfg *config.Config, core *usecase.TradingCore, reg *prometheus.Registry, l *applogger.Logger) *api.StatusHandler {
	limiter := ratelimit.New(cfg.Server.RateBurst, cfg.Server.RatePerSec)
	return api.NewStatusHandler(core, limiter, apimetrics.NewAPI(reg), l)
}

// ProvideHTTPServer creates the HTTP server. Nil when disabled.
func ProvideHTTPServer(cfg *config.Config, h *api.StatusHandler, reg *prometheus.Registry, l *applogger.Logger) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	return xhttp.NewServer(h, l,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithRegistry(reg),
	)
}

// ProvideApp creates the application and hands it the clients to close.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	core *usecase.TradingCore,
	scheduler *usecase.Scheduler,
	pipeline *mid.NotificationPipeline,
	stream *finnhub.StreamSampler,
	httpServer *xhttp.Server,
	ch *pkgch.Client,
	producer *pkgkafka.Producer,
	rc *cache.RedisCache,
) *server.App {
	app := server.New(cfg, l, core, scheduler, pipeline, stream, httpServer)
	if ch != nil {
		app.OnClose("clickhouse", ch)
	}
	if producer != nil {
		app.OnClose("kafka", producer)
	}
	if rc != nil {
		app.OnClose("redis", rc)
	}
	return app
}

var _ usecase.Dispatcher = (*mid.NotificationPipeline)(nil)
