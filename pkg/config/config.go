package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// TakeProfitBand raises the take-profit fraction once volume leverage reaches MinLeverage.
type TakeProfitBand struct {
	MinLeverage float64 `yaml:"min_leverage" validate:"gt=0"`
	Percent     float64 `yaml:"percent" validate:"gt=0,lt=1"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Logger      struct {
		Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output     string `yaml:"output" default:"stdout"`
		TimeFormat string `yaml:"time_format"`
	} `yaml:"logger"`
	Server struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RateBurst       float64       `yaml:"rate_burst" default:"20" validate:"gte=1"`
		RatePerSec      float64       `yaml:"rate_per_sec" default:"10" validate:"gt=0"`
	} `yaml:"server"`
	MarketData struct {
		Source         string        `yaml:"source" default:"rest" validate:"oneof=rest stream clickhouse"`
		BaseURL        string        `yaml:"base_url" default:"https://finnhub.io/api/v1"`
		WebSocketURL   string        `yaml:"websocket_url" default:"wss://ws.finnhub.io"`
		APIKey         string        `yaml:"api_key"`
		Timeframe      string        `yaml:"timeframe" default:"5m" validate:"oneof=1m 5m 15m 1h 4h 1d"`
		RequestTimeout time.Duration `yaml:"request_timeout" default:"15s"`
		RequestsPerSec float64       `yaml:"requests_per_sec" default:"5" validate:"gt=0"`
		Burst          int           `yaml:"burst" default:"5" validate:"gte=1"`
		RetryAttempts  int           `yaml:"retry_attempts" default:"3" validate:"gte=1,lte=10"`
		RetryDelay     time.Duration `yaml:"retry_delay" default:"2s"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"20s"`
		StreamDepth    int           `yaml:"stream_depth" default:"500" validate:"gte=10"`
	} `yaml:"market_data"`
	Universe struct {
		Symbols []string `yaml:"symbols" validate:"required,min=1,dive,required"`
	} `yaml:"universe"`
	Scanner struct {
		HistoricalWindow       int           `yaml:"historical_window" default:"20" validate:"gte=2"`
		VolumeThreshold        float64       `yaml:"volume_threshold" default:"4" validate:"gt=1"`
		PriceThreshold         float64       `yaml:"price_threshold" default:"0.01" validate:"gt=0,lt=1"`
		HighLeverage           float64       `yaml:"high_leverage" default:"20" validate:"gt=0"`
		FallbackPriceThreshold float64       `yaml:"fallback_price_threshold" default:"0.005" validate:"gt=0,lt=1"`
		Cooldown               time.Duration `yaml:"cooldown" default:"1h"`
		BatchSize              int           `yaml:"batch_size" default:"10" validate:"gte=1,lte=50"`
		BatchPause             time.Duration `yaml:"batch_pause" default:"1s"`
	} `yaml:"scanner"`
	Watchlist struct {
		TimeoutCycles   int           `yaml:"timeout_cycles" default:"6" validate:"gte=1"`
		MaxAnomalyRange float64       `yaml:"max_anomaly_range" default:"0.08" validate:"gt=0"`
		EntryOffset     float64       `yaml:"entry_offset" default:"0.005" validate:"gte=0,lt=1"`
		CancelOffset    float64       `yaml:"cancel_offset" default:"0.005" validate:"gte=0,lt=1"`
		BatchSize       int           `yaml:"batch_size" default:"5" validate:"gte=1,lte=50"`
		BatchPause      time.Duration `yaml:"batch_pause" default:"500ms"`
	} `yaml:"watchlist"`
	Trading struct {
		StopLoss         float64          `yaml:"stop_loss" default:"0.02" validate:"gt=0,lt=1"`
		BaseTakeProfit   float64          `yaml:"base_take_profit" default:"0.025" validate:"gt=0,lt=1"`
		TakeProfitBands  []TakeProfitBand `yaml:"take_profit_bands" validate:"dive"`
		BreakevenTrigger float64          `yaml:"breakeven_trigger" validate:"gte=0,lt=1"`
		MaxHold          time.Duration    `yaml:"max_hold"`
		BatchSize        int              `yaml:"batch_size" default:"5" validate:"gte=1,lte=50"`
		BatchPause       time.Duration    `yaml:"batch_pause" default:"500ms"`
	} `yaml:"trading"`
	Scheduler struct {
		TradeInterval     time.Duration `yaml:"trade_interval" default:"30s"`
		WatchlistInterval time.Duration `yaml:"watchlist_interval" default:"30s"`
		ScanInterval      time.Duration `yaml:"scan_interval" default:"5m"`
		MinScanInterval   time.Duration `yaml:"min_scan_interval" default:"5m"`
		MaxScanDuration   time.Duration `yaml:"max_scan_duration" default:"5m"`
		StatusInterval    time.Duration `yaml:"status_interval" default:"1h"`
		MaxQueueDepth     int           `yaml:"max_queue_depth" default:"50" validate:"gte=3"`
		IdlePoll          time.Duration `yaml:"idle_poll" default:"1s"`
	} `yaml:"scheduler"`
	Persistence struct {
		Backend   string `yaml:"backend" default:"file" validate:"oneof=file redis"`
		Dir       string `yaml:"dir" default:"data"`
		KeyPrefix string `yaml:"key_prefix" default:"state"`
	} `yaml:"persistence"`
	Redis struct {
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"6379"`
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		Prefix      string        `yaml:"prefix" default:"spikewatch"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	} `yaml:"redis"`
	Notifications struct {
		BufferSize  int           `yaml:"buffer_size" default:"256" validate:"gte=1"`
		MaxAttempts int           `yaml:"max_attempts" default:"3" validate:"gte=1,lte=10"`
		RetryDelay  time.Duration `yaml:"retry_delay" default:"2s"`
		Timeout     time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"notifications"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"spikewatch.events"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	Telegram struct {
		Enabled bool   `yaml:"enabled"`
		Token   string `yaml:"token"`
		ChatID  int64  `yaml:"chat_id"`
	} `yaml:"telegram"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"spikewatch"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		CandlesTable     string        `yaml:"candles_table" default:"candles"`
		TradesTable      string        `yaml:"trades_table" default:"closed_trades"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

// DefaultTakeProfitBands are the leverage steps used when none are configured.
func DefaultTakeProfitBands() []TakeProfitBand {
	return []TakeProfitBand{
		{MinLeverage: 8, Percent: 0.03},
		{MinLeverage: 10, Percent: 0.035},
		{MinLeverage: 12, Percent: 0.04},
		{MinLeverage: 16, Percent: 0.045},
		{MinLeverage: 20, Percent: 0.05},
	}
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	return decode(nil)
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads .env (if present) and the YAML file, then applies environment overrides.
// Validation runs after the overrides so secrets may live only in the environment.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SPIKEWATCH_SYMBOLS"); v != "" {
		c.Universe.Symbols = splitList(v)
	}
	if v := os.Getenv("MARKET_DATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("PERSISTENCE_BACKEND"); v != "" {
		c.Persistence.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		c.Telegram.Token = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks struct tags and the rules that span several sections.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.MarketData.Source == "rest" && c.MarketData.APIKey == "" {
		return fmt.Errorf("market_data.api_key is required for source 'rest'")
	}
	if c.MarketData.Source == "stream" && c.MarketData.APIKey == "" {
		return fmt.Errorf("market_data.api_key is required for source 'stream'")
	}
	if c.MarketData.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("market_data.source 'clickhouse' requires clickhouse.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Telegram.Enabled && (c.Telegram.Token == "" || c.Telegram.ChatID == 0) {
		return fmt.Errorf("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if c.Scanner.FallbackPriceThreshold > c.Scanner.PriceThreshold {
		return fmt.Errorf("scanner.fallback_price_threshold must not exceed scanner.price_threshold")
	}
	if c.Scheduler.TradeInterval <= 0 || c.Scheduler.WatchlistInterval <= 0 || c.Scheduler.ScanInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	return nil
}

func decode(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.normalize()
	return &c, nil
}

// normalize fills derived defaults that struct tags cannot express.
func (c *Config) normalize() {
	if len(c.Trading.TakeProfitBands) == 0 {
		c.Trading.TakeProfitBands = DefaultTakeProfitBands()
	}
	sort.Slice(c.Trading.TakeProfitBands, func(i, j int) bool {
		return c.Trading.TakeProfitBands[i].MinLeverage < c.Trading.TakeProfitBands[j].MinLeverage
	})
	for i := range c.Universe.Symbols {
		c.Universe.Symbols[i] = strings.TrimSpace(c.Universe.Symbols[i])
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
