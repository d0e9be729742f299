package finnhub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"
)

// StreamSampler builds OHLCV samples from the live trades stream and serves
// them as a MarketData source. Buckets with no trades are absent.
type StreamSampler struct {
	client         *streamClient
	symbols        []string
	known          map[string]struct{}
	tf             drepo.Timeframe
	depth          int
	reconnectDelay time.Duration
	pingInterval   time.Duration
	l              *applogger.Logger

	mu      sync.RWMutex
	buckets map[string][]models.Sample
}

var _ drepo.MarketData = (*StreamSampler)(nil)

// StreamOptions configures a StreamSampler.
type StreamOptions struct {
	APIKey         string
	URL            string
	Symbols        []string
	Timeframe      drepo.Timeframe
	Depth          int
	ReconnectDelay time.Duration
	PingInterval   time.Duration
}

func NewStreamSampler(opts StreamOptions, l *applogger.Logger) *StreamSampler {
	if opts.Depth < 1 {
		opts.Depth = 500
	}
	l = l.Component("stream")
	known := make(map[string]struct{}, len(opts.Symbols))
	for _, s := range opts.Symbols {
		known[s] = struct{}{}
	}
	return &StreamSampler{
		client:         newStreamClient(opts.APIKey, opts.URL, l),
		symbols:        append([]string(nil), opts.Symbols...),
		known:          known,
		tf:             opts.Timeframe,
		depth:          opts.Depth,
		reconnectDelay: opts.ReconnectDelay,
		pingInterval:   opts.PingInterval,
		l:              l,
		buckets:        make(map[string][]models.Sample),
	}
}

// Run keeps a session open until ctx is cancelled, reconnecting after failures.
func (s *StreamSampler) Run(ctx context.Context) error {
	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.l.Warn("stream session ended, reconnecting",
			applogger.Error(err),
			applogger.Duration("delay_ms", s.reconnectDelay),
		)
		t := time.NewTimer(s.reconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func (s *StreamSampler) session(ctx context.Context) error {
	if err := s.client.connect(ctx); err != nil {
		return err
	}
	defer s.client.close()

	if err := s.client.subscribe(s.symbols); err != nil {
		return err
	}
	return s.client.read(ctx, s.pingInterval, s.observe)
}

// Close drops the current connection.
func (s *StreamSampler) Close() error { return s.client.close() }

func (s *StreamSampler) observe(t tick) {
	if _, ok := s.known[t.Symbol]; !ok {
		return
	}
	bucket := s.tf.Truncate(t.At)

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.buckets[t.Symbol]
	n := len(b)
	switch {
	case n == 0 || bucket.After(b[n-1].Timestamp):
		b = append(b, models.Sample{
			Timestamp: bucket,
			Open:      t.Price,
			High:      t.Price,
			Low:       t.Price,
			Close:     t.Price,
			Volume:    t.Volume,
		})
		if len(b) > s.depth {
			b = b[len(b)-s.depth:]
		}
		s.buckets[t.Symbol] = b
	default:
		// late trades land in their own bucket if it is still held
		for i := n - 1; i >= 0; i-- {
			if !b[i].Timestamp.Equal(bucket) {
				continue
			}
			if t.Price > b[i].High {
				b[i].High = t.Price
			}
			if t.Price < b[i].Low {
				b[i].Low = t.Price
			}
			if i == n-1 {
				b[i].Close = t.Price
			}
			b[i].Volume += t.Volume
			return
		}
	}
}

// FetchSamples returns the most recent aggregated samples.
func (s *StreamSampler) FetchSamples(_ context.Context, instrument string, tf drepo.Timeframe, since time.Time, limit int) ([]models.Sample, error) {
	if _, ok := s.known[instrument]; !ok {
		return nil, fmt.Errorf("%s not subscribed: %w", instrument, drepo.ErrUnknownInstrument)
	}
	if tf != s.tf {
		return nil, fmt.Errorf("stream aggregates %s, asked for %s", s.tf, tf)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.buckets[instrument]
	start := 0
	if !since.IsZero() {
		for start < len(b) && b[start].Timestamp.Before(since) {
			start++
		}
	}
	b = b[start:]
	if limit > 0 && len(b) > limit {
		b = b[len(b)-limit:]
	}
	return append([]models.Sample{}, b...), nil
}
