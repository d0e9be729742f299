package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakySink struct {
	mu        sync.Mutex
	failFirst int // <0 fails forever
	calls     int
	delivered []models.Event
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) Notify(_ context.Context, ev models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failFirst < 0 || s.calls <= s.failFirst {
		return errors.New("sink unavailable")
	}
	s.delivered = append(s.delivered, ev)
	return nil
}

func (s *flakySink) stats() (calls, delivered int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls, len(s.delivered)
}

type failureCounter struct {
	mu       sync.Mutex
	failures map[string]int
}

func (m *failureCounter) RecordJob(int, string, float64, error) {}
func (m *failureCounter) RecordScanDeferred(string)             {}
func (m *failureCounter) RecordQueueDepth(int)                  {}
func (m *failureCounter) RecordAnomaly(string)                  {}
func (m *failureCounter) RecordTransition(string)               {}
func (m *failureCounter) RecordTradeClosed(string, float64)     {}
func (m *failureCounter) RecordFetchError(string)               {}
func (m *failureCounter) RecordLatency(string, float64)         {}
func (m *failureCounter) RecordNotifyFailure(sink string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failures == nil {
		m.failures = make(map[string]int)
	}
	m.failures[sink]++
}

func (m *failureCounter) count(sink string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[sink]
}

var ev = models.Event{Type: models.EventTradeOpened, Instrument: "BTC/USDT"}

func newPipeline(sink *flakySink, m *failureCounter, opts ...PipelineOption) *NotificationPipeline {
	opts = append([]PipelineOption{WithRetryDelay(time.Millisecond)}, opts...)
	return NewNotificationPipeline([]drepo.Notifier{sink}, m, applogger.Nop(), opts...)
}

func TestDispatchDelivers(t *testing.T) {
	sink := &flakySink{}
	m := &failureCounter{}
	p := newPipeline(sink, m)
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(ctx)

	p.Dispatch(ctx, ev)

	require.Eventually(t, func() bool {
		_, delivered := sink.stats()
		return delivered == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, p.Pending())
	assert.Zero(t, m.count("flaky"))
}

func TestDispatchRetriesUntilDelivered(t *testing.T) {
	sink := &flakySink{failFirst: 2}
	m := &failureCounter{}
	p := newPipeline(sink, m, WithMaxAttempts(3))
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(ctx)

	p.Dispatch(ctx, ev)

	require.Eventually(t, func() bool {
		_, delivered := sink.stats()
		return delivered == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, m.count("flaky"))
}

func TestDispatchDropsAfterMaxAttempts(t *testing.T) {
	sink := &flakySink{failFirst: -1}
	m := &failureCounter{}
	p := newPipeline(sink, m, WithMaxAttempts(2))
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(ctx)

	p.Dispatch(ctx, ev)

	require.Eventually(t, func() bool {
		calls, _ := sink.stats()
		return calls == 2 && p.Pending() == 0
	}, time.Second, 5*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	calls, delivered := sink.stats()
	assert.Equal(t, 2, calls)
	assert.Zero(t, delivered)
}

func TestDispatchSingleAttemptNeverRetries(t *testing.T) {
	sink := &flakySink{failFirst: -1}
	p := newPipeline(sink, &failureCounter{}, WithMaxAttempts(1))
	ctx := context.Background()
	p.Start(ctx)
	defer p.Stop(ctx)

	p.Dispatch(ctx, ev)

	require.Eventually(t, func() bool {
		calls, _ := sink.stats()
		return calls == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	calls, _ := sink.stats()
	assert.Equal(t, 1, calls)
	assert.Zero(t, p.Pending())
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	sink := &flakySink{}
	m := &failureCounter{}
	p := newPipeline(sink, m, WithBufferSize(1))

	// not started, so nothing drains the queue
	for i := 0; i < 3; i++ {
		p.Dispatch(context.Background(), ev)
	}
	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, 2, m.count("flaky"))
	calls, _ := sink.stats()
	assert.Zero(t, calls)
}

func TestStopFlushesBuffered(t *testing.T) {
	sink := &flakySink{failFirst: 1}
	p := newPipeline(sink, &failureCounter{}, WithRetryDelay(time.Hour))
	ctx := context.Background()
	p.Start(ctx)

	p.Dispatch(ctx, ev)
	p.Stop(ctx)

	_, delivered := sink.stats()
	assert.Equal(t, 1, delivered)
	assert.Zero(t, p.Pending())
}

// stuckSink blocks until released and ignores its context.
type stuckSink struct {
	release chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newStuckSink() *stuckSink {
	return &stuckSink{release: make(chan struct{}), entered: make(chan struct{})}
}

func (s *stuckSink) Name() string { return "stuck" }

func (s *stuckSink) Notify(context.Context, models.Event) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return nil
}

func TestStuckSinkDoesNotBlockDispatch(t *testing.T) {
	stuck := newStuckSink()
	defer close(stuck.release)
	healthy := &flakySink{}
	p := NewNotificationPipeline([]drepo.Notifier{stuck, healthy}, &failureCounter{}, applogger.Nop(),
		WithTimeout(20*time.Millisecond), WithRetryDelay(time.Millisecond))
	ctx := context.Background()
	p.Start(ctx)

	start := time.Now()
	for i := 0; i < 3; i++ {
		p.Dispatch(ctx, ev)
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	select {
	case <-stuck.entered:
	case <-time.After(time.Second):
		t.Fatal("stuck sink never called")
	}
	require.Eventually(t, func() bool {
		_, delivered := healthy.stats()
		return delivered == 3
	}, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	start = time.Now()
	p.Stop(stopCtx)
	assert.Less(t, time.Since(start), time.Second)
}
