package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"SpikeWatch/internal/domain/models"
	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"
)

// NotificationPipeline fans events out to the notification sinks. Every sink
// has its own bounded queue and worker, so Dispatch only enqueues and a stalled
// sink never holds up the caller or the other sinks. Failed deliveries are
// retried after a fixed delay, then dropped.
type NotificationPipeline struct {
	workers     []*sinkWorker
	metrics     drepo.Metrics
	l           *applogger.Logger
	timeout     time.Duration
	retryDelay  time.Duration
	maxAttempts int
	bufSize     int
	stopCh      chan struct{}
	wg          sync.WaitGroup
	started     bool
	stopped     bool
	mu          sync.Mutex
}

type sinkWorker struct {
	sink  drepo.Notifier
	name  string
	queue chan *pending
}

type pending struct {
	ev       models.Event
	attempts int
}

type PipelineOption func(*NotificationPipeline)

// WithBufferSize sets how many events may wait per sink.
func WithBufferSize(n int) PipelineOption {
	return func(p *NotificationPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithMaxAttempts sets the total delivery attempts per event and sink.
func WithMaxAttempts(n int) PipelineOption {
	return func(p *NotificationPipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithRetryDelay sets the pause before each retry.
func WithRetryDelay(d time.Duration) PipelineOption {
	return func(p *NotificationPipeline) {
		if d >= 0 {
			p.retryDelay = d
		}
	}
}

// WithTimeout bounds a single delivery attempt.
func WithTimeout(d time.Duration) PipelineOption {
	return func(p *NotificationPipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewNotificationPipeline(sinks []drepo.Notifier, metrics drepo.Metrics, l *applogger.Logger, opts ...PipelineOption) *NotificationPipeline {
	p := &NotificationPipeline{
		metrics:     metrics,
		l:           l.Component("notifications"),
		timeout:     5 * time.Second,
		retryDelay:  2 * time.Second,
		maxAttempts: 3,
		bufSize:     256,
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, s := range sinks {
		p.workers = append(p.workers, &sinkWorker{
			sink:  s,
			name:  sinkName(s),
			queue: make(chan *pending, p.bufSize),
		})
	}
	return p
}

// Start launches one delivery worker per sink. Events dispatched earlier are
// already queued and go out first.
func (p *NotificationPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	for _, w := range p.workers {
		p.wg.Add(1)
		go p.run(ctx, w)
	}
}

// Stop ends the workers and gives whatever is still queued one last round of
// attempts. It returns when ctx expires even if a sink is stuck.
func (p *NotificationPipeline) Stop(ctx context.Context) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	if started {
		close(p.stopCh)
		if !waitGroup(ctx, &p.wg) {
			p.l.Warn("notification workers did not stop in time", applogger.Int("pending", p.Pending()))
			return
		}
	}

	var drain sync.WaitGroup
	for _, w := range p.workers {
		drain.Add(1)
		go func(w *sinkWorker) {
			defer drain.Done()
			p.drain(ctx, w)
		}(w)
	}
	if !waitGroup(ctx, &drain) {
		p.l.Warn("notification drain cut short", applogger.Int("pending", p.Pending()))
	}
}

// Dispatch implements usecase.Dispatcher. It never waits on a sink: when a
// sink's queue is full the event is dropped for that sink.
func (p *NotificationPipeline) Dispatch(_ context.Context, ev models.Event) {
	for _, w := range p.workers {
		item := &pending{ev: ev}
		select {
		case w.queue <- item:
		default:
			p.metrics.RecordNotifyFailure(w.name)
			p.drop(w, item, fmt.Errorf("queue full"))
		}
	}
}

// Pending returns the number of queued deliveries across all sinks.
func (p *NotificationPipeline) Pending() int {
	n := 0
	for _, w := range p.workers {
		n += len(w.queue)
	}
	return n
}

func (p *NotificationPipeline) run(ctx context.Context, w *sinkWorker) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case item := <-w.queue:
			if !p.process(ctx, w, item) {
				return
			}
		}
	}
}

// process delivers one event with retries. It returns false when shutdown
// interrupted a retry wait; the event then goes back to the queue for Stop.
func (p *NotificationPipeline) process(ctx context.Context, w *sinkWorker, item *pending) bool {
	for {
		err := p.attempt(ctx, w, item)
		if err == nil {
			return true
		}
		if item.attempts >= p.maxAttempts {
			p.drop(w, item, err)
			return true
		}
		p.l.Warn("notification failed, will retry",
			applogger.String("sink", w.name),
			applogger.String("type", string(item.ev.Type)),
			applogger.Int("attempt", item.attempts),
			applogger.Error(err),
		)
		if !p.wait(ctx) {
			select {
			case w.queue <- item:
			default:
				p.drop(w, item, fmt.Errorf("shutting down: %w", err))
			}
			return false
		}
	}
}

func (p *NotificationPipeline) drain(ctx context.Context, w *sinkWorker) {
	for {
		select {
		case item := <-w.queue:
			for {
				if err := ctx.Err(); err != nil {
					p.drop(w, item, err)
					break
				}
				err := p.attempt(ctx, w, item)
				if err == nil {
					break
				}
				if item.attempts >= p.maxAttempts {
					p.drop(w, item, err)
					break
				}
			}
		default:
			return
		}
	}
}

func (p *NotificationPipeline) attempt(ctx context.Context, w *sinkWorker, item *pending) error {
	item.attempts++
	err := p.deliver(ctx, w.sink, item.ev)
	if err != nil {
		p.metrics.RecordNotifyFailure(w.name)
	}
	return err
}

func (p *NotificationPipeline) wait(ctx context.Context) bool {
	if p.retryDelay <= 0 {
		return true
	}
	t := time.NewTimer(p.retryDelay)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-p.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (p *NotificationPipeline) deliver(ctx context.Context, s drepo.Notifier, ev models.Event) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	start := time.Now()
	err := s.Notify(ctx, ev)
	p.metrics.RecordLatency("notify_"+sinkName(s), time.Since(start).Seconds())
	return err
}

func (p *NotificationPipeline) drop(w *sinkWorker, item *pending, err error) {
	p.l.Error("notification dropped",
		applogger.String("sink", w.name),
		applogger.String("type", string(item.ev.Type)),
		applogger.String("instrument", item.ev.Instrument),
		applogger.Int("attempts", item.attempts),
		applogger.Error(err),
	)
}

func waitGroup(ctx context.Context, wg *sync.WaitGroup) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func sinkName(s drepo.Notifier) string {
	if n, ok := s.(interface{ Name() string }); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
