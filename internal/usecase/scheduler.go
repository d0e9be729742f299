package usecase

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	drepo "SpikeWatch/internal/domain/repository"
	applogger "SpikeWatch/pkg/logger"
	"SpikeWatch/pkg/queue"
)

// Job names used for logging, metrics and de-duplication.
const (
	JobMonitorTrades    = "monitor_trades"
	JobMonitorWatchlist = "monitor_watchlist"
	JobScanAnomalies    = "scan_anomalies"
	JobReportStatus     = "report_status"
)

// SchedulerConfig sets the producer cadences and the scan breaker.
type SchedulerConfig struct {
	TradeInterval     time.Duration
	WatchlistInterval time.Duration
	ScanInterval      time.Duration
	StatusInterval    time.Duration
	MinScanInterval   time.Duration
	MaxScanDuration   time.Duration
	IdlePoll          time.Duration
}

// Jobs is the work driven by the scheduler, one method per job kind.
type Jobs interface {
	MonitorTrades(ctx context.Context) error
	MonitorWatchlist(ctx context.Context) error
	ScanAnomalies(ctx context.Context) error
	ReportStatus(ctx context.Context) error
}

// Scheduler is the single consumer of the priority queue. Jobs run one at a
// time to completion; producers only enqueue.
type Scheduler struct {
	cfg     SchedulerConfig
	queue   *queue.PriorityQueue
	jobs    Jobs
	metrics drepo.Metrics
	l       *applogger.Logger
	now     func() time.Time
	wake    chan struct{}

	mu               sync.Mutex
	lastScanStart    time.Time
	lastScanDuration time.Duration
}

func NewScheduler(cfg SchedulerConfig, q *queue.PriorityQueue, jobs Jobs, metrics drepo.Metrics, l *applogger.Logger) *Scheduler {
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = time.Second
	}
	return &Scheduler{
		cfg:     cfg,
		queue:   q,
		jobs:    jobs,
		metrics: metrics,
		l:       l.Component("scheduler"),
		now:     time.Now,
		wake:    make(chan struct{}, 1),
	}
}

// SetClock overrides the wall clock.
func (s *Scheduler) SetClock(now func() time.Time) { s.now = now }

// QueueDepth returns the number of pending jobs.
func (s *Scheduler) QueueDepth() int { return s.queue.Len() }

// LastScan returns when the last anomaly scan started and how long it took.
func (s *Scheduler) LastScan() (time.Time, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScanStart, s.lastScanDuration
}

// Enqueue adds a job. At most one anomaly scan is pending at a time; the other
// bands queue every tick and rely on the queue cap and scan purge.
func (s *Scheduler) Enqueue(job queue.Job) error {
	if job.Name() == JobScanAnomalies && s.queue.Pending(JobScanAnomalies) {
		return nil
	}
	purged, err := s.queue.Push(job)
	s.metrics.RecordQueueDepth(s.queue.Len())
	if purged > 0 {
		s.l.Warn("queue overflow purged scan jobs", applogger.Int("purged", purged), applogger.String("job", job.Name()))
	}
	if err != nil {
		if errors.Is(err, queue.ErrDropped) {
			s.l.Info("scan job dropped on full queue", applogger.String("job", job.Name()))
		} else {
			s.l.Warn("job refused", applogger.String("job", job.Name()), applogger.Error(err))
		}
		return err
	}

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *Scheduler) tradesJob() queue.Job {
	return queue.NewJob(JobMonitorTrades, queue.PriorityTrades, s.jobs.MonitorTrades)
}

func (s *Scheduler) watchlistJob() queue.Job {
	return queue.NewJob(JobMonitorWatchlist, queue.PriorityWatchlist, s.jobs.MonitorWatchlist)
}

func (s *Scheduler) statusJob() queue.Job {
	return queue.NewJob(JobReportStatus, queue.PriorityWatchlist, s.jobs.ReportStatus)
}

func (s *Scheduler) scanJob() queue.Job {
	return queue.NewJob(JobScanAnomalies, queue.PriorityScan, s.runScan)
}

// runScan applies the breaker at execution time, since a scan may have waited
// in the queue behind higher bands.
func (s *Scheduler) runScan(ctx context.Context) error {
	if !s.AllowScan(s.now()) {
		return nil
	}
	start := s.now()
	s.mu.Lock()
	s.lastScanStart = start
	s.mu.Unlock()

	err := s.jobs.ScanAnomalies(ctx)

	took := s.now().Sub(start)
	s.mu.Lock()
	s.lastScanDuration = took
	s.mu.Unlock()
	if s.cfg.MaxScanDuration > 0 && took > s.cfg.MaxScanDuration {
		s.l.Warn("anomaly scan overran, backing off",
			applogger.Duration("took_ms", took),
			applogger.Duration("max_ms", s.cfg.MaxScanDuration),
		)
	}
	return err
}

// AllowScan reports whether an anomaly scan may start at now. Refusals are
// logged as deferred.
func (s *Scheduler) AllowScan(now time.Time) bool {
	reason := s.scanBlocked(now)
	if reason == "" {
		return true
	}
	s.metrics.RecordScanDeferred(reason)
	s.l.Info("anomaly scan deferred",
		applogger.String("reason", reason),
		applogger.Time("next_allowed", s.nextScanAt(now)),
	)
	return false
}

func (s *Scheduler) scanBlocked(now time.Time) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastScanStart.IsZero() {
		return ""
	}
	if now.Sub(s.lastScanStart) < s.cfg.MinScanInterval {
		return "min_interval"
	}
	if s.cfg.MaxScanDuration > 0 && s.lastScanDuration > s.cfg.MaxScanDuration &&
		now.Before(s.lastScanStart.Add(s.lastScanDuration).Add(s.cfg.MinScanInterval)) {
		return "overrun_backoff"
	}
	return ""
}

func (s *Scheduler) nextScanAt(now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastScanStart.IsZero() {
		return now
	}
	next := s.lastScanStart.Add(s.cfg.MinScanInterval)
	if s.cfg.MaxScanDuration > 0 && s.lastScanDuration > s.cfg.MaxScanDuration {
		if backoff := s.lastScanStart.Add(s.lastScanDuration).Add(s.cfg.MinScanInterval); backoff.After(next) {
			next = backoff
		}
	}
	return next
}

// RunNext pops and runs one job. It returns false when the queue is empty.
func (s *Scheduler) RunNext(ctx context.Context) bool {
	entry, ok := s.queue.Pop()
	if !ok {
		return false
	}
	s.metrics.RecordQueueDepth(s.queue.Len())

	job := entry.Job
	start := s.now()
	err := s.safeRun(ctx, job)
	took := s.now().Sub(start)

	s.metrics.RecordJob(int(job.Priority()), job.Name(), took.Seconds(), err)
	if err != nil {
		s.l.Error("job failed",
			applogger.String("job", job.Name()),
			applogger.Int("band", int(job.Priority())),
			applogger.Error(err),
		)
	} else {
		s.l.Debug("job done",
			applogger.String("job", job.Name()),
			applogger.Duration("took_ms", took),
			applogger.Duration("waited_ms", time.Since(entry.EnqueuedAt)),
		)
	}
	return true
}

func (s *Scheduler) safeRun(ctx context.Context, job queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.l.Error("job panicked",
				applogger.String("job", job.Name()),
				applogger.Any("panic", r),
				applogger.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Handle(ctx)
}

// Run drives the queue until ctx is cancelled. Trade and watchlist jobs are
// queued immediately; when the queue runs dry a scan is seeded as soon as the
// breaker allows it.
func (s *Scheduler) Run(ctx context.Context) error {
	_ = s.Enqueue(s.tradesJob())
	_ = s.Enqueue(s.watchlistJob())

	var wg sync.WaitGroup
	s.produce(ctx, &wg, s.cfg.TradeInterval, s.tradesJob)
	s.produce(ctx, &wg, s.cfg.WatchlistInterval, s.watchlistJob)
	s.produce(ctx, &wg, s.cfg.ScanInterval, s.scanJob)
	s.produce(ctx, &wg, s.cfg.StatusInterval, s.statusJob)
	defer wg.Wait()

	s.l.Info("scheduler started",
		applogger.Duration("trade_interval_ms", s.cfg.TradeInterval),
		applogger.Duration("watchlist_interval_ms", s.cfg.WatchlistInterval),
		applogger.Duration("scan_interval_ms", s.cfg.ScanInterval),
	)

	for {
		if ctx.Err() != nil {
			s.l.Info("scheduler stopped")
			return nil
		}
		if s.RunNext(ctx) {
			continue
		}

		now := s.now()
		if s.scanBlocked(now) == "" {
			if err := s.Enqueue(s.scanJob()); err == nil {
				continue
			}
		}

		wait := s.nextScanAt(now).Sub(now)
		if wait <= 0 || wait > s.cfg.IdlePoll {
			wait = s.cfg.IdlePoll
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Scheduler) produce(ctx context.Context, wg *sync.WaitGroup, every time.Duration, job func() queue.Job) {
	if every <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.Enqueue(job())
			}
		}
	}()
}
