package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	applogger "SpikeWatch/pkg/logger"
	"SpikeWatch/pkg/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJobs struct {
	mu    sync.Mutex
	calls []string
	scan  func()
	fail  error
}

func (j *fakeJobs) record(name string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, name)
}

func (j *fakeJobs) Calls() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.calls...)
}

func (j *fakeJobs) count(name string) int {
	n := 0
	for _, c := range j.Calls() {
		if c == name {
			n++
		}
	}
	return n
}

func (j *fakeJobs) MonitorTrades(context.Context) error {
	j.record(JobMonitorTrades)
	return j.fail
}

func (j *fakeJobs) MonitorWatchlist(context.Context) error {
	j.record(JobMonitorWatchlist)
	return nil
}

func (j *fakeJobs) ScanAnomalies(context.Context) error {
	j.record(JobScanAnomalies)
	if j.scan != nil {
		j.scan()
	}
	return nil
}

func (j *fakeJobs) ReportStatus(context.Context) error {
	j.record(JobReportStatus)
	return nil
}

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TradeInterval:     time.Hour,
		WatchlistInterval: time.Hour,
		ScanInterval:      time.Hour,
		MinScanInterval:   5 * time.Minute,
		MaxScanDuration:   5 * time.Minute,
		IdlePoll:          10 * time.Millisecond,
	}
}

func newTestScheduler(jobs Jobs, clock *manualClock) *Scheduler {
	s := NewScheduler(testSchedulerConfig(), queue.NewPriorityQueue(), jobs, nopMetrics{}, applogger.Nop())
	if clock != nil {
		s.SetClock(clock.Now)
	}
	return s
}

func TestSchedulerDrainsByPriority(t *testing.T) {
	jobs := &fakeJobs{}
	s := newTestScheduler(jobs, newClock())

	require.NoError(t, s.Enqueue(s.scanJob()))
	require.NoError(t, s.Enqueue(s.statusJob()))
	require.NoError(t, s.Enqueue(s.watchlistJob()))
	require.NoError(t, s.Enqueue(s.tradesJob()))

	for s.RunNext(context.Background()) {
	}
	assert.Equal(t, []string{JobMonitorTrades, JobReportStatus, JobMonitorWatchlist, JobScanAnomalies}, jobs.Calls())
	assert.False(t, s.RunNext(context.Background()))
}

func seedLastScan(s *Scheduler, start time.Time, took time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScanStart, s.lastScanDuration = start, took
}

func TestSchedulerDeduplicatesOnlyScans(t *testing.T) {
	s := newTestScheduler(&fakeJobs{}, nil)
	require.NoError(t, s.Enqueue(s.scanJob()))
	require.NoError(t, s.Enqueue(s.scanJob()))
	require.NoError(t, s.Enqueue(s.tradesJob()))
	require.NoError(t, s.Enqueue(s.tradesJob()))
	require.NoError(t, s.Enqueue(s.watchlistJob()))
	require.NoError(t, s.Enqueue(s.watchlistJob()))
	assert.Equal(t, 5, s.QueueDepth())
	assert.Equal(t, 1, s.queue.Count(queue.PriorityScan))
}

func TestSchedulerPurgesScanWhenBacklogFills(t *testing.T) {
	q := queue.NewPriorityQueue(queue.WithMaxDepth(3))
	s := NewScheduler(testSchedulerConfig(), q, &fakeJobs{}, nopMetrics{}, applogger.Nop())

	require.NoError(t, s.Enqueue(s.scanJob()))
	require.NoError(t, s.Enqueue(s.tradesJob()))
	require.NoError(t, s.Enqueue(s.tradesJob()))
	require.NoError(t, s.Enqueue(s.watchlistJob()))

	assert.Equal(t, 3, s.QueueDepth())
	assert.Zero(t, q.Count(queue.PriorityScan))
	assert.ErrorIs(t, s.Enqueue(s.scanJob()), queue.ErrDropped)
}

func TestAllowScan(t *testing.T) {
	tests := []struct {
		name string
		took time.Duration
		at   time.Duration
		want bool
	}{
		{"before min interval", time.Minute, 4 * time.Minute, false},
		{"at min interval", time.Minute, 5 * time.Minute, true},
		{"overrun backs off", 7 * time.Minute, 6 * time.Minute, false},
		{"overrun still backing off", 7 * time.Minute, 12*time.Minute - time.Second, false},
		{"overrun back-off over", 7 * time.Minute, 12 * time.Minute, true},
		{"exactly max duration is not an overrun", 5 * time.Minute, 5 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(&fakeJobs{}, nil)
			assert.True(t, s.AllowScan(epoch))

			seedLastScan(s, epoch, tt.took)
			assert.Equal(t, tt.want, s.AllowScan(epoch.Add(tt.at)))
		})
	}
}

func TestScanJobRecordsDurationAndDefers(t *testing.T) {
	clock := newClock()
	jobs := &fakeJobs{scan: func() { clock.Advance(6 * time.Minute) }}
	s := newTestScheduler(jobs, clock)

	require.NoError(t, s.Enqueue(s.scanJob()))
	require.True(t, s.RunNext(context.Background()))

	start, took := s.LastScan()
	assert.Equal(t, epoch, start)
	assert.Equal(t, 6*time.Minute, took)

	// deferred at run time: the scan body is not invoked
	clock.Advance(4 * time.Minute)
	require.NoError(t, s.Enqueue(s.scanJob()))
	require.True(t, s.RunNext(context.Background()))
	assert.Equal(t, 1, jobs.count(JobScanAnomalies))

	clock.Advance(time.Minute)
	assert.True(t, s.AllowScan(clock.Now()))
}

func TestSchedulerRecoversFromPanicsAndErrors(t *testing.T) {
	jobs := &fakeJobs{fail: errors.New("boom")}
	s := newTestScheduler(jobs, newClock())

	require.NoError(t, s.Enqueue(queue.NewJob("explode", queue.PriorityTrades, func(context.Context) error {
		panic("bad state")
	})))
	require.NoError(t, s.Enqueue(s.tradesJob()))
	require.NoError(t, s.Enqueue(s.watchlistJob()))

	assert.True(t, s.RunNext(context.Background()))
	assert.True(t, s.RunNext(context.Background()))
	assert.True(t, s.RunNext(context.Background()))
	assert.Equal(t, []string{JobMonitorTrades, JobMonitorWatchlist}, jobs.Calls())
}

func TestRunSelfSeedsScan(t *testing.T) {
	jobs := &fakeJobs{}
	s := newTestScheduler(jobs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return jobs.count(JobScanAnomalies) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	calls := jobs.Calls()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, []string{JobMonitorTrades, JobMonitorWatchlist, JobScanAnomalies}, calls[:3])
	assert.Equal(t, 1, jobs.count(JobScanAnomalies))
}
