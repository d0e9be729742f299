package server

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SpikeWatch/internal/middleware"
	"SpikeWatch/internal/service/finnhub"
	"SpikeWatch/internal/usecase"
	"SpikeWatch/pkg/config"
	xhttp "SpikeWatch/pkg/http"
	applogger "SpikeWatch/pkg/logger"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	core       *usecase.TradingCore
	scheduler  *usecase.Scheduler
	pipeline   *middleware.NotificationPipeline
	stream     *finnhub.StreamSampler
	httpServer *xhttp.Server
	closers    []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// New creates a new App. stream and httpServer may be nil.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	core *usecase.TradingCore,
	scheduler *usecase.Scheduler,
	pipeline *middleware.NotificationPipeline,
	stream *finnhub.StreamSampler,
	httpServer *xhttp.Server,
) *App {
	return &App{
		cfg:        cfg,
		l:          l.Component("app"),
		core:       core,
		scheduler:  scheduler,
		pipeline:   pipeline,
		stream:     stream,
		httpServer: httpServer,
	}
}

// OnClose registers an infrastructure client closed after everything else
// stopped, in reverse registration order. Nil closers are ignored.
func (a *App) OnClose(name string, c io.Closer) {
	if c == nil {
		return
	}
	a.closers = append(a.closers, namedCloser{name: name, c: c})
}

// Run restores state, starts every component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.run(ctx)
}

func (a *App) run(ctx context.Context) error {
	if err := a.core.Restore(ctx); err != nil {
		a.closeAll()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.pipeline.Start(runCtx)

	streamDone := make(chan struct{})
	if a.stream != nil {
		go func() {
			defer close(streamDone)
			if err := a.stream.Run(runCtx); err != nil {
				a.l.Error("stream sampler stopped", applogger.Error(err))
			}
		}()
	} else {
		close(streamDone)
	}

	if a.httpServer != nil {
		if err := a.httpServer.Start(); err != nil {
			a.l.Error("http server start error", applogger.Error(err))
			cancel()
			return a.shutdown(streamDone, err)
		}
	}

	schedDone := make(chan error, 1)
	go func() { schedDone <- a.scheduler.Run(runCtx) }()

	a.l.Info("spikewatch started",
		applogger.String("environment", a.cfg.Environment),
		applogger.Int("instruments", len(a.core.Universe())),
		applogger.String("source", a.cfg.MarketData.Source),
		applogger.String("persistence", a.cfg.Persistence.Backend),
	)

	var runErr error
	select {
	case <-ctx.Done():
		a.l.Info("shutdown signal received")
		cancel()
		runErr = <-schedDone
	case runErr = <-schedDone:
		cancel()
	}
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}
	if runErr != nil {
		a.l.Error("scheduler stopped", applogger.Error(runErr))
	}
	return a.shutdown(streamDone, runErr)
}

// shutdown stops the surfaces first, then flushes state and pending
// notifications, then closes the infrastructure clients.
func (a *App) shutdown(streamDone <-chan struct{}, cause error) error {
	timeout := a.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	a.l.Info("shutting down...")

	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.l.Error("http shutdown error", applogger.Error(err))
		}
	}

	if err := a.core.Flush(ctx); err != nil {
		a.l.Error("final state flush failed", applogger.Error(err))
		if cause == nil {
			cause = err
		}
	}

	a.pipeline.Stop(ctx)

	if a.stream != nil {
		// unblocks a pending read
		_ = a.stream.Close()
	}
	select {
	case <-streamDone:
	case <-ctx.Done():
		a.l.Warn("stream sampler did not stop in time")
	}

	a.closeAll()
	a.l.Info("shutdown complete")
	return cause
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		nc := a.closers[i]
		if err := nc.c.Close(); err != nil {
			a.l.Warn("close error", applogger.String("resource", nc.name), applogger.Error(err))
		}
	}
	a.closers = nil
}
