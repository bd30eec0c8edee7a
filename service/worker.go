/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/acronis/go-reqbroker/log"
)

// Worker does long-running work until ctx is done.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run implements Worker.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// Name is added to every log entry of the worker (e.g. "agentdb-vacuum").
	Name string
	// InitialDelay is the delay before the first run. Zero means the first run happens right away.
	InitialDelay time.Duration
}

// PeriodicWorker runs the underlying worker, then sleeps for the interval and runs it again, until stopped.
// A failed run is logged and doesn't break the loop.
type PeriodicWorker struct {
	worker       Worker
	interval     time.Duration
	initialDelay time.Duration
	logger       log.FieldLogger
}

var _ Worker = (*PeriodicWorker)(nil)

// NewPeriodicWorker creates a new PeriodicWorker.
func NewPeriodicWorker(
	worker Worker, interval time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	if opts.Name != "" {
		logger = logger.With(log.String("worker", opts.Name))
	}
	return &PeriodicWorker{
		worker:       worker,
		interval:     interval,
		initialDelay: opts.InitialDelay,
		logger:       logger,
	}
}

// Run implements Worker. It returns nil once ctx is done.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	defer pw.logPanic()

	pw.logger.Info("periodic worker started",
		log.Duration("initial_delay", pw.initialDelay), log.Duration("interval", pw.interval))

	delay := pw.initialDelay
	for pw.sleep(ctx, delay) {
		startTime := time.Now()
		if err := pw.worker.Run(ctx); err != nil {
			pw.logger.Error("periodic worker run failed", log.Error(err),
				log.DurationIn(time.Since(startTime), time.Millisecond))
		}
		delay = pw.interval
	}

	pw.logger.Info("periodic worker stopped")
	return nil
}

// sleep waits for d and reports whether the worker should run again.
func (pw *PeriodicWorker) sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (pw *PeriodicWorker) logPanic() {
	if p := recover(); p != nil {
		const logStackSize = 8192
		stack := make([]byte, logStackSize)
		stack = stack[:runtime.Stack(stack, false)]
		pw.logger.Error(fmt.Sprintf("periodic worker panic: %+v", p), log.Bytes("stack", stack))
		panic(p)
	}
}
