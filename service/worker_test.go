/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-reqbroker/log"
	"github.com/acronis/go-reqbroker/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("runs until context is done", func(t *testing.T) {
		const iterations = 5

		var vacuums atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			vacuums.Inc()
			return nil
		}), time.Millisecond*100, log.NewDisabledLogger(), PeriodicWorkerOpts{})

		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Millisecond*100*iterations)
		defer ctxCancel()

		require.NoError(t, pw.Run(ctx))
		require.GreaterOrEqual(t, int(vacuums.Load()), iterations)
		require.LessOrEqual(t, int(vacuums.Load()), iterations+1)
		require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	})

	t.Run("initial delay postpones the first run", func(t *testing.T) {
		var vacuums atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			vacuums.Inc()
			return nil
		}), time.Millisecond*100, log.NewDisabledLogger(), PeriodicWorkerOpts{InitialDelay: time.Millisecond * 250})

		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Millisecond*500)
		defer ctxCancel()

		require.NoError(t, pw.Run(ctx))
		require.EqualValues(t, 3, vacuums.Load())
	})

	t.Run("failed run is logged and the loop goes on", func(t *testing.T) {
		errLocked := errors.New("database is locked")
		var vacuums atomic.Int32
		logRecorder := logtest.NewRecorder()
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			if vacuums.Inc() == 1 {
				return errLocked
			}
			return nil
		}), time.Millisecond*50, logRecorder, PeriodicWorkerOpts{Name: "agentdb-vacuum"})

		ctx, ctxCancel := context.WithCancel(context.Background())
		defer ctxCancel()
		runErr := make(chan error, 1)
		go func() { runErr <- pw.Run(ctx) }()

		require.NoError(t, waitTrue(func() bool { return vacuums.Load() >= 3 }, time.Second*3))
		ctxCancel()
		require.NoError(t, <-runErr)

		entry, found := logRecorder.FindEntry("periodic worker run failed")
		require.True(t, found)
		workerField, found := entry.FindField("worker")
		require.True(t, found)
		require.Equal(t, "agentdb-vacuum", string(workerField.Bytes))
		errField, found := entry.FindField("error")
		require.True(t, found)
		require.Equal(t, errLocked, errField.Any)
	})

	t.Run("canceled context stops the worker before the first run", func(t *testing.T) {
		var vacuums atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			vacuums.Inc()
			return nil
		}), time.Hour, log.NewDisabledLogger(), PeriodicWorkerOpts{})

		ctx, ctxCancel := context.WithCancel(context.Background())
		ctxCancel()
		require.NoError(t, pw.Run(ctx))
		require.EqualValues(t, 0, vacuums.Load())
	})
}
