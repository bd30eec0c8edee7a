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
)

func TestWorkerUnit_StartStop(t *testing.T) {
	t.Run("stop not gracefully does not wait for the worker", func(t *testing.T) {
		var reads atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			reads.Inc()
			return nil
		}), time.Millisecond*100, log.NewDisabledLogger(), PeriodicWorkerOpts{})

		unit := NewWorkerUnit(pw)
		fatalErr, startExit := startInBackground(unit)
		require.NoError(t, waitTrue(func() bool { return reads.Load() >= 2 }, time.Second*3))
		require.NoError(t, unit.Stop(false))
		<-startExit
		require.Len(t, fatalErr, 0)
	})

	t.Run("graceful stop timeout is reported", func(t *testing.T) {
		datagramReader := WorkerFunc(func(ctx context.Context) error {
			time.Sleep(time.Second * 2) // Emulate a read that ignores cancellation.
			return nil
		})
		unit := NewWorkerUnitWithOpts(datagramReader, WorkerUnitOpts{GracefulStopTimeout: time.Millisecond * 200})
		startInBackground(unit)
		time.Sleep(time.Millisecond * 50)
		require.ErrorIs(t, unit.Stop(true), ErrWorkerUnitStopTimeoutExceeded)
	})

	t.Run("graceful stop waits for the worker", func(t *testing.T) {
		var drained atomic.Bool
		datagramReader := WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			time.Sleep(time.Millisecond * 100)
			drained.Store(true)
			return nil
		})
		unit := NewWorkerUnit(datagramReader)
		fatalErr, startExit := startInBackground(unit)
		time.Sleep(time.Millisecond * 50)
		require.NoError(t, unit.Stop(true))
		require.True(t, drained.Load())
		<-startExit
		require.Len(t, fatalErr, 0)
	})

	t.Run("graceful stop before start", func(t *testing.T) {
		unit := NewWorkerUnitWithOpts(WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			return nil
		}), WorkerUnitOpts{GracefulStopTimeout: time.Second})
		stopErr := make(chan error, 1)
		go func() { stopErr <- unit.Stop(true) }()
		fatalErr, startExit := startInBackground(unit)
		<-startExit
		require.NoError(t, <-stopErr)
		require.Len(t, fatalErr, 0)
	})

	t.Run("worker error is reported as fatal", func(t *testing.T) {
		errSocket := errors.New("read udp: use of closed network connection")
		unit := NewWorkerUnit(WorkerFunc(func(ctx context.Context) error {
			return errSocket
		}))
		fatalErr, startExit := startInBackground(unit)
		<-startExit
		require.ErrorIs(t, <-fatalErr, errSocket)
		require.NoError(t, unit.Stop(true))
	})
}
