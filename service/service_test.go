/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqbroker/log/logtest"
)

func TestService_Start(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	var runningCounter int32
	broker := newFakeUnit("broker", &runningCounter, false)
	svc := New(logRecorder, broker)

	startErr := make(chan error, 1)
	go func() {
		startErr <- svc.Start()
	}()
	require.NoError(t, waitTrue(func() bool { return atomic.LoadInt32(&runningCounter) == 1 }, time.Second*3))
	require.EqualValues(t, 1, broker.mustRegisterMetricsCalled.Load())
	require.EqualValues(t, 1, broker.startCalled.Load())

	svc.Signals <- os.Interrupt

	require.NoError(t, <-startErr)
	require.EqualValues(t, 0, atomic.LoadInt32(&runningCounter))
	require.EqualValues(t, 1, broker.unregisterMetricsCalled.Load())
	require.EqualValues(t, 1, broker.stopGracefullyCalled.Load())

	entry, found := logRecorder.FindEntry("shutdown signal received, stopping service...")
	require.True(t, found)
	signalField, found := entry.FindField("signal")
	require.True(t, found)
	require.Equal(t, os.Interrupt.String(), string(signalField.Bytes))
	_, found = logRecorder.FindEntry("service stopped")
	require.True(t, found)
}

func TestService_StartContext(t *testing.T) {
	ctx, ctxCancel := context.WithCancel(context.Background())

	var runningCounter int32
	broker := newFakeUnit("broker", &runningCounter, false)
	svc := New(logtest.NewRecorder(), broker)

	startErr := make(chan error, 1)
	go func() {
		startErr <- svc.StartContext(ctx)
	}()
	require.NoError(t, waitTrue(func() bool { return atomic.LoadInt32(&runningCounter) == 1 }, time.Second*3))

	ctxCancel()

	require.NoError(t, <-startErr)
	require.EqualValues(t, 1, broker.stopGracefullyCalled.Load())
}

func TestService_FatalError(t *testing.T) {
	errBind := errors.New("listen unix /var/run/reqbroker/request.sock: bind: permission denied")
	logRecorder := logtest.NewRecorder()
	svc := New(logRecorder, &failingUnit{err: errBind})

	err := svc.StartContext(context.Background())
	require.ErrorIs(t, err, errBind)

	_, found := logRecorder.FindEntry("service fatal error")
	require.True(t, found)
}
