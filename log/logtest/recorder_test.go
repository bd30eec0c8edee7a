/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-reqbroker/log"
)

func TestRecorder(t *testing.T) {
	logRecorder := NewRecorder()
	logRecorder.Warn("request counter not found", log.String("id", "0000002a"), log.Int("suppressed", 3))
	logRecorder.With(log.String("agent", "001")).Info("request dispatched")

	require.Equal(t, 2, len(logRecorder.Entries()))

	_, found := logRecorder.FindEntry("foobar")
	require.False(t, found)

	logEntry, found := logRecorder.FindEntry("request counter not found")
	require.True(t, found)
	require.Equal(t, log.LevelWarn, logEntry.Level)

	logFieldNum, found := logEntry.FindField("suppressed")
	require.True(t, found)
	require.Equal(t, 3, int(logFieldNum.Int))

	logFieldStr, found := logEntry.FindField("id")
	require.True(t, found)
	require.Equal(t, "0000002a", string(logFieldStr.Bytes))

	dispatched, found := logRecorder.FindEntry("request dispatched")
	require.True(t, found)
	agentField, found := dispatched.FindField("agent")
	require.True(t, found)
	require.Equal(t, "001", string(agentField.Bytes))

	require.Len(t, logRecorder.FindAllEntriesByLevel(log.LevelWarn), 1)

	warnOnly := logRecorder.WithLevel(log.LevelWarn)
	warnOnly.Info("datagram received")
	warnOnly.Error("udp transport stopped with error")
	_, found = logRecorder.FindEntry("datagram received")
	require.False(t, found)
	_, found = logRecorder.FindEntry("udp transport stopped with error")
	require.True(t, found)

	logRecorder.Reset()
	require.Empty(t, logRecorder.Entries())
}
