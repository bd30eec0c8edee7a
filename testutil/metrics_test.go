/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRequireSamplesCountInCounter(t *testing.T) {
	retransmissionsCounter := prometheus.NewCounter(prometheus.CounterOpts{Name: "retransmissions"})
	retransmissionsCounter.Add(42)

	mockT := &MockT{}
	RequireSamplesCountInCounter(mockT, retransmissionsCounter, 41)
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireSamplesCountInCounter(mockT, retransmissionsCounter, 42)
	require.False(t, mockT.Failed)
}

func TestRequireSamplesCountInHistogram(t *testing.T) {
	durationHistogram := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "retransmissions", Buckets: []float64{1, 10, 20, 30, 40, 50}})
	durationHistogram.Observe(42)

	mockT := &MockT{}
	RequireSamplesCountInHistogram(mockT, durationHistogram, 0)
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireSamplesCountInHistogram(mockT, durationHistogram, 1)
	require.False(t, mockT.Failed)
}

func TestRequireValueInGauge(t *testing.T) {
	pendingGauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "pending"})
	pendingGauge.Set(3)

	mockT := &MockT{}
	RequireValueInGauge(mockT, pendingGauge, 2)
	require.True(t, mockT.Failed)

	mockT = &MockT{}
	RequireValueInGauge(mockT, pendingGauge, 3)
	require.False(t, mockT.Failed)
}
