// Copyright (C) 2026, VeritasDB, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/veritasdb/vsmraft/internal/metrics"
)

func TestSharedRegistererReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m1 := metrics.New(reg)
	m2 := metrics.New(reg)

	// Both instances must update the collector the registry actually
	// scrapes, not a second unregistered copy.
	m1.DivergenceFaults.Inc()
	m2.DivergenceFaults.Inc()

	var metric dto.Metric
	require.NoError(t, m2.DivergenceFaults.Write(&metric))
	require.Equal(t, float64(2), metric.GetCounter().GetValue())
}

func TestNoOpIsIndependentPerCall(t *testing.T) {
	m1 := metrics.NoOp()
	m2 := metrics.NoOp()
	m1.DivergenceFaults.Inc()

	var metric dto.Metric
	require.NoError(t, m2.DivergenceFaults.Write(&metric))
	require.Equal(t, float64(0), metric.GetCounter().GetValue())
}
