package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("/api/v1/slots", "2xx")
		IncMirrorTask("upsert", "ok")
	})
}

func TestObserveOperation(t *testing.T) {
	counter := reservationOps.WithLabelValues("reserve", "conflict")
	before := readCounter(t, counter)

	ObserveOperation("reserve", "conflict")
	assert.Equal(t, before+1, readCounter(t, counter))

	SetHeld(7)
	var m dto.Metric
	require.NoError(t, heldReservations.Write(&m))
	assert.Equal(t, 7.0, m.GetGauge().GetValue())
}

func readCounter(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}
