package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gestor_turnos"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status class.",
		},
		[]string{"endpoint", "code"},
	)

	reservationOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservation_operations_total",
			Help:      "Reserve, modify and release calls by outcome.",
		},
		[]string{"op", "result"},
	)

	heldReservations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reservations_held",
			Help:      "Reservations currently held in memory.",
		},
	)

	mirrorTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_tasks_total",
			Help:      "Spreadsheet mirror tasks by type and outcome.",
		},
		[]string{"type", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, reservationOps, heldReservations, mirrorTasks)
	})
}

func IncHTTP(endpoint, code string) {
	httpRequests.WithLabelValues(endpoint, code).Inc()
}

// ObserveOperation counts a store mutation. result is "ok" or an error class.
func ObserveOperation(op, result string) {
	reservationOps.WithLabelValues(op, result).Inc()
}

func SetHeld(n int) {
	heldReservations.Set(float64(n))
}

func IncMirrorTask(taskType, result string) {
	mirrorTasks.WithLabelValues(taskType, result).Inc()
}
