package delivery

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// Metrics holds the Prometheus metrics for submission relay.
type Metrics struct {
	SubmissionsReceived *prometheus.CounterVec
	SubmissionsRejected *prometheus.CounterVec
	DeliveryAttempts    *prometheus.CounterVec
	DeliverySuccesses   prometheus.Counter
	DeliveryFailures    prometheus.Counter
	FallbackDeliveries  prometheus.Counter
	DeliveryDuration    prometheus.Histogram
	CleanupFailures     prometheus.Counter
}

// GetMetrics returns the singleton metrics instance.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		SubmissionsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_submissions_received_total",
			Help: "Total number of form submissions received",
		}, []string{"form"}),
		SubmissionsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_submissions_rejected_total",
			Help: "Total number of submissions rejected before delivery",
		}, []string{"form", "reason"}),
		DeliveryAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "formrelay_delivery_attempts_total",
			Help: "Total number of SMTP delivery attempts",
		}, []string{"transport"}),
		DeliverySuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_deliveries_succeeded_total",
			Help: "Total number of submissions delivered",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_deliveries_failed_total",
			Help: "Total number of submissions that failed both transports",
		}),
		FallbackDeliveries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_fallback_deliveries_total",
			Help: "Total number of deliveries that succeeded via the fallback transport",
		}),
		DeliveryDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "formrelay_delivery_duration_seconds",
			Help:    "Duration of the full delivery sequence per submission",
			Buckets: prometheus.DefBuckets,
		}),
		CleanupFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "formrelay_cleanup_failures_total",
			Help: "Total number of temporary upload files that could not be removed",
		}),
	}
}
