// Package metrics holds the Prometheus collectors for the site backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "site",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "site",
			Subsystem: "media",
			Name:      "uploads_total",
			Help:      "Uploads by category and result (stored, duplicate, failed)",
		},
		[]string{"category", "result"},
	)

	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "site",
			Subsystem: "media",
			Name:      "upload_bytes_total",
			Help:      "Bytes written to the object store by uploads",
		},
		[]string{"category"},
	)

	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "site",
			Subsystem: "media",
			Name:      "store_operations_total",
			Help:      "Object store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	StoreDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "site",
			Subsystem: "media",
			Name:      "store_duration_seconds",
			Help:      "Object store operation latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"backend", "operation"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "site",
			Subsystem: "media",
			Name:      "deliveries_total",
			Help:      "Delivery proxy responses by status code",
		},
		[]string{"status"},
	)

	DeliveryBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "site",
			Subsystem: "media",
			Name:      "delivery_bytes_total",
			Help:      "Bytes streamed by the delivery proxy",
		},
	)

	SweptObjectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "site",
			Subsystem: "media",
			Name:      "swept_objects_total",
			Help:      "Orphaned objects removed by the sweeper",
		},
	)
)

// RecordRequest records a finished HTTP request.
func RecordRequest(method, status string) {
	RequestsTotal.WithLabelValues(method, status).Inc()
}

// RecordUpload records an upload outcome. Bytes only count for stored objects.
func RecordUpload(category, result string, bytes int64) {
	UploadsTotal.WithLabelValues(category, result).Inc()
	if result == "stored" {
		UploadBytesTotal.WithLabelValues(category).Add(float64(bytes))
	}
}

// RecordStoreOperation records an object store call.
func RecordStoreOperation(backend, operation, status string, durationSec float64) {
	StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	StoreDuration.WithLabelValues(backend, operation).Observe(durationSec)
}

// RecordDelivery records a delivery response and the bytes it carried.
func RecordDelivery(status string, bytes int64) {
	DeliveriesTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		DeliveryBytesTotal.Add(float64(bytes))
	}
}
