package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rm-3284/mle-bench-hpc/internal/models"
)

// Metrics agrupa los collectors del servidor en un registry propio
type Metrics struct {
	registry *prometheus.Registry

	validations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	uploadBytes prometheus.Histogram
}

// New crea y registra los collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_validations_total",
			Help: "Validation requests by competition and verdict.",
		}, []string{"competition", "verdict"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "grader_validation_duration_seconds",
			Help:    "Time spent validating a submission.",
			Buckets: prometheus.DefBuckets,
		}, []string{"competition"}),
		uploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "grader_upload_bytes",
			Help:    "Size of uploaded submissions.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB .. 256MB
		}),
	}

	m.registry.MustRegister(
		m.validations,
		m.duration,
		m.uploadBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveValidation registra el resultado y la duración de una validación
func (m *Metrics) ObserveValidation(competitionID string, verdict models.Verdict, elapsed time.Duration) {
	m.validations.WithLabelValues(competitionID, string(verdict)).Inc()
	m.duration.WithLabelValues(competitionID).Observe(elapsed.Seconds())
}

// ObserveUpload registra el tamaño de un archivo subido
func (m *Metrics) ObserveUpload(size int64) {
	m.uploadBytes.Observe(float64(size))
}

// Registry expone el registry (útil en tests)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler sirve /metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
