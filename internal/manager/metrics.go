package manager

import "github.com/prometheus/client_golang/prometheus"

var (
	fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dermd",
			Subsystem: "artifact",
			Name:      "fetch_total",
			Help:      "Artifact fetches by outcome",
		},
		[]string{"outcome"},
	)

	fetchBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "dermd",
			Subsystem: "artifact",
			Name:      "fetch_bytes_total",
			Help:      "Bytes written by artifact fetches",
		},
	)

	loadAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dermd",
			Subsystem: "model",
			Name:      "load_attempts_total",
			Help:      "Model load attempts by strategy and outcome",
		},
		[]string{"strategy", "outcome"},
	)

	modelDegraded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dermd",
			Subsystem: "model",
			Name:      "degraded",
			Help:      "1 when the loaded model is a synthesized fallback",
		},
	)

	modelReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dermd",
			Subsystem: "model",
			Name:      "ready",
			Help:      "1 when a model is loaded and serving",
		},
	)

	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dermd",
			Subsystem: "inference",
			Name:      "predictions_total",
			Help:      "Predictions by outcome and predicted label",
		},
		[]string{"outcome", "label"},
	)

	predictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "dermd",
			Subsystem: "inference",
			Name:      "prediction_duration_seconds",
			Help:      "Time spent decoding, preprocessing and classifying one image",
			Buckets:   prometheus.DefBuckets,
		},
	)

	predictionQueue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "dermd",
			Subsystem: "inference",
			Name:      "queued",
			Help:      "Predictions waiting for or holding an in-flight slot",
		},
	)
)

func init() {
	prometheus.MustRegister(fetchTotal, fetchBytes, loadAttemptsTotal, modelDegraded, modelReady,
		predictionsTotal, predictionDuration, predictionQueue)
}
