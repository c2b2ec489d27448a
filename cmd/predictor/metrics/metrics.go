// Package metrics provides Prometheus instrumentation for the predictor.
//
// Metrics exposed:
//   - courtcast_predictions_total: predictions served by target and source
//   - courtcast_prediction_seconds: time to predict one target
//   - courtcast_prediction_clips_total: predictions clipped to the position range
//   - courtcast_missing_features_total: feature values filled with 0
//   - courtcast_ensemble_fallbacks_total: ensembles with no usable component
//   - courtcast_model_info: one series per loaded artifact, value 1
//   - courtcast_errors_total: errors by component and reason
//   - courtcast_cache_lookups_total: prediction cache lookups by result
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/HatiCode/courtcast/pkg/artifacts"
)

// Metrics holds the predictor's collectors. It implements predict.Recorder.
type Metrics struct {
	PredictionsTotal  *prometheus.CounterVec
	PredictionSeconds *prometheus.HistogramVec
	ClipsTotal        *prometheus.CounterVec
	MissingFeatures   *prometheus.CounterVec
	FallbacksTotal    *prometheus.CounterVec
	ModelInfo         *prometheus.GaugeVec
	ErrorsTotal       *prometheus.CounterVec
	CacheLookups      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg uses the
// default registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		PredictionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courtcast_predictions_total",
			Help: "Predictions served by target and source (ensemble or model)",
		}, []string{"target", "source"}),

		PredictionSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "courtcast_prediction_seconds",
			Help:    "Time spent predicting one target",
			Buckets: []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05, .1},
		}, []string{"target"}),

		ClipsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courtcast_prediction_clips_total",
			Help: "Predictions clipped into the position range",
		}, []string{"target", "position"}),

		MissingFeatures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courtcast_missing_features_total",
			Help: "Feature values missing at prediction time and filled with 0",
		}, []string{"target"}),

		FallbacksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courtcast_ensemble_fallbacks_total",
			Help: "Ensemble predictions that used the fallback estimate",
		}, []string{"target"}),

		ModelInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtcast_model_info",
			Help: "Loaded artifacts, one series per target and kind",
		}, []string{"target", "kind", "version"}),

		ErrorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courtcast_errors_total",
			Help: "Errors by component and reason",
		}, []string{"component", "reason"}),

		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courtcast_cache_lookups_total",
			Help: "Prediction cache lookups by result (hit or miss)",
		}, []string{"result"}),
	}
}

func (m *Metrics) ObservePrediction(target, source string, elapsed time.Duration) {
	m.PredictionsTotal.WithLabelValues(target, source).Inc()
	m.PredictionSeconds.WithLabelValues(target).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveClip(target, position string) {
	if position == "" {
		position = "unknown"
	}
	m.ClipsTotal.WithLabelValues(target, position).Inc()
}

func (m *Metrics) ObserveMissingFeatures(target string, n int) {
	m.MissingFeatures.WithLabelValues(target).Add(float64(n))
}

func (m *Metrics) ObserveFallback(target string) {
	m.FallbacksTotal.WithLabelValues(target).Inc()
}

// SetModels publishes one info series per artifact in set.
func (m *Metrics) SetModels(set *artifacts.Set) {
	m.ModelInfo.Reset()
	for _, t := range set.Targets() {
		if a, ok := set.Model(t); ok {
			m.ModelInfo.WithLabelValues(t, "model", a.Version).Set(1)
		}
		if e, ok := set.Ensemble(t); ok {
			m.ModelInfo.WithLabelValues(t, "ensemble", e.Version).Set(1)
		}
	}
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(component, reason string) {
	m.ErrorsTotal.WithLabelValues(component, reason).Inc()
}

// RecordCacheLookup counts one prediction cache lookup.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
