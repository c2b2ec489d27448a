// Package metrics records training-run metrics and pushes them to a
// Prometheus Pushgateway, since the trainer is a batch job that exits before
// any scrape.
//
// Metrics exposed:
//   - courtcast_training_mae / _rmse / _r2: held-out metrics by target and model kind
//   - courtcast_training_rows: training rows per target
//   - courtcast_training_duration_seconds: fit time per target
//   - courtcast_ensemble_improvement: general-model MAE minus ensemble MAE
//   - courtcast_training_failures_total: failed targets by reason
//   - courtcast_training_records: game records loaded, and skipped by reason
//   - courtcast_training_last_success_timestamp_seconds: end of the last run that trained every target
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/HatiCode/courtcast/pkg/models"
)

// Model kinds used as the "kind" label.
const (
	KindModel    = "model"
	KindEnsemble = "ensemble"
)

// Metrics holds the trainer's collectors in a private registry. It
// implements training.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	MAE         *prometheus.GaugeVec
	RMSE        *prometheus.GaugeVec
	R2          *prometheus.GaugeVec
	Rows        *prometheus.GaugeVec
	Duration    *prometheus.GaugeVec
	Improvement *prometheus.GaugeVec
	Failures    *prometheus.CounterVec
	Records     *prometheus.GaugeVec
	LastSuccess prometheus.Gauge
}

// New creates the collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		MAE: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtcast_training_mae",
			Help: "Held-out mean absolute error",
		}, []string{"target", "kind"}),
		RMSE: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtcast_training_rmse",
			Help: "Held-out root mean squared error",
		}, []string{"target", "kind"}),
		R2: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtcast_training_r2",
			Help: "Held-out coefficient of determination",
		}, []string{"target", "kind"}),
		Rows: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtcast_training_rows",
			Help: "Rows used to fit the model",
		}, []string{"target"}),
		Duration: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtcast_training_duration_seconds",
			Help: "Time spent training one target",
		}, []string{"target"}),
		Improvement: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtcast_ensemble_improvement",
			Help: "General model MAE minus ensemble MAE; positive means the ensemble helps",
		}, []string{"target"}),
		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "courtcast_training_failures_total",
			Help: "Targets that failed to train, by reason",
		}, []string{"target", "reason"}),
		Records: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "courtcast_training_records",
			Help: "Game records loaded (status=loaded) or skipped (status=skip reason)",
		}, []string{"status"}),
		LastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "courtcast_training_last_success_timestamp_seconds",
			Help: "Unix time of the last run in which every target trained",
		}),
	}
}

// Registry returns the registry holding the trainer's collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

func (m *Metrics) ObserveTarget(target string, ev models.Evaluation, trainRows int, elapsed time.Duration) {
	m.set(target, KindModel, ev)
	m.Rows.WithLabelValues(target).Set(float64(trainRows))
	m.Duration.WithLabelValues(target).Set(elapsed.Seconds())
}

func (m *Metrics) ObserveEnsemble(target string, ev models.Evaluation, improvement float64) {
	m.set(target, KindEnsemble, ev)
	m.Improvement.WithLabelValues(target).Set(improvement)
}

func (m *Metrics) TargetFailed(target, reason string) {
	m.Failures.WithLabelValues(target, reason).Inc()
}

// ObserveLoad records how many records a source produced and skipped.
func (m *Metrics) ObserveLoad(records int, skipped map[string]int) {
	m.Records.WithLabelValues("loaded").Set(float64(records))
	for reason, n := range skipped {
		m.Records.WithLabelValues(reason).Set(float64(n))
	}
}

// MarkSuccess stamps the end of a fully successful run.
func (m *Metrics) MarkSuccess(at time.Time) {
	m.LastSuccess.Set(float64(at.Unix()))
}

// Push replaces the job's metric group on the Pushgateway at url.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}

func (m *Metrics) set(target, kind string, ev models.Evaluation) {
	m.MAE.WithLabelValues(target, kind).Set(ev.MAE)
	m.RMSE.WithLabelValues(target, kind).Set(ev.RMSE)
	m.R2.WithLabelValues(target, kind).Set(ev.R2)
}
