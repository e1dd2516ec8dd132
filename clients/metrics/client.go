package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/estafette/estafette-ci-orchestrator/api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Observer turns status events into prometheus metrics
type Observer struct {
	pipelineTransitions *prometheus.CounterVec
	jobTransitions      *prometheus.CounterVec
	pipelineDuration    *prometheus.HistogramVec
	jobDuration         *prometheus.HistogramVec
	activePipelines     prometheus.Gauge

	mu      sync.Mutex
	started map[string]time.Time
}

// NewObserver registers the orchestrator metrics with registerer
func NewObserver(registerer prometheus.Registerer) *Observer {

	factory := promauto.With(registerer)

	return &Observer{
		pipelineTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estafette_ci_orchestrator_pipeline_transitions_total",
				Help: "Total number of pipeline status transitions",
			},
			[]string{"status"},
		),
		jobTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "estafette_ci_orchestrator_job_transitions_total",
				Help: "Total number of job status transitions",
			},
			[]string{"status"},
		),
		pipelineDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estafette_ci_orchestrator_pipeline_duration_seconds",
				Help:    "Duration of pipelines from running until finished",
				Buckets: prometheus.ExponentialBuckets(1, 2, 14),
			},
			[]string{"status"},
		),
		jobDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "estafette_ci_orchestrator_job_duration_seconds",
				Help:    "Duration of jobs from running until finished, including retries",
				Buckets: prometheus.ExponentialBuckets(0.5, 2, 14),
			},
			[]string{"status"},
		),
		activePipelines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "estafette_ci_orchestrator_active_pipelines",
				Help: "Number of pipelines that are running, gate checking or deploying",
			},
		),
		started: map[string]time.Time{},
	}
}

// OnStatusChange updates the counters, histograms and the active pipelines gauge
func (o *Observer) OnStatusChange(ctx context.Context, event api.StatusEvent) {

	o.mu.Lock()
	defer o.mu.Unlock()

	key := event.PipelineID + "/" + event.JobID

	if event.IsJobEvent() {
		o.jobTransitions.WithLabelValues(event.NewStatus).Inc()

		status := api.JobStatus(event.NewStatus)
		if status == api.JobStatusRunning {
			if _, ok := o.started[key]; !ok {
				o.started[key] = event.Timestamp
			}
		}
		if status.IsTerminal() {
			if start, ok := o.started[key]; ok {
				o.jobDuration.WithLabelValues(event.NewStatus).Observe(event.Timestamp.Sub(start).Seconds())
				delete(o.started, key)
			}
		}
		return
	}

	o.pipelineTransitions.WithLabelValues(event.NewStatus).Inc()

	status := api.PipelineStatus(event.NewStatus)
	if status == api.PipelineStatusRunning {
		o.started[key] = event.Timestamp
		o.activePipelines.Inc()
	}
	if status.IsTerminal() {
		if start, ok := o.started[key]; ok {
			o.pipelineDuration.WithLabelValues(event.NewStatus).Observe(event.Timestamp.Sub(start).Seconds())
			o.activePipelines.Dec()
			delete(o.started, key)
		}
	}
}
