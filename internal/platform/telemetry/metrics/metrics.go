package metrics

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder holds the metrics of one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	stageDuration    *prometheus.HistogramVec
	stageErrorsTotal *prometheus.CounterVec
	iterations       prometheus.Gauge
	converged        prometheus.Gauge
	participants     prometheus.Gauge
	graphNodes       prometheus.Gauge
	grainDistributed *prometheus.CounterVec
	lastRunTimestamp prometheus.Gauge
}

// NewRecorder creates a recorder with all run metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "credrank_stage_duration_seconds",
				Help:    "Time taken by each pipeline stage.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		stageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credrank_stage_errors_total",
				Help: "Number of pipeline stage failures by stage.",
			},
			[]string{"stage"},
		),
		iterations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credrank_power_iterations",
			Help: "Power iterations performed by the last cred computation.",
		}),
		converged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credrank_converged",
			Help: "1 when the last cred computation reached the convergence threshold.",
		}),
		participants: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credrank_participants",
			Help: "Participants scored by the last run.",
		}),
		graphNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credrank_markov_nodes",
			Help: "Nodes in the last Markov process graph.",
		}),
		grainDistributed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "credrank_grain_distributed",
				Help: "Whole grain distributed, by allocation policy.",
			},
			[]string{"policy"},
		),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "credrank_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		}),
	}
	r.registry.MustRegister(
		r.stageDuration,
		r.stageErrorsTotal,
		r.iterations,
		r.converged,
		r.participants,
		r.graphNodes,
		r.grainDistributed,
		r.lastRunTimestamp,
	)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveStage records how long a stage took and whether it failed.
func (r *Recorder) ObserveStage(stage string, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
	if err != nil {
		r.stageErrorsTotal.WithLabelValues(stage).Inc()
	}
}

// ObserveCredRun records the shape and convergence of a cred computation.
func (r *Recorder) ObserveCredRun(nodes, participants, iterations int, converged bool) {
	if r == nil {
		return
	}
	r.graphNodes.Set(float64(nodes))
	r.participants.Set(float64(participants))
	r.iterations.Set(float64(iterations))
	if converged {
		r.converged.Set(1)
	} else {
		r.converged.Set(0)
	}
}

// AddGrain records whole grain distributed under a policy type.
func (r *Recorder) AddGrain(policyType string, wholeGrain float64) {
	if r == nil || wholeGrain <= 0 {
		return
	}
	r.grainDistributed.WithLabelValues(strings.ToLower(policyType)).Add(wholeGrain)
}

// MarkFinished stamps the completion time of the run.
func (r *Recorder) MarkFinished(now time.Time) {
	if r == nil {
		return
	}
	r.lastRunTimestamp.Set(float64(now.Unix()))
}

// WriteTextfile writes the registry in Prometheus text format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("metrics textfile path is required")
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
