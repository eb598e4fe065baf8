package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	StateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_state_transitions_total",
			Help: "Total number of finished state executions by outcome",
		},
		[]string{"state_type", "status"},
	)

	ExecutionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stepflow_executions_started_total",
			Help: "Total number of state instances dispatched for execution",
		},
	)

	Resumes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_resumes_total",
			Help: "Total number of resume attempts by result",
		},
		[]string{"result"},
	)

	ConsumerMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepflow_consumer_messages_total",
			Help: "Total number of stream messages seen by a consumer by result",
		},
		[]string{"consumer", "result"},
	)

	StateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stepflow_state_duration_seconds",
			Help:    "Duration of state executions from start to terminal status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state_type"},
	)

	Registry = prometheus.NewRegistry()
)

func init() {
	Registry.MustRegister(StateTransitions, ExecutionsStarted, Resumes, ConsumerMessages, StateDuration)
}

// ObserveState records a terminal state outcome. Timestamps are unix millis.
func ObserveState(stateType string, status string, startTs int64, endTs int64) {
	StateTransitions.WithLabelValues(stateType, status).Inc()
	if startTs > 0 && endTs >= startTs {
		StateDuration.WithLabelValues(stateType).Observe((time.Duration(endTs-startTs) * time.Millisecond).Seconds())
	}
}
