// Package metrics provides Prometheus-based metrics recording for the
// orchestration engine: message dispatch, tool invocations, LLM requests,
// and terminal task outcomes.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder records engine metrics against a Prometheus registerer.
type Recorder struct {
	messagesTotal   *prometheus.CounterVec
	toolsTotal      *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	llmTotal        *prometheus.CounterVec
	llmDuration     *prometheus.HistogramVec
	tasksTotal      *prometheus.CounterVec
	taskIterations  prometheus.Histogram
	queueDepthGauge prometheus.Gauge
}

// NewRecorder creates a recorder registered against the default registerer.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.DefaultRegisterer)
}

// NewRecorderWith creates a recorder registered against reg. Tests pass a
// fresh prometheus.NewRegistry to avoid duplicate registration panics.
func NewRecorderWith(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devteam_messages_total",
				Help: "Total number of messages dispatched by sender and recipient",
			},
			[]string{"from", "to"},
		),
		toolsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devteam_tool_invocations_total",
				Help: "Total number of tool invocations by tool name and status",
			},
			[]string{"tool", "status"},
		),
		toolDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devteam_tool_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		llmTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devteam_llm_requests_total",
				Help: "Total number of LLM requests by provider and status",
			},
			[]string{"provider", "status"},
		),
		llmDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "devteam_llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devteam_tasks_total",
				Help: "Total number of tasks by terminal status",
			},
			[]string{"status"},
		),
		taskIterations: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "devteam_task_iterations",
				Help:    "Review iterations consumed per task",
				Buckets: []float64{1, 2, 3, 4, 5, 7, 10},
			},
		),
		queueDepthGauge: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "devteam_queue_depth",
				Help: "Current number of messages waiting in the orchestrator queue",
			},
		),
	}
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// ObserveMessage records a dispatched message.
func (r *Recorder) ObserveMessage(from, to string) {
	r.messagesTotal.WithLabelValues(from, to).Inc()
}

// ObserveToolInvocation records a tool call with its duration and outcome.
func (r *Recorder) ObserveToolInvocation(tool string, duration time.Duration, err error) {
	r.toolsTotal.WithLabelValues(tool, statusLabel(err)).Inc()
	r.toolDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// ObserveLLMRequest records an LLM request with its duration and outcome.
func (r *Recorder) ObserveLLMRequest(provider string, duration time.Duration, err error) {
	r.llmTotal.WithLabelValues(provider, statusLabel(err)).Inc()
	r.llmDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveTaskResult records a task reaching a terminal status.
func (r *Recorder) ObserveTaskResult(status string, iterations int) {
	r.tasksTotal.WithLabelValues(status).Inc()
	r.taskIterations.Observe(float64(iterations))
}

// SetQueueDepth records the current queue depth.
func (r *Recorder) SetQueueDepth(depth int) {
	r.queueDepthGauge.Set(float64(depth))
}
