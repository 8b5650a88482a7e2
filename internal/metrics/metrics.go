// Package metrics exposes Prometheus collectors for tool execution.
package metrics

import (
	"bytes"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "toolcore"

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	toolCalls       *prometheus.CounterVec
	toolDuration    *prometheus.HistogramVec
	lockWait        prometheus.Histogram
	processRuns     *prometheus.CounterVec
	processDuration prometheus.Histogram
	sandboxRuns     *prometheus.CounterVec
	fileChanges     *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Tool calls dispatched, by tool and result code.",
		}, []string{"tool", "code"}),
		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Wall time of dispatched tool calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"tool"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "path_lock_wait_seconds",
			Help:      "Time spent queued for a path lock.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		processRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_runs_total",
			Help:      "External processes run, by command and outcome.",
		}, []string{"command", "outcome"}),
		processDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Wall time of external processes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		sandboxRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_runs_total",
			Help:      "Sandboxed evaluations, by language and outcome.",
		}, []string{"language", "outcome"}),
		fileChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "file_changes_total",
			Help:      "Committed file mutations, by action.",
		}, []string{"action"}),
	}
	m.registry.MustRegister(
		m.toolCalls, m.toolDuration, m.lockWait,
		m.processRuns, m.processDuration, m.sandboxRuns, m.fileChanges,
	)
	return m
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Process outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"
	OutcomePreview  = "preview"
)

// ObserveCall implements tool.Observer.
func (m *Metrics) ObserveCall(toolName, code string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(toolName, code).Inc()
	m.toolDuration.WithLabelValues(toolName).Observe(elapsed.Seconds())
}

// ObserveLockWait records one path-lock grant.
func (m *Metrics) ObserveLockWait(wait time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(wait.Seconds())
}

// ObserveProcess records one external process run.
func (m *Metrics) ObserveProcess(command, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processRuns.WithLabelValues(command, outcome).Inc()
	if outcome != OutcomePreview {
		m.processDuration.Observe(elapsed.Seconds())
	}
}

// ObserveSandbox records one sandboxed evaluation.
func (m *Metrics) ObserveSandbox(language, outcome string) {
	if m == nil {
		return
	}
	m.sandboxRuns.WithLabelValues(language, outcome).Inc()
}

// ObserveFileChange records one committed file mutation.
func (m *Metrics) ObserveFileChange(action string) {
	if m == nil {
		return
	}
	m.fileChanges.WithLabelValues(action).Inc()
}

// Text renders every collector in the Prometheus text exposition format.
func (m *Metrics) Text() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
