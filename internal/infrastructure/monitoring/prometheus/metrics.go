package prometheus

import (
	"strconv"
	"time"

	"github.com/turtacn/ForeclosureWatch/internal/domain/discrepancy"
	"github.com/turtacn/ForeclosureWatch/internal/domain/foreclosure"
	"github.com/turtacn/ForeclosureWatch/pkg/errors"
)

// Operation outcome labels.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Default buckets.
var (
	DefaultOperationBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	DefaultSweepBuckets     = []float64{.1, .5, 1, 5, 10, 30, 60, 120, 300}
	DefaultHTTPBuckets      = []float64{.005, .01, .025, .05, .1, .25, .5, 1}
)

// EngineMetrics holds the monitoring worker's metrics.
type EngineMetrics struct {
	// Engine
	ClassificationsTotal CounterVec
	TransitionsTotal     CounterVec
	GuardRejectionsTotal CounterVec
	LedgerUpdatesTotal   CounterVec
	DiscrepanciesTotal   CounterVec
	MalformedInputsTotal CounterVec

	// Orchestration
	OperationDuration HistogramVec
	OperationsTotal   CounterVec
	LockContention    CounterVec

	// Sweep
	SweepRunsTotal    CounterVec
	SweepCasesTotal   CounterVec
	SweepDuration     HistogramVec
	SweepLastRunEpoch GaugeVec

	// Transport
	MessagesHandledTotal CounterVec
	HTTPRequestsTotal    CounterVec
	HTTPRequestDuration  HistogramVec
	HealthCheckStatus    GaugeVec
}

// NewEngineMetrics registers every metric on collector.
func NewEngineMetrics(collector MetricsCollector) *EngineMetrics {
	m := &EngineMetrics{}

	m.ClassificationsTotal = collector.RegisterCounter("classifications_total", "Classifier verdicts by outcome", "classification", "reason")
	m.TransitionsTotal = collector.RegisterCounter("classification_transitions_total", "Applied classification changes", "from", "to", "source")
	m.GuardRejectionsTotal = collector.RegisterCounter("guard_rejections_total", "Recommendations refused by the classification guard", "rule", "source")
	m.LedgerUpdatesTotal = collector.RegisterCounter("ledger_updates_total", "Bid ledger operations by outcome", "reason", "applied")
	m.DiscrepanciesTotal = collector.RegisterCounter("discrepancies_total", "Discrepancy records queued for review", "field")
	m.MalformedInputsTotal = collector.RegisterCounter("malformed_inputs_total", "Input values skipped as malformed", "field")

	m.OperationDuration = collector.RegisterHistogram("operation_duration_seconds", "Case operation latency", DefaultOperationBuckets, "operation")
	m.OperationsTotal = collector.RegisterCounter("operations_total", "Case operations by outcome", "operation", "status", "code")
	m.LockContention = collector.RegisterCounter("case_lock_contention_total", "Case lock acquisitions that found the lock held", "operation")

	m.SweepRunsTotal = collector.RegisterCounter("sweep_runs_total", "Staleness sweep runs", "status")
	m.SweepCasesTotal = collector.RegisterCounter("sweep_cases_total", "Cases handled by the staleness sweep", "outcome")
	m.SweepDuration = collector.RegisterHistogram("sweep_duration_seconds", "Staleness sweep duration", DefaultSweepBuckets)
	m.SweepLastRunEpoch = collector.RegisterGauge("sweep_last_run_timestamp_seconds", "Unix time of the last completed sweep")

	m.MessagesHandledTotal = collector.RegisterCounter("messages_handled_total", "Consumed messages by outcome", "topic", "status")
	m.HTTPRequestsTotal = collector.RegisterCounter("http_requests_total", "Ops HTTP requests", "method", "path", "status_code")
	m.HTTPRequestDuration = collector.RegisterHistogram("http_request_duration_seconds", "Ops HTTP request latency", DefaultHTTPBuckets, "method", "path")
	m.HealthCheckStatus = collector.RegisterGauge("health_check_status", "Dependency health (1=up, 0=down)", "component")

	return m
}

// RecordVerdict counts one classifier run.
func (m *EngineMetrics) RecordVerdict(v foreclosure.Verdict) {
	m.ClassificationsTotal.WithLabelValues(v.Classification.String(), v.Reason).Inc()
}

// RecordTransition counts one applied change.
func (m *EngineMetrics) RecordTransition(t foreclosure.Transition) {
	m.TransitionsTotal.WithLabelValues(t.From.String(), t.To.String(), string(t.Source)).Inc()
}

// RecordGuardRejection counts one refused recommendation.
func (m *EngineMetrics) RecordGuardRejection(rule string, src foreclosure.Source) {
	m.GuardRejectionsTotal.WithLabelValues(rule, string(src)).Inc()
}

// RecordLedgerUpdate counts one ledger operation.
func (m *EngineMetrics) RecordLedgerUpdate(u foreclosure.LedgerUpdate) {
	m.LedgerUpdatesTotal.WithLabelValues(u.Reason, strconv.FormatBool(u.Applied)).Inc()
}

// RecordDiscrepancies counts newly queued records per field.
func (m *EngineMetrics) RecordDiscrepancies(records []discrepancy.Record) {
	for _, r := range records {
		m.DiscrepanciesTotal.WithLabelValues(string(r.Field)).Inc()
	}
}

// RecordMalformed counts a skipped input value.
func (m *EngineMetrics) RecordMalformed(field string) {
	m.MalformedInputsTotal.WithLabelValues(field).Inc()
}

// RecordLockContention counts an acquisition that found the lock held.
func (m *EngineMetrics) RecordLockContention(operation string) {
	m.LockContention.WithLabelValues(operation).Inc()
}

// ObserveOperation records latency and outcome. The code label carries the
// AppError code on failure.
func (m *EngineMetrics) ObserveOperation(operation string, d time.Duration, err error) {
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
	if err != nil {
		m.OperationsTotal.WithLabelValues(operation, StatusFailure, string(errors.GetCode(err))).Inc()
		return
	}
	m.OperationsTotal.WithLabelValues(operation, StatusSuccess, "").Inc()
}

// RecordSweep records a completed sweep run.
func (m *EngineMetrics) RecordSweep(examined, closed, skipped, failed int, d time.Duration, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.SweepRunsTotal.WithLabelValues(status).Inc()
	m.SweepCasesTotal.WithLabelValues("examined").Add(float64(examined))
	m.SweepCasesTotal.WithLabelValues("closed").Add(float64(closed))
	m.SweepCasesTotal.WithLabelValues("skipped").Add(float64(skipped))
	m.SweepCasesTotal.WithLabelValues("failed").Add(float64(failed))
	m.SweepDuration.WithLabelValues().Observe(d.Seconds())
	m.SweepLastRunEpoch.WithLabelValues().Set(float64(time.Now().Unix()))
}

// RecordMessage counts a consumed message.
func (m *EngineMetrics) RecordMessage(topic string, err error) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	m.MessagesHandledTotal.WithLabelValues(topic, status).Inc()
}

// RecordHTTPRequest records one ops request.
func (m *EngineMetrics) RecordHTTPRequest(method, path string, statusCode int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SetHealth publishes a dependency's health.
func (m *EngineMetrics) SetHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.HealthCheckStatus.WithLabelValues(component).Set(v)
}
