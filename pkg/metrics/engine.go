package metrics

import "time"

// EngineMetrics observes nexus I/O fan-out, child health transitions, and
// rebuild progress. Pass nil to any component that accepts one to disable
// metrics collection with zero overhead.
//
// Example usage:
//
//	metrics.InitRegistry()
//	em := metrics.NewEngineMetrics()
//	nx := nexus.New(cfg, em)
type EngineMetrics interface {
	// RecordIO records a single fanned-out child I/O (read, write, or unmap).
	RecordIO(nexusName, childName, op string, bytes int64, duration time.Duration, failed bool)

	// RecordChildState records a child entering a new state.
	RecordChildState(nexusName, childName, state string)

	// RecordFault records a child being marked Faulted, with the fault reason.
	RecordFault(nexusName, childName, reason string)

	// SetOpenChildren reports the current count of Open children for a nexus.
	SetOpenChildren(nexusName string, count int)

	// RecordRebuildProgress reports a rebuild job's progress as a fraction
	// in [0, 1] of blocks copied.
	RecordRebuildProgress(nexusName, destChild string, fraction float64)

	// RecordRebuildOutcome records a rebuild job reaching a terminal state
	// (Completed, Failed, or Stopped).
	RecordRebuildOutcome(nexusName, destChild, outcome string)
}

// newPrometheusEngineMetrics is registered by pkg/metrics/prometheus/engine.go.
// This indirection avoids an import cycle while keeping the constructor API
// in this package import-free of client_golang.
var newPrometheusEngineMetrics func() EngineMetrics

// RegisterEngineMetricsConstructor is called by pkg/metrics/prometheus during
// package initialization to supply the concrete implementation.
func RegisterEngineMetricsConstructor(constructor func() EngineMetrics) {
	newPrometheusEngineMetrics = constructor
}

// NewEngineMetrics returns a Prometheus-backed EngineMetrics, or nil if
// InitRegistry has not been called.
func NewEngineMetrics() EngineMetrics {
	if !IsEnabled() || newPrometheusEngineMetrics == nil {
		return nil
	}
	return newPrometheusEngineMetrics()
}
