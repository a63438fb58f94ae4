package metrics

import "github.com/prometheus/client_golang/prometheus"

// defaultLatencyBuckets spans sub-millisecond repository calls up to
// multi-second training runs.
var defaultLatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000} //nolint:gochecknoglobals // read-only defaults

// option configures a Manager.
type option func(*Manager)

// withNamespace sets the namespace for all metrics.
func withNamespace(namespace string) option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// withSubsystem sets the subsystem for all metrics.
func withSubsystem(subsystem string) option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// withLatencyBuckets replaces the millisecond buckets used by every latency
// histogram.
func withLatencyBuckets(buckets []float64) option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.latencyBuckets = buckets
		}
	}
}

// withCustomLabels adds constant labels to all metrics.
func withCustomLabels(labels map[string]string) option {
	return func(m *Manager) {
		if labels != nil {
			m.customLabels = labels
		}
	}
}

// withMetricPrefix prefixes every metric name.
func withMetricPrefix(prefix string) option {
	return func(m *Manager) {
		if prefix != "" {
			m.metricPrefix = prefix
		}
	}
}

// withPrometheusRegistry registers metrics on registry instead of the
// default registerer.
func withPrometheusRegistry(registry prometheus.Registerer) option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
