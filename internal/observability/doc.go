// Package observability records consolidation activity. Events are appended
// to a JSONL log from which run metrics and alerts are derived on demand;
// live counters are exported to Prometheus.
package observability
