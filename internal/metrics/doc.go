/*
Package metrics provides Prometheus metrics for webhdfs client operations.

# Overview

The Collector is installed on the transport executor as its
types.MetricsRecorder. Every physical HTTP attempt is recorded, so a logical
operation that was retried twice contributes three attempts and two retries.

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled:   true,
		Namespace: "webhdfs",
	}, logger)
	if err != nil {
		return err
	}
	exec, err := transport.NewExecutor(cfg, logger, transport.WithRecorder(collector))

# Exported Metrics

	webhdfs_operations_total{operation, status}     attempts by outcome
	webhdfs_operation_duration_seconds{operation}   attempt latency
	webhdfs_operation_size_bytes{operation}         request or response bytes
	webhdfs_retries_total{operation}                retried attempts
	webhdfs_errors_total{operation, type}           failures by type
	webhdfs_summary_entries_total{type}             entries counted by summaries

Failure types are derived from the HTTP status (throttled, timeout, server,
client) or, for attempts that never got a response, from the error category
(timeout, connection, or the StoreError category).

# Exposition

Handler returns an http.Handler for the private registry, for mounting in an
application's own mux. Start runs a standalone listener on Config.Port with
/metrics, /health and /debug/operations endpoints.
*/
package metrics
