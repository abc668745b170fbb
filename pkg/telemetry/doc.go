// Package telemetry provides logging, tracing, metrics, and progress events
// for cascade.
//
// # Logging
//
// Logger wraps zerolog. Component and workflow fields are attached with
// NewComponentLogger, WithWorkflow, and WithRunID:
//
//	logger := tel.Logger.NewComponentLogger("scheduler").WithRunID(runID)
//	logger.WithWorkflow("summary").Info("executing")
//
// Logs go to stderr by default so that command output on stdout stays
// machine readable.
//
// # Tracing
//
// Tracer wraps an OpenTelemetry tracer provider. Exporters are "none",
// "stdout" (pretty printed to stderr), and "otlp" (gRPC). A run produces one
// run.execute span with a workflow.process child per visited workflow.
//
// # Metrics
//
// Metrics registers Prometheus collectors on a private registry. A one-shot
// run writes the registry to a textfile on Shutdown:
//
//	cascade run summary --metrics-file /var/lib/node_exporter/cascade.prom
//
// A watch session can serve Handler instead:
//
//	cascade watch summary --metrics-addr :9090
//
// Collected series:
//
//	cascade_runs_completed_total{status}
//	cascade_run_duration_seconds{status}
//	cascade_workflows_executed_total{outcome}
//	cascade_workflows_skipped_total{reason}
//	cascade_workflow_duration_seconds{outcome}
//	cascade_config_warnings_total
//	cascade_errors_by_code_total{code}
//
// # Events
//
// EventPublisher delivers progress events synchronously and in order, which
// lets the CLI print "Dependency 'outline' completed" lines as they happen.
//
// Every component accepts nil receivers, so callers can leave any of them
// unset.
package telemetry
