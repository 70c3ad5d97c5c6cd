// Package metrics provides observability hooks for the poll loop and the copy orchestrator.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics never require nil checks:
//
//	orch := orchestrator.New(deps) // uses metrics.NoopRecorder{}
//
// When monitoring.http_addr is configured the daemon swaps in a
// PrometheusRecorder and serves HTTPHandler on /metrics.
package metrics
