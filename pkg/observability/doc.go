// Package observability provides OpenTelemetry tracing and metrics, SLI/SLO
// tracking, and a queryable processing timeline for the triage service.
//
// # Tracing and metrics
//
// Initialize a provider at application startup:
//
//	p, err := observability.New(ctx, &observability.Config{
//		ServiceName:  "triage-server",
//		OTLPEndpoint: "otel-collector:4317",
//		SampleRate:   0.1, // 10% sampling in production
//	})
//	defer p.Shutdown(ctx)
//
// Wrap the orchestrator with it so each Process run gets a span
// (triage.process) and RED metrics, and each stage's latency and outcome
// feed the SLO tracker:
//
//	orch.WithTelemetry(p, observability.NewSLOTracker())
//
// Create spans manually for anything else worth tracing:
//
//	ctx, span := p.StartSpan(ctx, "operation_name")
//	defer span.End()
//
// # SLIs and SLOs
//
// Register a target for a stage and record observations as they occur:
//
//	tracker := observability.NewSLOTracker()
//	tracker.SetTarget(&observability.SLOTarget{Operation: "wilson_gate", LatencyP99: 2 * time.Second, SuccessRate: 0.99, WindowHours: 24})
//	status, err := tracker.Status("wilson_gate")
package observability
