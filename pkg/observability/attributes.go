// Package observability provides triage-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Triage-specific semantic convention attributes.
var (
	// Tip attributes
	AttrTipID     = attribute.Key("triage.tip.id")
	AttrTipSource = attribute.Key("triage.tip.source")
	AttrTipStatus = attribute.Key("triage.tip.status")

	// Orchestrator stage attributes
	AttrStageName   = attribute.Key("triage.stage.name")
	AttrStageStatus = attribute.Key("triage.stage.status")

	// Wilson Gate attributes
	AttrWilsonDecision = attribute.Key("triage.wilson.decision")
	AttrWilsonFileID   = attribute.Key("triage.wilson.file_id")

	// Priority attributes
	AttrPriorityTier  = attribute.Key("triage.priority.tier")
	AttrPriorityScore = attribute.Key("triage.priority.score")

	// Legal reference attributes
	AttrLegalCircuit = attribute.Key("triage.legal.circuit")
	AttrLegalState   = attribute.Key("triage.legal.state")
)

// TipOperation creates attributes for a tip-scoped operation.
func TipOperation(tipID, source, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTipID.String(tipID),
		AttrTipSource.String(source),
		AttrTipStatus.String(status),
	}
}

// StageOperation creates attributes for an orchestrator stage transition.
func StageOperation(tipID, stage, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTipID.String(tipID),
		AttrStageName.String(stage),
		AttrStageStatus.String(status),
	}
}

// WilsonOperation creates attributes for a Wilson Gate file decision.
func WilsonOperation(tipID, fileID, decision string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTipID.String(tipID),
		AttrWilsonFileID.String(fileID),
		AttrWilsonDecision.String(decision),
	}
}

// PriorityOperation creates attributes for a priority scoring result.
func PriorityOperation(tipID, tier string, score float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrTipID.String(tipID),
		AttrPriorityTier.String(tier),
		AttrPriorityScore.Float64(score),
	}
}

// LegalOperation creates attributes for a circuit/state legal lookup.
func LegalOperation(circuit, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrLegalCircuit.String(circuit),
		AttrLegalState.String(state),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records err on the current span when err is non-nil. The
// span's status code is left unchanged.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
