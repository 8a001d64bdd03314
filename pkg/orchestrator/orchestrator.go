package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/cybertip/triage/pkg/audit"
	"github.com/cybertip/triage/pkg/harness"
	"github.com/cybertip/triage/pkg/legal"
	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/observability"
	"github.com/cybertip/triage/pkg/priority"
	"github.com/cybertip/triage/pkg/repository"
)

// Config bounds the DAG's timeouts and bypass behavior (§5).
type Config struct {
	StageTimeout time.Duration
	TipTimeout   time.Duration
	// DemoBypass, when true, skips every oracle-backed stage and marks the
	// tip triaged immediately on the deterministic Wilson Gate result alone.
	// Gated out-of-band (an explicit flag, never inferred from input) since
	// it is a demo/ops convenience, never a law-enforcement-facing mode.
	DemoBypass bool
}

// errBlocked marks a completed-but-blocked run as an error for tracing
// purposes only; Process itself never returns it to callers (they read
// tip.Status), it exists solely to tag the telemetry span.
var errBlocked = errors.New("triage: tip blocked at wilson gate")

// DefaultConfig matches the timeouts in §5: a per-stage ceiling generous
// enough for a high-band oracle round trip, and a whole-tip ceiling that
// bounds worst-case serial plus parallel stage time.
func DefaultConfig() Config {
	return Config{
		StageTimeout: 45 * time.Second,
		TipTimeout:   3 * time.Minute,
	}
}

// Orchestrator runs the enrichment DAG for one tip at a time, end to end.
type Orchestrator struct {
	harness *harness.Harness
	legal   *legal.Reference
	prio    *priority.Engine
	repo    repository.Repository
	audit   *audit.Store
	events  *EventBus
	cfg     Config

	telemetry *observability.Provider
	slo       *observability.SLOTracker
}

// WithTelemetry attaches an OpenTelemetry provider and SLO tracker. Both are
// optional; a nil provider leaves Process a no-op with respect to tracing
// and stage latency tracking, matching the nil-safe pattern of audit/repo.
func (o *Orchestrator) WithTelemetry(p *observability.Provider, slo *observability.SLOTracker) *Orchestrator {
	o.telemetry = p
	o.slo = slo
	return o
}

// New builds an Orchestrator. Any of legalRef, prio may be nil only in
// tests that construct a bypass-only pipeline; production wiring always
// supplies all five collaborators.
func New(h *harness.Harness, legalRef *legal.Reference, prio *priority.Engine, repo repository.Repository, store *audit.Store, events *EventBus, cfg Config) *Orchestrator {
	if events == nil {
		events = NewEventBus()
	}
	return &Orchestrator{harness: h, legal: legalRef, prio: prio, repo: repo, audit: store, events: events, cfg: cfg}
}

// Events returns the bus HTTP handlers subscribe to for SSE streaming.
func (o *Orchestrator) Events() *EventBus { return o.events }

// Process runs the full DAG for tip and persists the result. It returns the
// enriched tip whether or not it reached BLOCKED — callers read tip.Status
// to tell a completed triage from a hard stop.
func (o *Orchestrator) Process(ctx context.Context, tip model.Tip, circuit string) (result model.Tip, _ error) {
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TipTimeout)
	defer cancel()

	if o.telemetry != nil {
		var finish func(error)
		var runErr error
		ctx, finish = o.telemetry.TrackOperation(ctx, "triage.process",
			attribute.String("tip.id", tip.TipID), attribute.String("legal.circuit", circuit))
		defer func() {
			if result.Status == model.StatusBlocked {
				runErr = errBlocked
			}
			finish(runErr)
		}()
	}

	o.emit(tip.TipID, StepIntake, StepDone, "")
	o.recordPipelineStart(&tip)

	if o.cfg.DemoBypass {
		result, _ = o.runDemoBypass(ctx, tip, circuit)
		return result, nil
	}

	if blocked := o.runWilson(ctx, &tip, circuit); blocked {
		o.persist(ctx, tip)
		o.emit(tip.TipID, StepComplete, StepBlocked, "")
		return tip, nil
	}

	o.runParallelPair(ctx, &tip,
		stagePair{StepExtraction, func(sctx context.Context) model.AuditEntry { return runExtraction(sctx, o.harness, &tip) }},
		stagePair{StepHashOSINT, func(sctx context.Context) model.AuditEntry { return runHashOSINT(sctx, o.harness, &tip) }},
	)

	o.runParallelPair(ctx, &tip,
		stagePair{StepClassifier, func(sctx context.Context) model.AuditEntry { return runClassifier(sctx, o.harness, &tip) }},
		stagePair{StepLinker, func(sctx context.Context) model.AuditEntry { return runLinker(sctx, o.harness, &tip) }},
	)

	o.runPriority(ctx, &tip)

	o.persist(ctx, tip)
	o.emit(tip.TipID, StepComplete, StepDone, "")
	return tip, nil
}

// runWilson runs the compliance-critical stage serially, ahead of
// everything else, since its hard-stop short-circuits the whole DAG.
func (o *Orchestrator) runWilson(ctx context.Context, tip *model.Tip, circuit string) (blocked bool) {
	start := time.Now()
	o.emit(tip.TipID, StepWilsonGate, StepRunning, "")
	o.recordStageStart(tip, StepWilsonGate)
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	h := o.harness
	if o.cfg.DemoBypass {
		h = nil // the bypass path makes no oracle calls
	}
	blocked, entry := runWilsonGate(sctx, h, o.legal, tip, circuit)
	o.record(tip, entry)
	o.observeStage(StepWilsonGate, start, entry.Status != model.EntryAgentError)

	if blocked {
		tip.Status = model.StatusBlocked
		o.emit(tip.TipID, StepWilsonGate, StepBlocked, entry.Summary)
		return true
	}
	o.emit(tip.TipID, StepWilsonGate, StepDone, "")
	return false
}

// observeStage records a stage's latency and outcome against the SLO
// tracker, when one is configured.
func (o *Orchestrator) observeStage(step string, start time.Time, success bool) {
	if o.slo == nil {
		return
	}
	o.slo.Record(observability.SLOObservation{
		Operation: step,
		Latency:   time.Since(start),
		Success:   success,
	})
}

type stagePair struct {
	step string
	run  func(context.Context) model.AuditEntry
}

// runParallelPair runs two independent stages concurrently and joins them.
// This is deliberately a fixed two-task fan-out rather than a general task
// graph: the DAG never has more than two stages ready at once, so a join
// primitive beyond sync.WaitGroup would be unused generality.
func (o *Orchestrator) runParallelPair(ctx context.Context, tip *model.Tip, a, b stagePair) {
	var wg sync.WaitGroup
	entries := make([]model.AuditEntry, 2)
	pairs := [2]stagePair{a, b}

	// Stage-start entries are recorded sequentially, before the fan-out,
	// since tip.AppendAudit and the audit store are not safe to call
	// concurrently from the two goroutines below.
	o.recordStageStart(tip, a.step)
	o.recordStageStart(tip, b.step)

	starts := [2]time.Time{time.Now(), time.Now()}
	for i, p := range pairs {
		wg.Add(1)
		go func(i int, p stagePair) {
			defer wg.Done()
			o.emit(tip.TipID, p.step, StepRunning, "")
			sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
			defer cancel()
			entries[i] = p.run(sctx)
		}(i, p)
	}
	wg.Wait()

	for i, p := range pairs {
		o.record(tip, entries[i])
		status := StepDone
		if entries[i].Status == model.EntryAgentError {
			status = StepError
		} else if entries[i].Status == model.EntryBlocked {
			status = StepBlocked
		}
		o.observeStage(p.step, starts[i], entries[i].Status != model.EntryAgentError)
		o.emit(tip.TipID, p.step, status, entries[i].ErrorDetail)
	}
}

// runPriority runs the scoring stage and applies the deconfliction-pause
// rule (§4.1): if the Linker stage surfaced an active deconfliction match,
// the tier is forced to PAUSED regardless of what the scorer alone would
// have produced — Compute already applies this via hasActiveDeconfliction,
// so this stage just needs to reflect status from the resulting tier.
func (o *Orchestrator) runPriority(ctx context.Context, tip *model.Tip) {
	start := time.Now()
	o.emit(tip.TipID, StepPriority, StepRunning, "")
	o.recordStageStart(tip, StepPriority)
	sctx, cancel := context.WithTimeout(ctx, o.cfg.StageTimeout)
	defer cancel()

	in := priority.Inputs{
		Classification: tip.Classification,
		HashMatches:    tip.HashMatches,
		Links:          tip.Links,
		Jurisdiction:   tip.Jurisdiction,
		Reporter:       tip.Reporter,
		Extracted:      tip.Extracted,
	}

	p, preservations, entry := o.prio.Run(sctx, tip.TipID, tip.ReceivedAt, in)
	tip.Priority = &p
	tip.PreservationRequests = append(tip.PreservationRequests, preservations...)
	o.record(tip, entry)
	o.observeStage(StepPriority, start, entry.Status != model.EntryAgentError)

	if p.Tier == model.TierPaused {
		tip.Status = model.StatusPending
	} else {
		tip.Status = model.StatusTriaged
	}

	status := StepDone
	if entry.Status == model.EntryAgentError {
		status = StepError
	}
	o.emit(tip.TipID, StepPriority, status, entry.ErrorDetail)
}

// runDemoBypass skips every oracle-backed enrichment stage. Only the
// deterministic Wilson decision runs; priority is synthesized from
// keyword heuristics over the raw body instead of a real classification
// (§4.1), since Extraction/HashOSINT/Classifier/Linker never ran to
// populate Compute's usual inputs. The tip is marked triaged (or BLOCKED)
// immediately. Used for demos/load tests, never for a real report.
func (o *Orchestrator) runDemoBypass(ctx context.Context, tip model.Tip, circuit string) (model.Tip, error) {
	blocked := o.runWilson(ctx, &tip, circuit)
	if blocked {
		tip.Status = model.StatusBlocked
	} else {
		p := priority.ComputeFromKeywords(tip.RawBody, priority.Inputs{
			Jurisdiction: tip.Jurisdiction,
			Reporter:     tip.Reporter,
			Links:        tip.Links,
		})
		tip.Priority = &p
		tip.Status = model.StatusTriaged
	}
	o.persist(ctx, tip)
	status := StepDone
	if blocked {
		status = StepBlocked
	}
	o.emit(tip.TipID, StepComplete, status, "")
	return tip, nil
}

// recordPipelineStart appends the opening entry of a tip's audit trail
// (§4.7's "minimum recorded events: pipeline start"). It runs once per
// Process call, before the Wilson Gate or the demo bypass.
func (o *Orchestrator) recordPipelineStart(tip *model.Tip) {
	o.record(tip, model.AuditEntry{
		TipID:     tip.TipID,
		Agent:     model.AgentOrchestrator,
		Timestamp: time.Now().UTC(),
		Status:    model.EntryInfo,
		Summary:   "pipeline start",
	})
}

// recordStageStart appends the opening entry for one DAG stage, ahead of
// whatever stage-specific agent entry reports its outcome. Together the
// two give every stage both a start and an end record in the audit trail.
func (o *Orchestrator) recordStageStart(tip *model.Tip, step string) {
	o.record(tip, model.AuditEntry{
		TipID:     tip.TipID,
		Agent:     model.AgentOrchestrator,
		Timestamp: time.Now().UTC(),
		Status:    model.EntryInfo,
		Summary:   "stage start: " + step,
	})
}

// record appends entry to both the durable hash-chained store and the
// tip's in-memory projection, in that order, so the EntryID assigned by
// the store is what lands in the tip's audit slice.
func (o *Orchestrator) record(tip *model.Tip, entry model.AuditEntry) {
	if entry.Agent == "" {
		return
	}
	if o.audit != nil {
		persisted, err := o.audit.Append(tip.TipID, entry)
		if err == nil {
			entry = persisted
		}
	}
	tip.AppendAudit(entry)
}

func (o *Orchestrator) persist(ctx context.Context, tip model.Tip) {
	if o.repo == nil {
		return
	}
	_ = o.repo.Upsert(ctx, tip)
}

func (o *Orchestrator) emit(tipID, step string, status StepStatus, detail string) {
	o.events.Publish(Event{
		TipID:     tipID,
		Step:      step,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Detail:    detail,
	})
}
