// Package priority computes the priority tuple attached to a Tip: score,
// tier, routing unit, and any auto-generated preservation request stubs.
//
// The tier is a pure function of score plus a small set of mandatory
// overrides (§4.4); those overrides always win over the score-derived
// cutoffs, the same way the child-safety floor in pkg/model always wins
// over a classifier's raw severity call. An oracle may be consulted to
// produce the human-readable rationale in ScoringFactors, but it never
// gets a vote on the tier itself.
package priority

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cybertip/triage/pkg/harness"
	"github.com/cybertip/triage/pkg/llm"
	"github.com/cybertip/triage/pkg/model"
)

// RoutingUnit labels enumerate the small closed set of destinations the
// engine may route a tip to.
const (
	UnitICACTaskForce = "ICAC Task Force"
	UnitSupervisor    = "Supervisor"
	UnitJTTFFederal   = "JTTF/Federal"
	UnitSpecialty     = "Specialty unit"
)

// Inputs is the subset of a Tip's enrichment the scorer reads. Keeping this
// as its own struct (rather than taking *model.Tip directly) makes Compute
// a pure function callers can unit test without constructing a full
// aggregate.
type Inputs struct {
	Classification *model.Classification
	HashMatches    *model.HashMatches
	Links          *model.Links
	Jurisdiction   model.JurisdictionProfile
	Reporter       model.Reporter
	Extracted      *model.ExtractedEntities
}

// Engine computes priority tuples and proposes preservation requests. The
// zero value is usable with DefaultRetentionTable; construct with
// NewEngine to supply an oracle harness and a custom retention table.
type Engine struct {
	harness   *harness.Harness
	retention RetentionTable
}

// NewEngine builds an Engine. h may be nil, in which case Run skips the
// oracle rationale step and relies entirely on the deterministic scorer.
func NewEngine(h *harness.Harness, retention RetentionTable) *Engine {
	if retention == nil {
		retention = DefaultRetentionTable
	}
	return &Engine{harness: h, retention: retention}
}

// Compute derives score, tier, scoring factors, and routing unit from in.
// It is a pure function: same inputs, same output, no I/O.
func Compute(in Inputs) model.Priority {
	score, factors := baseScore(in)

	p := model.Priority{
		Score:          score,
		ScoringFactors: factors,
		RoutingUnit:    routeFor(in),
	}

	victimCrisis := in.Extracted != nil && hasOngoingCrisisSignal(in)
	p.VictimCrisisAlert = victimCrisis

	switch {
	case victimCrisis:
		p.Tier = model.TierImmediate
		p.SupervisorAlert = true
		p.ScoringFactors = append(p.ScoringFactors, "victim crisis alert forces IMMEDIATE")
	case hasActiveDeconfliction(in.Links):
		p.Tier = model.TierPaused
		p.ScoringFactors = append(p.ScoringFactors, "active deconfliction match forces PAUSED")
	case isMinorCSAM(in.Classification):
		p.Tier = model.TierImmediate
		if p.Score < 95 {
			p.Score = 95
		}
		p.ScoringFactors = append(p.ScoringFactors, "CSAM with minor victim floors tier at IMMEDIATE, score>=95")
	case isOngoingAbuseOrAIG(in):
		if p.Score < 65 {
			p.Score = 65
		}
		p.Tier = tierForScore(p.Score)
		if p.Tier != model.TierImmediate && p.Tier != model.TierUrgent {
			p.Tier = model.TierUrgent
		}
		p.ScoringFactors = append(p.ScoringFactors, "ongoing abuse indicator or confirmed AIG-CSAM floors tier at URGENT")
	default:
		p.Tier = tierForScore(p.Score)
	}

	if p.Tier == model.TierImmediate {
		p.SupervisorAlert = true
	}
	p.RecommendedAction = recommendedAction(p.Tier, in)

	return p
}

// bodyKeywordSignals maps a case-insensitive raw-body substring to the
// score it contributes and the factor string logged for it. Used only by
// ComputeFromKeywords, the instant-bypass substitute for real
// classification (§4.1) — never consulted once an oracle has actually run.
var bodyKeywordSignals = []struct {
	keyword string
	score   int
	factor  string
}{
	{"livestream", 40, "keyword match: livestream"},
	{"live stream", 40, "keyword match: live stream"},
	{"ongoing", 30, "keyword match: ongoing"},
	{"in progress", 30, "keyword match: in progress"},
	{"currently", 20, "keyword match: currently"},
	{"trafficking", 35, "keyword match: trafficking"},
	{"sextortion", 35, "keyword match: sextortion"},
	{"extort", 30, "keyword match: extort"},
	{"suicide", 45, "keyword match: suicide"},
	{"self-harm", 40, "keyword match: self-harm"},
	{"self harm", 40, "keyword match: self harm"},
	{"infant", 25, "keyword match: infant"},
	{"toddler", 25, "keyword match: toddler"},
	{"threat", 15, "keyword match: threat"},
	{"weapon", 15, "keyword match: weapon"},
	{"abduct", 35, "keyword match: abduct"},
	{"kidnap", 35, "keyword match: kidnap"},
}

// ComputeFromKeywords synthesizes a deterministic Priority from raw body
// text alone, for the instant-bypass path (§4.1) where no enrichment
// stage has run and Classification/HashMatches/Extracted are all nil.
// Score starts at the same floor Compute's baseScore uses and accumulates
// once per matched keyword, capped at 100; tier, deconfliction override,
// and routing reuse the same logic Compute applies to an oracle-derived
// score so a bypassed tip still participates in the tier ladder instead
// of landing on one fixed value regardless of content.
func ComputeFromKeywords(rawBody string, in Inputs) model.Priority {
	lower := strings.ToLower(rawBody)
	score := 10
	var factors []string
	for _, sig := range bodyKeywordSignals {
		if strings.Contains(lower, sig.keyword) {
			score += sig.score
			factors = append(factors, sig.factor)
		}
	}
	if score > 100 {
		score = 100
	}

	p := model.Priority{
		Score:          score,
		ScoringFactors: factors,
		RoutingUnit:    routeFor(in),
		Tier:           tierForScore(score),
	}
	if hasActiveDeconfliction(in.Links) {
		p.Tier = model.TierPaused
		p.ScoringFactors = append(p.ScoringFactors, "active deconfliction match forces PAUSED")
	}
	if p.Tier == model.TierImmediate {
		p.SupervisorAlert = true
	}
	p.RecommendedAction = recommendedAction(p.Tier, in)
	return p
}

func tierForScore(score int) model.Tier {
	switch {
	case score >= 85:
		return model.TierImmediate
	case score >= 65:
		return model.TierUrgent
	case score >= 40:
		return model.TierStandard
	default:
		return model.TierMonitor
	}
}

func baseScore(in Inputs) (int, []string) {
	score := 10
	var factors []string

	if in.Classification != nil {
		switch in.Classification.Severity.USICAC {
		case model.SeverityP1Critical:
			score += 70
			factors = append(factors, "severity P1_CRITICAL")
		case model.SeverityP2High:
			score += 45
			factors = append(factors, "severity P2_HIGH")
		case model.SeverityP3Medium:
			score += 25
			factors = append(factors, "severity P3_MEDIUM")
		case model.SeverityP4Low:
			score += 10
			factors = append(factors, "severity P4_LOW")
		}
		if in.Classification.OngoingAbuse {
			score += 15
			factors = append(factors, "ongoing abuse indicator")
		}
	}

	if in.HashMatches != nil {
		for _, r := range in.HashMatches.PerFileResults {
			if r.NCMECHash || r.ProjectVIC || r.IWF || r.InterpolICSE {
				score += 10
				factors = append(factors, "known-content hash match on "+r.FileID)
			}
			if r.AIGSuspected {
				score += 8
				factors = append(factors, "AIG-CSAM suspected on "+r.FileID)
			}
		}
	}

	if in.Jurisdiction.InterpolReferral || in.Jurisdiction.EuropolReferral {
		score += 5
		factors = append(factors, "international referral flagged")
	}

	if score > 100 {
		score = 100
	}
	return score, factors
}

func isMinorCSAM(c *model.Classification) bool {
	if c == nil || c.OffenseCategory != model.OffenseCSAM {
		return false
	}
	return c.Severity.USICAC == model.SeverityP1Critical
}

func isOngoingAbuseOrAIG(in Inputs) bool {
	if in.Classification != nil && in.Classification.OngoingAbuse {
		return true
	}
	if in.HashMatches != nil {
		for _, r := range in.HashMatches.PerFileResults {
			if r.AIGSuspected {
				return true
			}
		}
	}
	return false
}

func hasActiveDeconfliction(l *model.Links) bool {
	if l == nil {
		return false
	}
	for _, m := range l.DeconflictionMatches {
		if m.ActiveInvestigation {
			return true
		}
	}
	return false
}

// hasOngoingCrisisSignal is a conservative heuristic over extracted entity
// data: it never invents a crisis where the classifier found none, but a
// P1_CRITICAL sextortion classification with an identified platform is
// treated as an active-harm signal worth a supervisor's immediate eyes.
func hasOngoingCrisisSignal(in Inputs) bool {
	if in.Classification == nil || in.Extracted == nil || len(in.Extracted.Platforms) == 0 {
		return false
	}
	return in.Classification.OffenseCategory == model.OffenseSextortion &&
		in.Classification.Severity.USICAC == model.SeverityP1Critical
}

func routeFor(in Inputs) string {
	switch {
	case in.Jurisdiction.InterpolReferral || in.Jurisdiction.EuropolReferral:
		return UnitJTTFFederal
	case in.Classification != nil && in.Classification.OffenseCategory == model.OffenseTrafficking:
		return UnitJTTFFederal
	case in.Classification != nil && in.Classification.OffenseCategory == model.OffenseSextortion:
		return UnitSpecialty
	default:
		return UnitICACTaskForce
	}
}

func recommendedAction(tier model.Tier, in Inputs) string {
	switch tier {
	case model.TierImmediate:
		return "escalate to on-call supervisor immediately"
	case model.TierUrgent:
		return "assign to next available investigator within shift"
	case model.TierPaused:
		return "hold for deconfliction coordination with the matching agency"
	case model.TierStandard:
		return "queue for routine assignment"
	default:
		return "monitor; no immediate action required"
	}
}

// oraclePriorityView is the schema-validated shape expected back from the
// oracle when it is asked to refine ScoringFactors prose. Only the
// rationale is read; any tier or score in the reply is ignored, and the
// deterministic values from Compute always win.
type oraclePriorityView struct {
	Rationale string `json:"rationale"`
}

// Run computes the deterministic priority, optionally asks the oracle for a
// short rationale to append to ScoringFactors, and proposes preservation
// request stubs for every ESP in scope with a known retention window. On
// oracle failure the tier is forced to PAUSED so the orchestrator's
// stage-result policy keeps the tip in pending status for supervisor
// review, per the safe-default semantics of §4.4 (see DESIGN.md for why
// PAUSED, not a new tier, is used to encode this).
func (e *Engine) Run(ctx context.Context, tipID string, receivedAt time.Time, in Inputs) (model.Priority, []model.PreservationRequest, model.AuditEntry) {
	start := time.Now()
	p := Compute(in)

	entry := model.AuditEntry{
		Agent:     "PriorityAgent",
		Timestamp: time.Now().UTC(),
		Status:    model.EntrySuccess,
		Summary:   fmt.Sprintf("priority computed: tier=%s score=%d", p.Tier, p.Score),
	}

	if e.harness != nil {
		inv := e.harness.Invoke(ctx, "priority", tipID, llm.RoleFast,
			"Given the enrichment summary, produce a one-sentence rationale for the assigned priority tier.",
			fmt.Sprintf("offense_category=%v severity=%v score=%d tier=%s",
				classificationCategory(in.Classification), classificationSeverity(in.Classification), p.Score, p.Tier),
			nil, harness.Constraints{RequireJSON: true, MaxOutputLength: 2000})

		if inv.Err != nil {
			p.Tier = model.TierPaused
			p.SupervisorAlert = true
			p.ScoringFactors = append(p.ScoringFactors, "priority oracle failed; held for supervisor review")
			entry.Status = model.EntryAgentError
			entry.ErrorDetail = inv.Err.Error()
			entry.Summary = "priority oracle failed after retries; defaulted to PAUSED"
		} else {
			var view oraclePriorityView
			if err := harness.ExtractJSON(inv.RawText, &view); err == nil && view.Rationale != "" {
				p.ScoringFactors = append(p.ScoringFactors, view.Rationale)
			}
		}
		entry.ModelUsed = inv.ModelUsed
	}

	duration := time.Since(start).Milliseconds()
	entry.DurationMS = &duration

	return p, e.proposePreservationRequests(tipID, receivedAt, in), entry
}

func classificationCategory(c *model.Classification) model.OffenseCategory {
	if c == nil {
		return ""
	}
	return c.OffenseCategory
}

func classificationSeverity(c *model.Classification) model.ICACSeverity {
	if c == nil {
		return ""
	}
	return c.Severity.USICAC
}

// proposePreservationRequests emits a draft, auto-generated preservation
// request for every ESP identified with a known retention window (§4.4).
// The reporting ESP and any platforms surfaced by Extraction are both
// candidates; a platform with no entry in the retention table is skipped
// rather than guessed at.
func (e *Engine) proposePreservationRequests(tipID string, receivedAt time.Time, in Inputs) []model.PreservationRequest {
	retention := e.retention
	if retention == nil {
		retention = DefaultRetentionTable
	}
	seen := map[string]bool{}
	var names []string
	if in.Reporter.ESPName != "" {
		names = append(names, in.Reporter.ESPName)
	}
	if in.Extracted != nil {
		names = append(names, in.Extracted.Platforms...)
	}

	var out []model.PreservationRequest
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		days, ok := retention.DaysFor(name)
		if !ok {
			continue
		}
		deadline := receivedAt.AddDate(0, 0, days)
		out = append(out, model.PreservationRequest{
			RequestID:     fmt.Sprintf("pres-%s-%s", tipID, name),
			TipID:         tipID,
			ESPName:       name,
			LegalBasis:    "18 U.S.C. § 2703(f) preservation request",
			Deadline:      &deadline,
			Status:        model.PreservationDraft,
			AutoGenerated: true,
		})
	}
	return out
}
