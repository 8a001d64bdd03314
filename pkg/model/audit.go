package model

import "time"

// EntryStatus enumerates the outcome recorded by an AuditEntry.
type EntryStatus string

const (
	EntrySuccess    EntryStatus = "success"
	EntryAgentError EntryStatus = "agent_error"
	EntryBlocked    EntryStatus = "blocked"
	EntryInfo       EntryStatus = "info"
)

// Well-known agent labels beyond the pipeline stage names themselves.
const (
	AgentHuman        = "HumanAction"
	AgentOrchestrator = "Orchestrator"
	AgentPrecedentAdmin = "PrecedentAdmin"
)

// AuditEntry is one immutable record in a tip's audit trail.
//
// Once appended via Tip.AppendAudit, neither its contents nor its position
// in the slice change — see the invariant note on AppendAudit. The durable,
// hash-chained copy of record lives in pkg/audit; this is the per-tip
// projection shape returned over the wire.
type AuditEntry struct {
	EntryID   string      `json:"entry_id"`
	TipID     string      `json:"tip_id"`
	Agent     string      `json:"agent"`
	Timestamp time.Time   `json:"timestamp"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
	Status    EntryStatus `json:"status"`
	Summary   string      `json:"summary"`

	ModelUsed    string `json:"model_used,omitempty"`
	ErrorDetail  string `json:"error_detail,omitempty"`
	HumanActor   string `json:"human_actor,omitempty"`

	PreviousValue any `json:"previous_value,omitempty"`
	NewValue      any `json:"new_value,omitempty"`
}

// CircuitApplicationMode enumerates how binding a circuit's precedent is.
type CircuitApplicationMode string

const (
	ApplicationStrict                  CircuitApplicationMode = "strict"
	ApplicationConservative             CircuitApplicationMode = "conservative"
	ApplicationNoPrecedentConservative CircuitApplicationMode = "no-precedent-conservative"
)

// CircuitRule is the legal-standard text and posture for one federal circuit.
type CircuitRule struct {
	Circuit             string                 `json:"circuit"` // e.g. "9th", "5th", "DC"
	BindingPrecedent    string                 `json:"binding_precedent,omitempty"`
	ApplicationMode     CircuitApplicationMode `json:"application_mode"`
	FileAccessStandard  string                 `json:"file_access_standard"`
	LastReviewed        time.Time              `json:"last_reviewed"`
}

// PrecedentEffect enumerates how a PrecedentUpdate changes the legal landscape.
type PrecedentEffect string

const (
	EffectNowBinding PrecedentEffect = "now_binding"
	EffectAffirmed   PrecedentEffect = "affirmed"
	EffectLimited    PrecedentEffect = "limited"
	EffectReversed   PrecedentEffect = "reversed"
)

// PrecedentUpdate is one entry in the append-only precedent log.
type PrecedentUpdate struct {
	Date     time.Time       `json:"date"`
	Circuit  string          `json:"circuit"`
	CaseName string          `json:"case_name"`
	Citation string          `json:"citation"`
	Effect   PrecedentEffect `json:"effect"`
	Summary  string          `json:"summary"`
	Actor    string          `json:"actor"`
}
