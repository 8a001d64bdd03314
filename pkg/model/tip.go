// Package model defines the CyberTip aggregate and its nested entities.
//
// The Tip is the aggregate root described in spec §3: all downstream
// components (Wilson Gate, Priority Engine, Tip Repository, HTTP surface)
// read and write through these types. Mutation helpers on Tip and TipFile
// keep the invariants of §3 true at every call site instead of scattering
// the checks across callers.
package model

import "time"

// Source enumerates where a tip originated.
type Source string

const (
	SourcePartnerPortal Source = "partner-portal"
	SourcePartnerAPI    Source = "partner-api"
	SourceEmail         Source = "email"
	SourceInterAgency   Source = "inter-agency"
	SourcePublicWebForm Source = "public-web-form"
)

// Status enumerates the lifecycle state of a tip.
type Status string

const (
	StatusPending    Status = "pending"
	StatusTriaged    Status = "triaged"
	StatusAssigned   Status = "assigned"
	StatusClosed     Status = "closed"
	StatusReferredOut Status = "referred-out"
	StatusDuplicate  Status = "duplicate"
	StatusBlocked    Status = "BLOCKED"
)

// ReporterKind discriminates the reporter variant.
type ReporterKind string

const (
	ReporterESP           ReporterKind = "ESP"
	ReporterPartnerAgency ReporterKind = "partner-agency"
	ReporterPublic        ReporterKind = "public"
	ReporterNCMEC         ReporterKind = "NCMEC"
)

// Reporter is the tagged-variant reporter of a tip.
type Reporter struct {
	Kind               ReporterKind `json:"kind"`
	ESPName            string       `json:"esp_name,omitempty"`
	OriginatingCountry string       `json:"originating_country,omitempty"` // ISO-3166-2
}

// JurisdictionLabel enumerates the primary jurisdiction classification.
type JurisdictionLabel string

const (
	JurisdictionUSFederal        JurisdictionLabel = "US-federal"
	JurisdictionUSState          JurisdictionLabel = "US-state"
	JurisdictionUSLocal          JurisdictionLabel = "US-local"
	JurisdictionInternationalOther JurisdictionLabel = "international-other"
	JurisdictionUnknown          JurisdictionLabel = "unknown"
)

// JurisdictionProfile captures the jurisdictional footprint of a tip.
type JurisdictionProfile struct {
	Primary            JurisdictionLabel `json:"primary"`
	CountriesInvolved  []string          `json:"countries_involved,omitempty"`
	InterpolReferral   bool              `json:"interpol_referral"`
	EuropolReferral    bool              `json:"europol_referral"`
}

// MediaType enumerates the kind of content a TipFile carries.
type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaDocument MediaType = "document"
	MediaOther    MediaType = "other"
)

// WarrantStatus enumerates the lifecycle of a file's warrant.
type WarrantStatus string

const (
	WarrantNotNeeded         WarrantStatus = "not_needed"
	WarrantPendingApplication WarrantStatus = "pending_application"
	WarrantApplied           WarrantStatus = "applied"
	WarrantGranted           WarrantStatus = "granted"
	WarrantDenied            WarrantStatus = "denied"
)

// HashFingerprints carries the cryptographic and perceptual hashes of a file.
type HashFingerprints struct {
	MD5       string `json:"md5,omitempty"`
	SHA1      string `json:"sha1,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
	PhotoDNA  string `json:"photodna,omitempty"`
}

// WatchlistVerdicts carries hash/AI-classifier matches against known-content
// databases.
type WatchlistVerdicts struct {
	NCMECHashMatch        bool     `json:"ncmec_hash_match"`
	ProjectVICMatch       bool     `json:"project_vic_match"`
	IWFMatch              bool     `json:"iwf_match"`
	InterpolICSEMatch     bool     `json:"interpol_icse_match"`
	AIGCSAMSuspected      bool     `json:"aig_csam_suspected"`
	AIGDetectionConfidence *float64 `json:"aig_detection_confidence,omitempty"`
}

// TipFile is one piece of reported content and its authorization state.
//
// file_access_blocked is derived, never set directly by callers outside
// the Wilson Gate (pkg/wilson) — see RecomputeAccessBlock, which is the
// single place invariant §3.2 is enforced.
type TipFile struct {
	FileID   string    `json:"file_id"`
	Filename string    `json:"filename,omitempty"`
	SizeBytes int64    `json:"size_bytes,omitempty"`
	MediaType MediaType `json:"media_type"`

	Hashes HashFingerprints `json:"hashes"`

	// Wilson Gate inputs.
	ESPViewed        bool `json:"esp_viewed"`
	ESPViewedMissing bool `json:"esp_viewed_missing"`
	PubliclyAvailable bool `json:"publicly_available"`

	// Wilson Gate outputs / access state.
	WarrantRequired   bool          `json:"warrant_required"`
	WarrantStatus     WarrantStatus `json:"warrant_status"`
	FileAccessBlocked bool          `json:"file_access_blocked"`
	WarrantNumber     string        `json:"warrant_number,omitempty"`
	GrantingJudge     string        `json:"granting_judge,omitempty"`

	Watchlist WatchlistVerdicts `json:"watchlist"`
}

// RecomputeAccessBlock enforces invariant §3.2:
// file_access_blocked ⇔ warrant_required ∧ warrant_status ≠ granted.
func (f *TipFile) RecomputeAccessBlock() {
	f.FileAccessBlocked = f.WarrantRequired && f.WarrantStatus != WarrantGranted
}

// PreservationStatus enumerates the lifecycle of a preservation request.
type PreservationStatus string

const (
	PreservationDraft     PreservationStatus = "draft"
	PreservationIssued     PreservationStatus = "issued"
	PreservationConfirmed  PreservationStatus = "confirmed"
	PreservationExpired    PreservationStatus = "expired"
)

// PreservationRequest is a formal demand that an ESP preserve named records.
type PreservationRequest struct {
	RequestID         string              `json:"request_id"`
	TipID             string              `json:"tip_id"`
	ESPName           string              `json:"esp_name"`
	AccountIdentifiers []string           `json:"account_identifiers,omitempty"`
	LegalBasis        string              `json:"legal_basis"`
	Jurisdiction      string              `json:"jurisdiction,omitempty"`
	Deadline          *time.Time          `json:"deadline,omitempty"`
	Status            PreservationStatus  `json:"status"`
	AutoGenerated     bool                `json:"auto_generated"`
	LetterText        string              `json:"letter_text,omitempty"`
	Approver          string              `json:"approver,omitempty"`
	IssuedAt          *time.Time          `json:"issued_at,omitempty"`
}

// ExtractedEntities is the output of the Extraction stage.
type ExtractedEntities struct {
	VictimAgeRanges []string          `json:"victim_age_ranges,omitempty"`
	Usernames       []string          `json:"usernames,omitempty"`
	Emails          []string          `json:"emails,omitempty"`
	IPAddresses     []string          `json:"ip_addresses,omitempty"`
	Platforms       []string          `json:"platforms,omitempty"`
	Raw             map[string]any    `json:"raw,omitempty"`
}

// HashMatchResult is the per-file verdict produced by the Hash/OSINT stage.
type HashMatchResult struct {
	FileID    string `json:"file_id"`
	NCMECHash bool   `json:"ncmec_hash_match"`
	ProjectVIC bool  `json:"project_vic_match"`
	IWF       bool   `json:"iwf_match"`
	InterpolICSE bool `json:"interpol_icse_match"`
	AIGSuspected bool `json:"aig_csam_suspected"`
}

// HashMatches is the full Hash/OSINT stage output.
type HashMatches struct {
	PerFileResults []HashMatchResult `json:"per_file_results"`
}

// OffenseCategory enumerates classifier categories.
type OffenseCategory string

const (
	OffenseCSAM           OffenseCategory = "CSAM"
	OffenseGrooming       OffenseCategory = "grooming"
	OffenseSextortion     OffenseCategory = "sextortion"
	OffenseTrafficking    OffenseCategory = "trafficking"
	OffenseOther          OffenseCategory = "other"
)

// ICACSeverity enumerates the US-ICAC severity scale.
type ICACSeverity string

const (
	SeverityP1Critical ICACSeverity = "P1_CRITICAL"
	SeverityP2High     ICACSeverity = "P2_HIGH"
	SeverityP3Medium   ICACSeverity = "P3_MEDIUM"
	SeverityP4Low      ICACSeverity = "P4_LOW"
)

// MinorAgeRanges is the set of victim age-range labels that trigger the
// child-safety floor (§3 invariant 5).
var MinorAgeRanges = map[string]bool{
	"0-2": true, "3-5": true, "6-9": true, "10-12": true, "13-15": true, "16-17": true,
}

// Severity carries the classifier's severity verdict.
type Severity struct {
	USICAC ICACSeverity `json:"us_icac"`
}

// Classification is the output of the Classifier stage.
type Classification struct {
	OffenseCategory    OffenseCategory `json:"offense_category"`
	Severity           Severity        `json:"severity"`
	OngoingAbuse       bool            `json:"ongoing_abuse_indicator"`
	Confidence         float64         `json:"confidence"`
}

// ApplyChildSafetyFloor enforces invariant §3.5: CSAM plus a minor victim
// age-range always floors severity at P1_CRITICAL; it never lowers it.
func (c *Classification) ApplyChildSafetyFloor(ageRanges []string) {
	if c.OffenseCategory != OffenseCSAM {
		return
	}
	for _, r := range ageRanges {
		if MinorAgeRanges[r] {
			c.Severity.USICAC = SeverityP1Critical
			return
		}
	}
}

// DeconflictionMatch records another agency's overlapping investigation.
type DeconflictionMatch struct {
	Agency              string `json:"agency"`
	CaseReference       string `json:"case_reference,omitempty"`
	ActiveInvestigation bool   `json:"active_investigation"`
}

// ClusterFlag records that this tip shares identifiers with other tips.
type ClusterFlag struct {
	ClusterID string   `json:"cluster_id"`
	SharedOn  []string `json:"shared_on"` // e.g. "subject", "hash", "username", "ip"
	TipIDs    []string `json:"tip_ids"`
}

// Links is the output of the Linker stage.
type Links struct {
	DuplicateOf          string                `json:"duplicate_of,omitempty"`
	DeconflictionMatches []DeconflictionMatch  `json:"deconfliction_matches,omitempty"`
	ClusterFlags         []ClusterFlag         `json:"cluster_flags,omitempty"`
}

// Tier enumerates the priority ordering, highest first.
type Tier string

const (
	TierImmediate Tier = "IMMEDIATE"
	TierUrgent    Tier = "URGENT"
	TierPaused    Tier = "PAUSED"
	TierStandard  Tier = "STANDARD"
	TierMonitor   Tier = "MONITOR"
)

// Priority is the output of the Priority Engine.
type Priority struct {
	Score                int      `json:"score"`
	Tier                 Tier     `json:"tier"`
	ScoringFactors        []string `json:"scoring_factors,omitempty"`
	RoutingUnit          string   `json:"routing_unit"`
	RecommendedAction    string   `json:"recommended_action,omitempty"`
	SupervisorAlert      bool     `json:"supervisor_alert"`
	VictimCrisisAlert    bool     `json:"victim_crisis_alert"`
}

// LegalStatus is the output of the Wilson Gate.
type LegalStatus struct {
	FileIDsRequiringWarrant     []string `json:"file_ids_requiring_warrant"`
	AllWarrantsResolved         bool     `json:"all_warrants_resolved"`
	AnyFilesAccessible          bool     `json:"any_files_accessible"`
	LegalNote                   string   `json:"legal_note"`
	RelevantCircuit              string   `json:"relevant_circuit,omitempty"`
	ExigentCircumstancesClaimed bool     `json:"exigent_circumstances_claimed"`
	Confidence                   float64  `json:"confidence,omitempty"`
}

// Tip is the aggregate root described in spec §3.
type Tip struct {
	TipID             string `json:"tip_id"`
	NCMECTipNumber    string `json:"ncmec_tip_number,omitempty"`
	UpstreamCaseNumber string `json:"upstream_case_number,omitempty"`

	Source      Source    `json:"source"`
	ReceivedAt  time.Time `json:"received_at"`
	RawBody     string    `json:"raw_body"`
	NormalizedBody string `json:"normalized_body"`

	Reporter Reporter `json:"reporter"`

	Jurisdiction JurisdictionProfile `json:"jurisdiction"`

	IsBundled             bool `json:"is_bundled"`
	BundledIncidentCount int  `json:"bundled_incident_count,omitempty"`

	NCMECUrgentFlag bool `json:"ncmec_urgent_flag"`

	Status Status `json:"status"`

	Files []TipFile `json:"files"`

	PreservationRequests []PreservationRequest `json:"preservation_requests,omitempty"`

	Audit []AuditEntry `json:"audit"`

	Extracted      *ExtractedEntities `json:"extracted,omitempty"`
	HashMatches    *HashMatches       `json:"hash_matches,omitempty"`
	Classification *Classification    `json:"classification,omitempty"`
	Links          *Links             `json:"links,omitempty"`
	Priority       *Priority          `json:"priority,omitempty"`
	LegalStatus    *LegalStatus       `json:"legal_status,omitempty"`

	AssignedTo      string `json:"assigned_to,omitempty"`
	AssignedToName  string `json:"assigned_to_name,omitempty"`
}

// AppendAudit appends an entry to the tip's audit trail. This is the only
// mutator for the audit slice; callers never splice or reorder it, which is
// how invariant §3.1 (append-only, immutable position) is upheld at the
// aggregate level. The durable, hash-chained record of truth lives in
// pkg/audit.Store — this slice is the per-tip projection returned to callers.
func (t *Tip) AppendAudit(e AuditEntry) {
	t.Audit = append(t.Audit, e)
}

// RecomputeFileFlagConsistency enforces invariant §3.6: a true watchlist
// flag on the HashMatches result must be reflected on the corresponding
// TipFile, and vice versa.
func (t *Tip) RecomputeFileFlagConsistency() {
	if t.HashMatches == nil {
		return
	}
	byFile := make(map[string]HashMatchResult, len(t.HashMatches.PerFileResults))
	for _, r := range t.HashMatches.PerFileResults {
		byFile[r.FileID] = r
	}
	for i := range t.Files {
		f := &t.Files[i]
		if r, ok := byFile[f.FileID]; ok {
			f.Watchlist.NCMECHashMatch = f.Watchlist.NCMECHashMatch || r.NCMECHash
			f.Watchlist.ProjectVICMatch = f.Watchlist.ProjectVICMatch || r.ProjectVIC
			f.Watchlist.IWFMatch = f.Watchlist.IWFMatch || r.IWF
			f.Watchlist.InterpolICSEMatch = f.Watchlist.InterpolICSEMatch || r.InterpolICSE
			f.Watchlist.AIGCSAMSuspected = f.Watchlist.AIGCSAMSuspected || r.AIGSuspected
			// Reflect back onto the stage result too, so both directions agree.
			r.NCMECHash = f.Watchlist.NCMECHashMatch
			r.ProjectVIC = f.Watchlist.ProjectVICMatch
			r.IWF = f.Watchlist.IWFMatch
			r.InterpolICSE = f.Watchlist.InterpolICSEMatch
			r.AIGSuspected = f.Watchlist.AIGCSAMSuspected
			byFile[f.FileID] = r
		} else if f.Watchlist.NCMECHashMatch || f.Watchlist.ProjectVICMatch || f.Watchlist.IWFMatch ||
			f.Watchlist.InterpolICSEMatch || f.Watchlist.AIGCSAMSuspected {
			byFile[f.FileID] = HashMatchResult{
				FileID:       f.FileID,
				NCMECHash:    f.Watchlist.NCMECHashMatch,
				ProjectVIC:   f.Watchlist.ProjectVICMatch,
				IWF:          f.Watchlist.IWFMatch,
				InterpolICSE: f.Watchlist.InterpolICSEMatch,
				AIGSuspected: f.Watchlist.AIGCSAMSuspected,
			}
		}
	}
	results := make([]HashMatchResult, 0, len(byFile))
	for _, f := range t.Files {
		if r, ok := byFile[f.FileID]; ok {
			results = append(results, r)
		}
	}
	t.HashMatches.PerFileResults = results
}

// IsBlocked reports whether the tip is hard-stopped (invariant §3.3).
func (t *Tip) IsBlocked() bool {
	return t.Status == StatusBlocked
}
