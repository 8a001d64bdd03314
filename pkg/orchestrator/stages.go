package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/cybertip/triage/pkg/harness"
	"github.com/cybertip/triage/pkg/legal"
	"github.com/cybertip/triage/pkg/llm"
	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/wilson"
)

const (
	extractionSchemaJSON = `{
		"type": "object",
		"properties": {
			"victim_age_ranges": {"type": "array", "items": {"type": "string"}},
			"usernames": {"type": "array", "items": {"type": "string"}},
			"emails": {"type": "array", "items": {"type": "string"}},
			"ip_addresses": {"type": "array", "items": {"type": "string"}},
			"platforms": {"type": "array", "items": {"type": "string"}}
		}
	}`

	hashOSINTSchemaJSON = `{
		"type": "object",
		"required": ["per_file_results"],
		"properties": {
			"per_file_results": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["file_id"],
					"properties": {
						"file_id": {"type": "string"},
						"ncmec_hash_match": {"type": "boolean"},
						"project_vic_match": {"type": "boolean"},
						"iwf_match": {"type": "boolean"},
						"interpol_icse_match": {"type": "boolean"},
						"aig_csam_suspected": {"type": "boolean"}
					}
				}
			}
		}
	}`

	classifierSchemaJSON = `{
		"type": "object",
		"required": ["offense_category", "severity"],
		"properties": {
			"offense_category": {"type": "string"},
			"severity": {
				"type": "object",
				"required": ["us_icac"],
				"properties": {"us_icac": {"type": "string"}}
			},
			"ongoing_abuse_indicator": {"type": "boolean"},
			"confidence": {"type": "number"}
		}
	}`

	linkerSchemaJSON = `{
		"type": "object",
		"properties": {
			"deconfliction_matches": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"agency": {"type": "string"},
						"case_reference": {"type": "string"},
						"active_investigation": {"type": "boolean"}
					}
				}
			}
		}
	}`

	wilsonOracleSchemaJSON = `{
		"type": "object",
		"properties": {
			"confidence": {"type": "number"},
			"exigent_possibility": {"type": "boolean"},
			"note_enrichment": {"type": "string"}
		}
	}`
)

var (
	extractionSchema, _ = harness.CompileSchema("extraction", extractionSchemaJSON)
	hashOSINTSchema, _   = harness.CompileSchema("hash-osint", hashOSINTSchemaJSON)
	classifierSchema, _  = harness.CompileSchema("classifier", classifierSchemaJSON)
	linkerSchema, _      = harness.CompileSchema("linker", linkerSchemaJSON)
	wilsonOracleSchema, _ = harness.CompileSchema("wilson-oracle", wilsonOracleSchemaJSON)
)

// runExtraction calls the fast-band oracle to normalize entities out of
// the tip's raw body (§4.3: "fast is used for Intake normalization" —
// Extraction is the enrichment-time counterpart of that normalization).
func runExtraction(ctx context.Context, h *harness.Harness, tip *model.Tip) model.AuditEntry {
	inv := h.Invoke(ctx, "extraction", tip.TipID, llm.RoleFast,
		"Extract victim age ranges, usernames, emails, IP addresses, and platforms mentioned in the report. Respond with a single JSON object.",
		tip.NormalizedBody, nil, harness.Constraints{RequireJSON: true, MaxOutputLength: 4000})

	entry := harness.AuditEntryFor("ExtractionAgent", tip.TipID, inv)
	if inv.Err != nil {
		return entry
	}

	var out model.ExtractedEntities
	if err := harness.ExtractValidated(inv.RawText, extractionSchema, &out); err != nil {
		return agentErrorEntry("ExtractionAgent", tip.TipID, err)
	}
	tip.Extracted = &out
	return entry
}

// runHashOSINT calls the oracle to classify each file against known-content
// hash databases and AIG-CSAM suspicion, then folds verdicts back onto the
// TipFile records per §3 invariant 6.
func runHashOSINT(ctx context.Context, h *harness.Harness, tip *model.Tip) model.AuditEntry {
	inv := h.Invoke(ctx, "hash_osint", tip.TipID, llm.RoleFast,
		"For each file, report hash/OSINT watchlist verdicts as a JSON object with a per_file_results array.",
		fileSummary(tip.Files), nil, harness.Constraints{RequireJSON: true, MaxOutputLength: 4000})

	entry := harness.AuditEntryFor("HashOSINTAgent", tip.TipID, inv)
	if inv.Err != nil {
		return entry
	}

	var out model.HashMatches
	if err := harness.ExtractValidated(inv.RawText, hashOSINTSchema, &out); err != nil {
		return agentErrorEntry("HashOSINTAgent", tip.TipID, err)
	}
	tip.HashMatches = &out
	tip.RecomputeFileFlagConsistency()
	return entry
}

// runClassifier calls the high-band oracle (mandatory per §4.3) to
// classify offense category and severity, then applies the child-safety
// floor (§3 invariant 5) unconditionally — the floor is never skippable
// even if the oracle already returned P1_CRITICAL.
func runClassifier(ctx context.Context, h *harness.Harness, tip *model.Tip) model.AuditEntry {
	inv := h.Invoke(ctx, "classifier", tip.TipID, llm.RoleHigh,
		"Classify the offense category and US-ICAC severity for this report. Respond with a single JSON object.",
		tip.NormalizedBody, nil, harness.Constraints{RequireJSON: true, MaxOutputLength: 4000})

	entry := harness.AuditEntryFor("ClassifierAgent", tip.TipID, inv)
	if inv.Err != nil {
		return entry
	}

	var out model.Classification
	if err := harness.ExtractValidated(inv.RawText, classifierSchema, &out); err != nil {
		return agentErrorEntry("ClassifierAgent", tip.TipID, err)
	}

	var ageRanges []string
	if tip.Extracted != nil {
		ageRanges = tip.Extracted.VictimAgeRanges
	}
	out.ApplyChildSafetyFloor(ageRanges)
	tip.Classification = &out
	return entry
}

// runLinker calls the oracle to surface deconfliction matches against
// other agencies' open investigations. Duplicate/cluster links are set by
// pkg/ingest, not here — the Linker stage only contributes deconfliction.
func runLinker(ctx context.Context, h *harness.Harness, tip *model.Tip) model.AuditEntry {
	inv := h.Invoke(ctx, "linker", tip.TipID, llm.RoleFast,
		"Identify any overlapping-agency deconfliction matches for this report. Respond with a single JSON object.",
		tip.NormalizedBody, nil, harness.Constraints{RequireJSON: true, MaxOutputLength: 4000})

	entry := harness.AuditEntryFor("LinkerAgent", tip.TipID, inv)
	if inv.Err != nil {
		return entry
	}

	var out model.Links
	if err := harness.ExtractValidated(inv.RawText, linkerSchema, &out); err != nil {
		return agentErrorEntry("LinkerAgent", tip.TipID, err)
	}
	if tip.Links == nil {
		tip.Links = &out
	} else {
		tip.Links.DeconflictionMatches = out.DeconflictionMatches
	}
	return entry
}

type wilsonOracleView struct {
	Confidence         float64 `json:"confidence"`
	ExigentPossibility bool    `json:"exigent_possibility"`
	NoteEnrichment     string  `json:"note_enrichment"`
}

// runWilsonGate is the compliance-critical stage (§4.2). The deterministic
// per-file decision in pkg/wilson always wins; the oracle, called on the
// high band within the same StageTimeout every other stage gets (the
// deadline is not extended for this stage), may only enrich legal_note
// text and set a confidence score. If the oracle call fails after all
// retries, the gate hard-blocks every file per wilson.HardBlockResult and
// the caller (runWilson) treats this as the pipeline's hard-stop condition.
func runWilsonGate(ctx context.Context, h *harness.Harness, ref *legal.Reference, tip *model.Tip, circuit string) (blocked bool, entry model.AuditEntry) {
	if h == nil {
		status := wilson.Run(tip.Files, circuit, ref)
		tip.LegalStatus = &status
		return false, model.AuditEntry{
			TipID:     tip.TipID,
			Agent:     "LegalGateAgent",
			Timestamp: time.Now().UTC(),
			Status:    model.EntrySuccess,
			Summary:   "Wilson Gate decided without oracle enrichment (no oracle call made).",
		}
	}

	inv := h.Invoke(ctx, "wilson_gate", tip.TipID, llm.RoleHigh,
		"Given the file access facts and circuit posture, enrich the legal note and report a confidence score. Never override the deterministic warrant decision already made. Respond with a single JSON object.",
		tip.NormalizedBody, nil, harness.Constraints{RequireJSON: true, MaxOutputLength: 4000})

	if inv.Err != nil {
		hardBlocked, files := wilson.HardBlockResult(tip.Files, inv.Err.Error())
		tip.Files = files
		tip.LegalStatus = &hardBlocked
		return true, model.AuditEntry{
			TipID:       tip.TipID,
			Agent:       "LegalGateAgent",
			Timestamp:   time.Now().UTC(),
			Status:      model.EntryBlocked,
			Summary:     "Wilson Gate oracle failed after retries; hard-stop applied, all files forced to pending-warrant.",
			ErrorDetail: inv.Err.Error(),
		}
	}

	status := wilson.Run(tip.Files, circuit, ref)

	var view wilsonOracleView
	if err := harness.ExtractValidated(inv.RawText, wilsonOracleSchema, &view); err == nil {
		status.Confidence = view.Confidence
		if view.NoteEnrichment != "" {
			status.LegalNote = status.LegalNote + " " + view.NoteEnrichment
		}
	}
	tip.LegalStatus = &status

	noAccessibleFiles := len(tip.Files) > 0 && !status.AnyFilesAccessible
	if status.Confidence > 0 && status.Confidence < 0.5 && noAccessibleFiles {
		hardBlocked, files := wilson.HardBlockResult(tip.Files, "low-confidence oracle result with no accessible files")
		tip.Files = files
		tip.LegalStatus = &hardBlocked
		return true, model.AuditEntry{
			TipID:     tip.TipID,
			Agent:     "LegalGateAgent",
			Timestamp: time.Now().UTC(),
			Status:    model.EntryBlocked,
			Summary:   "Wilson Gate returned low confidence with no accessible files; hard-stop applied.",
		}
	}

	return false, harness.AuditEntryFor("LegalGateAgent", tip.TipID, inv)
}

func agentErrorEntry(agent, tipID string, err error) model.AuditEntry {
	return model.AuditEntry{
		TipID:       tipID,
		Agent:       agent,
		Timestamp:   time.Now().UTC(),
		Status:      model.EntryAgentError,
		Summary:     fmt.Sprintf("%s output failed schema validation", agent),
		ErrorDetail: err.Error(),
	}
}

func fileSummary(files []model.TipFile) string {
	s := ""
	for _, f := range files {
		s += fmt.Sprintf("file_id=%s media_type=%s sha256=%s photodna=%s\n", f.FileID, f.MediaType, f.Hashes.SHA256, f.Hashes.PhotoDNA)
	}
	return s
}
