// Package wilson implements the Wilson Gate: the single source of truth
// for per-file warrant requirement and access-block decisions. No other
// component may mutate TipFile.WarrantRequired or FileAccessBlocked.
package wilson

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cybertip/triage/pkg/model"
)

// CircuitRuleLookup resolves the legal-standard text for a circuit label.
// Implemented by pkg/legal's reference data; kept as an interface here so
// the gate's decision function stays a pure function of file fields plus
// this optional lookup, per the contract.
type CircuitRuleLookup interface {
	Lookup(circuit string) (model.CircuitRule, bool)
}

// Decide applies the per-file decision function. It never reads anything
// beyond the file's own fields: publicly_available first, then the ESP's
// prior independent viewing, else a warrant is required.
func Decide(f *model.TipFile) {
	switch {
	case f.PubliclyAvailable:
		f.WarrantRequired = false
	case f.ESPViewed && !f.ESPViewedMissing:
		f.WarrantRequired = false
	default:
		f.WarrantRequired = true
	}
	if f.WarrantStatus == "" {
		f.WarrantStatus = model.WarrantNotNeeded
		if f.WarrantRequired {
			f.WarrantStatus = model.WarrantPendingApplication
		}
	}
	f.RecomputeAccessBlock()
}

// Run evaluates every file on the tip and assembles the LegalStatus.
// circuit, if non-empty, is looked up via rules for the legal_note text and
// citation only — it never changes the warrant/access decisions above.
func Run(files []model.TipFile, circuit string, rules CircuitRuleLookup) model.LegalStatus {
	var needsWarrant, accessible, pending, denied, granted []string

	for i := range files {
		f := &files[i]
		Decide(f)

		if f.WarrantRequired {
			needsWarrant = append(needsWarrant, f.FileID)
			switch f.WarrantStatus {
			case model.WarrantGranted:
				granted = append(granted, f.FileID)
			case model.WarrantDenied:
				denied = append(denied, f.FileID)
			default:
				pending = append(pending, f.FileID)
			}
		}
		if !f.FileAccessBlocked {
			accessible = append(accessible, f.FileID)
		}
	}

	allResolved := len(pending) == 0
	status := model.LegalStatus{
		FileIDsRequiringWarrant:     needsWarrant,
		AllWarrantsResolved:         allResolved,
		AnyFilesAccessible:          len(accessible) > 0,
		ExigentCircumstancesClaimed: false,
	}

	note, rule := composeLegalNote(accessible, pending, denied, granted, circuit, rules)
	status.LegalNote = note
	if rule != "" {
		status.RelevantCircuit = circuit
		_ = rule // citation folded into the note text
	}

	return status
}

func composeLegalNote(accessible, pending, denied, granted []string, circuit string, rules CircuitRuleLookup) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "%d file(s) accessible without further action.", len(accessible))
	if len(pending) > 0 {
		fmt.Fprintf(&b, " %d file(s) require a warrant and are pending application.", len(pending))
	}
	if len(granted) > 0 {
		fmt.Fprintf(&b, " %d file(s) have a granted warrant.", len(granted))
	}
	if len(denied) > 0 {
		fmt.Fprintf(&b, " %d file(s) had a warrant application denied and remain blocked.", len(denied))
	}

	citation := ""
	if circuit != "" && rules != nil {
		if rule, ok := rules.Lookup(circuit); ok {
			citation = rule.BindingPrecedent
			fmt.Fprintf(&b, " Operative circuit: %s (%s posture)", circuit, rule.ApplicationMode)
			if citation != "" {
				fmt.Fprintf(&b, ", citing %s", citation)
			}
			fmt.Fprintf(&b, ". Standard: %s", rule.FileAccessStandard)
		}
	}

	return b.String(), citation
}

// HardBlockResult is the fully-blocked LegalStatus produced when the
// harness exhausts retries on the enrichment oracle call: every file is
// forced to warrant_required/file_access_blocked = true regardless of its
// own fields, and legal_note mandates human legal review.
func HardBlockResult(files []model.TipFile, reason string) (model.LegalStatus, []model.TipFile) {
	blocked := make([]model.TipFile, len(files))
	ids := make([]string, 0, len(files))
	for i, f := range files {
		f.WarrantRequired = true
		f.WarrantStatus = model.WarrantPendingApplication
		f.RecomputeAccessBlock()
		blocked[i] = f
		ids = append(ids, f.FileID)
	}
	sort.Strings(ids)
	return model.LegalStatus{
		FileIDsRequiringWarrant:     ids,
		AllWarrantsResolved:         false,
		AnyFilesAccessible:          false,
		LegalNote:                   fmt.Sprintf("Wilson Gate oracle call failed (%s); all files forced to pending-warrant status pending mandatory human legal review.", reason),
		ExigentCircumstancesClaimed: false,
	}, blocked
}
