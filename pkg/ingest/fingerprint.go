// Package ingest transports RawTipInput payloads from source adapters into
// the orchestrator exactly once per fingerprint, with bounded concurrency
// and backpressure (§4.5).
package ingest

import (
	"strings"

	"github.com/cybertip/triage/pkg/canonicalize"
)

// RawTipInput is what a source adapter hands to enqueue. Adapters own all
// protocol concerns (polling, auth, TLS); this package owns dedup,
// bundling, and transport into the orchestrator.
type RawTipInput struct {
	Source              string            `json:"source"`
	RawContent          string            `json:"raw_content"`
	ContentType         string            `json:"content_type"`
	ReceivedAtUnix      int64             `json:"received_at_unix"`
	Metadata            map[string]string `json:"metadata,omitempty"`
	IsBundled           bool              `json:"is_bundled,omitempty"`
	BundledIncidentCount int              `json:"bundled_incident_count,omitempty"`

	// StructuralIdentifiers are the fields a partner report carries that
	// identify the incident independent of free-text body wording — e.g. an
	// upstream case number, a subject username, a NCMEC tip number. They
	// are folded into the fingerprint alongside the normalized body so two
	// reports of the same incident with slightly different prose still
	// collide.
	StructuralIdentifiers []string `json:"structural_identifiers,omitempty"`
}

// normalizedBody lowercases and collapses whitespace so cosmetic
// differences between two submissions of the same report (re-wrapped
// lines, extra spaces) don't produce different fingerprints.
func normalizedBody(raw string) string {
	fields := strings.Fields(strings.ToLower(raw))
	return strings.Join(fields, " ")
}

// fingerprintPayload is the exact shape hashed to produce a Fingerprint.
// Canonicalizing it through JCS before hashing means field order in the
// struct, and any future additions, never silently change existing
// fingerprints as long as the field set itself is unchanged.
type fingerprintPayload struct {
	Source      string   `json:"source"`
	Body        string   `json:"body"`
	Identifiers []string `json:"identifiers"`
}

// Fingerprint computes the stable dedup key for a RawTipInput: a hash of
// the canonicalized source tag, normalized body, and structural
// identifiers (§4.5). Two payloads with the same fingerprint refer to the
// same incident.
func Fingerprint(in RawTipInput) (string, error) {
	ids := append([]string(nil), in.StructuralIdentifiers...)
	payload := fingerprintPayload{
		Source:      in.Source,
		Body:        normalizedBody(in.RawContent),
		Identifiers: ids,
	}
	return canonicalize.CanonicalHash(payload)
}
