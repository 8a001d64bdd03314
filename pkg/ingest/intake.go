package ingest

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/cybertip/triage/pkg/model"
)

// maxRawBodyBytes bounds the body accepted at ingestion (§4.1: "body size
// bounded (truncation at ingestion)"). Oversized narrative submissions are
// truncated rather than rejected; the orchestrator still runs, just over a
// shorter excerpt.
const maxRawBodyBytes = 64 * 1024

// intakePayload is the structured shape a partner-api or inter-agency
// adapter may submit as RawContent: a JSON document carrying file-level
// Wilson Gate inputs directly instead of leaving them for a later stage to
// infer from prose. Sources that only ever carry free narrative (email,
// public-web-form) fail the json.Unmarshal below and fall back to a
// file-less tip; nothing downstream requires files to exist.
type intakePayload struct {
	NCMECTipNumber     string   `json:"ncmec_tip_number,omitempty"`
	UpstreamCaseNumber string   `json:"upstream_case_number,omitempty"`
	ReporterKind       string   `json:"reporter_kind,omitempty"`
	ESPName            string   `json:"esp_name,omitempty"`
	OriginatingCountry string   `json:"originating_country,omitempty"`
	NCMECUrgentFlag    bool     `json:"ncmec_urgent_flag,omitempty"`
	CountriesInvolved  []string `json:"countries_involved,omitempty"`
	Narrative          string   `json:"narrative,omitempty"`
	Files              []struct {
		FileID            string  `json:"file_id"`
		Filename          string  `json:"filename,omitempty"`
		SizeBytes         int64   `json:"size_bytes,omitempty"`
		MediaType         string  `json:"media_type,omitempty"`
		MD5               string  `json:"md5,omitempty"`
		SHA1              string  `json:"sha1,omitempty"`
		SHA256            string  `json:"sha256,omitempty"`
		PhotoDNA          string  `json:"photodna,omitempty"`
		ESPViewed         bool    `json:"esp_viewed,omitempty"`
		ESPViewedMissing  bool    `json:"esp_viewed_missing,omitempty"`
		PubliclyAvailable bool    `json:"publicly_available,omitempty"`
	} `json:"files,omitempty"`
}

// NewTip performs Intake (§4.1 step 1, §4.5): it turns a RawTipInput
// accepted onto the queue into the initial Tip the orchestrator's DAG runs
// against. This runs once per canonical fingerprint, before the worker
// calls Orchestrator.Process.
func NewTip(in RawTipInput) model.Tip {
	body := in.RawContent
	if len(body) > maxRawBodyBytes {
		body = body[:maxRawBodyBytes]
	}

	tip := model.Tip{
		TipID:                uuid.NewString(),
		Source:               model.Source(in.Source),
		ReceivedAt:           time.Unix(in.ReceivedAtUnix, 0).UTC(),
		RawBody:              body,
		NormalizedBody:       normalizedBody(body),
		Status:               model.StatusPending,
		IsBundled:            in.IsBundled,
		BundledIncidentCount: in.BundledIncidentCount,
	}
	if tip.ReceivedAt.IsZero() || in.ReceivedAtUnix == 0 {
		tip.ReceivedAt = time.Now().UTC()
	}

	var payload intakePayload
	if err := json.Unmarshal([]byte(in.RawContent), &payload); err != nil {
		tip.Reporter = defaultReporter(in.Source)
		tip.Jurisdiction = model.JurisdictionProfile{Primary: model.JurisdictionUnknown}
		return tip
	}

	tip.NCMECTipNumber = payload.NCMECTipNumber
	tip.UpstreamCaseNumber = payload.UpstreamCaseNumber
	tip.NCMECUrgentFlag = payload.NCMECUrgentFlag
	if payload.Narrative != "" {
		tip.NormalizedBody = normalizedBody(payload.Narrative)
	}

	tip.Reporter = model.Reporter{
		Kind:               reporterKind(payload.ReporterKind, in.Source),
		ESPName:            payload.ESPName,
		OriginatingCountry: payload.OriginatingCountry,
	}
	tip.Jurisdiction = model.JurisdictionProfile{
		Primary:           model.JurisdictionUnknown,
		CountriesInvolved: payload.CountriesInvolved,
	}

	tip.Files = make([]model.TipFile, 0, len(payload.Files))
	for _, f := range payload.Files {
		tip.Files = append(tip.Files, model.TipFile{
			FileID:            f.FileID,
			Filename:          f.Filename,
			SizeBytes:         f.SizeBytes,
			MediaType:         model.MediaType(f.MediaType),
			Hashes: model.HashFingerprints{
				MD5:      f.MD5,
				SHA1:     f.SHA1,
				SHA256:   f.SHA256,
				PhotoDNA: f.PhotoDNA,
			},
			ESPViewed:         f.ESPViewed,
			ESPViewedMissing:  f.ESPViewedMissing,
			PubliclyAvailable: f.PubliclyAvailable,
			WarrantStatus:     model.WarrantNotNeeded,
		})
	}
	return tip
}

func defaultReporter(source string) model.Reporter {
	switch model.Source(source) {
	case model.SourcePartnerAPI, model.SourcePartnerPortal:
		return model.Reporter{Kind: model.ReporterESP}
	case model.SourceInterAgency:
		return model.Reporter{Kind: model.ReporterPartnerAgency}
	default:
		return model.Reporter{Kind: model.ReporterPublic}
	}
}

func reporterKind(declared, source string) model.ReporterKind {
	switch declared {
	case string(model.ReporterESP), string(model.ReporterPartnerAgency), string(model.ReporterPublic), string(model.ReporterNCMEC):
		return model.ReporterKind(declared)
	default:
		return defaultReporter(source).Kind
	}
}
