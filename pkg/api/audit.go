package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cybertip/triage/pkg/audit"
	"github.com/cybertip/triage/pkg/observability"
)

// handleAuditExport streams a zip evidence pack of audit entries for a
// supervisor review or a single tip, bounded by an optional time window.
// Ambient operator concern beyond the route table: GET /api/audit/export.
func (s *Server) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	if s.AuditDB == nil {
		WriteInternal(w, errors.New("audit store not configured"))
		return
	}

	req := audit.ExportRequest{
		Supervisor: r.URL.Query().Get("supervisor"),
		TipID:      r.URL.Query().Get("tip_id"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			WriteBadRequest(w, "since must be an RFC3339 timestamp")
			return
		}
		req.Since = t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			WriteBadRequest(w, "until must be an RFC3339 timestamp")
			return
		}
		req.Until = t
	}

	exporter := audit.NewExporter(s.AuditDB)
	zipBytes, checksum, err := exporter.GeneratePack(r.Context(), req)
	if err != nil {
		if errors.Is(err, audit.ErrInvalidTimeRange) {
			WriteBadRequest(w, err.Error())
			return
		}
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.zip"`)
	w.Header().Set("X-Evidence-Checksum", checksum)
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(zipBytes)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(zipBytes)
}

// handleTipTimeline implements GET /api/tips/{id}/timeline: the
// dashboard-granularity view over a tip's processing lifecycle (pipeline
// start, every stage start/end, hard stops, human actions, warrant
// flips), queryable without walking the full audit hash chain.
func (s *Server) handleTipTimeline(w http.ResponseWriter, r *http.Request) {
	if s.AuditDB == nil || s.AuditDB.Timeline() == nil {
		WriteInternal(w, errors.New("processing timeline not configured"))
		return
	}
	tipID := r.PathValue("id")
	entries := s.AuditDB.Timeline().Query(observability.TimelineQuery{TipID: tipID})
	writeJSON(w, http.StatusOK, entries)
}
