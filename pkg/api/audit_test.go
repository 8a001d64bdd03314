package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/audit"
	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/observability"
)

func TestHandleAuditExport_ReturnsZipWithEntriesAndManifest(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.AuditDB.Append("tip-1", model.AuditEntry{
		TipID: "tip-1", Agent: model.AgentHuman, Status: model.EntrySuccess, Summary: "assigned",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/audit/export", nil)
	w := httptest.NewRecorder()

	s.handleAuditExport(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/zip", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Evidence-Checksum"))

	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range zr.File {
		names[f.Name] = true
	}
	assert.True(t, names["entries.json"])
	assert.True(t, names["manifest.json"])
}

func TestHandleAuditExport_RejectsInvalidSince(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/audit/export?since=not-a-time", nil)
	w := httptest.NewRecorder()

	s.handleAuditExport(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleTipTimeline_ReturnsEntriesForTip(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.AuditDB.Append("tip-1", model.AuditEntry{
		TipID: "tip-1", Agent: "Orchestrator", Status: model.EntryInfo, Summary: "pipeline start",
	})
	require.NoError(t, err)
	_, err = s.AuditDB.Append("tip-1", model.AuditEntry{
		TipID: "tip-1", Agent: model.AgentHuman, HumanActor: "inv-1", Status: model.EntrySuccess, Summary: "assigned",
	})
	require.NoError(t, err)
	_, err = s.AuditDB.Append("tip-2", model.AuditEntry{
		TipID: "tip-2", Agent: "Orchestrator", Status: model.EntryInfo, Summary: "pipeline start",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/tips/tip-1/timeline", nil)
	req.SetPathValue("id", "tip-1")
	w := httptest.NewRecorder()

	s.handleTipTimeline(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var entries []observability.TimelineEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, observability.EntryTypeStageStart, entries[0].EntryType)
	assert.Equal(t, observability.EntryTypeHumanAction, entries[1].EntryType)
}

func TestHandleTipTimeline_RequiresConfiguredTimeline(t *testing.T) {
	s := &Server{AuditDB: audit.NewStore()}

	req := httptest.NewRequest(http.MethodGet, "/api/tips/tip-1/timeline", nil)
	req.SetPathValue("id", "tip-1")
	w := httptest.NewRecorder()

	s.handleTipTimeline(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
