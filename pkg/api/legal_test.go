package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/model"
)

func TestHandlePrecedentsAppend_RecordsAndUpdatesCircuitRules(t *testing.T) {
	s, _ := newTestServer(t)

	body, _ := json.Marshal(precedentAppendRequest{
		Circuit:  "9th",
		CaseName: "United States v. Doe",
		Citation: "123 F.3d 456",
		Effect:   model.EffectNowBinding,
		Summary:  "Clarifies exigent-circumstances standard.",
		AddedBy:  "legal-desk",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/legal/precedents", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handlePrecedentsAppend(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, true, resp["circuit_rules_updated"])

	rule, ok := s.Legal.Lookup("9th")
	require.True(t, ok)
	assert.Equal(t, "123 F.3d 456", rule.BindingPrecedent)
	assert.Equal(t, model.ApplicationStrict, rule.ApplicationMode)
}

func TestHandlePrecedentsAppend_RejectsMissingFields(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/legal/precedents", bytes.NewReader([]byte(`{}`)))
	w := httptest.NewRecorder()

	s.handlePrecedentsAppend(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlePrecedentsList_ReturnsAppendedEntries(t *testing.T) {
	s, _ := newTestServer(t)
	s.Legal.RecordPrecedentUpdate(model.PrecedentUpdate{
		Circuit: "5th", CaseName: "Roe v. Example", Citation: "9 F.4th 1",
		Effect: model.EffectAffirmed, Actor: "legal-desk",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/legal/precedents", nil)
	w := httptest.NewRecorder()

	s.handlePrecedentsList(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp["precedents"], 1)
}

func TestHandleCircuitContext_UnknownStateReturns404(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/legal/circuit/zz", nil)
	req.SetPathValue("state", "zz")
	w := httptest.NewRecorder()

	s.handleCircuitContext(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
