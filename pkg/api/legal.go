package api

import (
	"net/http"
	"time"

	"github.com/cybertip/triage/pkg/model"
)

// handleCircuitContext implements GET /api/legal/circuit/{state}.
func (s *Server) handleCircuitContext(w http.ResponseWriter, r *http.Request) {
	state := r.PathValue("state")

	circuit, ok := s.Legal.CircuitForState(state)
	if !ok {
		WriteNotFound(w, "no circuit mapping for state "+state)
		return
	}

	rule, _ := s.Legal.Lookup(circuit)

	var history []model.PrecedentUpdate
	for _, p := range s.Legal.PrecedentLog() {
		if p.Circuit == circuit {
			history = append(history, p)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":             state,
		"circuit":           circuit,
		"summary":           rule,
		"precedent_history": history,
	})
}

// handlePrecedentsList implements GET /api/legal/precedents.
func (s *Server) handlePrecedentsList(w http.ResponseWriter, r *http.Request) {
	log := s.Legal.PrecedentLog()
	var lastUpdated *time.Time
	if len(log) > 0 {
		t := log[len(log)-1].Date
		lastUpdated = &t
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"last_updated": lastUpdated,
		"precedents":   log,
	})
}

type precedentAppendRequest struct {
	Circuit  string                `json:"circuit"`
	CaseName string                `json:"case_name"`
	Citation string                `json:"citation"`
	Effect   model.PrecedentEffect `json:"effect"`
	Summary  string                `json:"summary"`
	AddedBy  string                `json:"added_by"`
	Date     *time.Time            `json:"date"`
}

// handlePrecedentsAppend implements POST /api/legal/precedents.
func (s *Server) handlePrecedentsAppend(w http.ResponseWriter, r *http.Request) {
	var req precedentAppendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if req.Circuit == "" || req.Citation == "" || req.Effect == "" {
		WriteBadRequest(w, "circuit, citation, and effect are required")
		return
	}
	switch req.Effect {
	case model.EffectNowBinding, model.EffectAffirmed, model.EffectLimited, model.EffectReversed:
	default:
		WriteBadRequest(w, "effect must be one of now_binding, affirmed, limited, reversed")
		return
	}

	date := time.Now().UTC()
	if req.Date != nil {
		date = *req.Date
	}

	entry := model.PrecedentUpdate{
		Date:     date,
		Circuit:  req.Circuit,
		CaseName: req.CaseName,
		Citation: req.Citation,
		Effect:   req.Effect,
		Summary:  req.Summary,
		Actor:    req.AddedBy,
	}
	s.Legal.RecordPrecedentUpdate(entry)

	rulesUpdated := req.Effect == model.EffectNowBinding
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":                       true,
		"circuit_rules_updated":    rulesUpdated,
		"total":                    len(s.Legal.PrecedentLog()),
	})
}
