package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/repository"
)

// handleQueue implements GET /api/queue: tips grouped by tier label.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.ListFilter{
		Tier:   model.Tier(q.Get("tier")),
		Unit:   q.Get("unit"),
		Limit:  parseIntDefault(q.Get("limit"), 500),
		Offset: parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	result, err := s.Repo.List(r.Context(), filter)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	grouped := make(map[model.Tier][]model.Tip)
	for _, t := range result.Tips {
		tier := model.Tier("UNTRIAGED")
		if t.Priority != nil {
			tier = t.Priority.Tier
		}
		grouped[tier] = append(grouped[tier], t)
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(result.Total))
	w.Header().Set("X-Limit", strconv.Itoa(filter.Limit))
	w.Header().Set("X-Offset", strconv.Itoa(filter.Offset))
	writeJSON(w, http.StatusOK, grouped)
}

// handleTipDetail implements GET /api/tips/{id}.
func (s *Server) handleTipDetail(w http.ResponseWriter, r *http.Request) {
	tip, err := s.Repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			WriteNotFound(w, "tip not found")
			return
		}
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tip)
}

type assignRequest struct {
	InvestigatorID   string `json:"investigator_id"`
	InvestigatorName string `json:"investigator_name"`
}

// handleAssign implements POST /api/tips/{id}/assign.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	tipID := r.PathValue("id")
	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	if req.InvestigatorID == "" {
		WriteBadRequest(w, "investigator_id is required")
		return
	}

	tip, err := s.Repo.Get(r.Context(), tipID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			WriteNotFound(w, "tip not found")
			return
		}
		WriteInternal(w, err)
		return
	}

	tip.AssignedTo = req.InvestigatorID
	tip.AssignedToName = req.InvestigatorName
	if tip.Status == model.StatusTriaged || tip.Status == model.StatusPending {
		tip.Status = model.StatusAssigned
	}
	entry := model.AuditEntry{
		TipID:      tipID,
		Agent:      model.AgentHuman,
		Timestamp:  time.Now().UTC(),
		Status:     model.EntrySuccess,
		Summary:    fmt.Sprintf("Tip assigned to %s", req.InvestigatorID),
		HumanActor: req.InvestigatorID,
	}
	persisted, err := s.AuditDB.Append(tipID, entry)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	tip.AppendAudit(persisted)

	if err := s.Repo.Upsert(r.Context(), tip); err != nil {
		WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"tip_id":      tipID,
		"assigned_to": tip.AssignedTo,
	})
}

type warrantRequest struct {
	Status        model.WarrantStatus `json:"status"`
	WarrantNumber string               `json:"warrant_number"`
	GrantedBy     string               `json:"granted_by"`
	ApprovedBy    string               `json:"approved_by"`
}

// handleWarrant implements POST /api/tips/{id}/warrant/{fileId}.
func (s *Server) handleWarrant(w http.ResponseWriter, r *http.Request) {
	tipID := r.PathValue("id")
	fileID := r.PathValue("fileId")

	var req warrantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	switch req.Status {
	case model.WarrantApplied, model.WarrantGranted, model.WarrantDenied:
	default:
		WriteBadRequest(w, "status must be one of applied, granted, denied")
		return
	}

	actor := req.ApprovedBy
	if actor == "" {
		actor = req.GrantedBy
	}
	entry := model.AuditEntry{
		TipID:      tipID,
		Agent:      model.AgentHuman,
		Timestamp:  time.Now().UTC(),
		Status:     model.EntrySuccess,
		Summary:    fmt.Sprintf("Warrant for file %s transitioned to %s", fileID, req.Status),
		HumanActor: actor,
	}
	persisted, err := s.AuditDB.Append(tipID, entry)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	file, err := s.Repo.UpdateFileWarrant(r.Context(), tipID, fileID, req.Status, req.WarrantNumber, req.GrantedBy, persisted)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			WriteNotFound(w, "tip or file not found")
			return
		}
		WriteInternal(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"file":    file,
	})
}

type preservationIssueRequest struct {
	ApprovedBy string `json:"approved_by"`
}

// handlePreservationIssue implements POST /api/preservation/{id}/issue.
// {id} is the preservation request ID, not the tip ID, per spec.md §6.
func (s *Server) handlePreservationIssue(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	tipID := r.URL.Query().Get("tip_id")
	if tipID == "" {
		WriteBadRequest(w, "tip_id query parameter is required")
		return
	}

	var req preservationIssueRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	entry := model.AuditEntry{
		TipID:      tipID,
		Agent:      model.AgentHuman,
		Timestamp:  time.Now().UTC(),
		Status:     model.EntrySuccess,
		Summary:    fmt.Sprintf("Preservation request %s issued", requestID),
		HumanActor: req.ApprovedBy,
	}
	persisted, err := s.AuditDB.Append(tipID, entry)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	issued, err := s.Repo.IssuePreservationRequest(r.Context(), tipID, requestID, req.ApprovedBy, persisted)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			WriteNotFound(w, "tip or preservation request not found")
			return
		}
		WriteInternal(w, err)
		return
	}
	if !issued {
		WriteConflict(w, "preservation request was not issued")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"request_id": requestID,
		"issued_at":  time.Now().UTC(),
	})
}

// mlatRequestDraft is one deterministically-assembled MLAT request stub.
type mlatRequestDraft struct {
	RequestingCountry string   `json:"requesting_country"`
	TargetESP         string   `json:"target_esp"`
	LegalBasis        string   `json:"legal_basis"`
	FilesInScope      []string `json:"files_in_scope"`
}

// handleMLAT implements GET /api/tips/{id}/mlat. MLAT letter rendering is
// explicitly out of scope; this only decides whether one is needed and
// assembles the skeleton fields a human would draft the letter from.
func (s *Server) handleMLAT(w http.ResponseWriter, r *http.Request) {
	tip, err := s.Repo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			WriteNotFound(w, "tip not found")
			return
		}
		WriteInternal(w, err)
		return
	}

	needsMLAT := tip.Jurisdiction.Primary == model.JurisdictionInternationalOther || len(tip.Jurisdiction.CountriesInvolved) > 0
	if !needsMLAT {
		writeJSON(w, http.StatusOK, map[string]any{"needs_mlat": false})
		return
	}

	var files []string
	for _, f := range tip.Files {
		files = append(files, f.FileID)
	}

	var requests []mlatRequestDraft
	for _, country := range tip.Jurisdiction.CountriesInvolved {
		requests = append(requests, mlatRequestDraft{
			RequestingCountry: country,
			TargetESP:         tip.Reporter.ESPName,
			LegalBasis:        "Mutual Legal Assistance Treaty request pending counsel review",
			FilesInScope:      files,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"needs_mlat": true,
		"requests":   requests,
	})
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
