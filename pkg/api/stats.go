package api

import (
	"errors"
	"net/http"

	"github.com/cybertip/triage/pkg/repository"
)

var errSLOUnavailable = errors.New("SLO tracker not configured")

// handleSLOStatus implements GET /api/observability/slo/{operation}: current
// burn-rate compliance for one orchestrator DAG stage (wilson_gate,
// extraction, hash_osint, classifier, linker, priority), plus the SLI
// definitions linked to it.
func (s *Server) handleSLOStatus(w http.ResponseWriter, r *http.Request) {
	if s.SLO == nil {
		WriteInternal(w, errSLOUnavailable)
		return
	}
	operation := r.PathValue("operation")
	status, err := s.SLO.Status(operation)
	if err != nil {
		WriteNotFound(w, err.Error())
		return
	}
	resp := map[string]any{"status": status}
	if s.SLIs != nil {
		resp["slis"] = s.SLIs.ByOperation(operation)
	}
	writeJSON(w, http.StatusOK, resp)
}

var errScanUnavailable = errors.New("cluster scanner not configured")

// handleStats implements GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	tipStats, err := s.Repo.Stats(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}

	resp := map[string]any{"tips": tipStats}
	if s.Queue != nil {
		queueStats, err := s.Queue.Stats(r.Context())
		if err != nil {
			WriteInternal(w, err)
			return
		}
		resp["queue"] = queueStats
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCrisis implements GET /api/crisis: tips flagged for victim crisis.
func (s *Server) handleCrisis(w http.ResponseWriter, r *http.Request) {
	result, err := s.Repo.List(r.Context(), repository.ListFilter{CrisisOnly: true, Limit: 500})
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result.Tips)
}

// handleClusters implements GET /api/clusters: tips carrying cluster flags.
func (s *Server) handleClusters(w http.ResponseWriter, r *http.Request) {
	result, err := s.Repo.List(r.Context(), repository.ListFilter{Limit: 5000})
	if err != nil {
		WriteInternal(w, err)
		return
	}
	clustered := result.Tips[:0]
	for _, t := range result.Tips {
		if t.Links != nil && len(t.Links.ClusterFlags) > 0 {
			clustered = append(clustered, t)
		}
	}
	writeJSON(w, http.StatusOK, clustered)
}

// handleBundleStats implements GET /api/bundles/stats. The bundle/dedup
// metric shape is provider-defined by spec.md §6; bundled_incident_count
// and tip counts are what this implementation chooses to report.
func (s *Server) handleBundleStats(w http.ResponseWriter, r *http.Request) {
	result, err := s.Repo.List(r.Context(), repository.ListFilter{Limit: 5000})
	if err != nil {
		WriteInternal(w, err)
		return
	}
	bundled := 0
	incidents := 0
	for _, t := range result.Tips {
		if t.IsBundled {
			bundled++
			incidents += t.BundledIncidentCount
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bundled_tips":        bundled,
		"total_tips":          result.Total,
		"bundled_incidents":   incidents,
	})
}

// handleClusterScan implements POST /api/jobs/cluster-scan.
func (s *Server) handleClusterScan(w http.ResponseWriter, r *http.Request) {
	if s.Scanner == nil {
		WriteInternal(w, errScanUnavailable)
		return
	}
	result, err := s.Scanner.Scan(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
