package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cybertip/triage/pkg/ingest"
	"github.com/cybertip/triage/pkg/model"
)

func TestHandleStats_ReportsTipAggregates(t *testing.T) {
	s, repo := newTestServer(t)
	seedTip(t, repo, "tip-1")

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	w := httptest.NewRecorder()

	s.handleStats(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Contains(t, resp, "tips")
}

func TestHandleCrisis_FiltersByVictimCrisisAlert(t *testing.T) {
	s, repo := newTestServer(t)
	seedTip(t, repo, "tip-calm")

	crisisTip := seedTip(t, repo, "tip-crisis")
	crisisTip.Priority = &model.Priority{Tier: model.TierImmediate, VictimCrisisAlert: true}
	require.NoError(t, repo.Upsert(context.Background(), crisisTip))

	req := httptest.NewRequest(http.MethodGet, "/api/crisis", nil)
	w := httptest.NewRecorder()

	s.handleCrisis(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var tips []model.Tip
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tips))
	require.Len(t, tips, 1)
	assert.Equal(t, "tip-crisis", tips[0].TipID)
}

func TestHandleClusters_FiltersByClusterFlags(t *testing.T) {
	s, repo := newTestServer(t)
	seedTip(t, repo, "tip-lone")

	clustered := seedTip(t, repo, "tip-clustered")
	clustered.Links = &model.Links{ClusterFlags: []model.ClusterFlag{{ClusterID: "cluster-1", TipIDs: []string{"tip-clustered", "tip-other"}}}}
	require.NoError(t, repo.Upsert(context.Background(), clustered))

	req := httptest.NewRequest(http.MethodGet, "/api/clusters", nil)
	w := httptest.NewRecorder()

	s.handleClusters(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var tips []model.Tip
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tips))
	require.Len(t, tips, 1)
	assert.Equal(t, "tip-clustered", tips[0].TipID)
}

func TestHandleClusterScan_NoScannerConfiguredReturns500(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/cluster-scan", nil)
	w := httptest.NewRecorder()

	s.handleClusterScan(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleClusterScan_RunsScan(t *testing.T) {
	s, repo := newTestServer(t)
	s.Scanner = ingest.NewClusterScanner(repo, 0)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/cluster-scan", nil)
	w := httptest.NewRecorder()

	s.handleClusterScan(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var result map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&result))
	assert.Contains(t, result, "scan_id")
}
