package api

import (
	"net/http"

	"github.com/cybertip/triage/pkg/audit"
	"github.com/cybertip/triage/pkg/config"
	"github.com/cybertip/triage/pkg/ingest"
	"github.com/cybertip/triage/pkg/legal"
	"github.com/cybertip/triage/pkg/observability"
	"github.com/cybertip/triage/pkg/orchestrator"
	"github.com/cybertip/triage/pkg/repository"
)

// Server bundles the components the HTTP surface is wired to. One Server
// serves the whole route table in spec.md §6.
type Server struct {
	Repo    repository.Repository
	Legal   *legal.Reference
	Events  *orchestrator.EventBus
	AuditDB *audit.Store
	Queue   ingest.Queue
	Scanner *ingest.ClusterScanner
	Cfg     *config.Config
	SLO     *observability.SLOTracker
	SLIs    *observability.SLIRegistry

	idempotency IdempotencyStorer
}

// NewServer wires a Server. idempotency may be nil, in which case mutating
// requests are never deduplicated by Idempotency-Key. slo and slis may be
// nil, in which case GET /api/observability/slo reports unavailable rather
// than crashing.
func NewServer(repo repository.Repository, legalRef *legal.Reference, events *orchestrator.EventBus, auditDB *audit.Store, queue ingest.Queue, scanner *ingest.ClusterScanner, cfg *config.Config, idempotency IdempotencyStorer, slo *observability.SLOTracker, slis *observability.SLIRegistry) *Server {
	return &Server{Repo: repo, Legal: legalRef, Events: events, AuditDB: auditDB, Queue: queue, Scanner: scanner, Cfg: cfg, idempotency: idempotency, SLO: slo, SLIs: slis}
}

// mux builds the raw *http.ServeMux implementing spec.md §6's full route
// table, with no middleware. Routes wraps this with the ambient middleware
// chain; tests use it directly to check for route drift without invoking
// any handler.
func (s *Server) mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/queue", s.handleQueue)
	mux.HandleFunc("GET /api/tips/{id}", s.handleTipDetail)
	mux.HandleFunc("POST /api/tips/{id}/assign", s.handleAssign)
	mux.HandleFunc("POST /api/tips/{id}/warrant/{fileId}", s.handleWarrant)
	mux.HandleFunc("POST /api/preservation/{id}/issue", s.handlePreservationIssue)
	mux.HandleFunc("GET /api/tips/{id}/stream", s.handleStream)
	mux.HandleFunc("GET /api/tips/{id}/mlat", s.handleMLAT)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/crisis", s.handleCrisis)
	mux.HandleFunc("GET /api/clusters", s.handleClusters)
	mux.HandleFunc("GET /api/bundles/stats", s.handleBundleStats)
	mux.HandleFunc("POST /api/jobs/cluster-scan", s.handleClusterScan)
	mux.HandleFunc("GET /api/legal/circuit/{state}", s.handleCircuitContext)
	mux.HandleFunc("GET /api/legal/precedents", s.handlePrecedentsList)
	mux.HandleFunc("POST /api/legal/precedents", s.handlePrecedentsAppend)
	mux.HandleFunc("GET /api/audit/export", s.handleAuditExport)
	mux.HandleFunc("GET /api/tips/{id}/timeline", s.handleTipTimeline)
	mux.HandleFunc("GET /api/observability/slo/{operation}", s.handleSLOStatus)

	return mux
}

// Routes wraps mux with the ambient middleware chain (request ID, CORS,
// rate limiting, idempotency).
func (s *Server) Routes(limiter *GlobalRateLimiter) http.Handler {
	var h http.Handler = s.mux()
	if s.idempotency != nil {
		h = IdempotencyMiddleware(s.idempotency)(h)
	}
	if limiter != nil {
		h = limiter.Middleware(h)
	}
	h = CORSMiddleware(s.corsOrigins())(h)
	h = RequestIDMiddleware(h)
	return h
}

func (s *Server) corsOrigins() []string {
	if s.Cfg == nil {
		return nil
	}
	return s.Cfg.CORSOrigins
}
