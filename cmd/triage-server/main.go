// Command triage-server runs the CyberTip triage HTTP/SSE surface and its
// background ingestion workers: wire every collaborator from environment
// configuration, drain the ingest queue into the orchestrator, and serve
// the route table until SIGINT/SIGTERM.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"

	"github.com/cybertip/triage/pkg/api"
	"github.com/cybertip/triage/pkg/audit"
	"github.com/cybertip/triage/pkg/config"
	"github.com/cybertip/triage/pkg/harness"
	"github.com/cybertip/triage/pkg/ingest"
	"github.com/cybertip/triage/pkg/legal"
	"github.com/cybertip/triage/pkg/llm"
	"github.com/cybertip/triage/pkg/model"
	"github.com/cybertip/triage/pkg/observability"
	"github.com/cybertip/triage/pkg/orchestrator"
	"github.com/cybertip/triage/pkg/priority"
	"github.com/cybertip/triage/pkg/repository"
)

// workerConcurrency bounds how many tips run through the orchestrator DAG
// at once; each job holds exclusive ownership of its tip for the
// pipeline's duration (§3 ownership).
const workerConcurrency = 8

// clusterScanInterval matches the "background scan periodically clusters
// tips" cadence of §4.5. It is deliberately coarser than a request-path
// operation since it walks the whole repository.
const clusterScanInterval = 5 * time.Minute

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	legalRef, err := legal.Hydrate(cfg.LegalRulesPath)
	if err != nil {
		logger.Warn("legal rules hydrate failed, falling back to an empty legal reference", "path", cfg.LegalRulesPath, "error", err)
		legalRef = legal.New()
	}

	var db *sql.DB
	if cfg.DBMode == "postgres" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		if err := db.PingContext(ctx); err != nil {
			logger.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
	}

	repo := newRepository(cfg, db)
	if pg, ok := repo.(*repository.PostgresRepository); ok {
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Error("postgres schema setup failed", "error", err)
			os.Exit(1)
		}
	}
	auditStore := audit.NewStore().WithTimeline(observability.NewAuditTimeline())
	idempotency := newIdempotencyStore(cfg, db)

	var redisClient *redis.Client
	if cfg.QueueMode == "durable" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("redis URL parse failed", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(opts)
	}

	queue := newQueue(cfg, redisClient)
	dedup := newDedupTable(cfg, redisClient)
	scanner := ingest.NewClusterScanner(repo, 24*time.Hour)

	router := newLLMRouter(cfg)
	var h *harness.Harness
	if router != nil {
		h = harness.New(router)
	}
	prio := priority.NewEngine(h, nil)

	events := orchestrator.NewEventBus()
	orch := orchestrator.New(h, legalRef, prio, repo, auditStore, events, orchestrator.Config{
		StageTimeout: 45 * time.Second,
		TipTimeout:   3 * time.Minute,
		DemoBypass:   cfg.DemoMode,
	})

	otelCfg := observability.DefaultConfig()
	otelCfg.ServiceName = "triage-server"
	otelCfg.Environment = cfg.NodeEnv
	otelCfg.Enabled = cfg.NodeEnv == "production"
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		otelCfg.OTLPEndpoint = endpoint
	}
	sloTracker := newStageSLOTracker()
	sliRegistry := newStageSLIRegistry()

	telemetry, err := observability.New(ctx, otelCfg)
	if err != nil {
		logger.Warn("observability init failed, running without telemetry", "error", err)
	} else {
		orch = orch.WithTelemetry(telemetry, sloTracker)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = telemetry.Shutdown(shutdownCtx)
		}()
	}

	srv := api.NewServer(repo, legalRef, events, auditStore, queue, scanner, cfg, idempotency, sloTracker, sliRegistry)
	limiter := api.NewGlobalRateLimiter(50, 100)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(limiter),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go runIngestionWorkers(ctx, logger, queue, dedup, repo, orch, legalRef)
	go runClusterScanLoop(ctx, logger, scanner)

	go func() {
		logger.Info("triage-server listening", "port", cfg.Port, "db_mode", cfg.DBMode, "queue_mode", cfg.QueueMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	queue.Close()
}

func newRepository(cfg *config.Config, db *sql.DB) repository.Repository {
	if cfg.DBMode == "postgres" {
		return repository.NewPostgresRepository(db)
	}
	return repository.NewMemoryRepository()
}

func newIdempotencyStore(cfg *config.Config, db *sql.DB) api.IdempotencyStorer {
	const ttl = 24 * time.Hour
	if cfg.DBMode == "postgres" {
		return api.NewPostgresIdempotencyStore(db, ttl)
	}
	return api.NewIdempotencyStore(ttl)
}

func newQueue(cfg *config.Config, client *redis.Client) ingest.Queue {
	if cfg.QueueMode == "durable" {
		return ingest.NewRedisQueue(client, "cybertip:ingest:queue")
	}
	return ingest.NewMemoryQueue(1000)
}

func newDedupTable(cfg *config.Config, client *redis.Client) ingest.DedupTable {
	if cfg.QueueMode == "durable" {
		return ingest.NewRedisDedupTable(client, 30*24*time.Hour)
	}
	return ingest.NewMemoryDedupTable()
}

// newStageSLOTracker registers one target per orchestrator DAG stage so
// Status() has something to evaluate against; the Wilson Gate and
// Priority targets are tighter since both sit on the hard-stop and
// routing decision path, while the oracle-backed enrichment stages get
// a looser budget to absorb upstream LLM latency.
func newStageSLOTracker() *observability.SLOTracker {
	tracker := observability.NewSLOTracker()
	targets := []*observability.SLOTarget{
		{SLOID: "slo-wilson-gate", Name: "Wilson Gate", Operation: orchestrator.StepWilsonGate, LatencyP99: 2 * time.Second, SuccessRate: 0.999, WindowHours: 24},
		{SLOID: "slo-extraction", Name: "Extraction", Operation: orchestrator.StepExtraction, LatencyP99: 20 * time.Second, SuccessRate: 0.95, WindowHours: 24},
		{SLOID: "slo-hash-osint", Name: "Hash/OSINT", Operation: orchestrator.StepHashOSINT, LatencyP99: 20 * time.Second, SuccessRate: 0.95, WindowHours: 24},
		{SLOID: "slo-classifier", Name: "Classifier", Operation: orchestrator.StepClassifier, LatencyP99: 30 * time.Second, SuccessRate: 0.95, WindowHours: 24},
		{SLOID: "slo-linker", Name: "Linker", Operation: orchestrator.StepLinker, LatencyP99: 30 * time.Second, SuccessRate: 0.95, WindowHours: 24},
		{SLOID: "slo-priority", Name: "Priority", Operation: orchestrator.StepPriority, LatencyP99: 5 * time.Second, SuccessRate: 0.99, WindowHours: 24},
	}
	for _, target := range targets {
		tracker.SetTarget(target)
	}
	return tracker
}

// newStageSLIRegistry registers the indicator each stage SLO above is
// evaluated against and links it to its SLO, so GET
// /api/observability/slo/{operation} can report both the indicator
// definition and its current compliance in one response.
func newStageSLIRegistry() *observability.SLIRegistry {
	registry := observability.NewSLIRegistry()
	slis := []struct {
		sli   *observability.SLI
		sloID string
	}{
		{&observability.SLI{SLIID: "sli-wilson-gate", Name: "Wilson Gate latency", Operation: orchestrator.StepWilsonGate, EssentialVariable: "hard_stop_latency", Source: observability.SLISourceMetric, Unit: "ms"}, "slo-wilson-gate"},
		{&observability.SLI{SLIID: "sli-extraction", Name: "Extraction success rate", Operation: orchestrator.StepExtraction, EssentialVariable: "oracle_success_rate", Source: observability.SLISourceMetric, Unit: "%"}, "slo-extraction"},
		{&observability.SLI{SLIID: "sli-hash-osint", Name: "Hash/OSINT success rate", Operation: orchestrator.StepHashOSINT, EssentialVariable: "oracle_success_rate", Source: observability.SLISourceMetric, Unit: "%"}, "slo-hash-osint"},
		{&observability.SLI{SLIID: "sli-classifier", Name: "Classifier success rate", Operation: orchestrator.StepClassifier, EssentialVariable: "oracle_success_rate", Source: observability.SLISourceMetric, Unit: "%"}, "slo-classifier"},
		{&observability.SLI{SLIID: "sli-linker", Name: "Linker success rate", Operation: orchestrator.StepLinker, EssentialVariable: "oracle_success_rate", Source: observability.SLISourceMetric, Unit: "%"}, "slo-linker"},
		{&observability.SLI{SLIID: "sli-priority", Name: "Priority latency", Operation: orchestrator.StepPriority, EssentialVariable: "scoring_latency", Source: observability.SLISourceMetric, Unit: "ms"}, "slo-priority"},
	}
	for _, s := range slis {
		_ = registry.Register(s.sli)
		_ = registry.LinkToSLO(s.sli.SLIID, s.sloID)
	}
	return registry
}

// newLLMRouter wires the fast/high oracle tiers per ToolMode. "stub" keeps
// the server runnable with no external API key configured — harness calls
// degrade to agent_error audit entries, never a hard crash (§4.3).
func newLLMRouter(cfg *config.Config) *llm.Router {
	if cfg.ToolMode != "live" {
		return nil
	}
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil
	}
	fast := llm.NewOpenAIClient(apiKey, "gpt-4o-mini")
	high := llm.NewOpenAIClient(apiKey, "gpt-4o")
	return llm.NewRouter(fast, high)
}

// runIngestionWorkers drains the queue into the orchestrator. Each job is
// deduplicated by fingerprint first: duplicates are persisted directly as
// their own tip with status=duplicate and never run the pipeline (§4.5).
func runIngestionWorkers(ctx context.Context, logger *slog.Logger, queue ingest.Queue, dedup ingest.DedupTable, repo repository.Repository, orch *orchestrator.Orchestrator, legalRef *legal.Reference) {
	worker := func(ctx context.Context, job ingest.Job) error {
		fingerprint, err := ingest.Fingerprint(job.Input)
		if err != nil {
			logger.Error("fingerprint failed", "job_id", job.JobID, "error", err)
			return err
		}

		tip := ingest.NewTip(job.Input)

		canonicalID, isNew, err := dedup.InsertIfAbsent(ctx, fingerprint, tip.TipID)
		if err != nil {
			logger.Error("dedup lookup failed", "job_id", job.JobID, "error", err)
			return err
		}
		if !isNew {
			tip.Status = model.StatusDuplicate
			tip.Links = &model.Links{DuplicateOf: canonicalID}
			return repo.Upsert(ctx, tip)
		}

		circuit, _ := legalRef.CircuitForState(job.Input.Metadata["state"])
		if _, err := orch.Process(ctx, tip, circuit); err != nil {
			logger.Error("orchestrator process failed", "tip_id", tip.TipID, "error", err)
			return err
		}
		return nil
	}

	if err := queue.Drain(ctx, worker, workerConcurrency); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("ingestion drain stopped", "error", err)
	}
}

// runClusterScanLoop is the periodic background scan §4.5 describes in
// addition to the manually-triggered POST /api/jobs/cluster-scan.
func runClusterScanLoop(ctx context.Context, logger *slog.Logger, scanner *ingest.ClusterScanner) {
	ticker := time.NewTicker(clusterScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := scanner.Scan(ctx)
			if err != nil {
				logger.Error("background cluster scan failed", "error", err)
				continue
			}
			logger.Info("background cluster scan complete", "clusters", result.Clusters, "escalations", result.Escalations)
		}
	}
}
