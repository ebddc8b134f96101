package api

import (
	"encoding/json"
	"net/http"

	"github.com/DEUS-AI/SynapseFlow-sub003/internal/api/handlers"
	mw "github.com/DEUS-AI/SynapseFlow-sub003/internal/api/middleware"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/config"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/domain"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/service"
	"github.com/DEUS-AI/SynapseFlow-sub003/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// App holds the router and background services for lifecycle management.
type App struct {
	Router     *chi.Mux
	Scanner    *service.PromotionScannerJob
	Dispatcher *service.OutboxDispatcher
}

func NewApp(db *pgxpool.Pool, tuning *config.Tuning, logger *zap.Logger) *App {
	// Stores
	st := store.New(db)

	// Services
	resolver := service.NewEntityResolver(tuning.MergeThreshold, logger)
	reasoning := service.NewReasoningEngine(st.Graph, tuning.Reasoning, tuning.Risk, logger)
	temporal := service.NewTemporalScoringService(tuning.Temporal)
	gate := service.NewPromotionGate(tuning.Criteria, tuning.Risk, temporal, tuning.Reasoning.FreshnessThreshold, logger)
	crystallizer := service.NewCrystallizationService(
		st.Graph, st.Decisions, st.Leases, st.Outbox,
		resolver, reasoning, gate,
		tuning.Reasoning.MinEdgeConfidence, logger,
	)
	crystallizer.SetBatchSize(config.SweepBatchSize())
	crystallizer.SetLeaseTTL(config.SweepLeaseTTL())

	scanner := service.NewPromotionScannerJob(crystallizer, logger)
	scanner.SetInterval(config.ScanInterval())

	dispatcher := service.NewOutboxDispatcher(st.Outbox, service.NewLoggingPublisher(logger), logger)
	dispatcher.SetInterval(config.OutboxInterval())

	ingestSvc := service.NewIngestService(st.Graph, logger)
	reviewSvc := service.NewReviewService(st.Decisions, st.Graph, st.Outbox, logger)

	// Handlers
	observationHandler := handlers.NewObservationHandler(ingestSvc)
	scanHandler := handlers.NewScanHandler(scanner, crystallizer)
	decisionHandler := handlers.NewDecisionHandler(reviewSvc)
	entityHandler := handlers.NewEntityHandler(st.Graph)

	r := chi.NewRouter()

	app := &App{
		Router:     r,
		Scanner:    scanner,
		Dispatcher: dispatcher,
	}

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Metrics)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	// Health
	r.Get("/health", healthHandler(db))

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/observations", observationHandler.Ingest)

		// Manual sweeps are expensive; the trigger carries its own, much
		// tighter budget on top of the global limiter.
		r.With(mw.RateLimit(config.ScanRateLimitRPS(), config.ScanRateLimitBurst())).
			Post("/scan", scanHandler.TriggerScan)
		r.Get("/scanner/stats", scanHandler.GetStats)

		r.Route("/decisions", func(r chi.Router) {
			r.Get("/", decisionHandler.ListPending)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", decisionHandler.GetByID)
				r.Post("/review", decisionHandler.Review)
			})
		})

		r.Route("/entities/{id}", func(r chi.Router) {
			r.Get("/", entityHandler.GetByID)
			r.Get("/relationships", entityHandler.GetRelationships)
			r.Get("/decisions", decisionHandler.ListByEntity)
		})
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// Ensure stores satisfy the domain interfaces at compile time.
var (
	_ domain.GraphStore    = (*store.GraphStore)(nil)
	_ domain.DecisionStore = (*store.DecisionStore)(nil)
	_ domain.LeaseStore    = (*store.LeaseStore)(nil)
	_ domain.EventOutbox   = (*store.OutboxStore)(nil)
)
