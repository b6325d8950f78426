// Package daemon exposes the scheduler's §6.1 service operations over
// HTTP, mirroring the teacher's gorilla/mux router and middleware chain.
package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"

	"github.com/printshop/scheduler/internal/config"
	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/orchestrator"
)

// Server hosts the HTTP surface and the periodic batch/tentative-due-date
// triggers over a single wired orchestrator stack.
type Server struct {
	cfg    *config.SchedulerConfig
	log    logx.Logger
	router *mux.Router
	http   *http.Server
	cron   *cron.Cron

	jobOrch       *orchestrator.JobOrchestrator
	batch         *orchestrator.BatchRecomputer
	reorderer     *orchestrator.ShiftReorderer
	tentative     *orchestrator.TentativeDueDateEstimator
	manualResched *orchestrator.ManualRescheduler
	minutesSrc    orchestrator.DailyWorkingMinutesSource
	graph         DependencyGraph

	startTime       time.Time
	requestCount    int64
	connectionCount int32
	mu              sync.RWMutex
	lastRequestTime time.Time
}

// DependencyGraph is the subset of *graphstore.WorkflowGraphStore the
// dependency-analytics endpoint needs. It is an interface, rather than a
// concrete type, so Dependencies can leave it nil when graphstore is
// disabled (spec.md §2: an optional embedded-graph secondary store).
type DependencyGraph interface {
	CanStageStart(ctx context.Context, instanceID string) (bool, error)
	BlockingChainDepth(ctx context.Context, instanceID string) (int, error)
}

// Dependencies bundles the fully wired orchestrator components the Server
// needs; constructed in cmd/scheduler-daemon's wiring code.
type Dependencies struct {
	JobOrchestrator    *orchestrator.JobOrchestrator
	BatchRecomputer    *orchestrator.BatchRecomputer
	ShiftReorderer     *orchestrator.ShiftReorderer
	TentativeEstimator *orchestrator.TentativeDueDateEstimator
	ManualRescheduler  *orchestrator.ManualRescheduler
	MinutesSource      orchestrator.DailyWorkingMinutesSource
	GraphStore         DependencyGraph
}

// New builds a Server with its router and HTTP server configured, but not
// yet listening.
func New(cfg *config.SchedulerConfig, deps Dependencies, log logx.Logger) *Server {
	s := &Server{
		cfg:           cfg,
		log:           log,
		jobOrch:       deps.JobOrchestrator,
		batch:         deps.BatchRecomputer,
		reorderer:     deps.ShiftReorderer,
		tentative:     deps.TentativeEstimator,
		manualResched: deps.ManualRescheduler,
		minutesSrc:    deps.MinutesSource,
		graph:         deps.GraphStore,
		startTime:     time.Now(),
	}

	s.setupRouter()
	s.http = &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupRouter() {
	s.router = mux.NewRouter()
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.metricsMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/jobs/{jobId}/schedule", s.handleScheduleJob).Methods(http.MethodPost)
	api.HandleFunc("/recalculate-all", s.handleRecalculateAll).Methods(http.MethodPost)
	api.HandleFunc("/reorder-day", s.handleReorderDay).Methods(http.MethodPost)
	api.HandleFunc("/tentative-due-dates", s.handleRecalcTentativeDueDates).Methods(http.MethodPost)
	api.HandleFunc("/stage-instances/{instanceId}/reschedule", s.handleManualReschedule).Methods(http.MethodPost)
	api.HandleFunc("/stage-instances/{instanceId}/dependency-status", s.handleDependencyStatus).Methods(http.MethodGet)
}

// Start begins serving HTTP and, if configured, the periodic cron triggers.
// It blocks until ctx is cancelled, then shuts both down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.startCron()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("daemon listening", "addr", s.cfg.Server.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("daemon: http server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errCh:
		s.cron.Stop()
		return err
	}
}

func (s *Server) shutdown() error {
	s.log.Info("daemon shutting down")
	if s.cron != nil {
		s.cron.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) startCron() {
	s.cron = cron.New()
	if expr := s.cfg.Scheduling.RecalculateAllCron; expr != "" {
		if _, err := s.cron.AddFunc(expr, s.runRecalculateAll); err != nil {
			s.log.Error("invalid recalculate_all cron expression", "expr", expr, "error", err)
		}
	}
	if expr := s.cfg.Scheduling.RecalcTentativeDatesCron; expr != "" {
		if _, err := s.cron.AddFunc(expr, s.runRecalcTentativeDueDates); err != nil {
			s.log.Error("invalid recalc_tentative_dates cron expression", "expr", expr, "error", err)
		}
	}
	s.cron.Start()
}

func (s *Server) runRecalculateAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	result, err := s.batch.RecalculateAll(ctx)
	if err != nil {
		s.log.Error("scheduled recalculate-all failed", "error", err)
		return
	}
	s.log.Info("scheduled recalculate-all completed", "successful", result.Successful, "failed", result.Failed)
}

func (s *Server) runRecalcTentativeDueDates() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := s.tentative.RecalcTentativeDueDates(ctx, s.minutesSrc); err != nil {
		s.log.Error("scheduled tentative due date recalc failed", "error", err)
	}
}

func (s *Server) recordRequest() {
	atomic.AddInt64(&s.requestCount, 1)
	s.mu.Lock()
	s.lastRequestTime = time.Now()
	s.mu.Unlock()
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.startTime)
}
