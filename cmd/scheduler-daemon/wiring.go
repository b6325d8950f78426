package main

import (
	"context"
	"fmt"
	"time"

	"github.com/printshop/scheduler/internal/calendar"
	"github.com/printshop/scheduler/internal/capacity"
	schedulerconfig "github.com/printshop/scheduler/internal/config"
	"github.com/printshop/scheduler/internal/daemon"
	"github.com/printshop/scheduler/internal/graphstore"
	"github.com/printshop/scheduler/internal/logx"
	"github.com/printshop/scheduler/internal/orchestrator"
	"github.com/printshop/scheduler/internal/pathproc"
	"github.com/printshop/scheduler/internal/repository/sqlite"
	"github.com/printshop/scheduler/internal/splitter"
	"github.com/printshop/scheduler/internal/workflow"
)

// app bundles every wired component a CLI command or the HTTP daemon
// needs, built once per process invocation.
type app struct {
	cfg   *schedulerconfig.SchedulerConfig
	log   logx.Logger
	db    *sqlite.DB
	graph *graphstore.ConnectionManager

	cal      *calendar.Calendar
	capacity *capacity.Store

	jobOrch       *orchestrator.JobOrchestrator
	batch         *orchestrator.BatchRecomputer
	reorderer     *orchestrator.ShiftReorderer
	tentative     *orchestrator.TentativeDueDateEstimator
	manualResched *orchestrator.ManualRescheduler
	graphStore    *graphstore.WorkflowGraphStore
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := schedulerconfig.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	log := logx.New("scheduler", logx.ParseLevel(cfg.Logging.Level))

	db, err := sqlite.Open(&sqlite.ConnectionConfig{
		DBPath:          cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxConnections,
		MaxIdleConns:    cfg.Database.MaxIdleConnections,
		ConnMaxLifetime: time.Hour,
		Timezone:        cfg.Scheduling.Timezone,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	calendarRepo := sqlite.NewCalendarRepository(db)
	cal, err := calendar.Load(ctx, calendarRepo, log)
	if err != nil {
		return nil, fmt.Errorf("loading calendar: %w", err)
	}

	capacityRepo := sqlite.NewCapacityRepository(db)
	capStore := capacity.New(cal, capacityRepo, log.With("component", "capacity"))

	split := splitter.New(cal)

	stageInstanceRepo := sqlite.NewStageInstanceRepository(db)
	analyzer := workflow.New(stageInstanceRepo)
	jobRepo := sqlite.NewJobRepository(db)

	pathProc := pathproc.New(split, capStore, stageInstanceRepo, log.With("component", "pathproc"))
	convProc := pathproc.NewConvergenceProcessor(pathProc, cal)

	jobOrch := orchestrator.New(analyzer, pathProc, convProc, nil, log.With("component", "orchestrator"))
	batch := orchestrator.NewBatchRecomputer(capStore, jobRepo, jobOrch, log.With("component", "batch"))
	reorderer := orchestrator.NewShiftReorderer(cal, stageInstanceRepo, stageInstanceRepo, stageInstanceRepo, log.With("component", "reorder"))
	tentative := orchestrator.NewTentativeDueDateEstimator(analyzer, cal, capStore, split, jobRepo, jobRepo, log.With("component", "tentative"))
	manualResched := orchestrator.NewManualRescheduler(stageInstanceRepo, cal, pathProc, log.With("component", "manual"))

	var graph *graphstore.ConnectionManager
	var graphStore *graphstore.WorkflowGraphStore
	if cfg.GraphStore.Enabled {
		graph, err = graphstore.Open(graphstore.ConnectionConfig{
			DatabasePath:   cfg.GraphStore.Path,
			MaxConnections: cfg.GraphStore.MaxConns,
			QueryTimeout:   cfg.Server.WriteTimeout,
		}, log.With("component", "graphstore"))
		if err != nil {
			log.Warn("graphstore unavailable, dependency analytics disabled", "error", err)
		} else {
			graphStore = graphstore.NewWorkflowGraphStore(graph)
			jobOrch.WithGraphSyncer(graphStore)
		}
	}

	return &app{
		cfg:           cfg,
		log:           log,
		db:            db,
		graph:         graph,
		cal:           cal,
		capacity:      capStore,
		jobOrch:       jobOrch,
		batch:         batch,
		reorderer:     reorderer,
		tentative:     tentative,
		manualResched: manualResched,
		graphStore:    graphStore,
	}, nil
}

func (a *app) close() {
	if a.graph != nil {
		a.graph.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

func (a *app) daemonServer() *daemon.Server {
	deps := daemon.Dependencies{
		JobOrchestrator:    a.jobOrch,
		BatchRecomputer:    a.batch,
		ShiftReorderer:     a.reorderer,
		TentativeEstimator: a.tentative,
		ManualRescheduler:  a.manualResched,
		MinutesSource:      a.cal,
	}
	// Guard against assigning a nil *graphstore.WorkflowGraphStore to the
	// DependencyGraph interface field: that would produce a non-nil
	// interface wrapping a nil pointer, defeating the "graph == nil" check
	// the handlers rely on when graphstore is disabled.
	if a.graphStore != nil {
		deps.GraphStore = a.graphStore
	}
	return daemon.New(a.cfg, deps, a.log)
}
