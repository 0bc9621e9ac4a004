package app

import (
	"context"
	"log"
	"net/http"

	"notice_generator/internal/config"
	"notice_generator/internal/events"
	"notice_generator/internal/httpapi"
	"notice_generator/internal/jobs"
	"notice_generator/internal/metrics"
	"notice_generator/internal/pipeline"
	"notice_generator/internal/store"
	"notice_generator/internal/watch"
)

// App wires the service components together.
type App struct {
	cfg     config.Config
	store   *store.Store
	runner  *jobs.Runner
	watcher *watch.Watcher
	bus     *events.Bus
	mux     *http.ServeMux
}

func New(cfg config.Config) (*App, error) {
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	bus := events.NewBus()
	var runner *jobs.Runner
	registry := pipeline.BuildRegistry(cfg, st, func(ctx context.Context, batchID string, stage jobs.Stage, params map[string]any) error {
		_, err := runner.Enqueue(ctx, batchID, stage, params)
		return err
	})
	runner = jobs.NewRunner(cfg, st, registry, bus)
	watcher := watch.New(cfg, runner)
	mux := http.NewServeMux()
	router := httpapi.NewRouter(cfg, st, runner)
	router.Register(mux)
	return &App{cfg: cfg, store: st, runner: runner, watcher: watcher, bus: bus, mux: mux}, nil
}

// Run starts workers, watcher, event logging, and the HTTP server.
func (a *App) Run(ctx context.Context) error {
	go a.consumeEvents(ctx)
	a.runner.Start(ctx)
	if err := a.watcher.Start(ctx); err != nil {
		return err
	}
	if err := a.watcher.Backfill(ctx); err != nil {
		log.Printf("backfill: %v", err)
	}
	srv := &http.Server{Addr: ":" + a.cfg.HTTPPort, Handler: a.mux}
	go func() {
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()
	log.Printf("http listening on %s", a.cfg.HTTPPort)
	return srv.ListenAndServe()
}

func (a *App) consumeEvents(ctx context.Context) {
	ch := a.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-ch:
			switch ev.Kind {
			case events.JobSucceeded:
				metrics.IncJobSucceeded()
			case events.JobFailed:
				metrics.IncJobFailed()
			}
			log.Printf("job %d %s stage=%s batch=%s", ev.JobID, ev.Kind, ev.Stage, ev.BatchID)
		}
	}
}

// EnqueueStage exposes the pipeline for tests and control tooling.
func (a *App) EnqueueStage(ctx context.Context, batchID string, stage jobs.Stage, params map[string]any) (*store.Job, error) {
	return a.runner.Enqueue(ctx, batchID, stage, params)
}

func (a *App) Runner() *jobs.Runner { return a.runner }
func (a *App) Store() *store.Store  { return a.store }
func (a *App) Mux() *http.ServeMux  { return a.mux }
