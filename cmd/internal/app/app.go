// Package app wires the Haven server runtime: config, logging, HTTP routes,
// the inbox delivery engine, and the notification gateway.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"haven/cmd/internal/inbox"
	inboxapi "haven/cmd/internal/inbox/api"
	"haven/cmd/internal/job"
	"haven/cmd/internal/notify"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// App is the Haven server runtime: it owns the HTTP server wiring and the
// delivery pipeline dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	registry *prometheus.Registry

	hub *notify.Hub
	ws  *notify.WSGateway

	engine   *inbox.Engine
	inboxAPI *inboxapi.Handler
	runner   *job.Runner
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	st, dbPool, dbEnabled, inboxStore, err := newStore(context.Background(), cfg, log)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := inbox.NewMetrics(registry)

	hub := notify.NewHub(log, 16)
	ws := notify.NewWSGateway(log, hub)

	agent, err := newAgent(cfg, log)
	if err != nil {
		return nil, err
	}

	inboxCfg := inbox.LoadConfigFromEnv()
	engine, err := inbox.NewEngine(inboxCfg, inboxStore, agent, log,
		inbox.WithObserver(metrics),
		inbox.WithObserver(hub),
	)
	if err != nil {
		return nil, err
	}

	inboxAPI, err := inboxapi.NewHandler(log, engine)
	if err != nil {
		return nil, err
	}

	var recorder job.Recorder = job.NoopRecorder{}
	if dbEnabled {
		pg, err := job.NewPostgresRecorder(dbPool, "haven")
		if err != nil {
			return nil, err
		}
		recorder = pg
	}
	runner, err := job.NewRunner(engine, recorder, log)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
		registry:  registry,
		hub:       hub,
		ws:        ws,
		engine:    engine,
		inboxAPI:  inboxAPI,
		runner:    runner,
	}, nil
}

// handler builds the full middleware-wrapped route tree.
func (a *App) handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.registry, a.inboxAPI, a.ws, a.runner)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, a.log)
	return h
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "db_enabled", a.dbEnabled, "agent_enabled", a.cfg.AgentURL != "")

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	// Close store resources (pool etc).
	if err := a.store.Close(shutdownCtx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newAgent picks the generation agent based on config. No URL means the
// pipeline runs end-to-end but always lands on agent_empty.
func newAgent(cfg Config, log Logger) (inbox.Agent, error) {
	if cfg.AgentURL == "" {
		log.Info("agent.disabled")
		return inbox.NoopAgent{}, nil
	}
	return inbox.NewHTTPAgent(cfg.AgentURL, nil)
}

// newStore decides between Postgres-backed persistence and in-memory dev store.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, inbox.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, inbox.NewInMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, err
	}

	log.Info("db.enabled.postgres_store")

	// Ownership model: app owns the pool lifecycle.
	inboxStore, err := inbox.NewPostgresStore(pool) // default schema "haven"
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, err
	}

	return dbStore{pool: pool}, pool, true, inboxStore, nil
}

type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
