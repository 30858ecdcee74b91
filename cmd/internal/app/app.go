// Package app wires the session agent runtime: config, logging, the session
// manager, its HTTP surface and the session event gateway.
package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"jobmarket/cmd/internal/auth/session"
	"jobmarket/cmd/internal/realtime"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var errEmptyAddr = errors.New("app: empty http address")

// App is the session agent runtime.
type App struct {
	cfg Config
	log Logger

	registry *prometheus.Registry
	dbPool   *pgxpool.Pool
	mgr      *session.Manager
	ws       *realtime.Gateway
	handler  http.Handler
}

// New constructs a fully wired App. The session is not hydrated until Run.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat, nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := session.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	var pool *pgxpool.Pool
	if cfg.Session.Store == session.StorePostgres {
		pool, err = NewDBPool(ctx, cfg.Session.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		log.Info("db.enabled", "store", string(cfg.Session.Store))
	}

	records, err := session.OpenRecordStore(ctx, cfg.Session, pool)
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, err
	}

	verifier := session.NewHTTPVerifier(cfg.Session, nil, log)
	mgr := session.NewManager(cfg.Session, records, verifier, metrics, log)
	ws := realtime.NewGateway(log, mgr, cfg.WS)

	mux := http.NewServeMux()
	registerHTTP(mux, &routes{
		log:          log,
		mgr:          mgr,
		ws:           ws,
		gatherer:     reg,
		dbPool:       pool,
		maxBodyBytes: cfg.MaxBodyBytes,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		registry: reg,
		dbPool:   pool,
		mgr:      mgr,
		ws:       ws,
		handler:  WithRequestLogging(WithSecurityHeaders(WithCORS(mux, cfg, log)), log),
	}, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Manager returns the session manager owned by the App.
func (a *App) Manager() *session.Manager { return a.mgr }

// Run serves HTTP and hydrates the session, then blocks until ctx is done or
// the server fails. The listener is up before hydration so /readyz can report
// loading.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.HTTPAddr)
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	a.log.Info("server.start",
		"addr", ln.Addr().String(),
		"store", string(a.cfg.Session.Store),
		"verify_url", a.cfg.Session.VerifyURL,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		// A failed hydration leaves the agent running unauthenticated.
		if err := a.mgr.Start(ctx); err != nil {
			a.log.Error("session.start.failed", "err", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case runErr = <-errCh:
		a.log.Error("server.fail", "err", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		runErr = errors.Join(runErr, err)
	}
	if err := a.Close(); err != nil {
		a.log.Error("app.close.fail", "err", err)
	}

	a.log.Info("server.stopped")
	return runErr
}

// Close releases the session manager and the database pool.
func (a *App) Close() error {
	err := a.mgr.Close()
	if a.dbPool != nil {
		a.dbPool.Close()
	}
	return err
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
