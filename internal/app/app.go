// Package app wires the advisor's components together and manages the
// service lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/arkilian/advisor/internal/advisor"
	grpcapi "github.com/arkilian/advisor/internal/api/grpc"
	httpapi "github.com/arkilian/advisor/internal/api/http"
	"github.com/arkilian/advisor/internal/config"
	"github.com/arkilian/advisor/internal/history"
	"github.com/arkilian/advisor/internal/observability"
	"github.com/arkilian/advisor/internal/report"
	"github.com/arkilian/advisor/internal/server"
	"github.com/arkilian/advisor/internal/source"
	"github.com/arkilian/advisor/internal/storage"
)

const (
	usageWindow        = 24 * time.Hour
	usagePruneInterval = 10 * time.Minute
	serverStopTimeout  = 10 * time.Second
)

// App owns the advisor and the resources it reads from and writes to.
type App struct {
	cfg *config.Config

	source  source.Provider
	history *history.SQLiteStore
	archive *report.Archive
	usage   *observability.UsageTracker
	advisor *advisor.Advisor

	shutdown     *server.ShutdownManager
	httpServer   *http.Server
	httpListener net.Listener
	grpcServer   *grpc.Server
	grpcListener net.Listener
	health       *health.Server

	closeOnce sync.Once
	closeErr  error

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New resolves and validates cfg, then opens every configured component.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{
		cfg:      cfg,
		usage:    observability.NewUsageTracker(usageWindow),
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig()),
	}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) open(ctx context.Context) error {
	var err error

	a.source, err = source.Open(a.cfg.Source)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	log.Printf("Source initialized: type=%s path=%s", a.cfg.Source.Type, a.cfg.Source.Path)

	opts := advisor.Options{
		Config:   a.cfg,
		Stats:    a.source,
		Policies: a.source,
		Workload: a.source,
		Usage:    a.usage,
	}

	if a.cfg.History.Enabled {
		a.history, err = history.Open(a.cfg.History.Path, a.cfg.History.MaxRuns)
		if err != nil {
			return fmt.Errorf("failed to open history: %w", err)
		}
		opts.History = a.history
		log.Printf("History initialized: %s (last %d runs)", a.cfg.History.Path, a.cfg.History.MaxRuns)
	}

	if a.cfg.Archive.Enabled {
		store, err := storage.New(ctx, a.cfg.Archive.Storage)
		if err != nil {
			return fmt.Errorf("failed to initialize archive storage: %w", err)
		}
		a.archive = report.NewArchive(store)
		log.Printf("Archive initialized: type=%s", a.cfg.Archive.Storage.Type)
	}

	a.advisor, err = advisor.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create advisor: %w", err)
	}
	return nil
}

// Advisor returns the configured advisor.
func (a *App) Advisor() *advisor.Advisor {
	return a.advisor
}

// Archive returns the report archive, or nil when archiving is disabled.
func (a *App) Archive() *report.Archive {
	return a.archive
}

// RunOnce runs the advisor for tables, or for every table the source knows
// when tables is empty, and archives each report. The returned error joins
// the failures of individual tables.
func (a *App) RunOnce(ctx context.Context, tables []string) ([]advisor.Result, error) {
	if len(tables) == 0 {
		known, err := a.source.Tables(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
		tables = known
	}
	if len(tables) == 0 {
		return nil, errors.New("no tables to advise on")
	}

	results := a.advisor.RunMany(ctx, tables)
	if a.archive != nil {
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			if _, err := a.archive.Save(ctx, r.Report); err != nil {
				log.Printf("[WARN] app: archive report for %s: %v", r.Table, err)
			}
		}
	}
	return results, advisor.JoinErrors(results)
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	h := httpapi.Handlers{
		Runner: a.advisor,
		Usage:  a.usage,
		Wrap:   server.ShutdownMiddleware(a.shutdown),
	}
	if a.archive != nil {
		h.Archive = a.archive
	}
	if ing, ok := a.source.(source.Ingester); ok {
		h.Ingester = ing
	}
	return httpapi.NewRouter(h)
}

// Start starts the HTTP server, the gRPC server when enabled, and the usage
// pruner. It returns once the listeners are bound.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.shutdown.RegisterCloser(server.CloserFunc(a.Close))

	if err := a.startHTTP(); err != nil {
		a.Stop(context.Background())
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.Stop(context.Background())
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pruneUsage(ctx)
	}()

	log.Printf("Advisor started in %s mode", a.cfg.Mode)
	return nil
}

func (a *App) startHTTP() error {
	lis, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	a.httpListener = lis
	a.httpServer = &http.Server{
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser(server.HTTPServerCloser(a.httpServer, serverStopTimeout))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("HTTP server listening on %s", lis.Addr())
		if err := a.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	a.grpcListener = lis
	a.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(
		server.UnaryShutdownInterceptor(a.shutdown),
		grpcapi.LoggingInterceptor,
	))

	var archive grpcapi.ReportArchive
	if a.archive != nil {
		archive = a.archive
	}
	grpcapi.RegisterAdvisorServer(a.grpcServer, grpcapi.NewServer(a.advisor, archive))

	a.health = health.NewServer()
	a.health.SetServingStatus(grpcapi.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(a.grpcServer, a.health)

	a.shutdown.RegisterCloser(server.GRPCServerCloser(a.grpcServer, serverStopTimeout))
	a.shutdown.RegisterCloser(server.CloserFunc(func() error {
		a.health.Shutdown()
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		log.Printf("gRPC server listening on %s", lis.Addr())
		if err := a.grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()
	return nil
}

func (a *App) pruneUsage(ctx context.Context) {
	ticker := time.NewTicker(usagePruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.usage.Prune(); n > 0 {
				log.Printf("app: pruned %d idle column usage entries", n)
			}
		}
	}
}

// HTTPAddr returns the bound HTTP address once started.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return ""
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address once started.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return ""
	}
	return a.grpcListener.Addr().String()
}

// WaitForShutdown blocks until a signal arrives or ctx is done, then shuts
// down.
func (a *App) WaitForShutdown(ctx context.Context) error {
	err := a.shutdown.ListenForSignals(ctx)
	a.finish()
	return err
}

// Stop shuts the servers down and releases every resource.
func (a *App) Stop(ctx context.Context) error {
	log.Printf("Initiating graceful shutdown...")
	err := a.shutdown.Shutdown(ctx, "stop requested")
	a.finish()
	return err
}

func (a *App) finish() {
	a.mu.Lock()
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.wg.Wait()
}

// Close releases the source, history and archive handles. It is safe to call
// more than once.
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		if a.history != nil {
			errs = append(errs, a.history.Close())
		}
		if a.source != nil {
			errs = append(errs, a.source.Close())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}
