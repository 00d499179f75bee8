// Package app wires the PALS runtime and its listeners from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"google.golang.org/grpc"

	grpcapi "github.com/MerlinMa/pals/internal/api/grpc"
	httpapi "github.com/MerlinMa/pals/internal/api/http"
	"github.com/MerlinMa/pals/internal/config"
	"github.com/MerlinMa/pals/internal/entry"
	"github.com/MerlinMa/pals/internal/logging"
	"github.com/MerlinMa/pals/internal/model"
	"github.com/MerlinMa/pals/internal/observability"
	"github.com/MerlinMa/pals/internal/server"
	"github.com/MerlinMa/pals/internal/sink"
	"github.com/MerlinMa/pals/internal/storage"
)

// App manages the PALS service lifecycle.
type App struct {
	cfg *config.Config
	log logging.Logger

	// Shared resources
	runtime  *entry.Runtime
	shutdown *server.ShutdownManager

	httpListener net.Listener
	grpcListener net.Listener

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new App with the given configuration.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg:      cfg,
		shutdown: server.NewShutdownManager(server.DefaultShutdownConfig()),
	}, nil
}

// Start builds the runtime and starts the configured listeners.
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

	log, logCloser, err := logging.New(a.cfg.LoggingOptions())
	if err != nil {
		a.abort()
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	a.log = log
	a.shutdown.RegisterCloser(logCloser)
	a.shutdown.OnShutdownStart(func(reason string) {
		a.log.Info("initiating graceful shutdown", "reason", reason)
	})

	rt, closer, err := NewRuntime(ctx, a.cfg, a.log)
	if err != nil {
		a.abort()
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	a.runtime = rt
	a.shutdown.RegisterCloser(closer)

	if err := a.startHTTP(); err != nil {
		a.abort()
		return fmt.Errorf("failed to start http server: %w", err)
	}

	if a.cfg.GRPC.Enabled {
		if err := a.startGRPC(); err != nil {
			a.abort()
			return fmt.Errorf("failed to start grpc server: %w", err)
		}
	}

	if a.cfg.Entry.StatsWindow > 0 {
		a.startStatsPruner(ctx, rt.Stats())
	}

	a.log.Info("PALS started", "http", a.HTTPAddr(), "grpc_enabled", a.cfg.GRPC.Enabled)
	return nil
}

// NewRuntime builds the entry runtime and its collaborators from cfg. The
// returned closer releases the SQL connection.
func NewRuntime(ctx context.Context, cfg *config.Config, log logging.Logger) (*entry.Runtime, io.Closer, error) {
	if log == nil {
		log = logging.Nop()
	}
	var closers multiCloser

	opts := entry.Options{
		PredictedColumn: cfg.Entry.PredictedColumn,
		SQLTable:        cfg.SQL.Table,
		Logger:          log,
		Stats:           observability.NewExecStats(cfg.Entry.StatsWindow),
	}

	if cfg.Model.Path != "" {
		m, err := model.Load(cfg.Model.Path)
		if err != nil {
			return nil, nil, err
		}
		opts.Model = m
		log.Info("model loaded", "path", cfg.Model.Path, "features", m.Width())
	}

	if cfg.Blob.Enabled {
		store, err := newStorage(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		opts.Blob = sink.NewBlobSink(store, log)
		opts.BlobDest = sink.Destination{
			Subdir:    cfg.Blob.Subdir,
			Overwrite: cfg.Blob.Overwrite,
			Compress:  cfg.Blob.Compress,
		}
		log.Info("storage initialized", "type", cfg.Storage.Type, "path", cfg.Storage.Path, "bucket", cfg.Storage.S3.Bucket)
	}

	if cfg.SQL.Enabled {
		s, err := sink.OpenSQLSink(ctx, cfg.SQL.Driver, cfg.SQL.DSN, cfg.SQL.Table, log)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, s)
		opts.SQL = s
		log.Info("sql sink initialized", "driver", cfg.SQL.Driver, "table", cfg.SQL.Table)
	}

	if cfg.Endpoint.URL != "" {
		e, err := sink.NewEndpointSink(sink.EndpointConfig{
			URL:               cfg.Endpoint.URL,
			Key:               cfg.Endpoint.Key,
			Tags:              cfg.Endpoint.Tags,
			IncludeTimestamps: cfg.Endpoint.IncludeTimestamps,
			Timeout:           cfg.Endpoint.Timeout,
			RetryCount:        cfg.Endpoint.RetryCount,
		}, log)
		if err != nil {
			closers.Close()
			return nil, nil, err
		}
		opts.Endpoint = e
	}

	filters, err := cfg.Filters.Compile()
	if err != nil {
		closers.Close()
		return nil, nil, err
	}
	opts.Filters = filters

	return entry.NewRuntime(opts), closers, nil
}

func newStorage(ctx context.Context, cfg *config.Config) (storage.ObjectStorage, error) {
	switch cfg.Storage.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if cfg.Storage.S3.Region != "" {
			s3Cfg.Region = cfg.Storage.S3.Region
		}
		if cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = cfg.Storage.S3.Endpoint
		}
		s3Cfg.UsePathStyle = cfg.Storage.S3.UsePathStyle
		return storage.NewS3Storage(ctx, cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

func (a *App) startHTTP() error {
	ln, err := net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return err
	}
	a.httpListener = ln

	handler := httpapi.NewHandler(a.runtime, a.log, a.cfg.HTTP.MaxBodyBytes)
	srv := &http.Server{
		Handler:      handler.Routes(a.shutdown),
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}

	errCh := a.shutdown.RunHTTP(srv, ln)
	a.log.Info("HTTP server listening", "addr", ln.Addr().String())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := <-errCh; err != nil {
			a.log.Error("HTTP server error", "error", err)
		}
	}()
	return nil
}

func (a *App) startGRPC() error {
	ln, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return err
	}
	a.grpcListener = ln

	srv := grpc.NewServer(grpc.UnaryInterceptor(server.UnaryShutdownInterceptor(a.shutdown)))
	grpcapi.RegisterEntryServiceServer(srv, grpcapi.NewEntryServer(a.runtime, a.log))

	errCh := a.shutdown.RunGRPC(srv, ln)
	a.log.Info("gRPC server listening", "addr", ln.Addr().String())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := <-errCh; err != nil {
			a.log.Error("gRPC server error", "error", err)
		}
	}()
	return nil
}

// startStatsPruner drops idle stats counters once per window.
func (a *App) startStatsPruner(ctx context.Context, stats *observability.ExecStats) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.cfg.Entry.StatsWindow)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats.Prune()
			}
		}
	}()
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}

	err := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger().Warn("shutdown timeout, some goroutines may not have finished")
	}

	a.logger().Info("PALS stopped")
	return err
}

// abort releases whatever Start managed to build.
func (a *App) abort() {
	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.shutdown.Shutdown(context.Background(), "startup failed")
}

func (a *App) logger() logging.Logger {
	if a.log == nil {
		return logging.Nop()
	}
	return a.log
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// Runtime returns the entry runtime once Start has succeeded.
func (a *App) Runtime() *entry.Runtime {
	return a.runtime
}

// HTTPAddr returns the bound HTTP address.
func (a *App) HTTPAddr() string {
	if a.httpListener == nil {
		return a.cfg.HTTP.Addr
	}
	return a.httpListener.Addr().String()
}

// GRPCAddr returns the bound gRPC address.
func (a *App) GRPCAddr() string {
	if a.grpcListener == nil {
		return a.cfg.GRPC.Addr
	}
	return a.grpcListener.Addr().String()
}

// multiCloser closes every element and returns the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var firstErr error
	for _, c := range m {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
