// Package app wires the signup statistics runtime: the refresh pipeline, the
// gRPC health server, the optional warm loop and the MCP tool surface.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Scouterna/j26-signupinfo/internal/platform/timeouts"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/forms"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/mcptools"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/projectcache"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/query"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/scoutnet"
	"github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/storage"
	responsesqlite "github.com/Scouterna/j26-signupinfo/internal/services/signupinfo/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the health-check service name that tracks the cache.
const HealthService = "signupinfo.cache"

// MCPTransportStdio serves the MCP tools over standard input and output.
const MCPTransportStdio = "stdio"

const defaultPort = 8095

// RuntimeConfig controls service startup and refresh behavior.
type RuntimeConfig struct {
	Port           int
	Projects       []scoutnet.Project
	APIBaseURL     string
	CacheMaxAge    time.Duration
	RequestTimeout time.Duration
	// WarmInterval enables a background staleness check when positive.
	WarmInterval time.Duration
	AdultCutoff  string
	SearchLimit  int
	// DevCachePath enables the SQLite response cache when set.
	DevCachePath string
	MCPTransport string
}

func (cfg RuntimeConfig) normalized() (RuntimeConfig, error) {
	if err := scoutnet.ValidateProjects(cfg.Projects); err != nil {
		return cfg, fmt.Errorf("invalid projects: %w", err)
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultPort
	}
	if cfg.CacheMaxAge <= 0 {
		cfg.CacheMaxAge = projectcache.DefaultMaxAge
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = timeouts.UpstreamRequest
	}
	if cfg.SearchLimit <= 0 {
		cfg.SearchLimit = query.DefaultSearchLimit
	}
	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(cfg.MCPTransport))
	switch cfg.MCPTransport {
	case "", MCPTransportStdio:
	default:
		return cfg, fmt.Errorf("unsupported mcp transport %q", cfg.MCPTransport)
	}
	return cfg, nil
}

// Run starts the health server, loads the cache and serves until ctx ends.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := cfg.normalized()
	if err != nil {
		return err
	}

	var responseCache storage.ResponseCache
	if path := strings.TrimSpace(cfg.DevCachePath); path != "" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create dev cache dir: %w", err)
			}
		}
		store, err := responsesqlite.Open(path)
		if err != nil {
			return fmt.Errorf("open dev response cache: %w", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				log.Printf("close dev response cache: %v", closeErr)
			}
		}()
		responseCache = store
		log.Printf("dev response cache enabled at %s", path)
	}

	client := scoutnet.NewClient(scoutnet.ClientConfig{
		BaseURL:        cfg.APIBaseURL,
		RequestTimeout: cfg.RequestTimeout,
		ResponseCache:  responseCache,
	})
	svc, err := newService(cfg, client, log.Printf)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	svc.health = healthServer
	svc.reportHealth()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	log.Printf("health server listening at %v", listener.Addr())
	return svc.run(ctx)
}

// service holds the wired pipeline of one process.
type service struct {
	cfg       RuntimeConfig
	refresher *projectcache.Refresher
	queries   *query.Service
	health    *health.Server
	logf      func(string, ...any)
}

func newService(cfg RuntimeConfig, fetcher projectcache.Fetcher, logf func(string, ...any)) (*service, error) {
	if logf == nil {
		logf = log.Printf
	}
	s := &service{cfg: cfg, logf: logf}
	cache := projectcache.New(cfg.CacheMaxAge, nil)
	decoder := forms.NewDecoder(forms.Policy{AdultCutoff: cfg.AdultCutoff}, logf)
	refresher, err := projectcache.NewRefresher(projectcache.RefresherConfig{
		Cache:    cache,
		Fetcher:  fetcher,
		Decoder:  decoder,
		Projects: cfg.Projects,
		Logf:     logf,
		// Reads refresh the cache too, so health follows every install.
		OnInstall: func(*projectcache.Snapshot) { s.reportHealth() },
	})
	if err != nil {
		return nil, fmt.Errorf("create refresher: %w", err)
	}
	queries, err := query.NewService(query.Config{Snapshots: refresher, SearchLimit: cfg.SearchLimit, Logf: logf})
	if err != nil {
		return nil, fmt.Errorf("create query service: %w", err)
	}
	s.refresher = refresher
	s.queries = queries
	logf("serving %d projects, cache max age %s, adult cutoff %s", len(cfg.Projects), cache.MaxAge(), decoder.Policy().AdultCutoff)
	return s, nil
}

func (s *service) run(ctx context.Context) error {
	s.loadInitial(ctx)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	if s.cfg.WarmInterval > 0 {
		g.Go(func() error {
			s.warm(gctx, s.cfg.WarmInterval)
			return nil
		})
	}
	if s.cfg.MCPTransport == MCPTransportStdio {
		g.Go(func() error {
			// The process ends with its stdio session.
			defer cancel()
			return mcptools.ServeStdio(gctx, s.queries)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	return g.Wait()
}

// loadInitial fills the cache before reads are served. A failure is not
// fatal: the health status stays NOT_SERVING and the next read retries.
func (s *service) loadInitial(ctx context.Context) {
	if _, err := s.refresher.Refresh(ctx); err != nil {
		s.logf("initial cache load failed: %v", err)
	}
	s.reportHealth()
}

// warm refreshes a stale cache every interval so readers rarely wait for
// the upstream.
func (s *service) warm(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.refresher.Cache().IsStale() {
				continue
			}
			if _, err := s.refresher.EnsureFresh(ctx); err != nil {
				s.logf("warm refresh failed: %v", err)
			}
		}
	}
}

func (s *service) reportHealth() {
	if s.health == nil {
		return
	}
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if s.refresher.Cache().Status().Loaded {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthService, status)
}
