package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alexliesenfeld/health"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"switchyard/internal/config"
	"switchyard/pkg/logging"
)

// Options configures the inbound servers.
type Options struct {
	HTTPAddr string
	MCP      config.MCPConfig
	Version  string

	// DiscoveryInterval is used to decide whether discovery is stalled.
	DiscoveryInterval time.Duration
}

// Server runs the HTTP API (with /healthz and /metrics) and, optionally, the
// MCP surface.
type Server struct {
	deps    Deps
	opts    Options
	started time.Time

	mu             sync.Mutex
	httpServer     *http.Server
	httpListener   net.Listener
	mcp            *mcpserver.MCPServer
	streamableHTTP *mcpserver.StreamableHTTPServer
	cancel         context.CancelFunc
	wg             sync.WaitGroup
}

// New creates a server.
func New(deps Deps, opts Options) *Server {
	return &Server{deps: deps, opts: opts}
}

// Handler returns the full HTTP handler: API, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/v1/", NewAPIHandler(s.deps))
	mux.Handle("GET /healthz", health.NewHandler(s.checker()))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// checker reports the control plane's own liveness: the registry's backing
// store answers and discovery has completed a cycle recently.
func (s *Server) checker() health.Checker {
	return health.NewChecker(
		health.WithTimeout(5*time.Second),
		health.WithCheck(health.Check{
			Name:  "registry",
			Check: s.deps.Registry.Ping,
		}),
		health.WithCheck(health.Check{
			Name:  "discovery",
			Check: s.checkDiscovery,
		}),
	)
}

func (s *Server) checkDiscovery(ctx context.Context) error {
	if s.deps.Discovery == nil || s.opts.DiscoveryInterval <= 0 {
		return nil
	}
	stale := 3 * s.opts.DiscoveryInterval
	last, ok := s.deps.Discovery.Last()
	if !ok {
		if !s.started.IsZero() && time.Since(s.started) > stale {
			return fmt.Errorf("no discovery cycle has completed")
		}
		return nil
	}
	if age := time.Since(last.FinishedAt); age > stale {
		return fmt.Errorf("last discovery cycle finished %s ago", age.Round(time.Second))
	}
	return nil
}

// Start binds the listeners and serves in the background. Bind errors are
// returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpServer != nil {
		return fmt.Errorf("server already started")
	}
	s.started = time.Now()

	ctx, s.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", s.opts.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.HTTPAddr, err)
	}
	s.httpListener = ln
	// Requests inherit ctx so Stop can cancel calls still running after the
	// grace period.
	baseCtx := ctx
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	logging.Info(subsystem, "HTTP API listening on %s", ln.Addr())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(subsystem, err, "HTTP server error")
		}
	}()

	if !s.opts.MCP.Enabled {
		return nil
	}

	s.mcp = NewMCPServer(s.deps, s.opts.Version)
	switch s.opts.MCP.Transport {
	case config.MCPTransportStdio:
		logging.Info(subsystem, "Starting MCP server with stdio transport")
		stdioServer := mcpserver.NewStdioServer(s.mcp)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := stdioServer.Listen(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				logging.Error(subsystem, err, "Stdio server error")
			}
		}()

	default:
		logging.Info(subsystem, "Starting MCP server with streamable-http transport on %s", s.opts.MCP.Addr)
		s.streamableHTTP = mcpserver.NewStreamableHTTPServer(s.mcp)
		streamable := s.streamableHTTP
		addr := s.opts.MCP.Addr
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := streamable.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error(subsystem, err, "Streamable HTTP server error")
			}
		}()
	}
	return nil
}

// Addr returns the bound HTTP API address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Stop gracefully shuts the servers down within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	httpServer := s.httpServer
	streamable := s.streamableHTTP
	cancel := s.cancel
	s.mu.Unlock()

	if httpServer == nil {
		return nil
	}
	logging.Info(subsystem, "Stopping servers")

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http api: %w", err))
	}
	if streamable != nil {
		if err := streamable.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("mcp: %w", err))
		}
	}
	// Stdio stops on context cancellation.
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}
