// Package server exposes the provisioning service over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/api"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/audit"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/broadcast"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/errors"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/metrics"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/port"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/provision"
	"github.com/firefly-engineering/firefly-forage/packages/forage-launch/internal/sandbox"
)

const (
	defaultRateLimitWindow = time.Minute
	defaultMaxBodyBytes    = 64 << 10
)

// Config holds server configuration
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":3002")
	ListenAddr string

	// RateLimit is the max POST /run requests per client per window (0 = unlimited)
	RateLimit int

	// RateLimitWindow is the rate limit window duration. Defaults to a minute.
	RateLimitWindow time.Duration

	// CORSOrigins lists the browser origins allowed to call the API. "*"
	// allows any origin.
	CORSOrigins []string

	// ProbeHost is where health probes dial sandbox ports. Defaults to
	// 127.0.0.1.
	ProbeHost string

	// MaxBodyBytes caps request bodies. Defaults to 64 KiB.
	MaxBodyBytes int64

	// Logger for server operations
	Logger *slog.Logger
}

// Backend is the service graph the API exposes.
type Backend struct {
	Coordinator *provision.Coordinator
	Manager     *sandbox.Manager
	Pool        *port.Pool
	Events      *broadcast.Broadcaster
	Audit       *audit.Logger    // optional
	Metrics     *metrics.Metrics // optional
	Tunnel      bool
}

// API is the HTTP handler for the provisioning service.
type API struct {
	config      *Config
	backend     Backend
	mux         *http.ServeMux
	rateLimiter *rateLimiter

	quit     chan struct{}
	quitOnce sync.Once
}

// New creates the API handler.
func New(cfg *Config, b Backend) *API {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = defaultRateLimitWindow
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ProbeHost == "" {
		cfg.ProbeHost = "127.0.0.1"
	}

	a := &API{
		config:  cfg,
		backend: b,
		mux:     http.NewServeMux(),
		quit:    make(chan struct{}),
	}
	if cfg.RateLimit > 0 {
		a.rateLimiter = newRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
	}

	a.mux.HandleFunc("POST "+api.PathRun, a.handleRun)
	a.mux.HandleFunc("GET "+api.PathEvents, a.handleEvents)
	a.mux.HandleFunc("GET "+api.PathEventsWS, a.handleEventsWS)
	a.mux.HandleFunc("GET "+api.PathSandboxes, a.handleListSandboxes)
	a.mux.HandleFunc("GET "+api.PathSandboxes+"/{id}", a.handleGetSandbox)
	a.mux.HandleFunc("DELETE "+api.PathSandboxes+"/{id}", a.handleDeleteSandbox)
	a.mux.HandleFunc("GET "+api.PathSandboxes+"/{id}/events", a.handleHistory)
	a.mux.HandleFunc("GET "+api.PathKinds, a.handleKinds)
	a.mux.HandleFunc("GET "+api.PathHealth, a.handleHealth)
	a.mux.Handle("GET "+api.PathMetrics, b.Metrics.Handler())

	return a
}

// ServeHTTP implements http.Handler
func (a *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	if origin := r.Header.Get("Origin"); origin != "" && a.originAllowed(origin) {
		a.setCORSHeaders(w, origin)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}

	// Wrap response writer for logging
	lw := &loggingResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	a.mux.ServeHTTP(lw, r)

	level := slog.LevelInfo
	if r.URL.Path == api.PathHealth || r.URL.Path == api.PathMetrics {
		level = slog.LevelDebug
	}
	a.config.Logger.Log(r.Context(), level, "request",
		"method", r.Method,
		"path", r.URL.Path,
		"status", lw.statusCode,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"remote", r.RemoteAddr)
}

func (a *API) originAllowed(origin string) bool {
	for _, o := range a.config.CORSOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

func (a *API) setCORSHeaders(w http.ResponseWriter, origin string) {
	h := w.Header()
	if a.allowAnyOrigin() {
		h.Set("Access-Control-Allow-Origin", "*")
	} else {
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
}

func (a *API) allowAnyOrigin() bool {
	for _, o := range a.config.CORSOrigins {
		if o == "*" {
			return true
		}
	}
	return false
}

// originPatterns returns the host patterns the WebSocket handshake accepts.
func (a *API) originPatterns() []string {
	var patterns []string
	for _, o := range a.config.CORSOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		}
	}
	return patterns
}

// clientKey identifies a caller for rate limiting.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// shutdown ends every open event stream.
func (a *API) shutdown() {
	a.quitOnce.Do(func() { close(a.quit) })
}

// Close releases the handler's resources and ends open event streams.
func (a *API) Close() {
	a.shutdown()
	if a.rateLimiter != nil {
		a.rateLimiter.stop()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		a.config.Logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, api.ErrorBody{Error: api.ErrorDetail{
		Type:    string(errors.GetKind(err)),
		Message: err.Error(),
	}})
}

// Server wraps the API with lifecycle management
type Server struct {
	api    *API
	server *http.Server
}

// NewServer creates a new API server
func NewServer(cfg *Config, b Backend) *Server {
	a := New(cfg, b)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           a,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second, // event streams and /run clear their own deadline
		IdleTimeout:       60 * time.Second,
	}
	server.RegisterOnShutdown(a.shutdown)

	return &Server{
		api:    a,
		server: server,
	}
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.api
}

// Start listens on the configured address and serves until Stop.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Stop.
func (s *Server) Serve(ln net.Listener) error {
	s.api.config.Logger.Info("starting api server", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop ends event streams and waits for in-flight requests until ctx ends.
func (s *Server) Stop(ctx context.Context) error {
	defer s.api.Close()
	if err := s.server.Shutdown(ctx); err != nil {
		s.server.Close()
		return err
	}
	return nil
}
