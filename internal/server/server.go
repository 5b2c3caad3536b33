package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/vowser/controlhub/internal/config"
	"github.com/vowser/controlhub/internal/control"
	"github.com/vowser/controlhub/internal/httputil"
	"github.com/vowser/controlhub/internal/lifecycle"
	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/tools"
	"github.com/vowser/controlhub/internal/types"
	"github.com/vowser/controlhub/internal/websocket"
)

// Upstream is the slice of the outbound link the HTTP surface consumes.
type Upstream interface {
	IsConnected() bool
	SavePath(ctx context.Context, p types.PathSubmission) (*types.SavePathResponse, error)
	SearchPath(ctx context.Context, query string, limit int, domainHint string) (json.RawMessage, error)
	CheckGraph(ctx context.Context) (*types.GraphStatsResponse, error)
	VisualizePaths(ctx context.Context, domain string) (*types.VisualizePathsResponse, error)
	FindPopularPaths(ctx context.Context, domain string, limit int) (*types.PopularPathsResponse, error)
	CreateIndexes(ctx context.Context) (*types.IndexResponse, error)
	CleanupPaths(ctx context.Context) (*types.CleanupResponse, error)
	SendVoiceCommand(transcript, sessionID string) error
	SendContributionData(msg types.ContributionMessage) error
}

// Options holds the server's dependencies.
type Options struct {
	Config   config.Config
	Control  *control.Service
	Tools    *tools.Registry
	Upstream Upstream
	MCP      http.Handler // nil leaves the MCP route unmounted
	Quiet    bool         // Suppress request logging
}

// NewRouter builds the chi router for every HTTP and WebSocket route.
func NewRouter(o Options) http.Handler {
	c := o.Config
	r := chi.NewRouter()

	if !o.Quiet {
		r.Use(chimw.Logger)
	}
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(corsMiddleware())

	r.Get("/health", healthHandler(o))

	ws := websocket.NewHandler(o.Control, o.Tools, o.Upstream, websocket.Options{
		MaxMessageSize: c.Control.MaxMessageSize,
		SendBuffer:     c.Control.SendBuffer,
		RateLimit:      c.Control.RateLimit,
		RateBurst:      c.Control.RateBurst,
	})
	controlPath := c.Control.Path
	if controlPath == "" {
		controlPath = "/control"
	}
	r.Get(controlPath, ws.ServeHTTP)

	r.Route("/browser-control", func(r chi.Router) {
		registerBrowserRoutes(r, o.Control)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/paths", func(r chi.Router) {
			registerPathRoutes(r, o.Upstream)
		})
		r.Post("/voice/command", voiceCommandHandler(o.Upstream))
	})

	if o.MCP != nil && c.MCP.Enabled {
		r.Handle(c.MCP.Path, o.MCP)
		r.Handle(c.MCP.Path+"/*", o.MCP)
	}

	return r
}

// Run serves the router until ctx is cancelled, then shuts down within
// server.shutdownTimeout.
func Run(ctx context.Context, o Options) error {
	addr := o.Config.Addr()
	if err := checkPortAvailable(addr); err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}

	// No ReadTimeout/WriteTimeout: they would cut hijacked WebSocket connections.
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     NewRouter(o),
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("[Server] listening on http://%s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	lifecycle.Emit(lifecycle.EventServerStarted, addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("[Server] shutting down gracefully")
	timeout := o.Config.Server.ShutdownTimeout.Std()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func healthHandler(o Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, types.HealthResponse{
			Status:            "ok",
			UpstreamConnected: o.Upstream != nil && o.Upstream.IsConnected(),
			ActiveSessions:    o.Control.ActiveCount(),
		})
	}
}

// corsMiddleware lets the browser agent call the API from its extension origin.
func corsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
