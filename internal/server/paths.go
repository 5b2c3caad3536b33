package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vowser/controlhub/internal/httputil"
	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
	"github.com/vowser/controlhub/internal/upstream"
)

func registerPathRoutes(r chi.Router, up Upstream) {
	r.Post("/", savePathHandler(up))
	r.Get("/search", searchPathHandler(up))
	r.Get("/graph/stats", graphStatsHandler(up))
	r.Get("/graph/visualize/{domain}", visualizeHandler(up))
	r.Get("/popular", popularHandler(up))
	r.Post("/admin/indexes", createIndexesHandler(up))
	r.Post("/admin/cleanup", cleanupHandler(up))
}

// upstreamError maps link failures onto gateway status codes.
func upstreamError(w http.ResponseWriter, op string, err error) {
	code := http.StatusBadGateway
	switch {
	case errors.Is(err, upstream.ErrNotConnected), errors.Is(err, upstream.ErrShuttingDown):
		code = http.StatusServiceUnavailable
	case errors.Is(err, upstream.ErrRequestTimeout):
		code = http.StatusGatewayTimeout
	}
	logging.Warnf("[Server] %s failed: %v", op, err)
	httputil.ErrorWithCode(w, code, op+" failed: "+err.Error())
}

// requireUpstream answers 503 when no link is wired.
func requireUpstream(w http.ResponseWriter, up Upstream) bool {
	if up == nil {
		httputil.ErrorWithCode(w, http.StatusServiceUnavailable, upstream.ErrNotConnected.Error())
		return false
	}
	return true
}

func savePathHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireUpstream(w, up) {
			return
		}
		var req types.PathSubmission
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if strings.TrimSpace(req.TaskIntent) == "" || len(req.Steps) == 0 {
			httputil.ErrorWithCode(w, http.StatusBadRequest, "task_intent and steps are required")
			return
		}
		resp, err := up.SavePath(r.Context(), req)
		if err != nil {
			upstreamError(w, "save path", err)
			return
		}
		httputil.OkJSON(w, resp)
	}
}

type searchRequest struct {
	Query  string `form:"query"`
	Limit  int    `form:"limit"`
	Domain string `form:"domain"`
}

func searchPathHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireUpstream(w, up) {
			return
		}
		req := searchRequest{Limit: 3}
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if strings.TrimSpace(req.Query) == "" {
			httputil.ErrorWithCode(w, http.StatusBadRequest, "query is required")
			return
		}
		raw, err := up.SearchPath(r.Context(), req.Query, req.Limit, req.Domain)
		if err != nil {
			upstreamError(w, "search path", err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(raw)
	}
}

func graphStatsHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireUpstream(w, up) {
			return
		}
		resp, err := up.CheckGraph(r.Context())
		if err != nil {
			upstreamError(w, "check graph", err)
			return
		}
		httputil.OkJSON(w, resp)
	}
}

func visualizeHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireUpstream(w, up) {
			return
		}
		resp, err := up.VisualizePaths(r.Context(), httputil.PathVar(r, "domain"))
		if err != nil {
			upstreamError(w, "visualize paths", err)
			return
		}
		httputil.OkJSON(w, resp)
	}
}

func popularHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireUpstream(w, up) {
			return
		}
		domain := httputil.QueryString(r, "domain", "")
		if domain == "" {
			httputil.ErrorWithCode(w, http.StatusBadRequest, "domain is required")
			return
		}
		resp, err := up.FindPopularPaths(r.Context(), domain, httputil.QueryInt(r, "limit", 10))
		if err != nil {
			upstreamError(w, "find popular paths", err)
			return
		}
		httputil.OkJSON(w, resp)
	}
}

func createIndexesHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireUpstream(w, up) {
			return
		}
		resp, err := up.CreateIndexes(r.Context())
		if err != nil {
			upstreamError(w, "create indexes", err)
			return
		}
		httputil.OkJSON(w, resp)
	}
}

func cleanupHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !requireUpstream(w, up) {
			return
		}
		resp, err := up.CleanupPaths(r.Context())
		if err != nil {
			upstreamError(w, "cleanup paths", err)
			return
		}
		httputil.OkJSON(w, resp)
	}
}

type voiceRequest struct {
	Transcript string `json:"transcript"`
	SessionID  string `json:"sessionId"`
}

func voiceCommandHandler(up Upstream) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req voiceRequest
		if err := httputil.Parse(r, &req); err != nil {
			httputil.Error(w, err)
			return
		}
		if strings.TrimSpace(req.Transcript) == "" {
			httputil.ErrorWithCode(w, http.StatusBadRequest, "transcript is required")
			return
		}
		if !requireUpstream(w, up) {
			return
		}
		if err := up.SendVoiceCommand(req.Transcript, req.SessionID); err != nil {
			upstreamError(w, "voice command", err)
			return
		}
		httputil.OkJSON(w, types.MessageResponse{Message: "Voice command forwarded."})
	}
}
