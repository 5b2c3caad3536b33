package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vowser/controlhub/internal/control"
	"github.com/vowser/controlhub/internal/httputil"
	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/types"
)

// browser_command sub-types.
const (
	browserNavigate  = "navigate"
	browserGoBack    = "go_back"
	browserGoForward = "go_forward"
)

func registerBrowserRoutes(r chi.Router, svc *control.Service) {
	r.Get("/navigate", navigateHandler(svc))
	r.Get("/go-back", historyHandler(svc, browserGoBack, "GoBack command sent to client."))
	r.Get("/go-forward", historyHandler(svc, browserGoForward, "GoForward command sent to client."))
	r.Post("/send-navigation-path", sendNavigationPathHandler(svc))
}

func navigateHandler(svc *control.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		url := strings.TrimSpace(httputil.QueryString(r, "url", ""))
		if url == "" {
			httputil.ErrorWithCode(w, http.StatusBadRequest, "url is required")
			return
		}
		svc.SendCommand(types.NewCommand(types.TypeBrowserCommand, map[string]any{
			"type": browserNavigate,
			"url":  url,
		}))
		httputil.OkJSON(w, types.MessageResponse{Message: "Navigate command sent to client with URL: " + url})
	}
}

func historyHandler(svc *control.Service, typ, message string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		svc.SendCommand(types.NewCommand(types.TypeBrowserCommand, map[string]any{"type": typ}))
		httputil.OkJSON(w, types.MessageResponse{Message: message})
	}
}

// sendNavigationPathHandler pushes a caller-built all_navigation_paths
// payload to the active client unchanged.
func sendNavigationPathHandler(svc *control.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			httputil.ErrorWithCode(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}

		resp := types.MessageResponse{Message: "Navigation paths sent to client."}
		var payload struct {
			Paths []json.RawMessage `json:"paths"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			logging.Debugf("[Server] navigation payload has no paths array: %v", err)
		} else {
			count := len(payload.Paths)
			resp.PathCount = &count
		}

		svc.SendCommand(types.NewCommand(types.TypeAllNavigationPaths, body))
		logging.Infof("[Server] navigation paths pushed")
		httputil.OkJSON(w, resp)
	}
}
