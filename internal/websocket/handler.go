package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/vowser/controlhub/internal/control"
	"github.com/vowser/controlhub/internal/crashlog"
	"github.com/vowser/controlhub/internal/logging"
	"github.com/vowser/controlhub/internal/tools"
	"github.com/vowser/controlhub/internal/types"
)

const greetingPrefix = "Connected to the control service. Available tools: "

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser agents connect from extension and localhost origins.
		return true
	},
}

// ContributionSender forwards contribution data upstream.
type ContributionSender interface {
	SendContributionData(msg types.ContributionMessage) error
}

// Options tunes each downstream connection.
type Options struct {
	MaxMessageSize int64
	SendBuffer     int
	// RateLimit is inbound frames per second; zero disables limiting.
	RateLimit float64
	RateBurst int
}

// Handler is the message loop for downstream control connections.
type Handler struct {
	control  *control.Service
	tools    *tools.Registry
	upstream ContributionSender
	opts     Options
}

// NewHandler wires a handler. upstream may be nil, in which case
// contributions are acknowledged with a failure.
func NewHandler(svc *control.Service, registry *tools.Registry, upstream ContributionSender, opts Options) *Handler {
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 1 << 20
	}
	return &Handler{control: svc, tools: registry, upstream: upstream, opts: opts}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Errorf("[WS] upgrade error: %v", err)
		return
	}

	sess := control.NewSession(conn, h.opts.SendBuffer)
	h.control.Register(sess)
	logging.Infof("[WS] connection established: session=%s remote=%s", sess.ID, r.RemoteAddr)

	go sess.WritePump()
	h.greet(sess)
	h.readLoop(r.Context(), sess)
}

func (h *Handler) greet(sess *control.Session) {
	names := h.tools.AvailableNames()
	h.reply(sess, types.TextResult(greetingPrefix+strings.Join(names, ", ")))
}

func (h *Handler) readLoop(ctx context.Context, sess *control.Session) {
	conn := sess.Conn()
	defer func() {
		h.control.Unregister(sess)
		sess.Close()
		conn.Close()
	}()

	conn.SetReadLimit(h.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(control.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(control.PongWait))
		return nil
	})

	var limiter *rate.Limiter
	if h.opts.RateLimit > 0 {
		burst := h.opts.RateBurst
		if burst <= 0 {
			burst = int(h.opts.RateLimit) + 1
		}
		limiter = rate.NewLimiter(rate.Limit(h.opts.RateLimit), burst)
	}

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warnf("[WS] transport error: session=%s: %v", sess.ID, err)
			} else {
				logging.Infof("[WS] connection closed: session=%s", sess.ID)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if limiter != nil && !limiter.Allow() {
			h.reply(sess, types.ErrorResult("rate limit exceeded"))
			continue
		}
		h.reply(sess, h.HandleMessage(ctx, msg))
	}
}

func (h *Handler) reply(sess *control.Session, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Errorf("[WS] reply serialization failed: %v", err)
		return
	}
	if err := h.control.SendTo(sess, data); err != nil {
		logging.Warnf("[WS] reply to %s dropped: %v", sess.ID, err)
	}
}

// HandleMessage classifies one inbound frame and returns the reply for the
// sender: a ContributionResponse for contribution events, otherwise a
// ToolResult. It never panics.
func (h *Handler) HandleMessage(ctx context.Context, msg []byte) (reply any) {
	defer func() {
		if rec := recover(); rec != nil {
			crashlog.LogPanic("websocket", rec, nil)
			reply = types.ErrorResult(fmt.Sprintf("message processing failed: %v", rec))
		}
	}()

	logging.Debugf("[WS] received %d bytes: %s", len(msg), logging.Truncate(string(msg), 200))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(msg, &fields); err != nil {
		logging.Warnf("[WS] invalid JSON: %v", err)
		return types.ErrorResult("invalid JSON format: " + err.Error())
	}

	if isContribution(fields) {
		return h.handleContribution(msg)
	}

	var req types.CallToolRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return types.ErrorResult("invalid JSON format: " + err.Error())
	}
	res := h.tools.Call(ctx, req.ToolName, req.Args)
	logging.Infof("[WS] tool %s done: error=%t", req.ToolName, res.IsError)
	return res
}

// isContribution recognizes the explicit save_contribution_path event and
// the older shape that carried sessionId, task and steps with no toolName.
func isContribution(fields map[string]json.RawMessage) bool {
	if raw, ok := fields["type"]; ok {
		var typ string
		if json.Unmarshal(raw, &typ) == nil && typ == types.TypeSaveContributionPath {
			return true
		}
	}
	_, hasSession := fields["sessionId"]
	_, hasTask := fields["task"]
	_, hasSteps := fields["steps"]
	_, hasTool := fields["toolName"]
	return hasSession && hasTask && hasSteps && !hasTool
}
