package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vowser/controlhub/internal/control"
	"github.com/vowser/controlhub/internal/tools"
	"github.com/vowser/controlhub/internal/types"
)

type fakeUpstream struct {
	mu   sync.Mutex
	err  error
	sent []types.ContributionMessage
}

func (f *fakeUpstream) SendContributionData(msg types.ContributionMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func newTestHandler(up ContributionSender) (*Handler, *control.Service) {
	svc := control.NewService()
	reg := tools.NewRegistry(tools.BrowserTools(svc)...)
	return NewHandler(svc, reg, up, Options{SendBuffer: 16}), svc
}

func toolResult(t *testing.T, v any) types.ToolResult {
	t.Helper()
	res, ok := v.(types.ToolResult)
	require.True(t, ok, "expected ToolResult, got %T", v)
	return res
}

func TestHandleMessageInvalidJSON(t *testing.T) {
	h, _ := newTestHandler(nil)

	for _, msg := range []string{`{not json`, `[1,2]`, `"text"`} {
		res := toolResult(t, h.HandleMessage(context.Background(), []byte(msg)))
		assert.True(t, res.IsError)
		assert.True(t, strings.HasPrefix(res.Text(), "invalid JSON format: "), res.Text())
	}
}

func TestHandleMessageUnknownTool(t *testing.T) {
	h, _ := newTestHandler(nil)
	res := toolResult(t, h.HandleMessage(context.Background(), []byte(`{"toolName":"unknownTool","args":{}}`)))
	assert.True(t, res.IsError)
	assert.Contains(t, res.Text(), "tool not found: unknownTool")
}

func TestHandleMessageToolNeedsClient(t *testing.T) {
	h, _ := newTestHandler(nil)
	res := toolResult(t, h.HandleMessage(context.Background(), []byte(`{"toolName":"goBack","args":{}}`)))
	assert.Equal(t, "tool not available: goBack", res.Text())
}

func TestHandleMessageEmptyElementID(t *testing.T) {
	h, svc := newTestHandler(nil)
	sess := control.NewSession(nil, 4)
	defer sess.Close()
	svc.Register(sess)

	res := toolResult(t, h.HandleMessage(context.Background(), []byte(`{"toolName":"clickElement","args":{"elementId":""}}`)))
	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":[{"type":"text","text":"error: element id is empty"}],"isError":true}`, string(data))
}

func TestIsContribution(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{`{"type":"save_contribution_path"}`, true},
		{`{"sessionId":"s","task":"t","steps":[]}`, true},
		{`{"sessionId":"s","task":"t","steps":[],"toolName":"navigate"}`, false},
		{`{"sessionId":"s","task":"t"}`, false},
		{`{"type":"other","toolName":"navigate"}`, false},
		{`{"type":5}`, false},
	}
	for _, tt := range tests {
		var fields map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(tt.msg), &fields))
		assert.Equal(t, tt.want, isContribution(fields), tt.msg)
	}
}

func TestContributionForwardedAndAcknowledged(t *testing.T) {
	up := &fakeUpstream{}
	h, _ := newTestHandler(up)

	msg := `{"type":"save_contribution_path","sessionId":"c1","task":"login","steps":[{"url":"a"},{"url":"b"}],"isComplete":true,"totalSteps":2}`
	reply := h.HandleMessage(context.Background(), []byte(msg))

	assert.Equal(t, types.ContributionResponse{
		Type:      "contribution_response",
		SessionID: "c1",
		Success:   true,
		Message:   "contribution data saved successfully",
		StepCount: 2,
	}, reply)

	require.Len(t, up.sent, 1)
	assert.Equal(t, "login", up.sent[0].Task)
	assert.True(t, up.sent[0].IsComplete)
	assert.Equal(t, 2, up.sent[0].TotalSteps)
	assert.Equal(t, types.TypeSaveContributionPath, up.sent[0].Type)
}

func TestLegacyContributionShape(t *testing.T) {
	up := &fakeUpstream{}
	h, _ := newTestHandler(up)

	reply := h.HandleMessage(context.Background(), []byte(`{"sessionId":"c2","task":"search","steps":[{}]}`))
	ack, ok := reply.(types.ContributionResponse)
	require.True(t, ok)
	assert.True(t, ack.Success)
	assert.Equal(t, 1, ack.StepCount)
}

func TestContributionFailures(t *testing.T) {
	tests := []struct {
		name, msg, session, contains string
		upErr                        error
	}{
		{"steps not an array", `{"type":"save_contribution_path","sessionId":"c3","task":"t","steps":"x"}`, "c3", "contribution processing failed: ", nil},
		{"empty steps", `{"type":"save_contribution_path","sessionId":"c4","task":"t","steps":[]}`, "c4", "steps must not be empty", nil},
		{"missing session", `{"type":"save_contribution_path","task":"t","steps":[{}]}`, "unknown", "sessionId is required", nil},
		{"upstream down", `{"type":"save_contribution_path","sessionId":"c5","task":"t","steps":[{}]}`, "c5", "upstream not connected", errors.New("upstream not connected")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(&fakeUpstream{err: tt.upErr})
			ack, ok := h.HandleMessage(context.Background(), []byte(tt.msg)).(types.ContributionResponse)
			require.True(t, ok)
			assert.False(t, ack.Success)
			assert.Equal(t, tt.session, ack.SessionID)
			assert.Zero(t, ack.StepCount)
			assert.Contains(t, ack.Message, tt.contains)
		})
	}
}

func TestContributionWithoutUpstream(t *testing.T) {
	h, _ := newTestHandler(nil)
	ack := h.HandleMessage(context.Background(), []byte(`{"sessionId":"c6","task":"t","steps":[{}]}`)).(types.ContributionResponse)
	assert.False(t, ack.Success)
}

// dial connects a test client to a running handler.
func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestServeHTTPEndToEnd(t *testing.T) {
	h, svc := newTestHandler(nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)

	var greeting types.ToolResult
	readJSON(t, conn, &greeting)
	assert.False(t, greeting.IsError)
	assert.Equal(t, "Connected to the control service. Available tools: navigate, clickElement, goBack, goForward", greeting.Text())
	assert.Equal(t, 1, svc.ActiveCount())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`garbage`)))
	var bad types.ToolResult
	readJSON(t, conn, &bad)
	assert.True(t, bad.IsError)
	assert.Contains(t, bad.Text(), "invalid JSON format")

	// The navigate command lands on this same client, then the tool result.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"toolName":"navigate","args":{"url":"naver.com"}}`)))
	var cmd map[string]any
	readJSON(t, conn, &cmd)
	assert.Equal(t, map[string]any{"action": "navigate", "url": "https://naver.com"}, cmd)

	var res types.ToolResult
	readJSON(t, conn, &res)
	assert.False(t, res.IsError)
	assert.Equal(t, "Successfully navigated to: https://naver.com", res.Text())

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return svc.ActiveCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServeHTTPRateLimit(t *testing.T) {
	svc := control.NewService()
	reg := tools.NewRegistry(tools.BrowserTools(svc)...)
	h := NewHandler(svc, reg, nil, Options{SendBuffer: 16, RateLimit: 0.001, RateBurst: 1})
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := dial(t, srv)
	var greeting types.ToolResult
	readJSON(t, conn, &greeting)

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"toolName":"unknownTool"}`)))
	}
	var first, second types.ToolResult
	readJSON(t, conn, &first)
	readJSON(t, conn, &second)
	assert.Contains(t, first.Text(), "tool not found: unknownTool")
	assert.Equal(t, "rate limit exceeded", second.Text())
}
