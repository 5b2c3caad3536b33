package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vowser/controlhub/internal/config"
	"github.com/vowser/controlhub/internal/control"
	"github.com/vowser/controlhub/internal/tools"
	"github.com/vowser/controlhub/internal/types"
	"github.com/vowser/controlhub/internal/upstream"
)

type fakeUpstream struct {
	connected bool
	err       error
	calls     []string
	voice     []string
}

func (f *fakeUpstream) record(call string) error {
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeUpstream) IsConnected() bool { return f.connected }

func (f *fakeUpstream) SavePath(_ context.Context, p types.PathSubmission) (*types.SavePathResponse, error) {
	if err := f.record("save:" + p.TaskIntent); err != nil {
		return nil, err
	}
	resp := &types.SavePathResponse{Status: "success"}
	resp.Data.Result.StepsSaved = len(p.Steps)
	return resp, nil
}

func (f *fakeUpstream) SearchPath(_ context.Context, query string, limit int, domain string) (json.RawMessage, error) {
	if err := f.record(fmt.Sprintf("search:%s:%d:%s", query, limit, domain)); err != nil {
		return nil, err
	}
	return json.RawMessage(`{"type":"search_path_result","status":"success"}`), nil
}

func (f *fakeUpstream) CheckGraph(context.Context) (*types.GraphStatsResponse, error) {
	if err := f.record("graph"); err != nil {
		return nil, err
	}
	resp := &types.GraphStatsResponse{Status: "success"}
	resp.Data.RelationshipCount = 9
	return resp, nil
}

func (f *fakeUpstream) VisualizePaths(_ context.Context, domain string) (*types.VisualizePathsResponse, error) {
	return &types.VisualizePathsResponse{Status: "success"}, f.record("visualize:" + domain)
}

func (f *fakeUpstream) FindPopularPaths(_ context.Context, domain string, limit int) (*types.PopularPathsResponse, error) {
	return &types.PopularPathsResponse{Status: "success"}, f.record(fmt.Sprintf("popular:%s:%d", domain, limit))
}

func (f *fakeUpstream) CreateIndexes(context.Context) (*types.IndexResponse, error) {
	return &types.IndexResponse{Status: "success"}, f.record("indexes")
}

func (f *fakeUpstream) CleanupPaths(context.Context) (*types.CleanupResponse, error) {
	return &types.CleanupResponse{Status: "success"}, f.record("cleanup")
}

func (f *fakeUpstream) SendVoiceCommand(transcript, sessionID string) error {
	if f.err != nil {
		return f.err
	}
	f.voice = append(f.voice, transcript+"|"+sessionID)
	return nil
}

func (f *fakeUpstream) SendContributionData(types.ContributionMessage) error { return f.err }

func testConfig() config.Config {
	var c config.Config
	c.Control.Path = "/control"
	c.Control.SendBuffer = 16
	c.MCP.Enabled = true
	c.MCP.Path = "/mcp"
	return c
}

func newTestServer(t *testing.T, up Upstream, mcp http.Handler) (*httptest.Server, *control.Service) {
	t.Helper()
	svc := control.NewService()
	srv := httptest.NewServer(NewRouter(Options{
		Config:   testConfig(),
		Control:  svc,
		Tools:    tools.NewRegistry(tools.BrowserTools(svc)...),
		Upstream: up,
		MCP:      mcp,
		Quiet:    true,
	}))
	t.Cleanup(srv.Close)
	return srv, svc
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(data)
}

// attach registers an in-process client session and returns its queue.
func attach(t *testing.T, svc *control.Service) *control.Session {
	t.Helper()
	sess := control.NewSession(nil, 8)
	svc.Register(sess)
	t.Cleanup(sess.Close)
	return sess
}

func TestHealth(t *testing.T) {
	srv, svc := newTestServer(t, &fakeUpstream{connected: true}, nil)
	attach(t, svc)

	code, body := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok","upstreamConnected":true,"activeSessions":1}`, body)
}

func TestBrowserControlRoutes(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)

	code, body := do(t, http.MethodGet, srv.URL+"/browser-control/navigate?url=https://google.com", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"Navigate command sent to client with URL: https://google.com"}`, body)

	code, _ = do(t, http.MethodGet, srv.URL+"/browser-control/navigate", "")
	assert.Equal(t, http.StatusBadRequest, code)

	// Without a client the commands are dropped but the call still succeeds.
	code, body = do(t, http.MethodGet, srv.URL+"/browser-control/go-back", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"GoBack command sent to client."}`, body)

	code, body = do(t, http.MethodGet, srv.URL+"/browser-control/go-forward", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"GoForward command sent to client."}`, body)
	assert.Zero(t, svc.ActiveCount())
}

func TestSendNavigationPath(t *testing.T) {
	srv, svc := newTestServer(t, nil, nil)
	attach(t, svc)

	code, body := do(t, http.MethodPost, srv.URL+"/browser-control/send-navigation-path",
		`{"query":"login","paths":[{"pathId":"a"},{"pathId":"b"}]}`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"Navigation paths sent to client.","pathCount":2}`, body)

	code, _ = do(t, http.MethodPost, srv.URL+"/browser-control/send-navigation-path", `{bad`)
	assert.Equal(t, http.StatusBadRequest, code)

	// Valid JSON that is not an object is still forwarded, without a count.
	code, body = do(t, http.MethodPost, srv.URL+"/browser-control/send-navigation-path", `[1,2]`)
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"message":"Navigation paths sent to client."}`, body)
}

func TestPathRoutes(t *testing.T) {
	up := &fakeUpstream{connected: true}
	srv, _ := newTestServer(t, up, nil)

	code, body := do(t, http.MethodGet, srv.URL+"/api/v1/paths/search?query=login", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"type":"search_path_result","status":"success"}`, body)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/paths/search?query=x&limit=5&domain=naver.com", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/paths/search", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = do(t, http.MethodGet, srv.URL+"/api/v1/paths/graph/stats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"relationship_count":9`)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/paths/graph/visualize/naver.com", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/paths/popular?domain=naver.com", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, http.MethodGet, srv.URL+"/api/v1/paths/popular", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/paths/admin/indexes", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/paths/admin/cleanup", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = do(t, http.MethodPost, srv.URL+"/api/v1/paths/",
		`{"session_id":"s","task_intent":"login","domain":"naver.com","steps":[{"url":"https://naver.com","action":"click"}]}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"steps_saved":1`)

	assert.Equal(t, []string{
		"search:login:3:",
		"search:x:5:naver.com",
		"graph",
		"visualize:naver.com",
		"popular:naver.com:10",
		"indexes",
		"cleanup",
		"save:login",
	}, up.calls)
}

func TestPathRouteErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{upstream.ErrNotConnected, http.StatusServiceUnavailable},
		{upstream.ErrShuttingDown, http.StatusServiceUnavailable},
		{fmt.Errorf("wait: %w", upstream.ErrRequestTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("decode reply: bad"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		srv, _ := newTestServer(t, &fakeUpstream{err: tt.err}, nil)
		code, _ := do(t, http.MethodGet, srv.URL+"/api/v1/paths/graph/stats", "")
		assert.Equal(t, tt.code, code, tt.err.Error())
	}

	srv, _ := newTestServer(t, nil, nil)
	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/paths/admin/cleanup", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestVoiceCommand(t *testing.T) {
	up := &fakeUpstream{connected: true}
	srv, _ := newTestServer(t, up, nil)

	code, _ := do(t, http.MethodPost, srv.URL+"/api/v1/voice/command", `{"transcript":"  ","sessionId":"s1"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = do(t, http.MethodPost, srv.URL+"/api/v1/voice/command", `{"transcript":"open webtoon","sessionId":"s1"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"open webtoon|s1"}, up.voice)

	down, _ := newTestServer(t, &fakeUpstream{err: upstream.ErrNotConnected}, nil)
	code, _ = do(t, http.MethodPost, down.URL+"/api/v1/voice/command", `{"transcript":"hi"}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestVoiceCommandChunkedBody(t *testing.T) {
	up := &fakeUpstream{connected: true}
	srv, _ := newTestServer(t, up, nil)

	// A body of unknown length goes out with chunked transfer encoding.
	body := io.MultiReader(strings.NewReader(`{"transcript":"open youtube",`), strings.NewReader(`"sessionId":"s1"}`))
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/voice/command", body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	require.EqualValues(t, 0, req.ContentLength)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"open youtube|s1"}, up.voice)
}

func TestMCPMount(t *testing.T) {
	mcp := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	srv, _ := newTestServer(t, nil, mcp)

	code, _ := do(t, http.MethodPost, srv.URL+"/mcp", `{}`)
	assert.Equal(t, http.StatusTeapot, code)
}

func TestRunShutsDownOnCancel(t *testing.T) {
	ln := httptest.NewServer(http.NotFoundHandler())
	addr := ln.Listener.Addr().String()
	ln.Close()

	c := testConfig()
	host, port, ok := strings.Cut(addr, ":")
	require.True(t, ok)
	c.Server.Host = host
	_, err := fmt.Sscan(port, &c.Server.Port)
	require.NoError(t, err)
	c.Server.ShutdownTimeout = config.Duration(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Config: c, Control: control.NewService(), Tools: tools.NewRegistry(), Quiet: true})
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
}
