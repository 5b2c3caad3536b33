package control

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vowser/controlhub/internal/types"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession(nil, 8)
	t.Cleanup(s.Close)
	return s
}

// drain returns every frame queued on s without blocking.
func drain(s *Session) [][]byte {
	var out [][]byte
	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				return out
			}
			out = append(out, msg)
		default:
			return out
		}
	}
}

func TestSelectTargetMostRecentOpen(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	b := newTestSession(t)

	assert.Nil(t, svc.SelectTarget())

	svc.Register(a)
	svc.Register(b)
	assert.Same(t, b, svc.SelectTarget())
	assert.Equal(t, 2, svc.ActiveCount())

	b.Close()
	assert.Same(t, a, svc.SelectTarget())
	assert.Equal(t, 1, svc.ActiveCount())

	a.Close()
	assert.Nil(t, svc.SelectTarget())
	assert.Zero(t, svc.ActiveCount())
}

func TestRegisterIsIdempotentPerID(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	b := newTestSession(t)

	svc.Register(a)
	svc.Register(b)
	svc.Register(a)

	assert.Same(t, b, svc.SelectTarget())
	assert.Equal(t, 2, svc.ActiveCount())
}

func TestUnregisterTwiceIsNoop(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	b := newTestSession(t)
	svc.Register(a)
	svc.Register(b)

	svc.Unregister(b)
	svc.Unregister(b)

	assert.Same(t, a, svc.SelectTarget())
	assert.Equal(t, 1, svc.ActiveCount())
}

func TestSendCommandGoesToTargetOnly(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	b := newTestSession(t)
	svc.Register(a)
	svc.Register(b)

	svc.SendCommand(types.Command{"action": "goBack"})

	assert.Empty(t, drain(a))
	frames := drain(b)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `{"action":"goBack"}`, string(frames[0]))
}

func TestDropWithoutTarget(t *testing.T) {
	svc := NewService()
	closed := newTestSession(t)
	svc.Register(closed)
	closed.Close()

	assert.NotPanics(t, func() {
		svc.SendCommand(types.Command{"action": "goBack"})
		svc.Relay([]byte(`{"type":"anything"}`))
	})
	assert.Empty(t, drain(closed))
}

func TestSendCommandUnserializable(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	svc.Register(a)

	svc.SendCommand(types.Command{"bad": func() {}})
	assert.Empty(t, drain(a))
}

func TestSessionSendAfterClose(t *testing.T) {
	s := NewSession(nil, 1)
	require.NoError(t, s.Send([]byte("x")))
	assert.ErrorIs(t, s.Send([]byte("y")), ErrSendBufferFull)

	s.Close()
	s.Close()
	assert.False(t, s.IsOpen())
	assert.ErrorIs(t, s.Send([]byte("z")), ErrSessionClosed)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestServiceClose(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	svc.Register(a)

	svc.Close()
	assert.False(t, a.IsOpen())
	assert.Nil(t, svc.SelectTarget())
}

func TestSendToSpecificSession(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	b := newTestSession(t)
	svc.Register(a)
	svc.Register(b)

	require.NoError(t, svc.SendTo(a, []byte(`{}`)))
	assert.Len(t, drain(a), 1)
	assert.Empty(t, drain(b))

	a.Close()
	assert.ErrorIs(t, svc.SendTo(a, []byte(`{}`)), ErrSessionClosed)
}

func TestRelayVerbatim(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	svc.Register(a)

	raw := `{"type":"contribution_response","success":true}`
	svc.Relay([]byte(raw))
	svc.Relay([]byte("not json"))

	frames := drain(a)
	require.Len(t, frames, 2)
	assert.Equal(t, raw, string(frames[0]))
	assert.Equal(t, "not json", string(frames[1]))
}

func TestRelayReshapesSearchResult(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	svc.Register(a)

	raw := `{
		"type": "search_path_result",
		"status": "success",
		"data": {
			"query": "웹툰 보기",
			"matched_paths": [
				{"pathId": "test", "score": 0.5, "steps": [
					{"title": "t", "action": "navigate", "url": "https://EXAMPLE.com/x", "selector": ""}
				]},
				{"pathId": "p1", "score": 0.9, "total_weight": 7, "lastUsed": "2024-01-01", "estimatedTime": 3.5, "steps": [
					{"title": "Home", "action": "페이지 접속", "url": "https://comic.naver.com", "selector": ""},
					{"title": "Login", "action": "로그인 버튼 클릭", "url": "https://comic.naver.com", "selector": "#login"},
					{"title": "Search", "action": "검색어 입력: 마음의 소리", "url": "https://comic.naver.com", "selector": "#q"},
					{"title": "Misc", "action": "scroll", "url": "https://comic.naver.com", "selector": ".list"}
				]}
			]
		}
	}`
	svc.Relay([]byte(raw))

	frames := drain(a)
	require.Len(t, frames, 1)

	var got struct {
		Type string                 `json:"type"`
		Data types.AllPathsResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frames[0], &got))
	assert.Equal(t, types.TypeAllNavigationPaths, got.Type)
	assert.Equal(t, "웹툰 보기", got.Data.Query)
	require.Len(t, got.Data.Paths, 1)

	p := got.Data.Paths[0]
	assert.Equal(t, "p1", p.PathID)
	require.NotNil(t, p.TotalWeight)
	assert.Equal(t, 7, *p.TotalWeight)
	require.Len(t, p.Steps, 4)
	assert.Equal(t, "navigate", p.Steps[0].Action)
	assert.Equal(t, "click", p.Steps[1].Action)
	assert.Equal(t, "type", p.Steps[2].Action)
	assert.Equal(t, map[string]any{"value": "마음의 소리"}, p.Steps[2].HTMLAttributes)
	assert.Equal(t, "click", p.Steps[3].Action)
	assert.Nil(t, p.Steps[3].HTMLAttributes)
}

func TestRelayDropsUnusableSearchResults(t *testing.T) {
	svc := NewService()
	a := newTestSession(t)
	svc.Register(a)

	for _, raw := range []string{
		`{"type":"search_path_result","status":"error","data":{"matched_paths":[]}}`,
		`{"type":"search_path_result","status":"success","data":{"matched_paths":[]}}`,
		`{"type":"search_path_result","status":"success"}`,
		`{"type":"search_path_result","status":"success","data":{"matched_paths":[
			{"pathId":"x","steps":[{"action":"navigate","url":"http://example.com"}]}
		]}}`,
	} {
		svc.Relay([]byte(raw))
	}
	assert.Empty(t, drain(a))
}

func TestClientAction(t *testing.T) {
	tests := []struct {
		action, selector, want string
	}{
		{"Navigate to home", "", "navigate"},
		{"메인으로 이동", "#x", "navigate"},
		{"CLICK submit", "", "click"},
		{"버튼 클릭", "", "click"},
		{"Type keyword", "#q", "type"},
		{"아이디 입력", "#id", "type"},
		{"scroll", "", "navigate"},
		{"scroll", "  ", "navigate"},
		{"hover", ".menu", "click"},
	}
	for _, tt := range tests {
		got := clientAction(types.MatchedStep{Action: tt.action, Selector: tt.selector})
		assert.Equal(t, tt.want, got, tt.action)
	}
}

func TestExtractInputValue(t *testing.T) {
	tests := map[string]string{
		"검색어 입력: 날씨":         "날씨",
		"검색어 입력：  서울 맛집  ":   "서울 맛집",
		"Type query: golang": "golang",
		`"홍길동" 입력`:           "홍길동",
		`'비밀번호' 입력`:          "비밀번호",
		"입력":                 "",
		"type something":     "",
		"검색어 입력:    ":        "",
	}
	for action, want := range tests {
		assert.Equal(t, want, extractInputValue(action), action)
	}
}
