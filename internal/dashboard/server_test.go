package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/TheLazyLemur/pathscope/internal/audit"
	"github.com/TheLazyLemur/pathscope/internal/core"
	"github.com/TheLazyLemur/pathscope/internal/intervention"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassword = "testpass"

type mockLister struct {
	records []*audit.Record
	err     error
	limit   int
}

func (m *mockLister) List(_ context.Context, limit int) ([]*audit.Record, error) {
	m.limit = limit
	return m.records, m.err
}

func newTestGate(t *testing.T) *core.Gate {
	t.Helper()
	e, err := intervention.NewEvaluator(intervention.NewRegistry(), intervention.DefaultPolicy())
	require.NoError(t, err)
	return core.NewGate(e, nil)
}

func login(t *testing.T, handler http.Handler) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("password="+testPassword))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestServer_NoPassword_Returns403(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, "")
	handler := s.Handler()

	for _, path := range []string{"/", "/login", "/api/resolve", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestServer_LoginPage_Unauthenticated(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, testPassword)

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Password")
}

func TestServer_Index_RedirectsToLogin(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, testPassword)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestServer_Login_WrongPassword(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, testPassword)

	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader("password=wrong"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Index_WithValidSession(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, testPassword)
	handler := s.Handler()
	cookie := login(t, handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pathscope decisions")
}

func TestServer_ExpiredSessionRejected(t *testing.T) {
	s := NewServer(nil, nil, nil, nil, testPassword)
	handler := s.Handler()
	cookie := login(t, handler)

	// given - session already expired
	s.mu.Lock()
	s.sessions[cookie.Value] = time.Now().Add(-time.Minute)
	s.mu.Unlock()

	// when
	req := httptest.NewRequest(http.MethodGet, "/api/decisions", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// then
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_WS_Unauthenticated(t *testing.T) {
	s := NewServer(NewHub(), nil, nil, nil, testPassword)

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Resolve_BearerToken(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// given
	s := NewServer(nil, newTestGate(t), nil, nil, testPassword)
	body := `{"tool":"renameLocalFile","arguments":{"oldPath":"/home/user/a.txt","newPath":"/tmp/a.txt"},"metadata":{"workingDirectory":"/home/user"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testPassword)
	rec := httptest.NewRecorder()

	// when
	s.Handler().ServeHTTP(rec, req)

	// then
	r.Equal(http.StatusOK, rec.Code)
	var d intervention.Decision
	r.NoError(json.Unmarshal(rec.Body.Bytes(), &d))
	a.True(d.Required)
	a.Equal("renameLocalFile", d.Tool)
	a.Equal([]string{"/tmp/a.txt"}, d.OutsidePaths)
}

func TestServer_Resolve_WrongBearerToken(t *testing.T) {
	s := NewServer(nil, newTestGate(t), nil, nil, testPassword)

	req := httptest.NewRequest(http.MethodPost, "/api/resolve", strings.NewReader(`{"tool":"x"}`))
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_Resolve_BadRequests(t *testing.T) {
	s := NewServer(nil, newTestGate(t), nil, nil, testPassword)
	handler := s.Handler()

	tests := []struct {
		name   string
		method string
		body   string
		code   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"invalid json", http.MethodPost, "{", http.StatusBadRequest},
		{"missing tool", http.MethodPost, `{"arguments":{}}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/resolve", strings.NewReader(tt.body))
			req.Header.Set("Authorization", "Bearer "+testPassword)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestServer_Decisions(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// given
	lister := &mockLister{records: []*audit.Record{{ID: "d1", Tool: "readLocalFile", Required: true}}}
	s := NewServer(nil, nil, lister, nil, testPassword)
	handler := s.Handler()
	cookie := login(t, handler)

	// when
	req := httptest.NewRequest(http.MethodGet, "/api/decisions?limit=5", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	// then
	r.Equal(http.StatusOK, rec.Code)
	a.Equal(5, lister.limit)
	var records []audit.Record
	r.NoError(json.Unmarshal(rec.Body.Bytes(), &records))
	r.Len(records, 1)
	a.Equal("d1", records[0].ID)
}

func TestServer_Decisions_EmptyIsArray(t *testing.T) {
	s := NewServer(nil, nil, &mockLister{}, nil, testPassword)

	req := httptest.NewRequest(http.MethodGet, "/api/decisions", nil)
	req.Header.Set("Authorization", "Bearer "+testPassword)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestServer_Decisions_Errors(t *testing.T) {
	a := assert.New(t)

	authed := func(path string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+testPassword)
		return req
	}

	// invalid limit
	rec := httptest.NewRecorder()
	NewServer(nil, nil, &mockLister{}, nil, testPassword).Handler().ServeHTTP(rec, authed("/api/decisions?limit=abc"))
	a.Equal(http.StatusBadRequest, rec.Code)

	// store failure
	rec = httptest.NewRecorder()
	NewServer(nil, nil, &mockLister{err: errors.New("db locked")}, nil, testPassword).Handler().ServeHTTP(rec, authed("/api/decisions"))
	a.Equal(http.StatusInternalServerError, rec.Code)

	// no store configured
	rec = httptest.NewRecorder()
	NewServer(nil, nil, nil, nil, testPassword).Handler().ServeHTTP(rec, authed("/api/decisions"))
	a.Equal(http.StatusServiceUnavailable, rec.Code)
}

func TestServer_Metrics(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// given
	metrics := NewMetrics("readLocalFile")
	s := NewServer(nil, nil, nil, metrics, testPassword)
	s.NotifyDecision(intervention.Decision{Tool: "readLocalFile", Required: true})

	// when
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer "+testPassword)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	// then
	r.Equal(http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	r.NoError(err)
	a.Contains(string(body), `pathscope_decisions_total{required="true",tool="readLocalFile"} 1`)
}

func TestServer_WS_ReceivesDecisions(t *testing.T) {
	a := assert.New(t)
	r := require.New(t)

	// given
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	gate := newTestGate(t)
	s := NewServer(hub, gate, nil, nil, testPassword)
	gate.AddNotifier(s)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testPassword)
	header.Set("Origin", ts.URL)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)
	r.NoError(err)
	defer conn.Close()

	r.Eventually(func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	// when
	_, err = gate.Check(context.Background(), core.Request{Tool: "runCommand"})
	r.NoError(err)

	// then
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	r.NoError(err)
	var msg Message
	r.NoError(json.Unmarshal(data, &msg))
	a.Equal("decision", msg.Type)
	r.NotNil(msg.Decision)
	a.Equal("runCommand", msg.Decision.Tool)
	a.True(msg.Decision.Required)
}

func TestServer_WS_RejectsForeignOrigin(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	s := NewServer(hub, nil, nil, nil, testPassword)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testPassword)
	header.Set("Origin", "http://evil.example.com")
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", header)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
