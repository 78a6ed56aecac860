// Package dashboard serves the decision API, a live decision feed over
// WebSocket, and Prometheus metrics.
package dashboard

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"embed"
	"encoding/hex"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/TheLazyLemur/pathscope/internal/audit"
	"github.com/TheLazyLemur/pathscope/internal/core"
	"github.com/TheLazyLemur/pathscope/internal/intervention"
	"github.com/gorilla/websocket"
)

//go:embed static/*
var staticFiles embed.FS

const (
	sessionCookieName = "pathscope_session"
	sessionTTL        = 7 * 24 * time.Hour
	maxRequestBody    = 1 << 20
)

var _ core.Notifier = (*Server)(nil)

// DecisionLister reads recent audited decisions.
type DecisionLister interface {
	List(ctx context.Context, limit int) ([]*audit.Record, error)
}

// Server handles the dashboard HTTP and WS endpoints.
type Server struct {
	hub      *Hub
	upgrader websocket.Upgrader
	gate     *core.Gate
	store    DecisionLister
	metrics  *Metrics
	password string

	mu       sync.Mutex
	sessions map[string]time.Time // token -> expiry
}

// NewServer creates a dashboard server. store and metrics may be nil.
func NewServer(hub *Hub, gate *core.Gate, store DecisionLister, metrics *Metrics, password string) *Server {
	return &Server{
		hub:      hub,
		gate:     gate,
		store:    store,
		metrics:  metrics,
		password: password,
		sessions: make(map[string]time.Time),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return false
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				return u.Host == r.Host
			},
		},
	}
}

// NotifyDecision pushes d to connected clients and counts it.
func (s *Server) NotifyDecision(d intervention.Decision) {
	if s.metrics != nil {
		s.metrics.Observe(d)
	}
	if s.hub != nil {
		s.hub.Broadcast(Message{Type: "decision", Decision: &d})
	}
}

// Handler returns the HTTP handler for the dashboard.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// without a password nothing is served
	if s.password == "" {
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Dashboard disabled (no password set)", http.StatusForbidden)
		})
		return mux
	}

	mux.HandleFunc("/login", s.handleLogin)

	staticFS, _ := fs.Sub(staticFiles, "static")
	mux.Handle("/static/", s.requireAuth(http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if !s.isAuthenticated(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		serveStatic(w, "static/index.html")
	})

	mux.Handle("/api/resolve", s.requireAuth(http.HandlerFunc(s.handleResolve)))
	mux.Handle("/api/decisions", s.requireAuth(http.HandlerFunc(s.handleDecisions)))
	mux.Handle("/ws", s.requireAuth(http.HandlerFunc(s.handleWS)))
	if s.metrics != nil {
		mux.Handle("/metrics", s.requireAuth(s.metrics.Handler()))
	}

	return mux
}

func serveStatic(w http.ResponseWriter, name string) {
	data, err := staticFiles.ReadFile(name)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		serveStatic(w, "static/login.html")

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if !s.checkPassword(r.FormValue("password")) {
			slog.Warn("dashboard login failed", "remote", r.RemoteAddr)
			http.Error(w, "invalid password", http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookieName,
			Value:    s.createSession(),
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   int(sessionTTL.Seconds()),
		})
		w.WriteHeader(http.StatusOK)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) checkPassword(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(s.password)) == 1
}

func (s *Server) createSession() string {
	b := make([]byte, 32)
	rand.Read(b)
	token := hex.EncodeToString(b)

	s.mu.Lock()
	s.sessions[token] = time.Now().Add(sessionTTL)
	s.mu.Unlock()

	return token
}

// isAuthenticated accepts a live session cookie or the password as a bearer
// token, for programmatic callers.
func (s *Server) isAuthenticated(r *http.Request) bool {
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return s.checkPassword(token)
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	expiry, ok := s.sessions[cookie.Value]
	if !ok {
		return false
	}
	if time.Now().After(expiry) {
		delete(s.sessions, cookie.Value)
		return false
	}
	return true
}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.isAuthenticated(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.gate == nil {
		http.Error(w, "resolver unavailable", http.StatusServiceUnavailable)
		return
	}

	var req core.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Tool == "" {
		http.Error(w, "tool required", http.StatusBadRequest)
		return
	}

	d, err := s.gate.Check(r.Context(), req)
	if err != nil {
		// decision stands even if auditing failed
		slog.Error("resolve", "tool", req.Tool, "error", err)
	}
	writeJSON(w, d)
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.store == nil {
		http.Error(w, "audit log disabled", http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := s.store.List(r.Context(), limit)
	if err != nil {
		slog.Error("list decisions", "error", err)
		http.Error(w, "listing decisions failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*audit.Record{}
	}
	writeJSON(w, records)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "live feed unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !s.hub.add(client) {
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("write response", "error", err)
	}
}
