package web

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/WordPressBugBounty/plugins-simple-tags/internal/autolinks"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/config"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/ics"
	appLog "github.com/WordPressBugBounty/plugins-simple-tags/internal/log"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/model"
	"github.com/WordPressBugBounty/plugins-simple-tags/internal/taxonomy"
)

// Store is what the HTTP layer reads and writes directly. *store.Store
// implements it.
type Store interface {
	Terms(tax string) ([]model.Term, error)
	autolinks.Source
	SaveAutolink(a model.Autolink) (model.Autolink, error)
	DeleteAutolink(id int64) error
	ics.Cache
}

// Server exposes the term tools, the autolinks table, recurrence previews
// and the configured calendar feeds over HTTP.
type Server struct {
	cfg     *config.Config
	store   Store
	manager *taxonomy.Manager
	table   *autolinks.Table
	fetcher *ics.Fetcher
	nonces  *Nonces
	now     func() time.Time
	mux     *http.ServeMux

	// In-memory cache for expanded feed occurrences so /api/events and
	// /calendar.ics do not fetch/parse/expand on every request.
	eventsMu    sync.RWMutex
	eventsCache *eventsCache
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, st Store, mgr *taxonomy.Manager) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		manager: mgr,
		table:   autolinks.NewTable(st, cfg.TaxonomyLabels(), map[string]string{cfg.PostType: cfg.PostTypeName}),
		fetcher: ics.NewFetcher(st),
		nonces:  NewNonces(cfg.NonceSecret),
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Nonces returns the signer guarding the admin forms.
func (s *Server) Nonces() *Nonces {
	return s.nonces
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="TaxoPress", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/nonce", s.handleNonce)

	s.mux.HandleFunc("/admin/manage", s.handleManage)
	s.mux.HandleFunc("/admin/ajax", s.handleAjax)
	s.mux.HandleFunc("/api/terms", s.handleTerms)

	s.mux.HandleFunc("/api/autolinks", s.handleAutolinks)
	s.mux.HandleFunc("/admin/autolinks/delete", s.handleAutolinkDelete)

	s.mux.HandleFunc("/api/recurrence", s.handleRecurrence)
	s.mux.HandleFunc("/api/events", s.handleEvents)
	s.mux.HandleFunc("/calendar.ics", s.handleCalendar)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleNonce issues a nonce for the action named in the query.
//
// GET /api/nonce?action=simpletags_admin
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	action := r.URL.Query().Get("action")
	if action == "" {
		writeError(w, http.StatusBadRequest, "missing action")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"action": action,
		"nonce":  s.nonces.Create(action),
	})
}

func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func resolveLocationOrLocal(name string) *time.Location {
	if name == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", name)
		return time.Local
	}
	return loc
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
