package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/tally/internal/handler"
	"github.com/dukerupert/tally/internal/middleware"
	"github.com/dukerupert/tally/internal/store"
	"github.com/dukerupert/tally/internal/users"
	ws "github.com/dukerupert/tally/internal/websocket"
)

// Config selects which namespaces exist and which access keys are accepted.
// An empty KeyHashes list disables authentication.
type Config struct {
	Users        []users.User
	KeyHashes    []string
	RequestLimit int
}

type Server struct {
	db          *sql.DB
	hub         *ws.Hub
	namespaces  *store.NamespaceStore
	tableH      *handler.TableHandler
	rateLimiter *middleware.RateLimiter
	keyHashes   atomic.Pointer[[]string]
	reqLimit    int
	logger      *slog.Logger
}

// New provisions a namespace for every configured user and builds the server.
func New(db *sql.DB, cfg Config, logger *slog.Logger) (*Server, error) {
	hub := ws.NewHub(logger.With("component", "websocket"))
	namespaces := store.NewNamespaceStore(db)

	for _, u := range cfg.Users {
		if err := namespaces.Provision(u.ID, u.TablePrefix); err != nil {
			return nil, fmt.Errorf("provision %q: %w", u.ID, err)
		}
		logger.Info("namespace ready", "user", u.ID, "prefix", u.TablePrefix)
	}

	if cfg.RequestLimit <= 0 {
		cfg.RequestLimit = 600
	}

	s := &Server{
		db:         db,
		hub:        hub,
		namespaces: namespaces,
		tableH: handler.NewTableHandler(handler.TableStores{
			Namespaces: namespaces,
			Tasks:      store.NewTaskStore(db),
			Gifts:      store.NewGiftStore(db),
			Records:    store.NewRecordStore(db),
			Requests:   store.NewRequestStore(db),
			Settings:   store.NewSettingsStore(db),
		}, hub, logger.With("component", "table")),
		rateLimiter: middleware.NewRateLimiter(),
		reqLimit:    cfg.RequestLimit,
		logger:      logger,
	}
	s.SetKeyHashes(cfg.KeyHashes)
	return s, nil
}

// SetKeyHashes replaces the accepted access key hashes. It is safe to call
// while serving.
func (s *Server) SetKeyHashes(hashes []string) {
	hashes = append([]string(nil), hashes...)
	s.keyHashes.Store(&hashes)
	if len(hashes) == 0 {
		s.logger.Warn("no access keys configured, backend is open")
	} else {
		s.logger.Info("access keys loaded", "count", len(hashes))
	}
}

func (s *Server) currentKeyHashes() []string {
	return *s.keyHashes.Load()
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Hub returns the change notification hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(s.logger.With("component", "http")))

	r.Get("/health", s.healthHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAccessKey(s.currentKeyHashes, s.rateLimiter, s.logger.With("component", "auth")))
		r.Use(middleware.RateLimit(s.rateLimiter, middleware.RealIP, s.reqLimit, time.Minute))

		r.Route("/rest/v1/{table}", func(r chi.Router) {
			r.Get("/", s.tableH.List)
			r.Post("/", s.tableH.Insert)
			r.Put("/", s.tableH.Upsert)
			r.Patch("/{id}", s.tableH.Update)
			r.Delete("/{id}", s.tableH.Delete)
		})

		r.Get("/realtime/v1", ws.HandleWebSocket(s.hub, s.knownTable, s.logger.With("component", "realtime")))
	})

	return r
}

func (s *Server) knownTable(table string) bool {
	_, _, ok, err := s.namespaces.Resolve(table)
	if err != nil {
		s.logger.Error("resolve subscription table", "table", table, "error", err)
		return false
	}
	return ok
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"status":      status,
		"subscribers": s.hub.ClientCount(),
	})
}
