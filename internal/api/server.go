package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/motionscope/motionscope/internal/engine"
	"github.com/motionscope/motionscope/internal/eventstore"
)

// Server exposes engine status and settings over HTTP plus a WebSocket
// event stream. The store is optional; event history endpoints return
// 404 when persistence is disabled.
type Server struct {
	engine *engine.Engine
	store  *eventstore.Store
	hub    *Hub
	logger *slog.Logger
	http   *http.Server
}

// NewServer builds the API server. store may be nil.
func NewServer(addr string, eng *engine.Engine, store *eventstore.Store, hub *Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: eng,
		store:  store,
		hub:    hub,
		logger: logger.With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "PUT", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handlePutSettings)
		r.Get("/trackers", s.handleTrackers)
		r.Get("/events", s.handleEvents)
		r.Post("/start", s.handleStart)
		r.Post("/stop", s.handleStop)
		r.Post("/reset", s.handleReset)
	})
	r.Get("/ws", hub.ServeWS)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

// Start begins serving; non-blocking.
func (s *Server) Start() {
	go func() {
		s.logger.Info("api listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("api server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type statusPayload struct {
	Running         bool    `json:"running"`
	Algorithm       string  `json:"algorithm"`
	FramesProcessed int64   `json:"frames_processed"`
	ActiveTrackers  int     `json:"active_trackers"`
	TrackingQuality float64 `json:"tracking_quality"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, statusPayload{
		Running:         s.engine.Running(),
		Algorithm:       string(s.engine.Settings().Detection.Algorithm),
		FramesProcessed: s.engine.FramesProcessed(),
		ActiveTrackers:  len(s.engine.Trackers()),
		TrackingQuality: s.engine.TrackingQuality(),
	})
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, s.engine.Settings())
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings engine.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		Error(w, http.StatusBadRequest, "invalid_body", fmt.Sprintf("failed to decode settings: %v", err))
		return
	}
	if err := s.engine.UpdateSettings(settings); err != nil {
		Error(w, http.StatusUnprocessableEntity, "invalid_settings", err.Error())
		return
	}
	JSON(w, http.StatusOK, s.engine.Settings())
}

func (s *Server) handleTrackers(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, s.engine.Trackers())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		Error(w, http.StatusNotFound, "store_disabled", "event persistence is disabled")
		return
	}
	opts := eventstore.ListOptions{}
	if v := r.URL.Query().Get("since"); v != "" {
		if since, err := strconv.ParseInt(v, 10, 64); err == nil {
			opts.Since = since
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			opts.Limit = limit
		}
	}
	records, err := s.store.List(r.Context(), opts)
	if err != nil {
		Error(w, http.StatusInternalServerError, "query_failed", err.Error())
		return
	}
	JSON(w, http.StatusOK, records)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.engine.Start()
	JSON(w, http.StatusOK, map[string]bool{"running": s.engine.Running()})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.engine.Stop()
	JSON(w, http.StatusOK, map[string]bool{"running": s.engine.Running()})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	JSON(w, http.StatusOK, map[string]bool{"running": s.engine.Running()})
}
