package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fentz26/tickos/internal/logging"
	"github.com/fentz26/tickos/internal/models"
	"github.com/fentz26/tickos/internal/store"
	"github.com/fentz26/tickos/internal/version"
)

// Server provides the HTTP API for tickos.
type Server struct {
	service *Service
	addr    string
	router  chi.Router
	logger  *slog.Logger
	server  *http.Server
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(service *Service, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		service: service,
		addr:    addr,
		router:  chi.NewRouter(),
		logger:  logger.With("component", "controlplane"),
	}
	s.routes()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown. It returns nil after a clean shutdown,
// including when Shutdown was called before Serve.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("control plane listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server. Any later Serve returns at once.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.handleListTasks)
		r.Route("/{index}", func(r chi.Router) {
			r.Get("/", s.handleGetTask)
			r.Post("/suspend", s.taskAction(s.service.SuspendTask))
			r.Post("/resume", s.taskAction(s.service.ResumeTask))
			r.Post("/wake", s.taskAction(s.service.WakeTask))
			r.Post("/reset", s.taskAction(s.service.ResetTask))
			r.Post("/delete", s.taskAction(s.service.DeleteTask))
			r.Delete("/", s.taskAction(s.service.DeleteTask))
			r.Post("/sleep", s.handleSleepTask)
		})
	})

	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.handleListEvents)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetEvent)
			r.Post("/trigger", s.eventAction(s.service.TriggerEvent))
			r.Post("/suspend", s.eventAction(s.service.SuspendEvent))
			r.Post("/resume", s.eventAction(s.service.ResumeEvent))
			r.Post("/delete", s.eventAction(s.service.DeleteEvent))
			r.Delete("/", s.eventAction(s.service.DeleteEvent))
		})
	})

	r.Route("/delays", func(r chi.Router) {
		r.Get("/", s.handleListDelays)
		r.Route("/{key}", func(r chi.Router) {
			r.Get("/", s.handleGetDelay)
			r.Put("/", s.handleArmDelay)
			r.Delete("/", s.handleRemoveDelay)
		})
	})

	r.Get("/trace", s.handleTrace)
	r.Get("/audit", s.handleAudit)
	r.Get("/sessions", s.handleSessions)
	r.Get("/actions", s.handleActions)
}

// --- Health and Status ---

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	DB      string `json:"db"`
	Version string `json:"version"`
	Time    string `json:"time"`
	Tick    uint32 `json:"tick"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		OK:      true,
		DB:      "disabled",
		Version: version.Get(),
		Time:    time.Now().UTC().Format(time.RFC3339),
		Tick:    s.service.sched.Now(),
	}

	status := http.StatusOK
	if st := s.service.store; st != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := st.Ping(ctx); err != nil {
			resp.OK = false
			resp.DB = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			resp.DB = "ok"
		}
	}

	writeJSON(w, status, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Status())
}

// --- Task Handlers ---

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListTasks())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	task, err := s.service.GetTask(index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) taskAction(op func(int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := pathIndex(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := op(index); err != nil {
			writeError(w, err)
			return
		}
		writeOK(w)
	}
}

// DurationRequest carries a duration in milliseconds.
type DurationRequest struct {
	Ms uint32 `json:"ms"`
}

func (s *Server) handleSleepTask(w http.ResponseWriter, r *http.Request) {
	index, err := pathIndex(r)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeDuration(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.SleepTask(index, req.Ms); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// --- Event Handlers ---

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events := s.service.ListEvents()
	if events == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathUint16(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	ev, err := s.service.GetEvent(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) eventAction(op func(uint16) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathUint16(r, "id")
		if err != nil {
			writeError(w, err)
			return
		}
		if err := op(id); err != nil {
			writeError(w, err)
			return
		}
		writeOK(w)
	}
}

// --- Delay Handlers ---

func (s *Server) handleListDelays(w http.ResponseWriter, r *http.Request) {
	delays := s.service.ListDelays()
	if delays == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, delays)
}

func (s *Server) handleGetDelay(w http.ResponseWriter, r *http.Request) {
	key, err := pathUint16(r, "key")
	if err != nil {
		writeError(w, err)
		return
	}
	d, err := s.service.GetDelay(key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleArmDelay(w http.ResponseWriter, r *http.Request) {
	key, err := pathUint16(r, "key")
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := decodeDuration(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.ArmDelay(key, req.Ms); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleRemoveDelay(w http.ResponseWriter, r *http.Request) {
	key, err := pathUint16(r, "key")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.service.RemoveDelay(key); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w)
}

// --- Trace, Audit, Sessions, Actions ---

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.DispatchFilter{
		SessionID: q.Get("session"),
		Kind:      models.DispatchKind(q.Get("kind")),
	}
	switch f.Kind {
	case "", models.DispatchTask, models.DispatchEvent:
	default:
		writeError(w, fmt.Errorf("kind must be task or event: %w", ErrBadRequest))
		return
	}
	if v := q.Get("ref"); v != "" {
		ref, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fmt.Errorf("ref %q: %w", v, ErrBadRequest))
			return
		}
		f.Ref = &ref
	}
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f.Limit = limit

	dispatches, err := s.service.ListTrace(f)
	if err != nil {
		writeError(w, err)
		return
	}
	if dispatches == nil {
		dispatches = []models.Dispatch{}
	}
	writeJSON(w, http.StatusOK, dispatches)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.service.ListAudit(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []models.PDREntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sessions, err := s.service.ListSessions(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.ListActions())
}

// --- Request parsing ---

func pathIndex(r *http.Request) (int, error) {
	v := chi.URLParam(r, "index")
	index, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("task index %q: %w", v, ErrBadRequest)
	}
	return index, nil
}

func pathUint16(r *http.Request, name string) (uint16, error) {
	v := chi.URLParam(r, name)
	n, err := strconv.ParseUint(v, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, v, ErrBadRequest)
	}
	return uint16(n), nil
}

func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit %q: %w", v, ErrBadRequest)
	}
	return n, nil
}

func decodeDuration(r *http.Request) (DurationRequest, error) {
	var req DurationRequest
	if v := r.URL.Query().Get("ms"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return req, fmt.Errorf("ms %q: %w", v, ErrBadRequest)
		}
		req.Ms = uint32(n)
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid json: %w", ErrBadRequest)
	}
	return req, nil
}
