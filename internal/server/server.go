package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"pairs/internal/game"
	"pairs/internal/layout"
	"pairs/internal/session"
	"pairs/internal/snapshot"
	"pairs/internal/storage"
)

const requestTimeout = 10 * time.Second

// Server is the HTTP server.
type Server struct {
	r       *chi.Mux
	manager *session.Manager
	layouts []layout.Layout
	log     zerolog.Logger
}

// New creates a server with all routes. layouts is what GET /api/layouts reports.
func New(manager *session.Manager, layouts []layout.Layout, logger zerolog.Logger) *Server {
	s := &Server{
		r:       chi.NewRouter(),
		manager: manager,
		layouts: layouts,
		log:     logger.With().Str("component", "http").Logger(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(s.requestLogger)

	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	s.r.Route("/api", func(r chi.Router) {
		r.With(chimw.Timeout(requestTimeout)).Get("/layouts", s.handleListLayouts)
		r.With(chimw.Timeout(requestTimeout)).Get("/sessions", s.handleListSessions)
		r.With(chimw.Timeout(requestTimeout)).Post("/sessions", s.handleCreateSession)

		r.Route("/sessions/{code}", func(r chi.Router) {
			// websocket connections are long-lived
			r.Get("/ws", s.handleWebSocket)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(requestTimeout))
				r.Get("/", s.handleGetSession)
				r.Delete("/", s.handleDeleteSession)
				r.Post("/games", s.handleNewGame)
				r.Post("/select", s.handleSelect)
				r.Post("/save", s.handleSave)
				r.Post("/load", s.handleLoad)
			})
		})
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.layouts)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

type layoutRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

// decodeLayout reads an optional {cols,rows} body. An empty body means no preference.
func decodeLayout(r *http.Request) (*layout.Layout, error) {
	var req layoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if req.Cols == 0 && req.Rows == 0 {
		return nil, nil
	}
	return &layout.Layout{Cols: req.Cols, Rows: req.Rows}, nil
}

type createSessionResponse struct {
	Code  string        `json:"code"`
	State session.State `json:"state"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	l, err := decodeLayout(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	sess, err := s.manager.Create(r.Context(), l)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{Code: sess.Code, State: sess.State()})
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, ok := s.manager.Get(chi.URLParam(r, "code"))
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrNotFound.Error())
	}
	return sess, ok
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Remove(r.Context(), chi.URLParam(r, "code")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleNewGame(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	l, err := decodeLayout(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if l == nil {
		err = sess.NewGame(0, 0)
	} else {
		err = sess.NewGame(l.Cols, l.Rows)
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

type selectRequest struct {
	Index *int `json:"index"`
}

type selectResponse struct {
	Accepted bool `json:"accepted"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		writeError(w, http.StatusBadRequest, "index required")
		return
	}
	writeJSON(w, http.StatusOK, selectResponse{Accepted: sess.Select(*req.Index)})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.manager.Save(r.Context(), code); err != nil {
		s.log.Error().Err(err).Str("session", code).Msg("save session")
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := s.manager.Load(r.Context(), code); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.State())
}

// statusFor maps domain errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, snapshot.ErrNoSnapshot):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInvalidLayout), errors.Is(err, game.ErrOddLayout):
		return http.StatusBadRequest
	case errors.Is(err, snapshot.ErrMalformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrInvalidName):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
