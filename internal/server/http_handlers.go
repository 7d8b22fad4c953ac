package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/sanonone/edgelite/pkg/edge"
	"github.com/sanonone/edgelite/pkg/engine"
	"github.com/sanonone/edgelite/pkg/path"
)

// registerHTTPHandlers sets up the routes of the REST API.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /sessions", s.handleSessionCreate)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleSessionClose)
	mux.HandleFunc("POST /sessions/{id}/invoke", s.handleSessionInvoke)
	mux.HandleFunc("POST /sessions/{id}/commit", s.handleSessionCommit)

	mux.HandleFunc("POST /invoke", s.handleInvoke)
	mux.HandleFunc("GET /path", s.handlePath)
	mux.HandleFunc("POST /list", s.handleList)
	mux.HandleFunc("GET /dump/{node}", s.handleDump)
}

func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	id := s.sessions.Create()
	s.writeHTTPResponse(w, http.StatusCreated, SessionResponse{SessionID: id})
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Close(r.PathValue("id")) {
		s.writeHTTPError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionInvoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	sess, release, ok := s.sessions.Acquire(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, "session not found")
		return
	}
	defer release()

	result, err := sess.Invoke(r.Context(), req.Root, req.IncV)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, InvokeResponse{Result: result})
}

func (s *Server) handleSessionCommit(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := s.sessions.Acquire(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, "session not found")
		return
	}
	defer release()

	if err := sess.Commit(r.Context()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleInvoke runs a program in a throwaway session and commits it.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req InvokeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	sess := s.Engine.NewSession()
	result, err := sess.Invoke(r.Context(), req.Root, req.IncV)
	if err == nil {
		err = sess.Commit(r.Context())
	}
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, InvokeResponse{Result: result})
}

// handlePath evaluates ?path= without creating edges. A path without a
// root part starts from ?root=.
func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := path.Parse(q.Get("path"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if p.Root == "" {
		p.Root = q.Get("root")
	}
	if p.Root == "" {
		s.writeHTTPError(w, http.StatusBadRequest, "path needs a root")
		return
	}

	points, err := s.Engine.NewSession().Get(r.Context(), p)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if points == nil {
		points = []string{}
	}
	s.writeHTTPResponse(w, http.StatusOK, PathResponse{Points: points})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var req ListRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Root == "" {
		s.writeHTTPError(w, http.StatusBadRequest, "root is required")
		return
	}
	rows, err := s.Engine.NewSession().List(r.Context(), req.Root, req.Dimensions, req.Attrs)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if rows == nil {
		rows = []edge.Record{}
	}
	s.writeHTTPResponse(w, http.StatusOK, ListResponse{Rows: rows})
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	out, err := s.Engine.NewSession().Dump(r.Context(), r.PathValue("node"))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, out)
}

// decodeBody decodes the JSON body into v, answering 400 on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// statusFor maps an engine error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, edge.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrUnknownOpcode),
		errors.Is(err, engine.ErrStepLimit),
		errors.Is(err, path.ErrSyntax),
		errors.Is(err, path.ErrNotWritable):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		slog.Error("Request failed", "error", err)
	}
	s.writeHTTPError(w, code, err.Error())
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}
