//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// Package server exposes the ingestion and resume surface over HTTP:
// the meeting webhook, the reviewer's resume endpoint and a read-only
// session status lookup. Rendering and feedback capture live with the
// delivery collaborator, not here.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/cors"

	"trpc.group/trpc-go/trpc-council-go/guard"
	"trpc.group/trpc-go/trpc-council-go/log"
	"trpc.group/trpc-go/trpc-council-go/runner"
	"trpc.group/trpc-go/trpc-council-go/session"
)

const (
	defaultIngestWorkers = 4
	// ingestTimeout bounds one background pipeline run end to end.
	ingestTimeout = 10 * time.Minute
)

// Server is the HTTP surface over a runner.
type Server struct {
	runner *runner.Runner
	router *mux.Router
	pool   *ants.Pool
	// background runs use this context so an in-flight pipeline survives
	// the originating webhook request.
	baseCtx context.Context
}

// Option configures the Server instance.
type Option func(*Server)

// WithIngestPool sets the goroutine pool running admitted pipelines in
// the background. The caller keeps ownership and releases it.
func WithIngestPool(pool *ants.Pool) Option {
	return func(s *Server) { s.pool = pool }
}

// WithBaseContext sets the context background pipeline runs inherit
// from; cancel it to stop in-flight pre-review sessions on shutdown.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

// New creates the HTTP server over a runner.
func New(r *runner.Runner, opts ...Option) (*Server, error) {
	if r == nil {
		return nil, errors.New("runner is required")
	}
	s := &Server{
		runner:  r,
		router:  mux.NewRouter(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		pool, err := ants.NewPool(defaultIngestWorkers)
		if err != nil {
			return nil, err
		}
		s.pool = pool
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	s.router.Use(c.Handler)
	s.router.Use(requestLogging)
	s.registerRoutes()
	return s, nil
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/meetings", s.handleIngest).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/sessions/{sessionId}", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/sessions/{sessionId}/resume", s.handleResume).Methods(http.MethodPost)
}

// requestLogging logs one line per request with a generated request id.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := "req-" + uuid.New().String()
		log.Debugf("%s %s %s", reqID, r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ingestRequest is the meeting webhook payload. Transcript and metadata
// are optional; missing transcripts are backfilled from the source
// service.
type ingestRequest struct {
	MeetingID  string              `json:"meeting_id"`
	Title      string              `json:"title,omitempty"`
	Timestamp  time.Time           `json:"timestamp,omitempty"`
	Emails     []string            `json:"participants,omitempty"`
	Transcript []session.Utterance `json:"transcript,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MeetingID == "" {
		writeError(w, http.StatusBadRequest, "meeting_id is required")
		return
	}
	meeting := &runner.Meeting{
		ID: req.MeetingID,
		Metadata: session.Metadata{
			Title:        req.Title,
			Timestamp:    req.Timestamp,
			Participants: req.Emails,
		},
		Transcript: req.Transcript,
	}

	// Obvious duplicates are answered inline; the authoritative admission
	// check runs again inside Ingest before anything starts.
	if ckpt, err := s.runner.Status(r.Context(), req.MeetingID); err == nil {
		decision := guard.AlreadyActive
		if ckpt.State.Status.Terminal() {
			decision = guard.AlreadyCompleted
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"session_id": req.MeetingID,
			"status":     string(decision),
		})
		return
	}

	// The webhook answers immediately; the pipeline runs on the pool.
	task := func() {
		ctx, cancel := context.WithTimeout(s.baseCtx, ingestTimeout)
		defer cancel()
		decision, err := s.runner.Ingest(ctx, meeting)
		if err != nil {
			log.Errorf("ingest %s failed: %v", meeting.ID, err)
			return
		}
		log.Infof("ingest %s finished: %s", meeting.ID, decision)
	}
	if err := s.pool.Submit(task); err != nil {
		writeError(w, http.StatusServiceUnavailable, "ingestion backlog full")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"session_id": req.MeetingID,
		"status":     "accepted",
	})
}

// resumeRequest is the reviewer's verdict for a suspended session.
type resumeRequest struct {
	Approved bool   `json:"approved"`
	Feedback string `json:"feedback,omitempty"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	st, err := s.runner.Resume(r.Context(), sessionID, req.Feedback, req.Approved)
	switch {
	case errors.Is(err, runner.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, runner.ErrNotInReview), errors.Is(err, runner.ErrFeedbackRequired):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Errorf("resume %s failed: %v", sessionID, err)
		writeError(w, http.StatusInternalServerError, "resume failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": st.SessionID,
		"status":     st.Status,
		"email":      st.Draft,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]
	ckpt, err := s.runner.Status(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, runner.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": ckpt.SessionID,
		"status":     ckpt.State.Status,
		"position":   ckpt.Position,
		"updated_at": ckpt.UpdatedAt,
	})
}

// Serve runs the server until ctx is canceled, then drains with a
// graceful shutdown.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("council server listening on %s", addr)
		errCh <- httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
