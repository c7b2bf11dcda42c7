// Package http exposes the conversation controller as a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/talebot/pkg/domain"
	"github.com/aretw0/talebot/pkg/flow"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// MaxBodySize bounds request bodies.
const MaxBodySize = 64 << 10

// TurnHandler processes one inbound chat message.
type TurnHandler interface {
	HandleTurn(ctx context.Context, key string, flowIfNew domain.FlowKind, raw string) domain.Instruction
}

// ProfileLister lists a user's child profiles.
type ProfileLister interface {
	Children(ctx context.Context, externalKey string) ([]domain.ChildProfile, error)
}

// HistoryLister lists a child's recent stories.
type HistoryLister interface {
	History(ctx context.Context, externalKey string, childID int64, limit int) ([]domain.Story, error)
}

// Server serves the talebot HTTP API.
type Server struct {
	turns    TurnHandler
	flows    *flow.Table
	profiles ProfileLister
	history  HistoryLister
	metrics  http.Handler
	version  string
	logger   *slog.Logger
	Streams  *StreamManager
}

// Option configures a Server.
type Option func(*Server)

// WithProfiles enables GET /v1/users/{key}/children.
func WithProfiles(p ProfileLister) Option {
	return func(s *Server) { s.profiles = p }
}

// WithHistory enables GET /v1/children/{id}/stories.
func WithHistory(h HistoryLister) Option {
	return func(s *Server) { s.history = h }
}

// WithFlows enables GET /v1/flows.
func WithFlows(t *flow.Table) Option {
	return func(s *Server) { s.flows = t }
}

// WithMetrics mounts h (usually promhttp) at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithVersion sets the version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler creates the HTTP handler for turns.
func NewHandler(turns TurnHandler, opts ...Option) http.Handler {
	s := &Server{
		turns:   turns,
		version: "dev",
		logger:  slog.New(slog.DiscardHandler),
		Streams: NewStreamManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s.Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/turns", s.PostTurn)
		r.Get("/events", s.SubscribeEvents)
		r.Get("/flows", s.GetFlows)
		r.Get("/users/{key}/children", s.GetChildren)
		r.Get("/children/{id}/stories", s.GetStories)
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TurnRequest is the body of POST /v1/turns.
type TurnRequest struct {
	SessionKey string          `json:"session_key"`
	Flow       domain.FlowKind `json:"flow,omitempty"`
	Text       string          `json:"text"`
}

// PostTurn handles POST /v1/turns.
func (s *Server) PostTurn(w http.ResponseWriter, r *http.Request) {
	var body TurnRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		s.logger.Warn("PostTurn: invalid request body", "err", err)
		return
	}
	if strings.TrimSpace(body.SessionKey) == "" {
		writeError(w, http.StatusBadRequest, "session_key is required")
		return
	}
	if body.Flow != "" && !body.Flow.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown flow %q", body.Flow))
		return
	}

	inst := s.turns.HandleTurn(r.Context(), body.SessionKey, body.Flow, body.Text)

	if data, err := json.Marshal(inst); err == nil {
		s.Streams.Broadcast(body.SessionKey, string(data))
	}

	status := http.StatusOK
	if inst.Kind == domain.InstructionTransientError {
		w.Header().Set("Retry-After", "1")
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, inst)
}

// FlowSummary describes one flow for GET /v1/flows.
type FlowSummary struct {
	Kind        domain.FlowKind `json:"kind"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Steps       []StepSummary   `json:"steps"`
}

// StepSummary describes one step.
type StepSummary struct {
	Name     string           `json:"name"`
	Field    string           `json:"field"`
	Input    domain.InputKind `json:"input"`
	Optional bool             `json:"optional,omitempty"`
	Choices  []string         `json:"choices,omitempty"`
}

// GetFlows handles GET /v1/flows.
func (s *Server) GetFlows(w http.ResponseWriter, r *http.Request) {
	if s.flows == nil {
		writeError(w, http.StatusNotFound, "flows not available")
		return
	}
	defs := s.flows.Definitions()
	out := make([]FlowSummary, 0, len(defs))
	for _, def := range defs {
		fs := FlowSummary{Kind: def.Kind, Title: def.Title, Description: def.Description}
		for _, step := range def.Steps {
			fs.Steps = append(fs.Steps, StepSummary{
				Name:     step.Name,
				Field:    step.Field,
				Input:    step.Input,
				Optional: step.Optional,
				Choices:  step.Choices,
			})
		}
		out = append(out, fs)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetChildren handles GET /v1/users/{key}/children.
func (s *Server) GetChildren(w http.ResponseWriter, r *http.Request) {
	if s.profiles == nil {
		writeError(w, http.StatusNotFound, "profiles not available")
		return
	}
	children, err := s.profiles.Children(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list children")
		s.logger.Error("GetChildren failed", "err", err)
		return
	}
	if children == nil {
		children = []domain.ChildProfile{}
	}
	writeJSON(w, http.StatusOK, children)
}

// GetStories handles GET /v1/children/{id}/stories?user_key=...&limit=...
func (s *Server) GetStories(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "history not available")
		return
	}
	childID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || childID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid child id")
		return
	}
	userKey := r.URL.Query().Get("user_key")
	if userKey == "" {
		writeError(w, http.StatusBadRequest, "user_key is required")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	stories, err := s.history.History(r.Context(), userKey, childID, limit)
	switch {
	case errors.Is(err, domain.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, "child not found")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "could not list stories")
		s.logger.Error("GetStories failed", "err", err)
		return
	}
	if stories == nil {
		stories = []domain.Story{}
	}
	writeJSON(w, http.StatusOK, stories)
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":     "talebot-http",
		"version": s.version,
	})
}

// StreamManager fans instructions out to SSE subscribers of a session key.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
	}
}

func (sm *StreamManager) Subscribe(key string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[key]; !ok {
		sm.subscribers[key] = make(map[chan<- string]struct{})
	}
	sm.subscribers[key][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[key]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, key)
			}
		}
	}
}

func (sm *StreamManager) Broadcast(key string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[key] {
		select {
		case ch <- msg:
		default:
			// Slow client; drop.
		}
	}
}

// SubscribeEvents handles GET /v1/events?session_key=... (SSE). Every
// instruction produced for the key is pushed as one event.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	key := r.URL.Query().Get("session_key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "session_key is required")
		return
	}

	ch, cancel := s.Streams.Subscribe(key)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: instruction\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
