// Package api exposes the mission engine over HTTP and websocket.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/untoldecay/mission-control/internal/engine"
	"github.com/untoldecay/mission-control/internal/types"
)

const (
	defaultArchiveLimit = 50
	boardArchiveLimit   = 10
	defaultFeedLimit    = 30
	maxRequestBody      = 1 << 20
)

// Engine is the subset of *engine.Engine served over HTTP.
type Engine interface {
	ListActiveMissions() []*types.Mission
	ListArchivedMissions(limit int) []*types.Mission
	GetMission(key string) (*types.Mission, error)
	GetFeed(limit int) []types.ActivityEvent
	FeedSince(t time.Time) []types.ActivityEvent
	GetAgentLiveness(id string) (types.AgentLiveness, error)
	ListAgents() []types.AgentLiveness
	Stats() types.Stats
	CreateMission(d engine.MissionDraft) (*types.Mission, error)
	CompleteMission(key, actor string) (*types.Mission, error)
	SuggestMissions(key string) []string
	SuggestAgents(id string) []string
	Subscribers() int
	ServeWS(w http.ResponseWriter, r *http.Request)
}

// Config for the HTTP API handler.
type Config struct {
	Engine Engine
	Logger *slog.Logger
	Now    func() time.Time
}

type server struct {
	eng Engine
	log *slog.Logger
	now func() time.Time
}

// Board is the mission board grouped by column.
type Board struct {
	Queue    []*types.Mission `json:"queue"`
	Progress []*types.Mission `json:"progress"`
	Review   []*types.Mission `json:"review"`
	Done     []*types.Mission `json:"done"`
}

// Health is returned by GET /api/health.
type Health struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Websocket struct {
		Clients int `json:"clients"`
	} `json:"websocket"`
}

type errorBody struct {
	Error       string   `json:"error"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// New returns an HTTP handler exposing the mission engine.
func New(cfg Config) http.Handler {
	s := &server{eng: cfg.Engine, log: cfg.Logger, now: cfg.Now}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)

	router.Get("/ws", cfg.Engine.ServeWS)
	router.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/stats", s.stats)
		r.Get("/missions", s.board)
		r.Post("/missions", s.createMission)
		r.Get("/missions/archive", s.archive)
		r.Get("/missions/{key}", s.getMission)
		r.Post("/missions/{key}/complete", s.completeMission)
		r.Get("/feed", s.feed)
		r.Get("/agents", s.agents)
		r.Get("/agents/{id}", s.agent)
	})
	return router
}

func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start))
	})
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	var h Health
	h.Status = "ok"
	h.Timestamp = s.now().UTC()
	h.Websocket.Clients = s.eng.Subscribers()
	writeJSON(w, http.StatusOK, h)
}

func (s *server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Stats())
}

func (s *server) board(w http.ResponseWriter, r *http.Request) {
	b := Board{
		Queue:    []*types.Mission{},
		Progress: []*types.Mission{},
		Review:   []*types.Mission{},
		Done:     []*types.Mission{},
	}
	for _, m := range s.eng.ListActiveMissions() {
		switch m.Status {
		case types.StatusProgress:
			b.Progress = append(b.Progress, m)
		case types.StatusReview:
			b.Review = append(b.Review, m)
		case types.StatusDone:
			// Done but not yet archived, e.g. after a failed move.
			b.Done = append(b.Done, m)
		default:
			b.Queue = append(b.Queue, m)
		}
	}
	b.Done = append(b.Done, s.eng.ListArchivedMissions(boardArchiveLimit)...)
	writeJSON(w, http.StatusOK, b)
}

func (s *server) archive(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r, defaultArchiveLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"missions": s.eng.ListArchivedMissions(limit)})
}

func (s *server) getMission(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	m, err := s.eng.GetMission(key)
	if err != nil {
		s.handleError(w, err, s.eng.SuggestMissions(key)...)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *server) createMission(w http.ResponseWriter, r *http.Request) {
	var draft engine.MissionDraft
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&draft); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	draft.Actor = types.AgentHuman

	m, err := s.eng.CreateMission(draft)
	if err != nil {
		s.handleError(w, err)
		return
	}
	s.log.Info("created mission", "key", m.StorageKey)
	writeJSON(w, http.StatusCreated, m)
}

func (s *server) completeMission(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	m, err := s.eng.CompleteMission(key, types.AgentHuman)
	if err != nil {
		s.handleError(w, err, s.eng.SuggestMissions(key)...)
		return
	}
	s.log.Info("completed mission", "key", m.StorageKey)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": m.StorageKey, "mission": m})
}

func (s *server) feed(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"feed": s.eng.FeedSince(since)})
		return
	}
	limit, err := queryLimit(r, defaultFeedLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feed": s.eng.GetFeed(limit)})
}

func (s *server) agents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.eng.ListAgents()})
}

func (s *server) agent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	l, err := s.eng.GetAgentLiveness(id)
	if err != nil {
		s.handleError(w, err, s.eng.SuggestAgents(id)...)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// handleError maps engine sentinels to status codes. Suggestions are only
// reported with a 404.
func (s *server) handleError(w http.ResponseWriter, err error, suggestions ...string) {
	switch {
	case errors.Is(err, engine.ErrMissionNotFound), errors.Is(err, engine.ErrAgentNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error(), Suggestions: suggestions})
	case errors.Is(err, engine.ErrInvalidMission):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, engine.ErrMissionExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func queryLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
