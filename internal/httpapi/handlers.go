package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/game"
	"github.com/DoyleJ11/hand-cricket/internal/hub"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Matches interface {
	Match(ctx context.Context, id string) (*engine.Match, error)
	Matches(ctx context.Context) ([]*engine.Match, error)
	View(ctx context.Context) (hub.View, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	matches      Matches
	db           Pinger
	saveFailures func() int64
	log          *zap.Logger
}

func NewHandlers(matches Matches, db Pinger, saveFailures func() int64, log *zap.Logger) *Handlers {
	if saveFailures == nil {
		saveFailures = func() int64 { return 0 }
	}
	return &Handlers{matches: matches, db: db, saveFailures: saveFailures, log: log}
}

type health struct {
	Status       string    `json:"status"`
	Database     string    `json:"database"`
	Matches      int       `json:"matches"`
	Lobbies      int       `json:"lobbies"`
	SaveFailures int64     `json:"save_failures"`
	Timestamp    time.Time `json:"timestamp"`
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	out := health{Status: "healthy", Database: "ok", SaveFailures: h.saveFailures(), Timestamp: time.Now().UTC()}
	code := http.StatusOK

	if err := h.db.Ping(ctx); err != nil {
		h.log.Warn("health: database ping failed", zap.Error(err))
		out.Status, out.Database = "degraded", "unreachable"
		code = http.StatusServiceUnavailable
	}
	v, err := h.matches.View(ctx)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "game loop unavailable")
		return
	}
	out.Matches, out.Lobbies = v.Matches, v.Lobbies

	respondJSON(w, code, out)
}

type matchSummary struct {
	ID      string        `json:"id"`
	ChatID  string        `json:"chat_id"`
	Status  engine.Status `json:"status"`
	Overs   int           `json:"overs"`
	Players []string      `json:"players"`
}

type matchDetail struct {
	matchSummary
	Scorecard string        `json:"scorecard"`
	State     *engine.Match `json:"state"`
}

func summarize(m *engine.Match) matchSummary {
	names := make([]string, 0, len(m.Players))
	for _, p := range m.Players {
		names = append(names, p.Name)
	}
	return matchSummary{ID: m.ID, ChatID: m.ChatID, Status: m.Status, Overs: m.Overs, Players: names}
}

func (h *Handlers) ListMatches(w http.ResponseWriter, r *http.Request) {
	ms, err := h.matches.Matches(r.Context())
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "game loop unavailable")
		return
	}
	out := make([]matchSummary, 0, len(ms))
	for _, m := range ms {
		out = append(out, summarize(m))
	}
	respondJSON(w, http.StatusOK, map[string]any{"matches": out, "count": len(out)})
}

func (h *Handlers) GetMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.matches.Match(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "game loop unavailable")
		return
	}
	if m == nil {
		respondError(w, http.StatusNotFound, "match not found")
		return
	}
	respondJSON(w, http.StatusOK, matchDetail{
		matchSummary: summarize(m),
		Scorecard:    game.Members(m),
		State:        engine.Redacted(m),
	})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
