package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/feed"
	"github.com/DoyleJ11/hand-cricket/internal/hub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMatches struct {
	list []*engine.Match
	err  error
}

func (f *fakeMatches) Match(_ context.Context, id string) (*engine.Match, error) {
	for _, m := range f.list {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, f.err
}

func (f *fakeMatches) Matches(context.Context) ([]*engine.Match, error) { return f.list, f.err }

func (f *fakeMatches) View(context.Context) (hub.View, error) {
	return hub.View{Matches: len(f.list), Lobbies: 1}, f.err
}

type fakeDB struct{ err error }

func (d fakeDB) Ping(context.Context) error { return d.err }

func newServer(t *testing.T, ms *fakeMatches, db Pinger) http.Handler {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	h := NewHandlers(ms, db, func() int64 { return 3 }, zap.NewNop())
	return SetupRoutes(h, feed.NewBroadcaster(ctx), []string{"*"}, zap.NewNop())
}

func started(t *testing.T) *engine.Match {
	t.Helper()
	_, m := engine.NewMatch("chat-9", engine.Player{ID: "u1", Name: "Alice"}, 1)
	require.NoError(t, engine.AddPlayer(m, engine.Player{ID: "u2", Name: "Bob"}))
	require.NoError(t, engine.StartMatch(m))
	require.NoError(t, engine.SubmitBowlerNumber(m, "u2", 2))
	return m
}

func get(t *testing.T, srv http.Handler, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthz(t *testing.T) {
	srv := newServer(t, &fakeMatches{list: []*engine.Match{started(t)}}, fakeDB{})

	rec, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.EqualValues(t, 1, body["matches"])
	assert.EqualValues(t, 1, body["lobbies"])
	assert.EqualValues(t, 3, body["save_failures"])
}

func TestHealthz_DatabaseDown(t *testing.T) {
	srv := newServer(t, &fakeMatches{}, fakeDB{err: errors.New("connection refused")})

	rec, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "unreachable", body["database"])
}

func TestListMatches(t *testing.T) {
	m := started(t)
	srv := newServer(t, &fakeMatches{list: []*engine.Match{m}}, fakeDB{})

	rec, body := get(t, srv, "/matches")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])
	list := body["matches"].([]any)
	first := list[0].(map[string]any)
	assert.Equal(t, m.ID, first["id"])
	assert.Equal(t, []any{"Alice", "Bob"}, first["players"])
}

func TestGetMatch(t *testing.T) {
	m := started(t)
	srv := newServer(t, &fakeMatches{list: []*engine.Match{m}}, fakeDB{})

	rec, body := get(t, srv, "/matches/"+m.ID)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body["scorecard"], "Alice")
	state := body["state"].(map[string]any)
	assert.Nil(t, state["pendingBowlerNumber"], "bowler number must stay secret")

	rec, body = get(t, srv, "/matches/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "match not found", body["error"])
}

func TestMatchesUnavailable(t *testing.T) {
	srv := newServer(t, &fakeMatches{err: context.Canceled}, fakeDB{})

	rec, _ := get(t, srv, "/matches")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
