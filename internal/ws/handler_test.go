package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/feed"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type matchMap map[string]*engine.Match

func (mm matchMap) Match(_ context.Context, id string) (*engine.Match, error) {
	return mm[id], nil
}

func setup(t *testing.T, origins ...string) (*httptest.Server, *feed.Broadcaster, *engine.Match) {
	t.Helper()
	_, m := engine.NewMatch("chat-1", engine.Player{ID: "u1", Name: "Alice"}, 1)
	require.NoError(t, engine.AddPlayer(m, engine.Player{ID: "u2", Name: "Bob"}))
	require.NoError(t, engine.StartMatch(m))
	require.NoError(t, engine.SubmitBowlerNumber(m, "u2", 5))

	ctx, cancel := context.WithCancel(context.Background())
	b := feed.NewBroadcaster(ctx)
	srv := httptest.NewServer(Handler(matchMap{m.ID: m}, b, origins, zap.NewNop()))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv, b, m
}

func dial(t *testing.T, srv *httptest.Server, matchID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?match=" + matchID
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) feed.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var ev feed.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHandler_StreamsSnapshotThenEvents(t *testing.T) {
	srv, b, m := setup(t)
	conn := dial(t, srv, m.ID)

	snap := readEvent(t, conn)
	assert.Equal(t, feed.EvtSnapshot, snap.Type)
	require.NotNil(t, snap.State)
	assert.Equal(t, m.ID, snap.State.ID)
	assert.Nil(t, snap.State.PendingBowlerNumber, "bowler number must not leak")

	require.NoError(t, b.Publish(context.Background(), feed.NewEvent(feed.EvtBall, m)))
	ev := readEvent(t, conn)
	assert.Equal(t, feed.EvtBall, ev.Type)
	assert.Equal(t, 1, ev.Version)
	assert.Nil(t, ev.State.PendingBowlerNumber)
}

func TestHandler_ClosesWhenMatchFinishes(t *testing.T) {
	srv, b, m := setup(t)
	conn := dial(t, srv, m.ID)
	readEvent(t, conn)

	require.NoError(t, b.Publish(context.Background(), feed.NewEvent(feed.EvtMatchFinished, m)))
	assert.Equal(t, feed.EvtMatchFinished, readEvent(t, conn).Type)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

func TestHandler_RejectsBadRequests(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/?match=unknown")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandler_ChecksOrigin(t *testing.T) {
	srv, _, m := setup(t, "https://app.example.com")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?match=" + m.ID

	dialFrom := func(origin string) (*http.Response, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPHeader: http.Header{"Origin": []string{origin}},
		})
		if err == nil {
			conn.Close(websocket.StatusNormalClosure, "")
		}
		return resp, err
	}

	resp, err := dialFrom("https://evil.example.org")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, err = dialFrom("https://app.example.com")
	assert.NoError(t, err)
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"*", " https://app.example.com ", "", "localhost:*"})
	assert.Equal(t, []string{"*", "app.example.com", "localhost:*"}, got)
}
