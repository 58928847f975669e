package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/feed"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	outboxSize   = 8
)

type MatchSource interface {
	Match(ctx context.Context, id string) (*engine.Match, error)
}

type Feed interface {
	Subscribe(ctx context.Context, clientID, matchID string, out chan feed.Event) error
	Unsubscribe(ctx context.Context, clientID, matchID string) error
}

// Handler streams the events of one match to a websocket client. The stream
// is read-only; anything the client sends is discarded. Cross-origin upgrades
// are accepted only from origins, given as URLs or host patterns ("*" allows
// any).
func Handler(matches MatchSource, f Feed, origins []string, log *zap.Logger) http.HandlerFunc {
	patterns := originPatterns(origins)
	return func(w http.ResponseWriter, r *http.Request) {
		matchID := r.URL.Query().Get("match")
		if matchID == "" {
			http.Error(w, "missing match", http.StatusBadRequest)
			return
		}

		m, err := matches.Match(r.Context(), matchID)
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if m == nil {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: patterns,
		})
		if err != nil {
			log.Debug("websocket accept", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		clientID := uuid.NewString()
		out := make(chan feed.Event, outboxSize)
		if err := f.Subscribe(r.Context(), clientID, matchID, out); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "feed unavailable")
			return
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = f.Unsubscribe(ctx, clientID, matchID)
		}()

		log.Debug("feed subscriber joined", zap.String("match_id", matchID), zap.String("client_id", clientID))

		// Send the current state first so the client never starts blank.
		if err := write(r.Context(), conn, snapshotEvent(m)); err != nil {
			return
		}

		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-out:
				if !ok {
					// Match over, or we fell behind.
					return
				}
				if err := write(ctx, conn, ev); err != nil {
					log.Debug("feed write", zap.String("client_id", clientID), zap.Error(err))
					return
				}
			}
		}
	}
}

// originPatterns turns configured origins into the host patterns the
// websocket handshake matches against.
func originPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if strings.Contains(o, "://") {
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				o = u.Host
			}
		}
		out = append(out, o)
	}
	return out
}

func snapshotEvent(m *engine.Match) feed.Event {
	return feed.Event{Type: feed.EvtSnapshot, MatchID: m.ID, ChatID: m.ChatID, State: engine.Redacted(m), At: time.Now()}
}

func write(ctx context.Context, conn *websocket.Conn, ev feed.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, payload)
}
