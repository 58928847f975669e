package feed

import (
	"context"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"go.uber.org/multierr"
)

type EventType string

const (
	EvtLobbyCreated    EventType = "lobby_created"
	EvtPlayerJoined    EventType = "player_joined"
	EvtLobbyClosed     EventType = "lobby_closed"
	EvtMatchStarted    EventType = "match_started"
	EvtBall            EventType = "ball"
	EvtInningsComplete EventType = "innings_complete"
	EvtMatchFinished   EventType = "match_finished"

	// EvtSnapshot is sent once to a new subscriber; it is never published.
	EvtSnapshot EventType = "snapshot"
)

// Event is published at every checkpoint where a match is persisted. State is
// a private copy without the pending bowler number; subscribers may keep it.
type Event struct {
	Type    EventType          `json:"type"`
	MatchID string             `json:"match_id"`
	ChatID  string             `json:"chat_id"`
	Version int                `json:"version"`
	Ball    *engine.BallRecord `json:"ball,omitempty"`
	State   *engine.Match      `json:"state,omitempty"`
	At      time.Time          `json:"at"`
}

func NewEvent(t EventType, m *engine.Match) Event {
	return Event{Type: t, MatchID: m.ID, ChatID: m.ChatID, State: engine.Redacted(m), At: time.Now()}
}

func (e Event) Terminal() bool {
	return e.Type == EvtMatchFinished || e.Type == EvtLobbyClosed
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Multi fans an event out to every publisher and reports all failures.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, ev))
	}
	return err
}
