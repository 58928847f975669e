package game

import (
	"context"
	"fmt"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/feed"
	"github.com/DoyleJ11/hand-cricket/internal/lobby"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"go.uber.org/zap"
)

const joinButtonPrefix = "join:"

// JoinData is the callback payload of a lobby's join button.
func JoinData(matchID string) string { return joinButtonPrefix + matchID }

// CreateLobby opens a solo match in the room and starts its join window. A
// lobby still pending in the room is superseded and its match closed.
func (g *Game) CreateLobby(ctx context.Context, chatID string, creator engine.Player) *engine.Match {
	_, m := engine.NewMatch(chatID, creator, g.overs)
	if err := g.st.CreateMatch(ctx, m); err != nil {
		g.saveFailures.Add(1)
		g.log.Error("creating match record", zap.String("match_id", m.ID), zap.Error(err))
	}
	g.reg.Add(m)
	g.openWindow(ctx, m)

	g.room(ctx, chatID, types.Outgoing{
		Text:    fmt.Sprintf("🎉 Game created! Join the game using /joingame (%s to join) ⏰", humanize(g.timer.Window().Deadline)),
		Buttons: []types.Button{{Text: "Join Game", Data: JoinData(m.ID)}},
	})
	g.publish(ctx, feed.EvtLobbyCreated, m, nil)
	g.log.Info("lobby created",
		zap.String("match_id", m.ID),
		zap.String("chat_id", chatID),
		zap.String("creator", creator.ID))
	return m
}

func (g *Game) openWindow(ctx context.Context, m *engine.Match) {
	l := g.timer.Open(m.ChatID, m.ID, func(ev lobby.Event) { g.OnLobbyEvent(ctx, ev) })
	prev := g.reg.OpenLobby(l)
	if prev == nil || prev.MatchID == m.ID {
		return
	}
	if old := g.reg.Get(prev.MatchID); old != nil && old.Status == engine.StatusWaiting {
		engine.Abandon(old)
		g.persist(ctx, old)
		g.publish(ctx, feed.EvtLobbyClosed, old, nil)
		g.reg.Remove(old.ID)
	}
	g.log.Info("lobby superseded",
		zap.String("chat_id", m.ChatID),
		zap.String("old_match_id", prev.MatchID),
		zap.String("match_id", m.ID))
}

// Join adds p to a waiting match and returns the player's position.
func (g *Game) Join(ctx context.Context, matchID string, p engine.Player) (int, error) {
	m := g.reg.Get(matchID)
	if m == nil {
		return 0, ErrLobbyNotFound
	}
	if m.Status != engine.StatusWaiting {
		return 0, ErrAlreadyStarted
	}
	if err := engine.AddPlayer(m, p); err != nil {
		return 0, err
	}
	g.persist(ctx, m)

	pos := len(m.Players)
	g.room(ctx, m.ChatID, types.Text(fmt.Sprintf("🎉 %s, you've joined the game! (Player %d) 👍", p.Name, pos)))
	g.publish(ctx, feed.EvtPlayerJoined, m, nil)
	return pos, nil
}

// JoinRoom joins the room's pending lobby.
func (g *Game) JoinRoom(ctx context.Context, chatID string, p engine.Player) (int, error) {
	l := g.reg.Lobby(chatID)
	if l == nil {
		return 0, ErrNoLobby
	}
	return g.Join(ctx, l.MatchID, p)
}

// OnLobbyEvent handles a reminder or the deadline of a join window. Events of
// a lobby that is no longer the room's pending one are ignored.
func (g *Game) OnLobbyEvent(ctx context.Context, ev lobby.Event) {
	l := g.reg.Lobby(ev.ChatID)
	if !l.Owns(ev) {
		g.log.Debug("stale lobby event",
			zap.String("chat_id", ev.ChatID),
			zap.String("match_id", ev.MatchID),
			zap.Uint64("gen", ev.Gen))
		return
	}

	if ev.Kind == lobby.EventReminder {
		g.room(ctx, ev.ChatID, types.Text(ev.Text))
		return
	}

	g.reg.DropLobby(l)
	m := g.reg.Get(ev.MatchID)
	if m == nil {
		g.room(ctx, ev.ChatID, types.Text("Lobby expired."))
		return
	}

	if err := engine.StartMatch(m); err != nil {
		engine.Abandon(m)
		g.persist(ctx, m)
		g.room(ctx, ev.ChatID, types.Text("Not enough players joined. Lobby closed."))
		g.publish(ctx, feed.EvtLobbyClosed, m, nil)
		g.reg.Remove(m.ID)
		g.log.Info("lobby closed", zap.String("match_id", m.ID), zap.Int("players", len(m.Players)))
		return
	}

	g.persist(ctx, m)
	g.room(ctx, ev.ChatID, types.Text(fmt.Sprintf("Match starting! Players:\n1) %s\n2) %s", m.Players[0].Name, m.Players[1].Name)))
	g.publish(ctx, feed.EvtMatchStarted, m, nil)
	g.log.Info("match started", zap.String("match_id", m.ID), zap.String("chat_id", m.ChatID))
	g.BeginBall(ctx, m.ID)
}

// Reload replaces the registry with every unfinished match in the store. Waiting
// matches get a fresh join window; matches in play are prompted again.
func (g *Game) Reload(ctx context.Context) (int, error) {
	g.reg.Reset()
	clear(g.revealing)

	ms, err := g.st.ListActiveMatches(ctx)
	if err != nil {
		return 0, err
	}
	n := g.reg.Load(ms)
	for _, m := range ms {
		if g.reg.Get(m.ID) == nil {
			continue
		}
		g.resume(ctx, m)
	}
	g.log.Info("registry reloaded", zap.Int("matches", n))
	return n, nil
}

func (g *Game) resume(ctx context.Context, m *engine.Match) {
	switch m.Status {
	case engine.StatusWaiting:
		g.openWindow(ctx, m)
	case engine.StatusInningsComplete:
		if err := engine.ResumeInnings(m); err == nil {
			g.BeginBall(ctx, m.ID)
		}
	case engine.StatusInProgress:
		if m.WaitingForBatterNumber {
			if batter, ok := engine.CurrentBatter(m); ok {
				g.room(ctx, m.ChatID, types.Text(fmt.Sprintf("Now Batter: %s can send number (1-6)!!", batter.Name)))
			}
			return
		}
		g.BeginBall(ctx, m.ID)
	}
}

func humanize(d time.Duration) string {
	if d%time.Minute == 0 {
		if n := int(d / time.Minute); n != 1 {
			return fmt.Sprintf("%d minutes", n)
		}
		return "1 minute"
	}
	return d.String()
}
