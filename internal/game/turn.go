package game

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/feed"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"go.uber.org/zap"
)

// BeginBall arms the next ball of a match and prompts its bowler privately.
func (g *Game) BeginBall(ctx context.Context, matchID string) {
	m := g.reg.Get(matchID)
	if m == nil {
		return
	}
	if m.Status == engine.StatusFinished {
		g.EndMatch(ctx, matchID)
		return
	}
	if err := engine.ArmBall(m); err != nil {
		g.log.Warn("arming ball", zap.String("match_id", m.ID), zap.String("status", string(m.Status)), zap.Error(err))
		return
	}
	g.persist(ctx, m)

	batter, _ := engine.CurrentBatter(m)
	bowler, _ := engine.CurrentBowler(m)
	g.room(ctx, m.ChatID, types.Text(fmt.Sprintf("Hey %s, now you're batter!\nHey %s, now you're bowling!", batter.Name, bowler.Name)))

	if err := g.promptBowler(ctx, bowler, batter); err != nil {
		// The ball stays armed; the bowler can still answer once they open a
		// private chat.
		g.log.Warn("bowler prompt not delivered",
			zap.String("match_id", m.ID),
			zap.String("bowler", bowler.ID),
			zap.Bool("delivery", errors.Is(err, types.ErrDelivery)),
			zap.Error(err))
		g.room(ctx, m.ChatID, types.Text(fmt.Sprintf("Couldn't send PM to %s. Make sure they have started a chat with the bot.", bowler.Name)))
	}
}

func (g *Game) promptBowler(ctx context.Context, bowler, batter engine.Player) error {
	if anim := g.media(ctx, LabelBowling); anim != nil {
		if err := g.tr.SendPrivate(ctx, bowler.ID, types.Outgoing{Media: anim}); err != nil {
			return err
		}
	}
	return g.tr.SendPrivate(ctx, bowler.ID, types.Outgoing{
		Text:   fmt.Sprintf("Current batter: %s\nSend your number (1-6).", batter.Name),
		Keypad: true,
	})
}

// BowlerInput takes a bowler's secret number from a private chat.
func (g *Game) BowlerInput(ctx context.Context, userID string, num int) error {
	m := g.reg.ByPlayer(userID, func(m *engine.Match) bool {
		if m.Status != engine.StatusInProgress || !m.WaitingForBowlerNumber || g.revealing[m.ID] {
			return false
		}
		bowler, ok := engine.CurrentBowler(m)
		return ok && bowler.ID == userID
	})
	if m == nil {
		return ErrNotYourBall
	}
	if err := engine.SubmitBowlerNumber(m, userID, num); err != nil {
		return err
	}
	g.persist(ctx, m)

	g.private(ctx, userID, types.Text("Number received. Waiting for batter in group..."))
	batter, _ := engine.CurrentBatter(m)
	g.room(ctx, m.ChatID, types.Text(fmt.Sprintf("Now Batter: %s can send number (1-6)!!", batter.Name)))
	return nil
}

// BatterInput takes the batter's number in the room and schedules the reveal.
// ErrNoPendingBall means nothing in the room was waiting for a batter.
func (g *Game) BatterInput(ctx context.Context, chatID, userID string, num int) error {
	m := g.reg.ByChat(chatID, func(m *engine.Match) bool { return m.WaitingForBatterNumber })
	if m == nil {
		return engine.ErrNoPendingBall
	}
	d, err := engine.SubmitBatterNumber(m, userID, num)
	if err != nil {
		return err
	}

	g.revealing[m.ID] = true
	g.room(ctx, chatID, types.Text("⚡"))

	matchID := m.ID
	g.sched.Schedule(g.revealDelay, func() { g.reveal(ctx, matchID, d) })
	return nil
}

// reveal renders a resolved ball and moves the match on. The match is looked
// up again since a restore may have replaced it during the delay.
func (g *Game) reveal(ctx context.Context, matchID string, d engine.Delivery) {
	if !g.revealing[matchID] {
		return
	}
	delete(g.revealing, matchID)
	m := g.reg.Get(matchID)
	if m == nil {
		return
	}

	g.showOutcome(ctx, m.ChatID, d)
	g.room(ctx, m.ChatID, types.Text(LiveScoreboard(m)))
	g.persist(ctx, m)
	ball := d.Record
	g.publish(ctx, feed.EvtBall, m, &ball)

	switch m.Status {
	case engine.StatusInningsComplete:
		g.publish(ctx, feed.EvtInningsComplete, m, nil)
		g.room(ctx, m.ChatID, types.Text("Innings 1 complete. Starting Innings 2!"))
		if err := engine.ResumeInnings(m); err != nil {
			g.log.Error("resuming innings", zap.String("match_id", m.ID), zap.Error(err))
			return
		}
		g.BeginBall(ctx, m.ID)
	case engine.StatusFinished:
		g.EndMatch(ctx, m.ID)
	default:
		g.BeginBall(ctx, m.ID)
	}
}

func (g *Game) showOutcome(ctx context.Context, chatID string, d engine.Delivery) {
	if anim := g.media(ctx, d.Outcome); anim != nil {
		err := g.tr.SendRoom(ctx, chatID, types.Outgoing{Media: anim})
		if err == nil {
			return
		}
		g.log.Warn("sending outcome media", zap.String("label", d.Outcome), zap.Error(err))
	}
	g.room(ctx, chatID, types.Text("Shot result: "+OutcomeText(d)))
}

// EndMatch posts the result and evicts the match.
func (g *Game) EndMatch(ctx context.Context, matchID string) {
	m := g.reg.Get(matchID)
	if m == nil {
		return
	}
	g.persist(ctx, m)
	g.room(ctx, m.ChatID, types.Text(ResultText(m)))
	g.publish(ctx, feed.EvtMatchFinished, m, nil)
	g.reg.Remove(m.ID)

	r := engine.ComputeResult(m)
	g.log.Info("match finished",
		zap.String("match_id", m.ID),
		zap.Int("innings1", r.Innings[0].Score),
		zap.Int("innings2", r.Innings[1].Score),
		zap.Bool("tie", r.Tie))
}

func OutcomeText(d engine.Delivery) string {
	if d.Wicket {
		return "WICKET! 🟥"
	}
	return fmt.Sprintf("RUNS: %d 🟩", d.Runs)
}

func LiveScoreboard(m *engine.Match) string {
	return fmt.Sprintf("Live scoreboard:\n%s\n\n%s", engine.PlayersScoreList(m), engine.ScorecardText(m))
}

func ResultText(m *engine.Match) string {
	r := engine.ComputeResult(m)
	first, second := r.Innings[0], r.Innings[1]

	var b strings.Builder
	fmt.Fprintf(&b, "Final Score — %s: %d | %s: %d\n", first.Batter.Name, first.Score, second.Batter.Name, second.Score)
	if r.Tie {
		b.WriteString("It's a tie! 🤝\n")
	} else {
		fmt.Fprintf(&b, "%s wins! 🎉\n", r.Winner.Name)
	}
	fmt.Fprintf(&b, "\nPlayers stats:\n%s\n", engine.PlayersScoreList(m))
	if motm, ok := engine.ComputeMOTM(m); ok {
		fmt.Fprintf(&b, "\nMan of the Match: %s — %d runs, %d balls, %d wickets 🎖️", motm.Name, motm.Runs, motm.Balls, motm.Wickets)
	}
	return b.String()
}
