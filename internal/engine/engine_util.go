package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Seams for tests.
var now = time.Now
var newID = func() string { return uuid.NewString() }

func NewMatch(chatID string, creator Player, overs int) (string, *Match) {
	if overs < 1 {
		overs = 1
	}
	id := newID()
	m := &Match{
		ID:             id,
		ChatID:         chatID,
		Type:           TypeSolo,
		Creator:        creator,
		Overs:          overs,
		Players:        []Player{},
		PlayersStats:   map[string]*PlayerStats{},
		CurrentInnings: 1,
		Innings:        newInnings(),
		Status:         StatusWaiting,
		CreatedAt:      now(),
	}
	return id, m
}

type MOTM struct {
	Player
	PlayerStats
}

// ComputeMOTM ranks by runs, then fewer balls faced, then wickets. Remaining
// ties go to the player who joined first.
func ComputeMOTM(m *Match) (MOTM, bool) {
	if len(m.Players) == 0 {
		return MOTM{}, false
	}

	var best MOTM
	for i, p := range m.Players {
		c := MOTM{Player: p, PlayerStats: statsOf(m, p.ID)}
		if i == 0 || betterThan(c.PlayerStats, best.PlayerStats) {
			best = c
		}
	}
	return best, true
}

func betterThan(a, b PlayerStats) bool {
	if a.Runs != b.Runs {
		return a.Runs > b.Runs
	}
	if a.Balls != b.Balls {
		return a.Balls < b.Balls
	}
	return a.Wickets > b.Wickets
}

type InningsScore struct {
	Number  int
	Batter  Player
	Score   int
	Wickets int
	Balls   int
}

type Result struct {
	Innings [2]InningsScore
	Winner  Player
	Tie     bool
}

// ComputeResult compares the two innings totals. Each total belongs to the
// player who batted that innings.
func ComputeResult(m *Match) Result {
	var r Result
	for i := range r.Innings {
		n := i + 1
		inn := m.Innings[n]
		score := InningsScore{Number: n}
		if inn != nil {
			score.Score, score.Wickets, score.Balls = inn.Score, inn.Wickets, inn.TotalBalls
			if inn.BattingIndex >= 0 && inn.BattingIndex < len(m.Players) {
				score.Batter = m.Players[inn.BattingIndex]
			}
		}
		r.Innings[i] = score
	}

	switch first, second := r.Innings[0], r.Innings[1]; {
	case first.Score > second.Score:
		r.Winner = first.Batter
	case second.Score > first.Score:
		r.Winner = second.Batter
	default:
		r.Tie = true
	}
	return r
}

func PlayersScoreList(m *Match) string {
	if m == nil || len(m.Players) == 0 {
		return "No players yet."
	}
	lines := make([]string, 0, len(m.Players))
	for i, p := range m.Players {
		s := statsOf(m, p.ID)
		lines = append(lines, fmt.Sprintf("%d) %s — %d runs (%d balls), %d wickets", i+1, p.Name, s.Runs, s.Balls, s.Wickets))
	}
	return strings.Join(lines, "\n")
}

func ScorecardText(m *Match) string {
	var b strings.Builder
	for n := 1; n <= 2; n++ {
		inn := m.Innings[n]
		if inn == nil {
			inn = &InningsState{}
		}
		fmt.Fprintf(&b, "Innings %d: %d/%d (%d balls)\n", n, inn.Score, inn.Wickets, inn.TotalBalls)
	}
	fmt.Fprintf(&b, "Current Innings: %d", m.CurrentInnings)
	return b.String()
}

// Clone returns a deep copy safe to hand to other goroutines.
func Clone(m *Match) *Match {
	if m == nil {
		return nil
	}
	c := *m
	c.Players = append([]Player(nil), m.Players...)

	c.PlayersStats = make(map[string]*PlayerStats, len(m.PlayersStats))
	for id, s := range m.PlayersStats {
		cp := *s
		c.PlayersStats[id] = &cp
	}

	c.Innings = make(map[int]*InningsState, len(m.Innings))
	for n, inn := range m.Innings {
		cp := *inn
		cp.History = append([]BallRecord(nil), inn.History...)
		c.Innings[n] = &cp
	}

	if m.PendingBowlerNumber != nil {
		n := *m.PendingBowlerNumber
		c.PendingBowlerNumber = &n
	}
	return &c
}

// Redacted is a copy with the bowler's pending number hidden, for anything
// shown outside the bowler's private chat.
func Redacted(m *Match) *Match {
	c := Clone(m)
	if c != nil {
		c.PendingBowlerNumber = nil
	}
	return c
}

func statsOf(m *Match, playerID string) PlayerStats {
	if s, ok := m.PlayersStats[playerID]; ok && s != nil {
		return *s
	}
	return PlayerStats{}
}
