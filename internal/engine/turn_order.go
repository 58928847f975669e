package engine

// Innings 1: players[0] bats, players[1] bowls. Innings 2 swaps them.
func newInnings() map[int]*InningsState {
	return map[int]*InningsState{
		1: {BattingIndex: 0, BowlingIndex: 1, History: []BallRecord{}},
		2: {BattingIndex: 1, BowlingIndex: 0, History: []BallRecord{}},
	}
}

func assignRoles(m *Match) {
	if m.Innings == nil {
		m.Innings = newInnings()
	}
	n := len(m.Players)

	first, second := m.Innings[1], m.Innings[2]
	first.BattingIndex = 0
	first.BowlingIndex = 1 % n
	first.BallsBowledByCurrentBowler = 0
	first.TotalBalls = 0

	second.BattingIndex = 1 % n
	second.BowlingIndex = 0
	second.BallsBowledByCurrentBowler = 0
	second.TotalBalls = 0
}

func rotateBowler(m *Match, inn *InningsState) {
	if inn.BallsBowledByCurrentBowler < SpellLength {
		return
	}
	inn.BowlingIndex = (inn.BowlingIndex + 1) % len(m.Players)
	inn.BallsBowledByCurrentBowler = 0
}

func inningsOver(m *Match, inn *InningsState) bool {
	return inn.TotalBalls >= InningsBalls(m) || inn.Wickets >= MaxWickets
}

// InningsBalls is the ball limit for one innings.
func InningsBalls(m *Match) int {
	return m.Overs * BallsPerOver
}
