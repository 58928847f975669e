package engine

import (
	"errors"
	"strconv"
	"time"
)

var ErrInvalidPhase = errors.New("match not in progress")
var ErrNotCurrentBowler = errors.New("you are not the current bowler")
var ErrNotCurrentBatter = errors.New("you are not the current batter")
var ErrOutOfRange = errors.New("number must be 1-6")
var ErrNoPendingBall = errors.New("no ball is waiting for a batter response")
var ErrPlayerExists = errors.New("player already joined")
var ErrLobbyFull = errors.New("lobby is full")
var ErrNotEnoughPlayers = errors.New("not enough players")

type MatchType string

const (
	TypeSolo MatchType = "solo"
)

type Status string

const (
	StatusWaiting         Status = "waiting"
	StatusInProgress      Status = "in_progress"
	StatusInningsComplete Status = "innings_complete"
	StatusFinished        Status = "finished"
)

const (
	MinNumber    = 1
	MaxNumber    = 6
	BallsPerOver = 6
	// The bowler changes every SpellLength balls, independent of BallsPerOver.
	SpellLength = 3
	MaxWickets  = 10
	MaxPlayers  = 2

	OutcomeWicket = "W"
)

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type PlayerStats struct {
	Runs    int `json:"runs"`
	Balls   int `json:"balls"`
	Wickets int `json:"wickets"`
}

type BallRecord struct {
	BowlerID     string    `json:"bowlerId"`
	BowlerNumber int       `json:"bowlerNum"`
	BatterID     string    `json:"batterId"`
	BatterNumber int       `json:"batterNum"`
	Outcome      string    `json:"outcome"` // "W" or the runs scored
	Timestamp    time.Time `json:"timestamp"`
}

type InningsState struct {
	BattingIndex               int          `json:"battingIndex"`
	BowlingIndex               int          `json:"bowlingIndex"`
	BallsBowledByCurrentBowler int          `json:"ballsBowledByCurrentBowler"`
	TotalBalls                 int          `json:"totalBalls"`
	Wickets                    int          `json:"wickets"`
	Score                      int          `json:"score"`
	History                    []BallRecord `json:"history"`
}

// Match is the aggregate root for one game. It is serialized as-is into the
// store, so field names double as the snapshot format.
type Match struct {
	ID             string                  `json:"id"`
	ChatID         string                  `json:"chatId"`
	Type           MatchType               `json:"type"`
	Creator        Player                  `json:"creator"`
	Overs          int                     `json:"overs"`
	Players        []Player                `json:"players"`
	PlayersStats   map[string]*PlayerStats `json:"playersStats"`
	CurrentInnings int                     `json:"currentInnings"`
	Innings        map[int]*InningsState   `json:"innings"`
	Status         Status                  `json:"status"`
	CreatedAt      time.Time               `json:"createdAt"`

	WaitingForBowlerNumber bool   `json:"waitingForBowlerNumber"`
	WaitingForBatterNumber bool   `json:"waitingForBatterNumber"`
	PendingBowlerNumber    *int   `json:"pendingBowlerNumber"`
	PendingBowlerID        string `json:"pendingBowlerId,omitempty"`
}

// Delivery is the resolution of one ball.
type Delivery struct {
	Outcome string
	Runs    int
	Wicket  bool
	Record  BallRecord
}

func AddPlayer(m *Match, p Player) error {
	for _, existing := range m.Players {
		if existing.ID == p.ID {
			return ErrPlayerExists
		}
	}
	if len(m.Players) >= MaxPlayers {
		return ErrLobbyFull
	}

	m.Players = append(m.Players, p)
	statsFor(m, p.ID)
	return nil
}

func StartMatch(m *Match) error {
	if len(m.Players) < 2 {
		return ErrNotEnoughPlayers
	}

	m.Status = StatusInProgress
	m.CurrentInnings = 1
	assignRoles(m)
	clearBall(m)
	return nil
}

// Abandon closes a lobby that never started.
func Abandon(m *Match) {
	m.Status = StatusFinished
	clearBall(m)
}

// ArmBall opens the next ball for the current bowler.
func ArmBall(m *Match) error {
	if m.Status != StatusInProgress || m.WaitingForBatterNumber {
		return ErrInvalidPhase
	}
	m.WaitingForBowlerNumber = true
	return nil
}

// ResumeInnings moves a match from the innings break into the second innings.
func ResumeInnings(m *Match) error {
	if m.Status != StatusInningsComplete {
		return ErrInvalidPhase
	}
	m.Status = StatusInProgress
	clearBall(m)
	return nil
}

func SubmitBowlerNumber(m *Match, userID string, num int) error {
	if m.Status != StatusInProgress || m.WaitingForBatterNumber {
		return ErrInvalidPhase
	}

	bowler, ok := CurrentBowler(m)
	if !ok || bowler.ID != userID {
		return ErrNotCurrentBowler
	}
	if !validNumber(num) {
		return ErrOutOfRange
	}

	m.PendingBowlerNumber = &num
	m.PendingBowlerID = bowler.ID
	m.WaitingForBowlerNumber = false
	m.WaitingForBatterNumber = true
	return nil
}

func SubmitBatterNumber(m *Match, userID string, num int) (Delivery, error) {
	// Checked first so a repeated submission for the same ball always reads as
	// "nothing pending", whatever the match status became.
	if !m.WaitingForBatterNumber || m.PendingBowlerNumber == nil {
		return Delivery{}, ErrNoPendingBall
	}
	if m.Status != StatusInProgress {
		return Delivery{}, ErrInvalidPhase
	}

	batter, ok := CurrentBatter(m)
	if !ok || batter.ID != userID {
		return Delivery{}, ErrNotCurrentBatter
	}
	if !validNumber(num) {
		return Delivery{}, ErrOutOfRange
	}

	inn := currentInnings(m)
	bowlerNum := *m.PendingBowlerNumber
	bowlerID := m.PendingBowlerID

	batterStats := statsFor(m, batter.ID)
	bowlerStats := statsFor(m, bowlerID)
	batterStats.Balls++

	d := Delivery{}
	if bowlerNum == num {
		d.Wicket = true
		d.Outcome = OutcomeWicket
		inn.Wickets++
		bowlerStats.Wickets++
	} else {
		d.Runs = num
		d.Outcome = strconv.Itoa(num)
		inn.Score += num
		batterStats.Runs += num
	}

	d.Record = BallRecord{
		BowlerID:     bowlerID,
		BowlerNumber: bowlerNum,
		BatterID:     batter.ID,
		BatterNumber: num,
		Outcome:      d.Outcome,
		Timestamp:    now(),
	}
	inn.History = append(inn.History, d.Record)
	inn.TotalBalls++
	inn.BallsBowledByCurrentBowler++

	clearBall(m)
	rotateBowler(m, inn)

	if inningsOver(m, inn) {
		if m.CurrentInnings == 1 {
			m.CurrentInnings = 2
			m.Status = StatusInningsComplete
		} else {
			m.Status = StatusFinished
		}
	} else {
		m.WaitingForBowlerNumber = true
	}

	return d, nil
}

func CurrentBatter(m *Match) (Player, bool) {
	inn := currentInnings(m)
	if inn == nil || inn.BattingIndex < 0 || inn.BattingIndex >= len(m.Players) {
		return Player{}, false
	}
	return m.Players[inn.BattingIndex], true
}

func CurrentBowler(m *Match) (Player, bool) {
	inn := currentInnings(m)
	if inn == nil || inn.BowlingIndex < 0 || inn.BowlingIndex >= len(m.Players) {
		return Player{}, false
	}
	return m.Players[inn.BowlingIndex], true
}

func validNumber(n int) bool {
	return n >= MinNumber && n <= MaxNumber
}

func currentInnings(m *Match) *InningsState {
	return m.Innings[m.CurrentInnings]
}

func statsFor(m *Match, playerID string) *PlayerStats {
	if m.PlayersStats == nil {
		m.PlayersStats = map[string]*PlayerStats{}
	}
	s, ok := m.PlayersStats[playerID]
	if !ok {
		s = &PlayerStats{}
		m.PlayersStats[playerID] = s
	}
	return s
}

func clearBall(m *Match) {
	m.WaitingForBowlerNumber = false
	m.WaitingForBatterNumber = false
	m.PendingBowlerNumber = nil
	m.PendingBowlerID = ""
}
