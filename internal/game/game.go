package game

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/feed"
	"github.com/DoyleJ11/hand-cricket/internal/hub"
	"github.com/DoyleJ11/hand-cricket/internal/lobby"
	"github.com/DoyleJ11/hand-cricket/internal/store"
	"github.com/DoyleJ11/hand-cricket/internal/types"
	"go.uber.org/zap"
)

var (
	ErrLobbyNotFound  = errors.New("lobby expired or not found")
	ErrAlreadyStarted = errors.New("game already started")
	ErrNoLobby        = errors.New("no active lobby in this room")
	ErrNoMatch        = errors.New("no active match")
	ErrNotYourBall    = errors.New("no ball is waiting for your number")
)

// Media labels looked up while rendering a ball.
const LabelBowling = "bowling"

type Transport interface {
	SendPrivate(ctx context.Context, userID string, msg types.Outgoing) error
	SendRoom(ctx context.Context, chatID string, msg types.Outgoing) error
	Download(ctx context.Context, fileID string) ([]byte, error)
}

type Store interface {
	CreateMatch(ctx context.Context, m *engine.Match) error
	SaveMatch(ctx context.Context, m *engine.Match) error
	ListActiveMatches(ctx context.Context) ([]*engine.Match, error)
	GetMedia(ctx context.Context, label string) (*types.Media, error)
	SaveMedia(ctx context.Context, m types.Media) error
	ListMedia(ctx context.Context) ([]types.Media, error)
	Backup(ctx context.Context, w io.Writer) error
	Restore(ctx context.Context, r io.Reader) (*store.Snapshot, error)
}

type Settings struct {
	Overs       int
	RevealDelay time.Duration
	Window      lobby.Window
}

// Game is the turn orchestrator. Every method must run on the hub loop; the
// registry and the reveal set are not locked.
type Game struct {
	reg   *hub.Registry
	sched lobby.Scheduler
	timer *lobby.Timer
	tr    Transport
	st    Store
	pub   feed.Publisher
	log   *zap.Logger

	overs       int
	revealDelay time.Duration

	// Matches whose last ball is resolved but not yet revealed.
	revealing map[string]bool

	saveFailures atomic.Int64
}

func New(reg *hub.Registry, sched lobby.Scheduler, tr Transport, st Store, pub feed.Publisher, log *zap.Logger, s Settings) *Game {
	if s.Window.Deadline == 0 {
		s.Window = lobby.DefaultWindow
	}
	if pub == nil {
		pub = feed.Multi{}
	}
	return &Game{
		reg:         reg,
		sched:       sched,
		timer:       lobby.NewTimer(sched, s.Window),
		tr:          tr,
		st:          st,
		pub:         pub,
		log:         log,
		overs:       s.Overs,
		revealDelay: s.RevealDelay,
		revealing:   make(map[string]bool),
	}
}

// SaveFailures counts routine saves that did not reach the store. Safe to call
// from any goroutine.
func (g *Game) SaveFailures() int64 { return g.saveFailures.Load() }

// persist writes the match snapshot. A failure is logged and counted; the
// in-memory match carries on.
func (g *Game) persist(ctx context.Context, m *engine.Match) {
	if err := g.st.SaveMatch(ctx, m); err != nil {
		g.saveFailures.Add(1)
		g.log.Error("saving match",
			zap.String("match_id", m.ID),
			zap.String("status", string(m.Status)),
			zap.Error(err))
	}
}

func (g *Game) publish(ctx context.Context, t feed.EventType, m *engine.Match, ball *engine.BallRecord) {
	ev := feed.NewEvent(t, m)
	ev.Ball = ball
	if err := g.pub.Publish(ctx, ev); err != nil {
		g.log.Warn("publishing match event",
			zap.String("match_id", m.ID),
			zap.String("event", string(t)),
			zap.Error(err))
	}
}

func (g *Game) room(ctx context.Context, chatID string, msg types.Outgoing) {
	if err := g.tr.SendRoom(ctx, chatID, msg); err != nil {
		g.log.Warn("sending room message", zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (g *Game) private(ctx context.Context, userID string, msg types.Outgoing) {
	if err := g.tr.SendPrivate(ctx, userID, msg); err != nil {
		g.log.Warn("sending private message", zap.String("user_id", userID), zap.Error(err))
	}
}

// media returns the stored media for label, or nil when there is none or the
// lookup fails.
func (g *Game) media(ctx context.Context, label string) *types.Media {
	m, err := g.st.GetMedia(ctx, label)
	if err != nil {
		g.log.Warn("looking up media", zap.String("label", label), zap.Error(err))
		return nil
	}
	return m
}
