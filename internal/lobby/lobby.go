package lobby

import (
	"time"
)

// Scheduler runs fn after d on the caller's event loop. The returned func
// cancels it if it has not fired yet.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) (cancel func())
}

type EventKind int

const (
	EventReminder EventKind = iota
	EventDeadline
)

type Event struct {
	Kind    EventKind
	ChatID  string
	MatchID string
	Gen     uint64
	Text    string // reminder text; empty for the deadline
}

type Reminder struct {
	After time.Duration
	Text  string
}

// Window is the join schedule of a lobby, measured from creation.
type Window struct {
	Reminders []Reminder
	Deadline  time.Duration
}

var DefaultWindow = Window{
	Reminders: []Reminder{
		{After: 60 * time.Second, Text: "1 minute left only, everyone /joingame fast!!"},
		{After: 90 * time.Second, Text: "30 seconds left only, everyone /joingame fast!!"},
		{After: 110 * time.Second, Text: "Last 10 seconds left only, /joingame !!"},
	},
	Deadline: 2 * time.Minute,
}

// Lobby is the pending-lobby descriptor of one room: the match it gathers
// players for and the handles of its scheduled events.
type Lobby struct {
	ChatID   string
	MatchID  string
	Gen      uint64
	OpenedAt time.Time

	cancels []func()
	closed  bool
}

// Cancel stops every event that has not fired yet. Safe to call twice.
func (l *Lobby) Cancel() {
	if l == nil || l.closed {
		return
	}
	l.closed = true
	for _, cancel := range l.cancels {
		cancel()
	}
	l.cancels = nil
}

func (l *Lobby) Closed() bool { return l == nil || l.closed }

// Owns reports whether ev was scheduled by this lobby. Events of a superseded
// lobby can still be queued when it is cancelled; they fail this check.
func (l *Lobby) Owns(ev Event) bool {
	return l != nil && !l.closed && l.Gen == ev.Gen && l.MatchID == ev.MatchID
}

type Timer struct {
	sched  Scheduler
	window Window
	gen    uint64
	now    func() time.Time
}

func NewTimer(s Scheduler, w Window) *Timer {
	return &Timer{sched: s, window: w, now: time.Now}
}

func (t *Timer) Window() Window { return t.window }

// Open schedules the reminders and the deadline of a new lobby. fire receives
// each event as it comes due.
func (t *Timer) Open(chatID, matchID string, fire func(Event)) *Lobby {
	t.gen++
	l := &Lobby{ChatID: chatID, MatchID: matchID, Gen: t.gen, OpenedAt: t.now()}

	for _, r := range t.window.Reminders {
		ev := Event{Kind: EventReminder, ChatID: chatID, MatchID: matchID, Gen: l.Gen, Text: r.Text}
		l.cancels = append(l.cancels, t.sched.Schedule(r.After, func() { fire(ev) }))
	}

	deadline := Event{Kind: EventDeadline, ChatID: chatID, MatchID: matchID, Gen: l.Gen}
	l.cancels = append(l.cancels, t.sched.Schedule(t.window.Deadline, func() { fire(deadline) }))
	return l
}
