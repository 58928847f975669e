package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// Exec runs Fn on the loop goroutine with exclusive access to the registry.
type Exec struct {
	Fn func(ctx context.Context, reg *Registry)
}

type GetMatch struct {
	ID    string
	Reply chan *engine.Match // redacted copy, nil if not tracked
}

type ListMatches struct {
	Reply chan []*engine.Match
}

type GetView struct {
	Reply chan View
}

type View struct {
	Matches int
	Lobbies int
}

type ShutdownHub struct{}

func (Exec) isHubMsg()        {}
func (GetMatch) isHubMsg()    {}
func (ListMatches) isHubMsg() {}
func (GetView) isHubMsg()     {}
func (ShutdownHub) isHubMsg() {}

// Hub serializes every mutation of the registry onto one goroutine. Player
// input, timer fires and reveal delays all arrive as Exec messages and run to
// completion one at a time.
type Hub struct {
	inbox  chan HubMsg
	reg    *Registry
	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, reg *Registry, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 256),
		reg:    reg,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the loop has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Post queues fn for the loop. It fails only when the hub is shut down or ctx
// ends first.
func (h *Hub) Post(ctx context.Context, fn func(ctx context.Context, reg *Registry)) error {
	return h.send(ctx, Exec{Fn: fn})
}

// Schedule runs fn on the loop after d. Cancelling also drops a fire that is
// already queued but has not run.
func (h *Hub) Schedule(d time.Duration, fn func()) (cancel func()) {
	cancelled := false // only touched on the loop goroutine
	t := time.AfterFunc(d, func() {
		_ = h.Post(h.ctx, func(context.Context, *Registry) {
			if !cancelled {
				fn()
			}
		})
	})
	return func() {
		cancelled = true
		t.Stop()
	}
}

// Match fetches a redacted copy of a tracked match through the loop.
func (h *Hub) Match(ctx context.Context, id string) (*engine.Match, error) {
	reply := make(chan *engine.Match, 1)
	if err := h.send(ctx, GetMatch{ID: id, Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h.done, reply)
}

func (h *Hub) Matches(ctx context.Context) ([]*engine.Match, error) {
	reply := make(chan []*engine.Match, 1)
	if err := h.send(ctx, ListMatches{Reply: reply}); err != nil {
		return nil, err
	}
	return recv(ctx, h.done, reply)
}

func (h *Hub) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := h.send(ctx, GetView{Reply: reply}); err != nil {
		return View{}, err
	}
	return recv(ctx, h.done, reply)
}

func (h *Hub) send(ctx context.Context, msg HubMsg) error {
	if err := h.ctx.Err(); err != nil {
		return err
	}
	select {
	case h.inbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

func recv[T any](ctx context.Context, done <-chan struct{}, ch <-chan T) (T, error) {
	var zero T
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-done:
		return zero, context.Canceled
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Exec:
				h.run(msg.Fn)

			case GetMatch:
				msg.Reply <- engine.Redacted(h.reg.Get(msg.ID))

			case ListMatches:
				msg.Reply <- h.reg.Snapshot()

			case GetView:
				msg.Reply <- View{Matches: h.reg.Len(), Lobbies: h.reg.NumLobbies()}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// run keeps the loop alive when a handler panics.
func (h *Hub) run(fn func(context.Context, *Registry)) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("hub handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn(h.ctx, h.reg)
}

func (h *Hub) shutdown() {
	for _, l := range h.reg.lobbies {
		l.Cancel()
	}
	h.cancel()
}
