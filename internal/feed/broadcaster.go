package feed

import (
	"context"
)

type Msg interface{ isFeedMsg() }

type Subscribe struct {
	ClientID string
	MatchID  string
	Outbox   chan Event // where this client wants to receive events
}

func (Subscribe) isFeedMsg() {}

type Unsubscribe struct {
	ClientID string
	MatchID  string
}

func (Unsubscribe) isFeedMsg() {}

type publish struct{ ev Event }

func (publish) isFeedMsg() {}

type Shutdown struct{}

func (Shutdown) isFeedMsg() {}

type GetView struct {
	Reply chan View
}

func (GetView) isFeedMsg() {}

type View struct {
	Matches    int
	NumClients int
}

// Broadcaster fans match events out to in-process subscribers, one set per
// match. All state is owned by its loop goroutine.
type Broadcaster struct {
	inbox    chan Msg
	clients  map[string]map[string]chan Event // match id -> client id -> outbox
	last     map[string]Event
	versions map[string]int
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewBroadcaster(parent context.Context) *Broadcaster {
	ctx, cancel := context.WithCancel(parent)

	b := &Broadcaster{
		inbox:    make(chan Msg, 64),
		clients:  make(map[string]map[string]chan Event),
		last:     make(map[string]Event),
		versions: make(map[string]int),
		ctx:      ctx,
		cancel:   cancel,
	}

	go b.loop()
	return b
}

func (b *Broadcaster) Inbox() chan<- Msg { return b.inbox }

func (b *Broadcaster) Publish(ctx context.Context, ev Event) error {
	return b.send(ctx, publish{ev: ev})
}

// Subscribe registers out for events of one match. The broadcaster closes out
// when the match ends, when the client falls behind or on shutdown.
func (b *Broadcaster) Subscribe(ctx context.Context, clientID, matchID string, out chan Event) error {
	return b.send(ctx, Subscribe{ClientID: clientID, MatchID: matchID, Outbox: out})
}

func (b *Broadcaster) Unsubscribe(ctx context.Context, clientID, matchID string) error {
	return b.send(ctx, Unsubscribe{ClientID: clientID, MatchID: matchID})
}

func (b *Broadcaster) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := b.send(ctx, GetView{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	case <-b.ctx.Done():
		return View{}, b.ctx.Err()
	}
}

func (b *Broadcaster) send(ctx context.Context, m Msg) error {
	if err := b.ctx.Err(); err != nil {
		return err
	}
	select {
	case b.inbox <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-b.ctx.Done():
		return b.ctx.Err()
	}
}

func (b *Broadcaster) loop() {
	for {
		select {
		case <-b.ctx.Done():
			b.shutdown()
			return

		case m := <-b.inbox:
			switch msg := m.(type) {
			case Subscribe:
				subs := b.clients[msg.MatchID]
				if subs == nil {
					subs = make(map[string]chan Event)
					b.clients[msg.MatchID] = subs
				}
				subs[msg.ClientID] = msg.Outbox
				// Late joiners get the latest event straight away.
				if last, ok := b.last[msg.MatchID]; ok {
					select {
					case msg.Outbox <- last:
					default:
					}
				}

			case Unsubscribe:
				if subs := b.clients[msg.MatchID]; subs != nil {
					delete(subs, msg.ClientID)
				}

			case publish:
				b.versions[msg.ev.MatchID]++
				msg.ev.Version = b.versions[msg.ev.MatchID]
				b.broadcast(msg.ev)
				if msg.ev.Terminal() {
					b.closeMatch(msg.ev.MatchID)
				} else {
					b.last[msg.ev.MatchID] = msg.ev
				}

			case GetView:
				n := 0
				for _, subs := range b.clients {
					n += len(subs)
				}
				msg.Reply <- View{Matches: len(b.last), NumClients: n}

			case Shutdown:
				b.shutdown()
				return
			}
		}
	}
}

func (b *Broadcaster) broadcast(ev Event) {
	subs := b.clients[ev.MatchID]
	for id, ch := range subs {
		select {
		case ch <- ev:
		default:
			// Slow client, drop it.
			close(ch)
			delete(subs, id)
		}
	}
}

func (b *Broadcaster) closeMatch(matchID string) {
	for id, ch := range b.clients[matchID] {
		close(ch)
		delete(b.clients[matchID], id)
	}
	delete(b.clients, matchID)
	delete(b.last, matchID)
	delete(b.versions, matchID)
}

func (b *Broadcaster) shutdown() {
	for matchID := range b.clients {
		b.closeMatch(matchID)
	}
	b.cancel()
}
