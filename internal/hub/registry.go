package hub

import (
	"sort"

	"github.com/DoyleJ11/hand-cricket/internal/engine"
	"github.com/DoyleJ11/hand-cricket/internal/lobby"
)

// Registry indexes the matches that are not finished yet and the one pending
// lobby of each room. It is not safe for concurrent use; the hub loop owns it.
type Registry struct {
	matches map[string]*engine.Match
	lobbies map[string]*lobby.Lobby // chat id -> pending lobby
}

func NewRegistry() *Registry {
	return &Registry{
		matches: make(map[string]*engine.Match),
		lobbies: make(map[string]*lobby.Lobby),
	}
}

func (r *Registry) Add(m *engine.Match) { r.matches[m.ID] = m }

// Get returns nil when the match is not tracked.
func (r *Registry) Get(id string) *engine.Match { return r.matches[id] }

// Remove evicts a match and the room's pending lobby if it gathered for it.
func (r *Registry) Remove(id string) {
	m := r.matches[id]
	delete(r.matches, id)
	if m == nil {
		return
	}
	if l := r.lobbies[m.ChatID]; l != nil && l.MatchID == id {
		l.Cancel()
		delete(r.lobbies, m.ChatID)
	}
}

func (r *Registry) Len() int { return len(r.matches) }

// ByChat returns the first tracked match of the room that satisfies keep, or
// the first match of the room when keep is nil.
func (r *Registry) ByChat(chatID string, keep func(*engine.Match) bool) *engine.Match {
	for _, m := range r.ordered() {
		if m.ChatID != chatID {
			continue
		}
		if keep == nil || keep(m) {
			return m
		}
	}
	return nil
}

// ByPlayer returns the first tracked match the user plays in.
func (r *Registry) ByPlayer(userID string, keep func(*engine.Match) bool) *engine.Match {
	for _, m := range r.ordered() {
		for _, p := range m.Players {
			if p.ID == userID && (keep == nil || keep(m)) {
				return m
			}
		}
	}
	return nil
}

// OpenLobby makes l the pending lobby of its room. A lobby it supersedes is
// cancelled and returned.
func (r *Registry) OpenLobby(l *lobby.Lobby) *lobby.Lobby {
	prev := r.lobbies[l.ChatID]
	if prev != nil {
		prev.Cancel()
	}
	r.lobbies[l.ChatID] = l
	return prev
}

// Lobby returns the pending lobby of a room, or nil.
func (r *Registry) Lobby(chatID string) *lobby.Lobby { return r.lobbies[chatID] }

// DropLobby discards l if it is still the pending lobby of its room.
func (r *Registry) DropLobby(l *lobby.Lobby) {
	if l == nil {
		return
	}
	l.Cancel()
	if r.lobbies[l.ChatID] == l {
		delete(r.lobbies, l.ChatID)
	}
}

func (r *Registry) NumLobbies() int { return len(r.lobbies) }

// Reset cancels every pending lobby and forgets all matches.
func (r *Registry) Reset() {
	for _, l := range r.lobbies {
		l.Cancel()
	}
	clear(r.lobbies)
	clear(r.matches)
}

// Load tracks every match that is not finished.
func (r *Registry) Load(ms []*engine.Match) int {
	n := 0
	for _, m := range ms {
		if m == nil || m.Status == engine.StatusFinished {
			continue
		}
		r.matches[m.ID] = m
		n++
	}
	return n
}

// Snapshot returns redacted copies of all tracked matches, oldest first.
func (r *Registry) Snapshot() []*engine.Match {
	ms := r.ordered()
	for i, m := range ms {
		ms[i] = engine.Redacted(m)
	}
	return ms
}

func (r *Registry) ordered() []*engine.Match {
	ms := make([]*engine.Match, 0, len(r.matches))
	for _, m := range r.matches {
		ms = append(ms, m)
	}
	sort.Slice(ms, func(i, j int) bool {
		if !ms[i].CreatedAt.Equal(ms[j].CreatedAt) {
			return ms[i].CreatedAt.Before(ms[j].CreatedAt)
		}
		return ms[i].ID < ms[j].ID
	})
	return ms
}
