package relay

import (
	"sort"
	"sync"

	"github.com/akkhan00/m5Chat/internal/metrics"
)

// Conn is the transport handle a session writes to. Send must not block on a
// slow peer: enqueue or fail.
type Conn interface {
	Send(ev Event) error
	Close() error
}

// Registry maps room name -> set of joined sessions. Entries are created
// lazily on first join and pruned when the last member leaves. The outer
// lock guards only the map; every mutating operation on one room, including
// the broadcasts it triggers, runs under that room's own lock, which is what
// gives each room a single total order of events.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	mu      sync.Mutex
	name    string
	dead    bool // pruned from the map; holders must retry
	members map[*Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*roomEntry)}
}

// acquire returns the room's entry, created if needed, with its lock held.
// The caller must release it.
func (r *Registry) acquire(room string) *roomEntry {
	for {
		r.mu.Lock()
		e, ok := r.rooms[room]
		if !ok {
			e = &roomEntry{name: room, members: make(map[*Session]struct{})}
			r.rooms[room] = e
			metrics.RoomsOpen.Inc()
		}
		r.mu.Unlock()

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		return e
	}
}

// lookup returns the room's entry with its lock held, or false if the room
// has no joined sessions.
func (r *Registry) lookup(room string) (*roomEntry, bool) {
	for {
		r.mu.RLock()
		e, ok := r.rooms[room]
		r.mu.RUnlock()
		if !ok {
			return nil, false
		}

		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		return e, true
	}
}

// release unlocks the entry, pruning it from the map first if it emptied.
func (r *Registry) release(e *roomEntry) {
	if len(e.members) == 0 && !e.dead {
		e.dead = true
		r.mu.Lock()
		if cur, ok := r.rooms[e.name]; ok && cur == e {
			delete(r.rooms, e.name)
		}
		r.mu.Unlock()
		metrics.RoomsOpen.Dec()
	}
	e.mu.Unlock()
}

// Members returns the display names currently joined to room, sorted.
// Two sessions sharing a name both count.
func (r *Registry) Members(room string) []string {
	e, ok := r.lookup(room)
	if !ok {
		return []string{}
	}
	names := e.names()
	r.release(e)
	return names
}

// Broadcast delivers ev to every session joined to room at the instant of
// the call. Rooms with no members are a no-op.
func (r *Registry) Broadcast(room string, ev Event) {
	e, ok := r.lookup(room)
	if !ok {
		return
	}
	e.broadcast(ev)
	r.release(e)
}

// add registers s. Idempotent. Caller holds e.mu.
func (e *roomEntry) add(s *Session) {
	if _, ok := e.members[s]; ok {
		return
	}
	e.members[s] = struct{}{}
	metrics.SessionsJoined.Inc()
}

// remove reports whether s was a member. Caller holds e.mu.
func (e *roomEntry) remove(s *Session) bool {
	if _, ok := e.members[s]; !ok {
		return false
	}
	delete(e.members, s)
	metrics.SessionsJoined.Dec()
	return true
}

func (e *roomEntry) names() []string {
	out := make([]string, 0, len(e.members))
	for s := range e.members {
		out = append(out, s.username)
	}
	sort.Strings(out)
	return out
}

func (e *roomEntry) broadcast(ev Event) {
	metrics.EventsBroadcast.WithLabelValues(ev.Type).Inc()
	for s := range e.members {
		_ = s.conn.Send(ev) // best-effort; a dead session just misses it
	}
}
