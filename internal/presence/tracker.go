// Package presence folds the channel's join/leave diffs into a roster of
// online identities. It never looks at application messages.
package presence

import (
	"slices"
	"sort"
	"sync"
	"time"
)

// Meta is what a connection announces when it tracks itself on a topic.
type Meta struct {
	Identity     string    `json:"identity"`
	ConnectionID string    `json:"connection_id"`
	ConnectedAt  time.Time `json:"connected_at"`
}

type Diff struct {
	Joins  []Meta `json:"joins,omitempty"`
	Leaves []Meta `json:"leaves,omitempty"`
}

func (d Diff) Empty() bool { return len(d.Joins) == 0 && len(d.Leaves) == 0 }

// Tracker is safe for concurrent readers; only the owning room writes to it.
type Tracker struct {
	mu    sync.RWMutex
	conns map[string]map[string]Meta // identity -> connection id -> meta
}

func NewTracker() *Tracker {
	return &Tracker{conns: make(map[string]map[string]Meta)}
}

// Apply returns identities that went from no connections to some, and from
// some to none. A join and leave inside the same diff cancel out.
func (t *Tracker) Apply(d Diff) (online, offline []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	before := make(map[string]bool)
	mark := func(id string) {
		if _, seen := before[id]; !seen {
			_, was := t.conns[id]
			before[id] = was
		}
	}

	for _, m := range d.Joins {
		mark(m.Identity)
		byConn, ok := t.conns[m.Identity]
		if !ok {
			byConn = make(map[string]Meta)
			t.conns[m.Identity] = byConn
		}
		byConn[m.ConnectionID] = m
	}

	for _, m := range d.Leaves {
		mark(m.Identity)
		byConn, ok := t.conns[m.Identity]
		if !ok {
			continue
		}
		delete(byConn, m.ConnectionID)
		if len(byConn) == 0 {
			delete(t.conns, m.Identity)
		}
	}

	for id, was := range before {
		_, now := t.conns[id]
		switch {
		case now && !was:
			online = append(online, id)
		case was && !now:
			offline = append(offline, id)
		}
	}
	slices.Sort(online)
	slices.Sort(offline)
	return online, offline
}

func (t *Tracker) Online(identity string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.conns[identity]
	return ok
}

// Roster returns one meta per online identity, the earliest connection, sorted by identity.
func (t *Tracker) Roster() []Meta {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Meta, 0, len(t.conns))
	for _, byConn := range t.conns {
		var first Meta
		for _, m := range byConn {
			if first.Identity == "" || m.ConnectedAt.Before(first.ConnectedAt) {
				first = m
			}
		}
		out = append(out, first)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}
