// Package reconcile compares who holds a seat against who is connected and
// decides when an absent occupant loses their seat.
package reconcile

import (
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

const DefaultGracePeriod = 30 * time.Second

type ActionKind string

const (
	ActionKick  ActionKind = "kick"
	ActionClose ActionKind = "close"
)

type Action struct {
	Kind      ActionKind
	SlotIndex int
	Identity  string
}

// Reconciler is owned by one room and is not safe for concurrent use.
type Reconciler struct {
	grace       time.Duration
	absentSince map[string]time.Time
}

func New(grace time.Duration) *Reconciler {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Reconciler{grace: grace, absentSince: make(map[string]time.Time)}
}

// Left starts the grace clock at the moment presence reported the loss
// instead of waiting for the next sweep to notice.
func (r *Reconciler) Left(identity string, at time.Time) {
	if _, ok := r.absentSince[identity]; !ok {
		r.absentSince[identity] = at
	}
}

// Due sweeps the player slots. Actions repeat on every sweep until the
// seat is actually vacated, which is how a failed kick gets retried.
func (r *Reconciler) Due(now time.Time, slots engine.Slots, hostID string, online func(string) bool) []Action {
	seated := make(map[string]bool, engine.SeatCount)
	var kicks []Action

	for i, slot := range slots {
		if slot.Type != engine.SlotPlayer {
			continue
		}
		id := slot.OccupantID
		seated[id] = true

		if online(id) {
			delete(r.absentSince, id)
			continue
		}
		since, ok := r.absentSince[id]
		if !ok {
			r.absentSince[id] = now
			continue
		}
		if now.Sub(since) < r.grace {
			continue
		}
		if id == hostID {
			return []Action{{Kind: ActionClose, SlotIndex: i, Identity: id}}
		}
		kicks = append(kicks, Action{Kind: ActionKick, SlotIndex: i, Identity: id})
	}

	for id := range r.absentSince {
		if !seated[id] {
			delete(r.absentSince, id)
		}
	}
	return kicks
}

// Absent reports whether identity is currently inside its grace period.
func (r *Reconciler) Absent(identity string) bool {
	_, ok := r.absentSince[identity]
	return ok
}
