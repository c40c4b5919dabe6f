package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-battle-backend/internal/channel"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

// apply runs one command through the engine and commits the result:
// persist, swap in memory, publish. A publish that still fails after retries
// undoes the in-memory swap only. The store keeps the forward write and the
// next commit diffs against what was stored, so storage never moves back.
// A closed room stays closed either way.
func (r *Room) apply(cmd engine.Command) error {
	events, next, err := engine.Apply(r.state, cmd)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		r.state = next
		return nil
	}

	stored := r.stored
	if err := r.persist(stored, next); err != nil {
		// best effort: put back whatever part of the write landed
		if rbErr := r.undo(stored, next); rbErr != nil {
			err = multierr.Append(err, rbErr)
		}
		r.log.Error("persist failed", zap.String("cmd", string(cmd.Type)), zap.Error(err))
		return err
	}

	prev := r.state
	r.stored = next
	if !forward(stored, next) {
		r.stored.Room.Status = stored.Room.Status
		r.stored.Room.CurrentQuestionIndex = stored.Room.CurrentQuestionIndex
		r.stored.Room.CurrentQuestionStartedAt = stored.Room.CurrentQuestionStartedAt
	}
	r.state = next
	r.version++

	if err := r.publish(events); err != nil {
		if next.Room.Closed {
			r.log.Warn("room closed without notifying subscribers", zap.Error(err))
			r.afterCommit(events)
			return nil
		}
		// the version is not reused: a client that saw part of the batch
		// finds a gap on the next broadcast and re-snapshots
		r.state = prev
		r.log.Error("publish failed, rolled back",
			zap.String("cmd", string(cmd.Type)),
			zap.Int("version", r.version),
			zap.Error(err))
		return err
	}

	r.afterCommit(events)
	return nil
}

var statusOrder = map[engine.RoomStatus]int{
	engine.StatusWaiting:  0,
	engine.StatusInGame:   1,
	engine.StatusFinished: 2,
}

// persist writes the difference between two states. Status and the question
// pointer are never written backwards; after a rolled back publish the store
// may be ahead of memory until the room catches up.
func (r *Room) persist(from, to engine.State) error {
	return r.write(from, to, forward(from, to))
}

func forward(from, to engine.State) bool {
	return statusOrder[to.Room.Status] >= statusOrder[from.Room.Status]
}

// undo puts back a write that failed halfway. Nothing was broadcast, so the
// status may go back too.
func (r *Room) undo(stored, attempted engine.State) error {
	return r.write(attempted, stored, true)
}

func (r *Room) write(from, to engine.State, progress bool) error {
	ctx, cancel := context.WithTimeout(r.ctx, r.opts.StoreTimeout)
	defer cancel()

	st := r.deps.Store
	if to.Room.Closed && !from.Room.Closed {
		return st.CloseRoom(ctx, r.id)
	}

	var err error
	for i := range to.Slots {
		if to.Slots[i] != from.Slots[i] {
			err = multierr.Append(err, st.UpdateSlot(ctx, r.id, to.Slots[i]))
		}
	}
	if !progress {
		return err
	}
	if to.Room.Status != from.Room.Status {
		err = multierr.Append(err, st.SetRoomStatus(ctx, r.id, to.Room.Status))
	}
	if to.Room.CurrentQuestionIndex != from.Room.CurrentQuestionIndex ||
		!to.Room.CurrentQuestionStartedAt.Equal(from.Room.CurrentQuestionStartedAt) {
		err = multierr.Append(err, st.SetCurrentQuestion(ctx, r.id, to.Room.CurrentQuestionIndex, to.Room.CurrentQuestionStartedAt))
	}
	return err
}

func (r *Room) publish(events []engine.Event) error {
	for _, ev := range events {
		msg := channel.Message{Type: string(ev.EventType()), Version: r.version, Payload: ev}
		if err := r.send(msg); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Type, err)
		}

		switch ev.(type) {
		case engine.SlotSummaryChanged, engine.RoomClosed:
			r.toLobby(msg)
		}
	}
	return nil
}

// toLobby forwards msg to the public lobby feed. Private rooms never appear
// there. The feed is informational; a miss is corrected by the next listing.
func (r *Room) toLobby(msg channel.Message) {
	if r.lobby == nil || r.state.Room.Visibility != engine.VisibilityPublic {
		return
	}
	if err := r.lobby.Send(r.ctx, channel.Message{Type: msg.Type, Payload: msg.Payload}); err != nil {
		r.log.Debug("lobby feed send failed", zap.Error(err))
	}
}

// send retries a broadcast with exponential backoff. A lost subscription
// is replaced before the next attempt.
func (r *Room) send(msg channel.Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.PublishBackoff
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.opts.PublishRetries)), r.ctx)

	op := func() error {
		if r.conn == nil {
			if err := r.subscribe(); err != nil {
				return err
			}
		}
		err := r.conn.Send(r.ctx, msg)
		if err == nil {
			return nil
		}
		if errors.Is(err, channel.ErrTransportUnavailable) {
			_ = r.conn.Close()
			r.conn = nil
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn("broadcast failed, retrying", zap.String("type", msg.Type), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		if errors.Is(err, channel.ErrTransportUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", channel.ErrTransportUnavailable, err)
	}
	return nil
}

func (r *Room) afterCommit(events []engine.Event) {
	for _, ev := range events {
		switch e := ev.(type) {
		case engine.QuestionStart:
			r.scheduleBots(e.Index)
		case engine.QuestionReveal, engine.GameFinished, engine.RoomClosed:
			r.cancelBots()
		}
	}
}
