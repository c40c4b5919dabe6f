// Package hub is the registry of live rooms. It owns the id -> *room.Room
// map in a single goroutine and restores rooms from storage on demand.
package hub

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/room"
)

type HubMsg interface{ isHubMsg() }

type created struct {
	room *room.Room
	err  error
}

type CreateRoom struct {
	State engine.State
	Reply chan created
}

type GetRoom struct {
	ID    string
	Reply chan *room.Room
}

// EnsureRoom registers a restored room unless one is already live.
type EnsureRoom struct {
	State engine.State
	Reply chan created
}

type RemoveRoom struct {
	ID string
}

type ShutdownHub struct {
	Done chan error
}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (EnsureRoom) isHubMsg()  {}
func (RemoveRoom) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox chan HubMsg
	rooms map[string]*room.Room
	deps  room.Deps
	opts  room.Options
	rules engine.Rules
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(parent context.Context, deps room.Deps, opts room.Options, rules engine.Rules) *Hub {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*room.Room),
		deps:   deps,
		rules:  rules,
		log:    deps.Logger.Named("hub"),
		ctx:    ctx,
		cancel: cancel,
	}
	// a room that stops on its own unregisters itself
	opts.OnClose = func(id string) {
		go func() {
			select {
			case h.inbox <- RemoveRoom{ID: id}:
			case <-h.ctx.Done():
			}
		}()
	}
	h.opts = opts
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				if rm := h.rooms[msg.State.Room.ID]; rm != nil {
					msg.Reply <- created{room: rm}
					break
				}
				rm, err := room.New(h.ctx, msg.State, h.deps, h.opts)
				if err == nil {
					h.rooms[rm.ID()] = rm
				}
				msg.Reply <- created{room: rm, err: err}

			case GetRoom:
				msg.Reply <- h.rooms[msg.ID] // may be nil

			case EnsureRoom:
				if rm := h.rooms[msg.State.Room.ID]; rm != nil {
					msg.Reply <- created{room: rm}
					break
				}
				rm, err := room.New(h.ctx, msg.State, h.deps, h.opts)
				if err == nil {
					h.rooms[rm.ID()] = rm
					h.log.Info("room restored", zap.String("room", rm.ID()), zap.String("status", string(msg.State.Room.Status)))
				}
				msg.Reply <- created{room: rm, err: err}

			case RemoveRoom:
				rm := h.rooms[msg.ID]
				if rm == nil {
					break
				}
				select {
				case <-rm.Done():
					delete(h.rooms, msg.ID)
				default:
					// replaced by a live room with the same id
				}

			case ShutdownHub:
				msg.Done <- h.stopAll()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) stopAll() error {
	g, ctx := errgroup.WithContext(context.Background())
	for _, rm := range h.rooms {
		rm := rm
		g.Go(func() error { return rm.Stop(ctx) })
	}
	clear(h.rooms)
	return g.Wait()
}

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	select {
	case h.inbox <- m:
		return nil
	case <-h.ctx.Done():
		return errors.New("hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Create persists a new waiting room, starts its actor and puts it on the
// lobby feed.
func (h *Hub) Create(ctx context.Context, st engine.State) (*room.Room, error) {
	if err := h.deps.Store.CreateRoom(ctx, st.Room, st.Slots); err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	reply := make(chan created, 1)
	if err := h.send(ctx, CreateRoom{State: st, Reply: reply}); err != nil {
		return nil, err
	}
	rm, err := h.await(ctx, reply)
	if err != nil {
		return nil, err
	}
	if err := rm.Announce(ctx); err != nil {
		h.log.Debug("announce failed", zap.String("room", rm.ID()), zap.Error(err))
	}
	return rm, nil
}

func (h *Hub) Get(ctx context.Context, id string) (*room.Room, bool) {
	reply := make(chan *room.Room, 1)
	if err := h.send(ctx, GetRoom{ID: id, Reply: reply}); err != nil {
		return nil, false
	}
	select {
	case rm := <-reply:
		return rm, rm != nil
	case <-ctx.Done():
		return nil, false
	}
}

// Ensure returns the live room for id, restoring it from storage if this
// process has not seen it yet. Loading happens here, not in the loop.
func (h *Hub) Ensure(ctx context.Context, id string) (*room.Room, error) {
	if rm, ok := h.Get(ctx, id); ok {
		return rm, nil
	}

	r, slots, err := h.deps.Store.GetRoom(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Closed {
		return nil, fmt.Errorf("room %s is closed: %w", id, engine.ErrNotFound)
	}

	var qs []engine.Question
	if r.Status == engine.StatusInGame {
		if qs, err = h.deps.Bank.GetQuestions(ctx, r.QuestionSetRef, r.QuestionCount); err != nil {
			return nil, fmt.Errorf("restore %s: %w", id, err)
		}
	}
	st, err := engine.Restore(r, slots, qs, h.rules)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", id, err)
	}

	reply := make(chan created, 1)
	if err := h.send(ctx, EnsureRoom{State: st, Reply: reply}); err != nil {
		return nil, err
	}
	return h.await(ctx, reply)
}

func (h *Hub) await(ctx context.Context, reply chan created) (*room.Room, error) {
	select {
	case c := <-reply:
		return c.room, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown stops every room and then the hub itself.
func (h *Hub) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	if err := h.send(ctx, ShutdownHub{Done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
