package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

var _ Store = (*Memory)(nil)

type memRoom struct {
	room  engine.Room
	slots engine.Slots
}

// Memory keeps rooms in process. Used when no DATABASE_URL is set and in tests.
type Memory struct {
	mu    sync.RWMutex
	rooms map[string]*memRoom
}

func NewMemory() *Memory {
	return &Memory{rooms: make(map[string]*memRoom)}
}

func (m *Memory) CreateRoom(ctx context.Context, room engine.Room, slots engine.Slots) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.rooms[room.ID]; exists {
		return fmt.Errorf("room %s already exists", room.ID)
	}
	m.rooms[room.ID] = &memRoom{room: room, slots: slots}
	return nil
}

func (m *Memory) GetRoom(ctx context.Context, id string) (engine.Room, engine.Slots, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	if !ok {
		return engine.Room{}, engine.Slots{}, fmt.Errorf("room %s: %w", id, engine.ErrNotFound)
	}
	return r.room, r.slots, nil
}

func (m *Memory) ListRooms(ctx context.Context) ([]Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Listing, 0, len(m.rooms))
	for _, r := range m.rooms {
		if r.room.Closed {
			continue
		}
		out = append(out, Listing{Room: r.room, Summary: r.slots.Summarize()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room.ID < out[j].Room.ID })
	return out, nil
}

func (m *Memory) UpdateSlot(ctx context.Context, roomID string, slot engine.Slot) error {
	return m.with(roomID, func(r *memRoom) error {
		if slot.Index < 0 || slot.Index >= engine.SeatCount {
			return fmt.Errorf("slot %d: %w", slot.Index, engine.ErrNotFound)
		}
		r.slots[slot.Index] = slot
		return nil
	})
}

// CloseRoom marks the room closed and drops its slots.
func (m *Memory) CloseRoom(ctx context.Context, id string) error {
	return m.with(id, func(r *memRoom) error {
		r.room.Closed = true
		r.room.Status = engine.StatusFinished
		r.slots = engine.NewSlots()
		return nil
	})
}

func (m *Memory) SetRoomStatus(ctx context.Context, id string, status engine.RoomStatus) error {
	return m.with(id, func(r *memRoom) error {
		r.room.Status = status
		return nil
	})
}

func (m *Memory) SetCurrentQuestion(ctx context.Context, id string, index int, startedAt time.Time) error {
	return m.with(id, func(r *memRoom) error {
		r.room.CurrentQuestionIndex = index
		r.room.CurrentQuestionStartedAt = startedAt
		return nil
	})
}

func (m *Memory) with(id string, fn func(*memRoom) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return fmt.Errorf("room %s: %w", id, engine.ErrNotFound)
	}
	return fn(r)
}
