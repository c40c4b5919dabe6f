// Package store persists rooms and their slots. It holds no game rules;
// the room actor decides what to write.
package store

import (
	"context"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
)

type Store interface {
	CreateRoom(ctx context.Context, room engine.Room, slots engine.Slots) error
	GetRoom(ctx context.Context, id string) (engine.Room, engine.Slots, error)
	// ListRooms returns rooms that are not closed.
	ListRooms(ctx context.Context) ([]Listing, error)
	UpdateSlot(ctx context.Context, roomID string, slot engine.Slot) error
	CloseRoom(ctx context.Context, id string) error
	SetRoomStatus(ctx context.Context, id string, status engine.RoomStatus) error
	SetCurrentQuestion(ctx context.Context, id string, index int, startedAt time.Time) error
}

type Listing struct {
	Room    engine.Room    `json:"room"`
	Summary engine.Summary `json:"summary"`
}
