package engine

import (
	"fmt"
	"time"
)

const SeatCount = 4

type SlotType string

const (
	SlotEmpty  SlotType = "empty"
	SlotLocked SlotType = "locked"
	SlotBot    SlotType = "bot"
	SlotPlayer SlotType = "player"
)

type Slot struct {
	Index      int      `json:"index"`
	Type       SlotType `json:"type"`
	OccupantID string   `json:"occupant_id,omitempty"`
	BotLabel   string   `json:"bot_label,omitempty"`
}

// Valid reports whether occupant and bot label agree with the slot type.
func (s Slot) Valid() bool {
	switch s.Type {
	case SlotPlayer:
		return s.OccupantID != "" && s.BotLabel == ""
	case SlotBot:
		return s.OccupantID == "" && s.BotLabel != ""
	case SlotEmpty, SlotLocked:
		return s.OccupantID == "" && s.BotLabel == ""
	default:
		return false
	}
}

func (s Slot) Active() bool { return s.Type == SlotPlayer || s.Type == SlotBot }

type Slots [SeatCount]Slot

func NewSlots() Slots {
	var slots Slots
	for i := range slots {
		slots[i] = Slot{Index: i, Type: SlotEmpty}
	}
	return slots
}

// Find returns the slot held by identity.
func (s Slots) Find(identity string) (int, bool) {
	if identity == "" {
		return -1, false
	}
	for i, slot := range s {
		if slot.Type == SlotPlayer && slot.OccupantID == identity {
			return i, true
		}
	}
	return -1, false
}

func (s Slots) firstEmpty() (int, bool) {
	for i, slot := range s {
		if slot.Type == SlotEmpty {
			return i, true
		}
	}
	return -1, false
}

// Active lists player and bot slot indexes in ascending order.
func (s Slots) Active() []int {
	var out []int
	for i, slot := range s {
		if slot.Active() {
			out = append(out, i)
		}
	}
	return out
}

func (s Slots) Bots() []int {
	var out []int
	for i, slot := range s {
		if slot.Type == SlotBot {
			out = append(out, i)
		}
	}
	return out
}

type Summary struct {
	PlayerCount int `json:"player_count"`
	BotCount    int `json:"bot_count"`
	OpenSlots   int `json:"open_slots"`
	LockedSlots int `json:"locked_slots"`
}

func (s Slots) Summarize() Summary {
	var sum Summary
	for _, slot := range s {
		switch slot.Type {
		case SlotPlayer:
			sum.PlayerCount++
		case SlotBot:
			sum.BotCount++
		case SlotEmpty:
			sum.OpenSlots++
		case SlotLocked:
			sum.LockedSlots++
		}
	}
	return sum
}

func inRange(i int) bool { return i >= 0 && i < SeatCount }

// nextType is the toggle order used when the host gives no explicit target.
func nextType(t SlotType) SlotType {
	switch t {
	case SlotLocked:
		return SlotEmpty
	case SlotEmpty:
		return SlotBot
	default:
		return SlotLocked
	}
}

func botLabel(index int) string { return fmt.Sprintf("Bot %d", index+1) }

func setSlot(st *State, index int, t SlotType, occupant string) {
	slot := Slot{Index: index, Type: t}
	switch t {
	case SlotPlayer:
		slot.OccupantID = occupant
	case SlotBot:
		slot.BotLabel = botLabel(index)
	}
	st.Slots[index] = slot
}

func slotEvents(st *State, index int) []Event {
	slot := st.Slots[index]
	return []Event{
		SlotChanged{SlotIndex: index, Type: slot.Type, OccupantID: slot.OccupantID, BotLabel: slot.BotLabel},
		SlotSummaryChanged{RoomID: st.Room.ID, Summary: st.Slots.Summarize()},
	}
}

func join(st *State, cmd Command) ([]Event, error) {
	if cmd.Identity == "" {
		return nil, ErrNotAuthorized
	}
	if _, ok := st.Slots.Find(cmd.Identity); ok {
		return nil, nil
	}
	if st.Room.Status != StatusWaiting {
		return nil, ErrInvalidTransition
	}
	idx, ok := st.Slots.firstEmpty()
	if !ok {
		return nil, ErrNoSeatAvailable
	}
	setSlot(st, idx, SlotPlayer, cmd.Identity)
	return slotEvents(st, idx), nil
}

func leave(st *State, cmd Command) ([]Event, error) {
	idx, ok := st.Slots.Find(cmd.Identity)
	if !ok {
		return nil, nil
	}
	return vacate(st, idx, "host left", cmd.At), nil
}

func kick(st *State, cmd Command) ([]Event, error) {
	if cmd.Identity != st.Room.HostID {
		return nil, ErrNotAuthorized
	}
	if !inRange(cmd.SlotIndex) {
		return nil, ErrNotFound
	}
	if st.Slots[cmd.SlotIndex].Type != SlotPlayer {
		return nil, ErrInvalidTarget
	}
	return vacate(st, cmd.SlotIndex, "host removed", cmd.At), nil
}

// vacate empties a player slot. Emptying the host's slot closes the room.
func vacate(st *State, idx int, hostReason string, at time.Time) []Event {
	wasHost := st.Slots[idx].OccupantID == st.Room.HostID
	setSlot(st, idx, SlotEmpty, "")
	events := slotEvents(st, idx)
	if wasHost {
		return append(events, closeRoom(st, hostReason)...)
	}
	if st.Round.Phase == PhaseQuestionActive && st.allAnswered() {
		events = append(events, reveal(st, at)...)
	}
	return events
}

func updateSlot(st *State, cmd Command) ([]Event, error) {
	if cmd.Identity != st.Room.HostID {
		return nil, ErrNotAuthorized
	}
	if !inRange(cmd.SlotIndex) {
		return nil, ErrNotFound
	}
	if st.Room.Status != StatusWaiting {
		return nil, ErrInvalidTransition
	}
	current := st.Slots[cmd.SlotIndex].Type
	if current == SlotPlayer {
		return nil, ErrInvalidTransition
	}

	target := cmd.Target
	switch target {
	case "":
		target = nextType(current)
	case SlotEmpty, SlotBot, SlotLocked:
	default:
		return nil, ErrInvalidTransition
	}
	if target == current {
		return nil, nil
	}

	setSlot(st, cmd.SlotIndex, target, "")
	return slotEvents(st, cmd.SlotIndex), nil
}
