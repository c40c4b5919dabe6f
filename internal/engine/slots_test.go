package engine

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_HostSeated(t *testing.T) {
	s := newRoomState(3)
	assert.Equal(t, Slot{Index: 0, Type: SlotPlayer, OccupantID: "host"}, s.Slots[0])
	for i := 1; i < SeatCount; i++ {
		assert.Equal(t, SlotEmpty, s.Slots[i].Type)
	}
	assert.Equal(t, StatusWaiting, s.Room.Status)
}

func TestUpdateSlot_CyclesLockedEmptyBot(t *testing.T) {
	s := newRoomState(1)
	cmd := Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 2}

	want := []SlotType{SlotBot, SlotLocked, SlotEmpty, SlotBot}
	for _, w := range want {
		var events []Event
		events, s = mustApply(t, s, cmd)
		require.Equal(t, w, s.Slots[2].Type)
		require.Equal(t, []EventType{EvtSlotChanged, EvtSlotSummaryChanged}, eventTypes(events))
	}
	assert.Equal(t, "Bot 3", s.Slots[2].BotLabel)
}

func TestUpdateSlot_Rules(t *testing.T) {
	s := newRoomState(1)
	_, s = mustApply(t, s, Command{Type: CmdJoin, Identity: "p2"})

	cases := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"player slot", Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 1}, ErrInvalidTransition},
		{"target player", Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 2, Target: SlotPlayer}, ErrInvalidTransition},
		{"non-host", Command{Type: CmdUpdateSlot, Identity: "p2", SlotIndex: 2}, ErrNotAuthorized},
		{"out of range", Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: SeatCount}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := Apply(s, tc.cmd)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	t.Run("explicit target", func(t *testing.T) {
		_, next := mustApply(t, s, Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 3, Target: SlotLocked})
		assert.Equal(t, SlotLocked, next.Slots[3].Type)
	})

	t.Run("same target is a no-op", func(t *testing.T) {
		events, next := mustApply(t, s, Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 3, Target: SlotEmpty})
		assert.Empty(t, events)
		assert.Equal(t, s.Slots, next.Slots)
	})
}

func TestJoin(t *testing.T) {
	s := newRoomState(1)
	_, s = mustApply(t, s, Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 1, Target: SlotLocked})

	events, s := mustApply(t, s, Command{Type: CmdJoin, Identity: "alice"})
	require.Len(t, events, 2)
	assert.Equal(t, SlotChanged{SlotIndex: 2, Type: SlotPlayer, OccupantID: "alice"}, events[0])
	assert.Equal(t, SlotSummaryChanged{RoomID: "R1", Summary: Summary{PlayerCount: 2, OpenSlots: 1, LockedSlots: 1}}, events[1])

	again, s2 := mustApply(t, s, Command{Type: CmdJoin, Identity: "alice"})
	assert.Empty(t, again, "rejoining is idempotent")
	assert.Equal(t, s.Slots, s2.Slots)

	_, s = mustApply(t, s, Command{Type: CmdJoin, Identity: "bob"})
	_, _, err := Apply(s, Command{Type: CmdJoin, Identity: "carol"})
	assert.ErrorIs(t, err, ErrNoSeatAvailable)
}

func TestJoin_AfterStart(t *testing.T) {
	s := newRoomState(1)
	_, s = mustApply(t, s, Command{Type: CmdJoin, Identity: "alice"})
	_, s = mustApply(t, s, Command{Type: CmdStartGame, Identity: "host", Questions: makeQuestions(1), At: t0})

	_, _, err := Apply(s, Command{Type: CmdJoin, Identity: "late"})
	assert.ErrorIs(t, err, ErrInvalidTransition)

	events, _, err := Apply(s, Command{Type: CmdJoin, Identity: "alice"})
	assert.NoError(t, err, "an occupant reconnecting mid-game keeps their seat")
	assert.Empty(t, events)
}

func TestLeave(t *testing.T) {
	s := newRoomState(1)
	_, s = mustApply(t, s, Command{Type: CmdJoin, Identity: "alice"})

	events, s := mustApply(t, s, Command{Type: CmdLeave, Identity: "alice"})
	assert.Equal(t, []EventType{EvtSlotChanged, EvtSlotSummaryChanged}, eventTypes(events))
	assert.Equal(t, SlotEmpty, s.Slots[1].Type)

	events, _ = mustApply(t, s, Command{Type: CmdLeave, Identity: "nobody"})
	assert.Empty(t, events)
}

func TestLeave_HostClosesRoom(t *testing.T) {
	s := newRoomState(1)
	events, s := mustApply(t, s, Command{Type: CmdLeave, Identity: "host"})

	assert.Equal(t, []EventType{EvtSlotChanged, EvtSlotSummaryChanged, EvtRoomClosed}, eventTypes(events))
	assert.True(t, s.Room.Closed)
	assert.Equal(t, StatusFinished, s.Room.Status)
}

func TestKick(t *testing.T) {
	s := newRoomState(1)
	_, s = mustApply(t, s, Command{Type: CmdJoin, Identity: "alice"})
	_, s = mustApply(t, s, Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 2, Target: SlotBot})

	_, _, err := Apply(s, Command{Type: CmdKick, Identity: "alice", SlotIndex: 1})
	assert.ErrorIs(t, err, ErrNotAuthorized)

	_, _, err = Apply(s, Command{Type: CmdKick, Identity: "host", SlotIndex: 2})
	assert.ErrorIs(t, err, ErrInvalidTarget, "bots are not kickable")

	_, _, err = Apply(s, Command{Type: CmdKick, Identity: "host", SlotIndex: 3})
	assert.ErrorIs(t, err, ErrInvalidTarget)

	events, next := mustApply(t, s, Command{Type: CmdKick, Identity: "host", SlotIndex: 1})
	assert.Equal(t, SlotChanged{SlotIndex: 1, Type: SlotEmpty}, events[0])
	assert.Equal(t, SlotEmpty, next.Slots[1].Type)
	assert.False(t, next.Room.Closed)
}

// Random mutation sequences never break the slot invariants or the summary arithmetic.
func TestSlots_InvariantsHoldUnderRandomMutations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	identities := []string{"host", "a", "b", "c", "d", "e"}
	targets := []SlotType{"", SlotEmpty, SlotBot, SlotLocked, SlotPlayer}

	for run := 0; run < 50; run++ {
		s := newRoomState(1)
		for step := 0; step < 200 && !s.Room.Closed; step++ {
			id := identities[rng.Intn(len(identities))]
			var cmd Command
			switch rng.Intn(4) {
			case 0:
				cmd = Command{Type: CmdJoin, Identity: id}
			case 1:
				if id == "host" {
					continue
				}
				cmd = Command{Type: CmdLeave, Identity: id}
			case 2:
				cmd = Command{Type: CmdUpdateSlot, Identity: id, SlotIndex: rng.Intn(SeatCount), Target: targets[rng.Intn(len(targets))]}
			case 3:
				idx := rng.Intn(SeatCount)
				if s.Slots[idx].OccupantID == "host" {
					continue
				}
				cmd = Command{Type: CmdKick, Identity: id, SlotIndex: idx}
			}

			_, next, err := Apply(s, cmd)
			if err != nil && !isTaxonomyErr(err) {
				t.Fatalf("unexpected error type: %v", err)
			}
			s = next

			for i, slot := range s.Slots {
				if !slot.Valid() {
					t.Fatalf("run %d step %d: slot %d invalid: %+v", run, step, i, slot)
				}
				if slot.Index != i {
					t.Fatalf("slot index drift: %+v at %d", slot, i)
				}
			}
			sum := s.Slots.Summarize()
			if sum.PlayerCount+sum.BotCount+sum.OpenSlots+sum.LockedSlots != SeatCount {
				t.Fatalf("summary does not add up: %+v", sum)
			}
			if _, ok := s.Slots.Find("host"); !ok {
				t.Fatalf("host lost their seat while the room is open")
			}
		}
	}
}

func isTaxonomyErr(err error) bool {
	for _, e := range []error{ErrNotAuthorized, ErrInvalidTransition, ErrNoSeatAvailable, ErrNotFound, ErrInvalidTarget} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
