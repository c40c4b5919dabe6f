package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func meta(id, conn string, at time.Time) Meta {
	return Meta{Identity: id, ConnectionID: conn, ConnectedAt: at}
}

func TestTracker_JoinLeave(t *testing.T) {
	tr := NewTracker()
	t0 := time.Unix(1000, 0)

	on, off := tr.Apply(Diff{Joins: []Meta{meta("alice", "c1", t0), meta("bob", "c2", t0)}})
	assert.Equal(t, []string{"alice", "bob"}, on)
	assert.Empty(t, off)
	assert.True(t, tr.Online("alice"))

	on, off = tr.Apply(Diff{Leaves: []Meta{meta("bob", "c2", t0)}})
	assert.Empty(t, on)
	assert.Equal(t, []string{"bob"}, off)
	assert.False(t, tr.Online("bob"))
	assert.Equal(t, 1, tr.Len())
}

func TestTracker_SecondConnectionKeepsIdentityOnline(t *testing.T) {
	tr := NewTracker()
	t0 := time.Unix(1000, 0)

	tr.Apply(Diff{Joins: []Meta{meta("alice", "tab1", t0)}})
	on, _ := tr.Apply(Diff{Joins: []Meta{meta("alice", "tab2", t0.Add(time.Second))}})
	assert.Empty(t, on, "second tab is not a new arrival")

	_, off := tr.Apply(Diff{Leaves: []Meta{meta("alice", "tab1", t0)}})
	assert.Empty(t, off)
	assert.True(t, tr.Online("alice"))

	_, off = tr.Apply(Diff{Leaves: []Meta{meta("alice", "tab2", t0)}})
	assert.Equal(t, []string{"alice"}, off)
}

func TestTracker_JoinAndLeaveInOneDiffCancel(t *testing.T) {
	tr := NewTracker()
	t0 := time.Unix(1000, 0)

	on, off := tr.Apply(Diff{
		Joins:  []Meta{meta("carol", "c1", t0)},
		Leaves: []Meta{meta("carol", "c1", t0)},
	})
	assert.Empty(t, on)
	assert.Empty(t, off)
	assert.False(t, tr.Online("carol"))
}

func TestTracker_LeaveUnknownIsIgnored(t *testing.T) {
	tr := NewTracker()
	on, off := tr.Apply(Diff{Leaves: []Meta{meta("ghost", "c9", time.Now())}})
	assert.Empty(t, on)
	assert.Empty(t, off)
}

func TestTracker_RosterEarliestConnectionPerIdentity(t *testing.T) {
	tr := NewTracker()
	t0 := time.Unix(1000, 0)

	tr.Apply(Diff{Joins: []Meta{
		meta("zed", "z1", t0),
		meta("amy", "a2", t0.Add(2*time.Second)),
		meta("amy", "a1", t0.Add(time.Second)),
	}})

	roster := tr.Roster()
	assert.Equal(t, []Meta{meta("amy", "a1", t0.Add(time.Second)), meta("zed", "z1", t0)}, roster)
}
