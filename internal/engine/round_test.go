package engine

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/quiz-battle-backend/internal/scoring"
)

// host in slot 0, alice in slot 1, game started at t0.
func startedTwoPlayer(t *testing.T, questionCount int) State {
	t.Helper()
	s := newRoomState(questionCount)
	_, s = mustApply(t, s, Command{Type: CmdJoin, Identity: "alice"})
	_, s = mustApply(t, s, Command{Type: CmdStartGame, Identity: "host", Questions: makeQuestions(questionCount), At: t0})
	return s
}

func answer(identity string, slot, question int, option string, at time.Time) Command {
	return Command{Type: CmdSubmitAnswer, Identity: identity, SlotIndex: slot, QuestionIndex: question, OptionID: option, At: at}
}

func TestStartGame_InsufficientQuestions(t *testing.T) {
	s := newRoomState(10)
	_, s = mustApply(t, s, Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 2, Target: SlotLocked})
	_, s = mustApply(t, s, Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 3, Target: SlotLocked})

	_, next, err := Apply(s, Command{Type: CmdStartGame, Identity: "host", Questions: makeQuestions(8), At: t0})
	require.ErrorIs(t, err, ErrInsufficientQuestions)
	assert.Equal(t, StatusWaiting, next.Room.Status)
	assert.Equal(t, PhaseWaiting, next.Round.Phase)
}

func TestStartGame_BroadcastsFirstQuestionWithoutAnswer(t *testing.T) {
	s := newRoomState(2)
	events, s := mustApply(t, s, Command{Type: CmdStartGame, Identity: "host", Questions: makeQuestions(5), At: t0})

	require.Len(t, events, 1)
	want := QuestionStart{
		Index:       0,
		Text:        "question 0",
		Options:     []PublicOption{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}},
		StartedAt:   t0,
		Deadline:    t0.Add(15 * time.Second),
		TimeLimitMs: 15000,
	}
	if diff := cmp.Diff(want, events[0]); diff != "" {
		t.Fatalf("QuestionStart mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, StatusInGame, s.Room.Status)
	assert.Len(t, s.Questions, 2, "only questionCount questions are kept")
	assert.Equal(t, 0, s.Room.CurrentQuestionIndex)
	assert.True(t, t0.Equal(s.Room.CurrentQuestionStartedAt))

	_, _, err := Apply(s, Command{Type: CmdStartGame, Identity: "host", Questions: makeQuestions(5), At: t0})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSubmit_RevealFiresWhenLastActiveSlotAnswers(t *testing.T) {
	s := startedTwoPlayer(t, 2)

	events, s := mustApply(t, s, answer("host", 0, 0, "a", t0.Add(time.Second)))
	assert.Equal(t, []Event{AnswerSubmitted{SlotIndex: 0}}, events)
	assert.Equal(t, PhaseQuestionActive, s.Round.Phase)

	events, s = mustApply(t, s, answer("alice", 1, 0, "b", t0.Add(3*time.Second)))
	require.Equal(t, []EventType{EvtAnswerSubmitted, EvtQuestionReveal}, eventTypes(events))
	assert.Equal(t, PhaseReveal, s.Round.Phase)
	assert.True(t, t0.Add(6*time.Second).Equal(s.Round.RevealUntil), "dwell counts from the 3s reveal, not the 15s deadline")

	reveal := events[1].(QuestionReveal)
	assert.Equal(t, "a", reveal.CorrectOptionID)
	assert.Equal(t, []AnswerResult{
		{SlotIndex: 0, SelectedOptionID: "a", IsCorrect: true, PointsAwarded: 946, TotalPoints: 946},
		{SlotIndex: 1, SelectedOptionID: "b", IsCorrect: false, PointsAwarded: 0, TotalPoints: 0},
	}, reveal.Results)
}

func TestSubmit_DuplicatesAndStaleAreIgnored(t *testing.T) {
	s := startedTwoPlayer(t, 2)
	_, s = mustApply(t, s, answer("host", 0, 0, "a", t0.Add(time.Second)))

	events, s2 := mustApply(t, s, answer("host", 0, 0, "b", t0.Add(2*time.Second)))
	assert.Empty(t, events)
	assert.Equal(t, "a", s2.Round.Answers[0].OptionID, "first answer stands")

	events, _ = mustApply(t, s, answer("alice", 1, 1, "a", t0.Add(2*time.Second)))
	assert.Empty(t, events, "answer for another question is dropped")
}

func TestSubmit_Validation(t *testing.T) {
	s := startedTwoPlayer(t, 2)

	_, _, err := Apply(s, answer("alice", 0, 0, "a", t0))
	assert.ErrorIs(t, err, ErrNotAuthorized, "cannot answer for someone else's slot")

	_, _, err = Apply(s, answer("alice", 1, 0, "zzz", t0))
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = Apply(s, Command{Type: CmdBotAnswer, SlotIndex: 1, OptionID: "a", At: t0})
	assert.ErrorIs(t, err, ErrInvalidTarget, "bot answers only land on bot slots")
}

func TestSubmit_AtDeadlineRevealsWithoutRecording(t *testing.T) {
	s := startedTwoPlayer(t, 2)

	events, s := mustApply(t, s, answer("alice", 1, 0, "a", t0.Add(15*time.Second)))
	require.Equal(t, []EventType{EvtQuestionReveal}, eventTypes(events))
	_, recorded := s.Round.Answers[1]
	assert.False(t, recorded)
}

func TestTick_DeadlineThenDwellThenNextQuestion(t *testing.T) {
	s := startedTwoPlayer(t, 2)

	events, s := mustApply(t, s, Command{Type: CmdTick, At: t0.Add(14 * time.Second)})
	assert.Empty(t, events)

	events, s = mustApply(t, s, Command{Type: CmdTick, At: t0.Add(15 * time.Second)})
	require.Equal(t, []EventType{EvtQuestionReveal}, eventTypes(events))
	for _, r := range events[0].(QuestionReveal).Results {
		assert.Zero(t, r.PointsAwarded, "unanswered slots score zero")
	}

	events, s = mustApply(t, s, Command{Type: CmdTick, At: t0.Add(17 * time.Second)})
	assert.Empty(t, events, "still dwelling")

	events, s = mustApply(t, s, Command{Type: CmdTick, At: t0.Add(18 * time.Second)})
	require.Equal(t, []EventType{EvtQuestionStart}, eventTypes(events))
	assert.Equal(t, 1, s.Round.QuestionIndex)
	assert.Equal(t, 1, s.Room.CurrentQuestionIndex)
	assert.Empty(t, s.Round.Answers)

	// a late answer for question 0 cannot leak into question 1
	events, _ = mustApply(t, s, answer("host", 0, 0, "a", t0.Add(19*time.Second)))
	assert.Empty(t, events)
}

func TestKickDuringRound_UnblocksReveal(t *testing.T) {
	s := startedTwoPlayer(t, 1)
	_, s = mustApply(t, s, answer("host", 0, 0, "a", t0.Add(time.Second)))

	events, s := mustApply(t, s, Command{Type: CmdKick, Identity: "host", SlotIndex: 1, At: t0.Add(2 * time.Second)})
	assert.Equal(t, []EventType{EvtSlotChanged, EvtSlotSummaryChanged, EvtQuestionReveal}, eventTypes(events))
	assert.Equal(t, PhaseReveal, s.Round.Phase)
}

func TestBotAnswer(t *testing.T) {
	s := newRoomState(1)
	_, s = mustApply(t, s, Command{Type: CmdUpdateSlot, Identity: "host", SlotIndex: 1, Target: SlotBot})
	_, s = mustApply(t, s, Command{Type: CmdStartGame, Identity: "host", Questions: makeQuestions(1), At: t0})

	events, s := mustApply(t, s, Command{Type: CmdBotAnswer, SlotIndex: 1, OptionID: "a", At: t0.Add(5 * time.Second)})
	assert.Equal(t, []Event{AnswerSubmitted{SlotIndex: 1}}, events)

	events, _ = mustApply(t, s, answer("host", 0, 0, "c", t0.Add(6*time.Second)))
	require.True(t, containsEvent(events, EvtQuestionReveal))
}

func TestFullGame_FasterPlayerRanksFirst(t *testing.T) {
	const n = 10
	s := startedTwoPlayer(t, n)
	now := t0

	var finished *GameFinished
	for q := 0; q < n; q++ {
		start := s.Round.StartedAt
		_, s = mustApply(t, s, answer("host", 0, q, "a", start.Add(900*time.Millisecond)))
		events, next := mustApply(t, s, answer("alice", 1, q, "a", start.Add(400*time.Millisecond)))
		s = next
		require.True(t, containsEvent(events, EvtQuestionReveal), "question %d", q)

		now = s.Round.RevealUntil
		events, s = mustApply(t, s, Command{Type: CmdTick, At: now})
		if q < n-1 {
			require.Equal(t, []EventType{EvtQuestionStart}, eventTypes(events))
			continue
		}
		require.Equal(t, []EventType{EvtGameFinished}, eventTypes(events))
		gf := events[0].(GameFinished)
		finished = &gf
	}

	require.NotNil(t, finished)
	assert.Equal(t, 1, finished.Results[0].SlotIndex, "alice answered faster every round")
	assert.Equal(t, 1, finished.Results[0].Rank)
	assert.Equal(t, 0, finished.Results[1].SlotIndex)
	assert.Greater(t, finished.Results[0].TotalPoints, finished.Results[1].TotalPoints)
	assert.Equal(t, StatusFinished, s.Room.Status)
	assert.Equal(t, PhaseFinished, s.Round.Phase)
}

func TestFullGame_TieGoesToLowerSlot(t *testing.T) {
	s := startedTwoPlayer(t, 1)
	_, s = mustApply(t, s, answer("alice", 1, 0, "a", t0.Add(time.Second)))
	_, s = mustApply(t, s, answer("host", 0, 0, "a", t0.Add(time.Second)))

	events, _ := mustApply(t, s, Command{Type: CmdTick, At: s.Round.RevealUntil})
	gf := events[0].(GameFinished)
	assert.Equal(t, []scoring.FinalResult{
		{SlotIndex: 0, TotalPoints: 946, Rank: 1},
		{SlotIndex: 1, TotalPoints: 946, Rank: 2},
	}, gf.Results)
}

func TestScoresNeverDecrease(t *testing.T) {
	s := startedTwoPlayer(t, 3)
	prev := map[int]int{}
	for q := 0; q < 3; q++ {
		_, s = mustApply(t, s, answer("host", 0, q, "b", s.Round.StartedAt.Add(time.Second)))
		_, s = mustApply(t, s, answer("alice", 1, q, "a", s.Round.StartedAt.Add(2*time.Second)))
		for slot, total := range s.Round.Scores {
			assert.GreaterOrEqual(t, total, prev[slot])
			prev[slot] = total
		}
		_, s = mustApply(t, s, Command{Type: CmdTick, At: s.Round.RevealUntil})
	}
}

func TestRestore(t *testing.T) {
	s := startedTwoPlayer(t, 3)
	_, s = mustApply(t, s, Command{Type: CmdTick, At: t0.Add(15 * time.Second)})
	_, s = mustApply(t, s, Command{Type: CmdTick, At: s.Round.RevealUntil})
	require.Equal(t, 1, s.Room.CurrentQuestionIndex)

	restored, err := Restore(s.Room, s.Slots, makeQuestions(3), s.Rules)
	require.NoError(t, err)
	assert.Equal(t, PhaseQuestionActive, restored.Round.Phase)
	assert.Equal(t, 1, restored.Round.QuestionIndex)
	assert.True(t, s.Round.Deadline.Equal(restored.Round.Deadline))

	// the restarted host keeps ticking and the match continues
	events, _ := mustApply(t, restored, Command{Type: CmdTick, At: restored.Round.Deadline})
	assert.Equal(t, []EventType{EvtQuestionReveal}, eventTypes(events))

	_, err = Restore(s.Room, s.Slots, makeQuestions(2), s.Rules)
	assert.ErrorIs(t, err, ErrInsufficientQuestions)

	waiting, err := Restore(newRoomState(1).Room, newRoomState(1).Slots, nil, s.Rules)
	require.NoError(t, err)
	assert.Equal(t, PhaseWaiting, waiting.Round.Phase)
}
