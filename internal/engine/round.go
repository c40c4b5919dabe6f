package engine

import (
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/scoring"
)

type Phase string

const (
	PhaseWaiting        Phase = "waiting"
	PhaseQuestionActive Phase = "question_active"
	PhaseReveal         Phase = "reveal"
	PhaseFinished       Phase = "finished"
)

type Answer struct {
	OptionID    string    `json:"option_id"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// RoundState is never persisted. Restore rebuilds it from the Room.
type RoundState struct {
	Phase                   Phase
	QuestionIndex           int
	StartedAt               time.Time
	Deadline                time.Time
	RevealUntil             time.Time
	Answers                 map[int]Answer
	RevealedCorrectOptionID string
	Scores                  map[int]int
	Results                 []scoring.FinalResult
}

func (s State) CurrentQuestion() (Question, bool) {
	i := s.Round.QuestionIndex
	if i < 0 || i >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[i], true
}

func (s State) allAnswered() bool {
	active := s.Slots.Active()
	if len(active) == 0 {
		return true
	}
	for _, idx := range active {
		if _, ok := s.Round.Answers[idx]; !ok {
			return false
		}
	}
	return true
}

func startGame(st *State, cmd Command) ([]Event, error) {
	if cmd.Identity != st.Room.HostID {
		return nil, ErrNotAuthorized
	}
	if st.Room.Status != StatusWaiting {
		return nil, ErrInvalidTransition
	}
	if st.Room.QuestionCount <= 0 || len(cmd.Questions) < st.Room.QuestionCount {
		return nil, ErrInsufficientQuestions
	}

	st.Questions = cmd.Questions[:st.Room.QuestionCount]
	st.Room.Status = StatusInGame
	st.Round.Scores = make(map[int]int, SeatCount)
	for _, idx := range st.Slots.Active() {
		st.Round.Scores[idx] = 0
	}
	return startQuestion(st, 0, cmd.At), nil
}

func startQuestion(st *State, index int, at time.Time) []Event {
	q := st.Questions[index]
	limit := st.Room.TimeLimit()

	st.Round.Phase = PhaseQuestionActive
	st.Round.QuestionIndex = index
	st.Round.StartedAt = at
	st.Round.Deadline = at.Add(limit)
	st.Round.RevealUntil = time.Time{}
	st.Round.Answers = make(map[int]Answer, SeatCount)
	st.Round.RevealedCorrectOptionID = ""
	st.Room.CurrentQuestionIndex = index
	st.Room.CurrentQuestionStartedAt = at

	return []Event{QuestionStart{
		Index:       index,
		Text:        q.Text,
		Options:     q.Public(),
		StartedAt:   at,
		Deadline:    st.Round.Deadline,
		TimeLimitMs: limit.Milliseconds(),
	}}
}

func submitAnswer(st *State, cmd Command) ([]Event, error) {
	if !inRange(cmd.SlotIndex) {
		return nil, ErrNotFound
	}
	slot := st.Slots[cmd.SlotIndex]
	switch cmd.Type {
	case CmdBotAnswer:
		if slot.Type != SlotBot {
			return nil, ErrInvalidTarget
		}
	default:
		if slot.Type != SlotPlayer || slot.OccupantID != cmd.Identity {
			return nil, ErrNotAuthorized
		}
	}
	if st.Round.Phase != PhaseQuestionActive {
		return nil, ErrInvalidTransition
	}
	// Stale or duplicated sends are dropped quietly.
	if cmd.QuestionIndex != st.Round.QuestionIndex {
		return nil, nil
	}
	if _, dup := st.Round.Answers[cmd.SlotIndex]; dup {
		return nil, nil
	}
	q, _ := st.CurrentQuestion()
	if !q.HasOption(cmd.OptionID) {
		return nil, ErrNotFound
	}
	if !cmd.At.Before(st.Round.Deadline) {
		return reveal(st, cmd.At), nil
	}

	st.Round.Answers[cmd.SlotIndex] = Answer{OptionID: cmd.OptionID, SubmittedAt: cmd.At}
	events := []Event{AnswerSubmitted{SlotIndex: cmd.SlotIndex}}
	if st.allAnswered() {
		events = append(events, reveal(st, cmd.At)...)
	}
	return events, nil
}

// tick is the host-side clock. Either condition may already hold, so it
// only ever moves the round forward.
func tick(st *State, at time.Time) []Event {
	switch st.Round.Phase {
	case PhaseQuestionActive:
		if !at.Before(st.Round.Deadline) || st.allAnswered() {
			return reveal(st, at)
		}
	case PhaseReveal:
		if !at.Before(st.Round.RevealUntil) {
			return advance(st, at)
		}
	}
	return nil
}

func reveal(st *State, at time.Time) []Event {
	q, _ := st.CurrentQuestion()
	correct := q.CorrectOptionID()
	limitMs := st.Room.TimeLimit().Milliseconds()

	if st.Round.Scores == nil {
		st.Round.Scores = make(map[int]int, SeatCount)
	}

	active := st.Slots.Active()
	results := make([]AnswerResult, 0, len(active))
	for _, idx := range active {
		ans, answered := st.Round.Answers[idx]
		isCorrect := answered && ans.OptionID == correct
		elapsed := ans.SubmittedAt.Sub(st.Round.StartedAt).Milliseconds()
		points := scoring.Score(isCorrect, elapsed, limitMs, st.Rules.BasePoints)
		st.Round.Scores[idx] += points
		results = append(results, AnswerResult{
			SlotIndex:        idx,
			SelectedOptionID: ans.OptionID,
			IsCorrect:        isCorrect,
			PointsAwarded:    points,
			TotalPoints:      st.Round.Scores[idx],
		})
	}

	st.Round.Phase = PhaseReveal
	st.Round.RevealedCorrectOptionID = correct
	st.Round.RevealUntil = at.Add(st.Rules.RevealDwell)

	return []Event{QuestionReveal{Index: st.Round.QuestionIndex, CorrectOptionID: correct, Results: results}}
}

func advance(st *State, at time.Time) []Event {
	next := st.Round.QuestionIndex + 1
	if next < len(st.Questions) {
		return startQuestion(st, next, at)
	}
	return finish(st)
}

func finish(st *State) []Event {
	totals := make(map[int]int)
	for _, idx := range st.Slots.Active() {
		totals[idx] = st.Round.Scores[idx]
	}
	st.Round.Results = scoring.Rank(totals)
	st.Round.Phase = PhaseFinished
	st.Room.Status = StatusFinished
	return []Event{GameFinished{Results: st.Round.Results}}
}

func closeRoom(st *State, reason string) []Event {
	st.Room.Closed = true
	st.Room.Status = StatusFinished
	st.Round.Phase = PhaseFinished
	return []Event{RoomClosed{RoomID: st.Room.ID, Reason: reason}}
}

// Restore rebuilds a State from persisted data. An in-game room resumes the
// persisted question; answers and scores from before the restart are gone.
func Restore(room Room, slots Slots, questions []Question, rules Rules) (State, error) {
	st := State{Room: room, Slots: slots, Rules: rules}
	switch room.Status {
	case StatusWaiting:
		st.Round.Phase = PhaseWaiting
	case StatusFinished:
		st.Round.Phase = PhaseFinished
	case StatusInGame:
		if len(questions) < room.QuestionCount {
			return State{}, ErrInsufficientQuestions
		}
		if room.CurrentQuestionIndex < 0 || room.CurrentQuestionIndex >= room.QuestionCount {
			return State{}, ErrInvalidTransition
		}
		st.Questions = questions[:room.QuestionCount]
		st.Round = RoundState{
			Phase:         PhaseQuestionActive,
			QuestionIndex: room.CurrentQuestionIndex,
			StartedAt:     room.CurrentQuestionStartedAt,
			Deadline:      room.CurrentQuestionStartedAt.Add(room.TimeLimit()),
			Answers:       make(map[int]Answer, SeatCount),
			Scores:        make(map[int]int, SeatCount),
		}
	default:
		return State{}, ErrInvalidTransition
	}
	return st, nil
}
