package engine

import (
	"errors"
	"maps"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/scoring"
)

var ErrNotAuthorized = errors.New("not authorized")
var ErrInvalidTransition = errors.New("invalid transition")
var ErrNoSeatAvailable = errors.New("no seat available")
var ErrInsufficientQuestions = errors.New("insufficient questions")
var ErrNotFound = errors.New("not found")
var ErrInvalidTarget = errors.New("invalid target")
var ErrUnsupportedCommand = errors.New("unsupported command")

type RoomStatus string

const (
	StatusWaiting  RoomStatus = "waiting"
	StatusInGame   RoomStatus = "in_game"
	StatusFinished RoomStatus = "finished"
)

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// Room is the persisted part of a room. CurrentQuestionIndex and
// CurrentQuestionStartedAt are kept here as well as in RoundState so a late
// joiner or a restarted process can rebuild the round.
type Room struct {
	ID                       string     `json:"id"`
	HostID                   string     `json:"host_id"`
	Name                     string     `json:"name"`
	Visibility               Visibility `json:"visibility"`
	Status                   RoomStatus `json:"status"`
	TimeLimitSeconds         int        `json:"time_limit_seconds"`
	QuestionCount            int        `json:"question_count"`
	QuestionSetRef           string     `json:"question_set_ref"`
	CurrentQuestionIndex     int        `json:"current_question_index"`
	CurrentQuestionStartedAt time.Time  `json:"current_question_started_at"`
	Closed                   bool       `json:"closed"`
}

func (r Room) TimeLimit() time.Duration {
	return time.Duration(r.TimeLimitSeconds) * time.Second
}

type Rules struct {
	RevealDwell time.Duration
	BasePoints  int
}

func DefaultRules() Rules {
	return Rules{RevealDwell: 4 * time.Second, BasePoints: scoring.DefaultBasePoints}
}

type State struct {
	Room      Room
	Slots     Slots
	Round     RoundState
	Questions []Question
	Rules     Rules
}

// NewState returns a waiting room with the host seated in slot 0.
func NewState(room Room, rules Rules) State {
	room.Status = StatusWaiting
	slots := NewSlots()
	slots[0] = Slot{Index: 0, Type: SlotPlayer, OccupantID: room.HostID}
	return State{
		Room:  room,
		Slots: slots,
		Round: RoundState{Phase: PhaseWaiting},
		Rules: rules,
	}
}

// Clone copies the maps held by the round so the copy can be mutated freely.
// Questions are never mutated after StartGame and stay shared.
func (s State) Clone() State {
	c := s
	c.Round.Answers = maps.Clone(s.Round.Answers)
	c.Round.Scores = maps.Clone(s.Round.Scores)
	return c
}

type CommandType string

const (
	CmdJoin         CommandType = "Join"
	CmdLeave        CommandType = "Leave"
	CmdUpdateSlot   CommandType = "UpdateSlot"
	CmdKick         CommandType = "Kick"
	CmdStartGame    CommandType = "StartGame"
	CmdSubmitAnswer CommandType = "SubmitAnswer"
	CmdBotAnswer    CommandType = "BotAnswer"
	CmdTick         CommandType = "Tick"
	CmdCloseRoom    CommandType = "CloseRoom"
)

/*
	CmdJoin / CmdLeave / CmdKick / CmdUpdateSlot -> SlotChanged -> SlotSummaryChanged
	CmdStartGame    -> QuestionStart
	CmdSubmitAnswer -> AnswerSubmitted (-> QuestionReveal once every active slot answered)
	CmdTick         -> QuestionReveal at the deadline, then QuestionStart or GameFinished after the dwell
	CmdCloseRoom    -> RoomClosed
	A host leaving or being kicked also ends in RoomClosed.
*/

type Command struct {
	Type          CommandType
	Identity      string
	SlotIndex     int
	Target        SlotType // UpdateSlot, empty means cycle
	QuestionIndex int
	OptionID      string
	Questions     []Question // StartGame
	Reason        string     // CloseRoom
	At            time.Time
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	if s.Room.Closed {
		return nil, s, ErrNotFound
	}

	next := s.Clone()
	var events []Event
	var err error

	switch cmd.Type {
	case CmdJoin:
		events, err = join(&next, cmd)
	case CmdLeave:
		events, err = leave(&next, cmd)
	case CmdUpdateSlot:
		events, err = updateSlot(&next, cmd)
	case CmdKick:
		events, err = kick(&next, cmd)
	case CmdStartGame:
		events, err = startGame(&next, cmd)
	case CmdSubmitAnswer, CmdBotAnswer:
		events, err = submitAnswer(&next, cmd)
	case CmdTick:
		events = tick(&next, cmd.At)
	case CmdCloseRoom:
		if cmd.Identity != s.Room.HostID {
			return nil, s, ErrNotAuthorized
		}
		events = closeRoom(&next, cmd.Reason)
	default:
		return nil, s, ErrUnsupportedCommand
	}

	if err != nil {
		return nil, s, err
	}
	return events, next, nil
}
