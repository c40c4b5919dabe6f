package engine

import (
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/scoring"
)

type EventType string

const (
	EvtSlotChanged        EventType = "SlotChanged"
	EvtSlotSummaryChanged EventType = "SlotSummaryChanged"
	EvtQuestionStart      EventType = "QuestionStart"
	EvtAnswerSubmitted    EventType = "AnswerSubmitted"
	EvtQuestionReveal     EventType = "QuestionReveal"
	EvtGameFinished       EventType = "GameFinished"
	EvtRoomClosed         EventType = "RoomClosed"
)

// Event is one of the structs below. Consumers switch on the concrete type.
type Event interface{ EventType() EventType }

type SlotChanged struct {
	SlotIndex  int      `json:"slot_index"`
	Type       SlotType `json:"type"`
	OccupantID string   `json:"occupant_id,omitempty"`
	BotLabel   string   `json:"bot_label,omitempty"`
}

type SlotSummaryChanged struct {
	RoomID  string  `json:"room_id"`
	Summary Summary `json:"summary"`
}

// QuestionStart never carries which option is correct.
type QuestionStart struct {
	Index       int            `json:"index"`
	Text        string         `json:"text"`
	Options     []PublicOption `json:"options"`
	StartedAt   time.Time      `json:"started_at"`
	Deadline    time.Time      `json:"deadline"`
	TimeLimitMs int64          `json:"time_limit_ms"`
}

type AnswerSubmitted struct {
	SlotIndex int `json:"slot_index"`
}

type AnswerResult struct {
	SlotIndex        int    `json:"slot_index"`
	SelectedOptionID string `json:"selected_option_id,omitempty"`
	IsCorrect        bool   `json:"is_correct"`
	PointsAwarded    int    `json:"points_awarded"`
	TotalPoints      int    `json:"total_points"`
}

type QuestionReveal struct {
	Index           int            `json:"index"`
	CorrectOptionID string         `json:"correct_option_id"`
	Results         []AnswerResult `json:"results"`
}

type GameFinished struct {
	Results []scoring.FinalResult `json:"results"`
}

type RoomClosed struct {
	RoomID string `json:"room_id"`
	Reason string `json:"reason"`
}

func (SlotChanged) EventType() EventType        { return EvtSlotChanged }
func (SlotSummaryChanged) EventType() EventType { return EvtSlotSummaryChanged }
func (QuestionStart) EventType() EventType      { return EvtQuestionStart }
func (AnswerSubmitted) EventType() EventType    { return EvtAnswerSubmitted }
func (QuestionReveal) EventType() EventType     { return EvtQuestionReveal }
func (GameFinished) EventType() EventType       { return EvtGameFinished }
func (RoomClosed) EventType() EventType         { return EvtRoomClosed }
