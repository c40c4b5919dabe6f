package types

import "time"

// RoomSnapshot is the first frame on a room socket and the body of
// GET /rooms/{id}. A client that connects mid-round rebuilds its countdown
// from Round.StartedAt and Round.Deadline instead of waiting for the next
// QuestionStart.
type RoomSnapshot struct {
	Version int         `json:"version"`
	Room    RoomInfo    `json:"room"`
	Slots   []SlotInfo  `json:"slots"`
	Summary SummaryInfo `json:"summary"`
	Round   *RoundInfo  `json:"round,omitempty"`
	Online  []string    `json:"online,omitempty"`
}

type RoomInfo struct {
	ID                       string     `json:"id"`
	HostID                   string     `json:"host_id"`
	Name                     string     `json:"name"`
	Visibility               string     `json:"visibility"`
	Status                   string     `json:"status"`
	TimeLimitSeconds         int        `json:"time_limit_seconds"`
	QuestionCount            int        `json:"question_count"`
	CurrentQuestionIndex     int        `json:"current_question_index"`
	CurrentQuestionStartedAt *time.Time `json:"current_question_started_at,omitempty"`
}

type SlotInfo struct {
	Index      int    `json:"index"`
	Type       string `json:"type"`
	OccupantID string `json:"occupant_id,omitempty"`
	BotLabel   string `json:"bot_label,omitempty"`
}

type SummaryInfo struct {
	PlayerCount int `json:"player_count"`
	BotCount    int `json:"bot_count"`
	OpenSlots   int `json:"open_slots"`
	LockedSlots int `json:"locked_slots"`
}

type RoundInfo struct {
	Phase           string        `json:"phase"`
	QuestionIndex   int           `json:"question_index"`
	Question        *QuestionInfo `json:"question,omitempty"`
	StartedAt       time.Time     `json:"started_at"`
	Deadline        time.Time     `json:"deadline"`
	RemainingMs     int64         `json:"remaining_ms"`
	Answered        []int         `json:"answered"`
	CorrectOptionID string        `json:"correct_option_id,omitempty"` // only once revealed
	Scores          map[int]int   `json:"scores,omitempty"`
	Results         []ResultInfo  `json:"results,omitempty"`
}

type QuestionInfo struct {
	Text    string       `json:"text"`
	Options []OptionInfo `json:"options"`
}

type OptionInfo struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type ResultInfo struct {
	SlotIndex   int `json:"slot_index"`
	TotalPoints int `json:"total_points"`
	Rank        int `json:"rank"`
}

// RoomListing is one entry of GET /rooms and of the lobby feed.
type RoomListing struct {
	ID      string      `json:"id"`
	Name    string      `json:"name"`
	Status  string      `json:"status"`
	HostID  string      `json:"host_id"`
	Summary SummaryInfo `json:"summary"`
}
