package types

type ClientMessage struct {
	Type          string `json:"type"`
	RequestID     string `json:"request_id,omitempty"`
	SlotIndex     int    `json:"slot_index,omitempty"`
	Target        string `json:"target,omitempty"`
	QuestionIndex int    `json:"question_index,omitempty"`
	OptionID      string `json:"option_id,omitempty"`
}

type ServerMessage struct {
	Type      string     `json:"type"` // snapshot | ack | error | presence_diff | rooms | an event type
	Version   int        `json:"version,omitempty"`
	RequestID string     `json:"request_id,omitempty"`
	Payload   any        `json:"payload,omitempty"`
	Error     *ErrorBody `json:"error,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes sent to clients.
const (
	CodeBadRequest        = "bad_request"
	CodeNotAuthorized     = "not_authorized"
	CodeInvalidTransition = "invalid_transition"
	CodeNoSeat            = "no_seat_available"
	CodeInsufficient      = "insufficient_questions"
	CodeNotFound          = "not_found"
	CodeInvalidTarget     = "invalid_target"
	CodeRateLimited       = "rate_limited"
	CodeUnavailable       = "transport_unavailable"
	CodeInternal          = "internal"
)
