package room

import (
	"github.com/DoyleJ11/quiz-battle-backend/internal/bot"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/presence"
)

type Msg interface{ isRoomMsg() }

// Result answers every command message. SlotIndex is the caller's seat
// after the command, or -1.
type Result struct {
	SlotIndex int
	Err       error
}

type Join struct {
	Identity string
	Reply    chan Result
}

type Leave struct {
	Identity string
	Reply    chan Result
}

type UpdateSlot struct {
	Identity  string
	SlotIndex int
	Target    engine.SlotType
	Reply     chan Result
}

type Kick struct {
	Identity  string
	SlotIndex int
	Reply     chan Result
}

// StartGame carries questions fetched by the caller so the loop never waits on the bank.
type StartGame struct {
	Identity  string
	Questions []engine.Question
	Reply     chan Result
}

type SubmitAnswer struct {
	Identity      string
	SlotIndex     int
	QuestionIndex int
	OptionID      string
	Reply         chan Result
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

// Announce puts a newly created room on the lobby feed.
type Announce struct{}

type botFire struct {
	gen  int
	plan bot.Plan
}

func (Join) isRoomMsg()         {}
func (Leave) isRoomMsg()        {}
func (UpdateSlot) isRoomMsg()   {}
func (Kick) isRoomMsg()         {}
func (StartGame) isRoomMsg()    {}
func (SubmitAnswer) isRoomMsg() {}
func (GetState) isRoomMsg()     {}
func (Shutdown) isRoomMsg()     {}
func (Announce) isRoomMsg()     {}
func (botFire) isRoomMsg()      {}

type View struct {
	Version int
	State   engine.State
	Roster  []presence.Meta
}
