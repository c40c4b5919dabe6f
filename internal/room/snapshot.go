package room

import (
	"sort"
	"time"

	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/types"
)

// Snapshot renders a View for clients. The correct option stays hidden
// until the question has been revealed.
func Snapshot(v View, now time.Time) types.RoomSnapshot {
	st := v.State
	room := st.Room

	out := types.RoomSnapshot{
		Version: v.Version,
		Room: types.RoomInfo{
			ID:                   room.ID,
			HostID:               room.HostID,
			Name:                 room.Name,
			Visibility:           string(room.Visibility),
			Status:               string(room.Status),
			TimeLimitSeconds:     room.TimeLimitSeconds,
			QuestionCount:        room.QuestionCount,
			CurrentQuestionIndex: room.CurrentQuestionIndex,
		},
		Summary: summaryInfo(st.Slots.Summarize()),
	}
	if !room.CurrentQuestionStartedAt.IsZero() {
		t := room.CurrentQuestionStartedAt
		out.Room.CurrentQuestionStartedAt = &t
	}

	for _, s := range st.Slots {
		out.Slots = append(out.Slots, types.SlotInfo{
			Index:      s.Index,
			Type:       string(s.Type),
			OccupantID: s.OccupantID,
			BotLabel:   s.BotLabel,
		})
	}

	seen := make(map[string]bool)
	for _, m := range v.Roster {
		if !seen[m.Identity] {
			seen[m.Identity] = true
			out.Online = append(out.Online, m.Identity)
		}
	}
	sort.Strings(out.Online)

	if st.Round.Phase != engine.PhaseWaiting {
		out.Round = roundInfo(st, now)
	}
	return out
}

func roundInfo(st engine.State, now time.Time) *types.RoundInfo {
	rd := st.Round
	info := &types.RoundInfo{
		Phase:         string(rd.Phase),
		QuestionIndex: rd.QuestionIndex,
		StartedAt:     rd.StartedAt,
		Deadline:      rd.Deadline,
		Answered:      []int{},
	}

	switch rd.Phase {
	case engine.PhaseQuestionActive, engine.PhaseReveal:
		if q, ok := st.CurrentQuestion(); ok {
			qi := &types.QuestionInfo{Text: q.Text}
			for _, o := range q.Public() {
				qi.Options = append(qi.Options, types.OptionInfo{ID: o.ID, Text: o.Text})
			}
			info.Question = qi
		}
		for idx := range rd.Answers {
			info.Answered = append(info.Answered, idx)
		}
		sort.Ints(info.Answered)
	}

	if rd.Phase == engine.PhaseQuestionActive {
		if rem := rd.Deadline.Sub(now); rem > 0 {
			info.RemainingMs = rem.Milliseconds()
		}
	}
	if rd.Phase == engine.PhaseReveal {
		info.CorrectOptionID = rd.RevealedCorrectOptionID
	}
	if len(rd.Scores) > 0 {
		info.Scores = make(map[int]int, len(rd.Scores))
		for k, v := range rd.Scores {
			info.Scores[k] = v
		}
	}
	for _, r := range rd.Results {
		info.Results = append(info.Results, types.ResultInfo{SlotIndex: r.SlotIndex, TotalPoints: r.TotalPoints, Rank: r.Rank})
	}
	return info
}

func summaryInfo(s engine.Summary) types.SummaryInfo {
	return types.SummaryInfo{
		PlayerCount: s.PlayerCount,
		BotCount:    s.BotCount,
		OpenSlots:   s.OpenSlots,
		LockedSlots: s.LockedSlots,
	}
}

// Listing renders a stored room for GET /rooms and the lobby feed.
func Listing(room engine.Room, summary engine.Summary) types.RoomListing {
	return types.RoomListing{
		ID:      room.ID,
		Name:    room.Name,
		Status:  string(room.Status),
		HostID:  room.HostID,
		Summary: summaryInfo(summary),
	}
}
