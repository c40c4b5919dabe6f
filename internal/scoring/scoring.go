// Package scoring turns answers into points and points into a final ranking.
package scoring

import "sort"

const DefaultBasePoints = 1000

// Score awards basePoints for an instant correct answer, decaying linearly to
// a fifth of that at the deadline. Wrong answers score zero.
//
//	floor(base * (0.2 + 0.8 * max(0, 1 - elapsed/limit)))
//
// Integer arithmetic keeps the floor exact at both ends.
func Score(isCorrect bool, elapsedMs, timeLimitMs int64, basePoints int) int {
	if !isCorrect {
		return 0
	}
	base := int64(basePoints)
	if timeLimitMs <= 0 {
		return basePoints
	}
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	remaining := timeLimitMs - elapsedMs
	if remaining < 0 {
		remaining = 0
	}
	return int(base * (20*timeLimitMs + 80*remaining) / (100 * timeLimitMs))
}

type FinalResult struct {
	SlotIndex   int `json:"slot_index"`
	TotalPoints int `json:"total_points"`
	Rank        int `json:"rank"`
}

// Rank orders totals by points descending. Equal totals go to the lower slot.
func Rank(totals map[int]int) []FinalResult {
	out := make([]FinalResult, 0, len(totals))
	for slot, pts := range totals {
		out = append(out, FinalResult{SlotIndex: slot, TotalPoints: pts})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalPoints != out[j].TotalPoints {
			return out[i].TotalPoints > out[j].TotalPoints
		}
		return out[i].SlotIndex < out[j].SlotIndex
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
