package types

// Client -> Server (GET /ws/rooms/{id})
// Every message may carry request_id; the reply echoes it.
//
// join:          {}
// leave:         {}
// update_slot:   slot_index: number, target?: "empty" | "bot" | "locked" (omit to cycle)
// kick:          slot_index: number
// start_game:    {}
// submit_answer: slot_index: number, question_index: number, option_id: string

// Server -> Client
// snapshot:           RoomSnapshot (always the first frame)
// ack:                request_id, payload: { slot_index }
// error:              request_id, error: { code, message }
//
// SlotChanged:        slot_index, type, occupant_id?, bot_label?
// SlotSummaryChanged: room_id, summary { player_count, bot_count, open_slots, locked_slots }
// QuestionStart:      index, text, options [{id, text}], started_at, deadline, time_limit_ms
// AnswerSubmitted:    slot_index
// QuestionReveal:     index, correct_option_id, results [{slot_index, selected_option_id, is_correct, points_awarded, total_points}]
// GameFinished:       results [{slot_index, total_points, rank}]
// RoomClosed:         room_id, reason
// presence_diff:      joins [{identity, connection_id, connected_at}], leaves [...]
//
// Broadcasts carry the room version. Apply them in version order and
// request a fresh snapshot on a gap.

// Lobby feed (GET /ws/lobby)
// rooms:              RoomListing[] (first frame)
// RoomOpened:         RoomListing, for a room created after the first frame
// SlotSummaryChanged: as above, for any public room
// RoomClosed:         as above, for any public room
