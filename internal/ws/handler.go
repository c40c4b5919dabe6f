package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/DoyleJ11/quiz-battle-backend/internal/auth"
	"github.com/DoyleJ11/quiz-battle-backend/internal/channel"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/hub"
	"github.com/DoyleJ11/quiz-battle-backend/internal/presence"
	"github.com/DoyleJ11/quiz-battle-backend/internal/room"
	"github.com/DoyleJ11/quiz-battle-backend/internal/types"
)

const (
	writeTimeout   = 3 * time.Second
	commandTimeout = 5 * time.Second
	pingInterval   = 15 * time.Second
	commandRate    = 10
	commandBurst   = 20
)

type Options struct {
	Dev    bool // accept any origin
	Logger *zap.Logger
}

func acceptOptions(o Options) *websocket.AcceptOptions {
	if o.Dev {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	return nil
}

// RoomHandler serves GET /ws/rooms/{id}. The caller must already be
// authenticated. Closing the socket does not give up the seat.
func RoomHandler(h *hub.Hub, tr channel.Transport, o Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFrom(r.Context())
		if !ok {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}
		id := chi.URLParam(r, "id")
		rm, err := h.Ensure(r.Context(), id)
		if err != nil {
			if errors.Is(err, engine.ErrNotFound) {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to load room", http.StatusInternalServerError)
			return
		}

		conn, err := websocket.Accept(w, r, acceptOptions(o))
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		connID := uuid.NewString()
		log := o.Logger.With(zap.String("room", id), zap.String("identity", identity), zap.String("conn", connID))

		// subscribe before the snapshot so nothing between the two is lost
		sub, err := tr.Subscribe(ctx, channel.RoomTopic(id))
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, "transport unavailable")
			return
		}
		defer sub.Close()

		meta := presence.Meta{Identity: identity, ConnectionID: connID, ConnectedAt: time.Now()}
		if err := sub.Track(ctx, meta); err != nil {
			conn.Close(websocket.StatusTryAgainLater, "transport unavailable")
			return
		}

		view, err := rm.View(ctx)
		if err != nil {
			conn.Close(websocket.StatusGoingAway, "room closed")
			return
		}
		snap := room.Snapshot(view, time.Now())
		if err := write(ctx, conn, types.ServerMessage{Type: "snapshot", Version: snap.Version, Payload: snap}); err != nil {
			return
		}
		log.Debug("room socket open")

		replies := make(chan types.ServerMessage, 16)
		go func() {
			defer cancel()
			pump(ctx, conn, sub, replies, snap.Version, log)
		}()

		limiter := rate.NewLimiter(commandRate, commandBurst)
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				default:
					log.Debug("room socket read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				reply(ctx, replies, errorMessage("", types.CodeBadRequest, "bad json"))
				continue
			}
			if !limiter.Allow() {
				reply(ctx, replies, errorMessage(cm.RequestID, types.CodeRateLimited, "slow down"))
				continue
			}
			reply(ctx, replies, dispatch(ctx, rm, identity, cm))
		}
	}
}

// pump is the only writer after the snapshot: broadcasts, presence,
// replies and pings all go through here.
func pump(ctx context.Context, conn *websocket.Conn, sub channel.Conn, replies <-chan types.ServerMessage, since int, log *zap.Logger) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		var out types.ServerMessage
		select {
		case <-ctx.Done():
			return

		case m, ok := <-sub.Messages():
			if !ok {
				// dropped for falling behind, or the room's topic was closed; the client resyncs on reconnect
				conn.Close(websocket.StatusTryAgainLater, "subscription ended")
				return
			}
			if m.Version != 0 && m.Version <= since {
				continue // already in the snapshot
			}
			out = types.ServerMessage{Type: m.Type, Version: m.Version, Payload: m.Payload}

		case d, ok := <-sub.Presence():
			if !ok {
				conn.Close(websocket.StatusTryAgainLater, "too slow")
				return
			}
			out = types.ServerMessage{Type: "presence_diff", Payload: d}

		case out = <-replies:

		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				log.Debug("heartbeat failed", zap.Error(err))
				return
			}
			continue
		}

		if err := write(ctx, conn, out); err != nil {
			return
		}
		if out.Type == string(engine.EvtRoomClosed) {
			conn.Close(websocket.StatusNormalClosure, "room closed")
			return
		}
	}
}

func dispatch(parent context.Context, rm *room.Room, identity string, cm types.ClientMessage) types.ServerMessage {
	ctx, cancel := context.WithTimeout(parent, commandTimeout)
	defer cancel()

	slot := -1
	var err error
	switch cm.Type {
	case "join":
		slot, err = rm.JoinRoom(ctx, identity)
	case "leave":
		err = rm.LeaveRoom(ctx, identity)
	case "update_slot":
		slot = cm.SlotIndex
		err = rm.UpdateSlot(ctx, identity, cm.SlotIndex, engine.SlotType(cm.Target))
	case "kick":
		slot = cm.SlotIndex
		err = rm.KickPlayer(ctx, identity, cm.SlotIndex)
	case "start_game":
		err = rm.StartGame(ctx, identity)
	case "submit_answer":
		slot = cm.SlotIndex
		err = rm.SubmitAnswer(ctx, identity, cm.SlotIndex, cm.QuestionIndex, cm.OptionID)
	default:
		return errorMessage(cm.RequestID, types.CodeBadRequest, "unknown type "+cm.Type)
	}
	if err != nil {
		return errorMessage(cm.RequestID, errorCode(err), err.Error())
	}
	return types.ServerMessage{Type: "ack", RequestID: cm.RequestID, Payload: map[string]int{"slot_index": slot}}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrNotAuthorized):
		return types.CodeNotAuthorized
	case errors.Is(err, engine.ErrInvalidTransition):
		return types.CodeInvalidTransition
	case errors.Is(err, engine.ErrNoSeatAvailable):
		return types.CodeNoSeat
	case errors.Is(err, engine.ErrInsufficientQuestions):
		return types.CodeInsufficient
	case errors.Is(err, engine.ErrNotFound):
		return types.CodeNotFound
	case errors.Is(err, engine.ErrInvalidTarget):
		return types.CodeInvalidTarget
	case errors.Is(err, channel.ErrTransportUnavailable):
		return types.CodeUnavailable
	default:
		return types.CodeInternal
	}
}

func errorMessage(requestID, code, msg string) types.ServerMessage {
	return types.ServerMessage{Type: "error", RequestID: requestID, Error: &types.ErrorBody{Code: code, Message: msg}}
}

func reply(ctx context.Context, replies chan<- types.ServerMessage, m types.ServerMessage) {
	select {
	case replies <- m:
	case <-ctx.Done():
	}
}

func write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
