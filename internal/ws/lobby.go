package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-battle-backend/internal/channel"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/room"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
	"github.com/DoyleJ11/quiz-battle-backend/pkg/types"

	wire "github.com/DoyleJ11/quiz-battle-backend/internal/types"
)

// OpenRooms is what the lobby lists: public rooms that are not closed.
func OpenRooms(ctx context.Context, st store.Store) ([]types.RoomListing, error) {
	rooms, err := st.ListRooms(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.RoomListing, 0, len(rooms))
	for _, l := range rooms {
		if l.Room.Visibility != engine.VisibilityPublic || l.Room.Closed {
			continue
		}
		out = append(out, room.Listing(l.Room, l.Summary))
	}
	return out, nil
}

// LobbyHandler serves GET /ws/lobby: the current listing, then every
// occupancy change and closure as it happens. It is read-only.
func LobbyHandler(st store.Store, tr channel.Transport, o Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, acceptOptions(o))
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		// nothing is read from lobby clients; CloseRead handles control frames for us
		ctx := conn.CloseRead(r.Context())

		sub, err := tr.Subscribe(ctx, channel.LobbyTopic)
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, "transport unavailable")
			return
		}
		defer sub.Close()

		listing, err := OpenRooms(ctx, st)
		if err != nil {
			o.Logger.Warn("lobby listing failed", zap.Error(err))
			conn.Close(websocket.StatusInternalError, "listing failed")
			return
		}
		if err := write(ctx, conn, wire.ServerMessage{Type: "rooms", Payload: listing}); err != nil {
			return
		}

		ping := time.NewTicker(pingInterval)
		defer ping.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-sub.Messages():
				if !ok {
					conn.Close(websocket.StatusTryAgainLater, "too slow")
					return
				}
				if err := write(ctx, conn, wire.ServerMessage{Type: m.Type, Payload: m.Payload}); err != nil {
					return
				}
			case <-ping.C:
				// CloseRead keeps reading, so pongs are seen
				pctx, cancel := context.WithTimeout(ctx, writeTimeout)
				err := conn.Ping(pctx)
				cancel()
				if err != nil {
					return
				}
			}
		}
	}
}
