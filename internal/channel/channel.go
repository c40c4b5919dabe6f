// Package channel is the realtime pub/sub layer rooms publish on and
// websocket clients subscribe to. It carries presence alongside messages.
package channel

import (
	"context"
	"errors"

	"github.com/DoyleJ11/quiz-battle-backend/internal/presence"
)

var ErrTransportUnavailable = errors.New("transport unavailable")

const LobbyTopic = "lobby"

func RoomTopic(roomID string) string { return "room:" + roomID }

type Message struct {
	Type    string `json:"type"`
	Version int    `json:"version,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

type Transport interface {
	Subscribe(ctx context.Context, topic string) (Conn, error)
	// CloseTopic ends every subscription on topic.
	CloseTopic(topic string) error
}

// Conn is one subscription to one topic.
type Conn interface {
	// Track announces meta to everyone on the topic until Close.
	Track(ctx context.Context, meta presence.Meta) error
	// Send delivers msg to every other subscriber of the topic.
	Send(ctx context.Context, msg Message) error
	// Messages and Presence are closed when the subscription ends.
	Messages() <-chan Message
	Presence() <-chan presence.Diff
	Close() error
}
