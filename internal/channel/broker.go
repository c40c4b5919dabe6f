package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-battle-backend/internal/presence"
)

// Broker is an in-process Transport. A subscriber whose queue is full is
// dropped rather than allowed to stall the publisher.
type Broker struct {
	mu     sync.Mutex
	topics map[string]map[string]*subscription
	buffer int
	closed bool
	logger *zap.Logger
}

func NewBroker(logger *zap.Logger, buffer int) *Broker {
	if buffer <= 0 {
		buffer = 32
	}
	return &Broker{
		topics: make(map[string]map[string]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

type subscription struct {
	broker  *Broker
	topic   string
	id      string
	msgs    chan Message
	diffs   chan presence.Diff
	tracked []presence.Meta
	closed  bool
}

func (b *Broker) Subscribe(ctx context.Context, topic string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrTransportUnavailable
	}

	s := &subscription{
		broker: b,
		topic:  topic,
		id:     uuid.NewString(),
		msgs:   make(chan Message, b.buffer),
		diffs:  make(chan presence.Diff, b.buffer),
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]*subscription)
		b.topics[topic] = subs
	}

	// presence state: everyone already tracked arrives as one join diff
	var present []presence.Meta
	for _, other := range subs {
		present = append(present, other.tracked...)
	}
	if len(present) > 0 {
		s.diffs <- presence.Diff{Joins: present}
	}

	subs[s.id] = s
	return s, nil
}

// Close ends every subscription. Subscribers see their channels close.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.topics {
		for _, s := range subs {
			s.closed = true
			close(s.msgs)
			close(s.diffs)
		}
	}
	clear(b.topics)
	return nil
}

// CloseTopic ends every subscription on topic. Queued messages are still
// delivered before the channels read as closed.
func (b *Broker) CloseTopic(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.topics[topic] {
		s.closed = true
		close(s.msgs)
		close(s.diffs)
	}
	delete(b.topics, topic)
	return nil
}

// Caller holds b.mu.
func (b *Broker) drop(s *subscription) {
	if s.closed {
		return
	}
	s.closed = true
	close(s.msgs)
	close(s.diffs)
	if subs := b.topics[s.topic]; subs != nil {
		delete(subs, s.id)
		if len(subs) == 0 {
			delete(b.topics, s.topic)
		}
	}
	if len(s.tracked) > 0 {
		b.fanDiff(s.topic, presence.Diff{Leaves: s.tracked})
	}
}

// Caller holds b.mu. Slow subscribers are collected first and dropped after
// the loop since dropping them emits another diff on the same topic.
func (b *Broker) fanDiff(topic string, d presence.Diff) {
	var slow []*subscription
	for _, s := range b.topics[topic] {
		select {
		case s.diffs <- d:
		default:
			slow = append(slow, s)
		}
	}
	for _, s := range slow {
		b.logger.Warn("dropping slow subscriber", zap.String("topic", topic), zap.String("sub", s.id))
		b.drop(s)
	}
}

func (s *subscription) Track(ctx context.Context, meta presence.Meta) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed || b.closed {
		return ErrTransportUnavailable
	}
	s.tracked = append(s.tracked, meta)
	b.fanDiff(s.topic, presence.Diff{Joins: []presence.Meta{meta}})
	return nil
}

func (s *subscription) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	if s.closed || b.closed {
		return fmt.Errorf("send %s on %s: %w", msg.Type, s.topic, ErrTransportUnavailable)
	}

	var slow []*subscription
	for id, other := range b.topics[s.topic] {
		if id == s.id {
			continue
		}
		select {
		case other.msgs <- msg:
		default:
			slow = append(slow, other)
		}
	}
	for _, other := range slow {
		b.logger.Warn("dropping slow subscriber", zap.String("topic", s.topic), zap.String("sub", other.id))
		b.drop(other)
	}
	return nil
}

func (s *subscription) Messages() <-chan Message       { return s.msgs }
func (s *subscription) Presence() <-chan presence.Diff { return s.diffs }

func (s *subscription) Close() error {
	b := s.broker
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop(s)
	return nil
}
