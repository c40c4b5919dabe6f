package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/quiz-battle-backend/internal/bot"
	"github.com/DoyleJ11/quiz-battle-backend/internal/channel"
	"github.com/DoyleJ11/quiz-battle-backend/internal/engine"
	"github.com/DoyleJ11/quiz-battle-backend/internal/presence"
	"github.com/DoyleJ11/quiz-battle-backend/internal/questions"
	"github.com/DoyleJ11/quiz-battle-backend/internal/reconcile"
	"github.com/DoyleJ11/quiz-battle-backend/internal/store"
)

// RoomOpened is the lobby feed message for a newly created room.
const RoomOpened = "RoomOpened"

type Deps struct {
	Store     store.Store
	Bank      questions.Bank
	Transport channel.Transport
	Bots      *bot.Responder // nil disables bot answers
	Logger    *zap.Logger
}

type Options struct {
	TickInterval   time.Duration
	GracePeriod    time.Duration
	PublishRetries int
	PublishBackoff time.Duration
	StoreTimeout   time.Duration
	Now            func() time.Time
	OnClose        func(roomID string)
}

func (o Options) withDefaults() Options {
	if o.TickInterval <= 0 {
		o.TickInterval = 250 * time.Millisecond
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = reconcile.DefaultGracePeriod
	}
	if o.PublishRetries < 0 {
		o.PublishRetries = 0
	}
	if o.PublishBackoff <= 0 {
		o.PublishBackoff = 50 * time.Millisecond
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 3 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Room owns one room's state. Only loop touches the fields below inbox;
// everyone else talks to it through messages.
type Room struct {
	id     string
	hostID string
	setRef string
	count  int

	inbox   chan Msg
	state   engine.State
	stored  engine.State // last state written to the store
	version int

	deps Deps
	opts Options
	log  *zap.Logger

	conn       channel.Conn // room topic
	lobby      channel.Conn // lobby feed
	presence   *presence.Tracker
	reconciler *reconcile.Reconciler

	botGen    int
	botTimers []*time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, initial engine.State, deps Deps, opts Options) (*Room, error) {
	opts = opts.withDefaults()
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	r := &Room{
		id:         initial.Room.ID,
		hostID:     initial.Room.HostID,
		setRef:     initial.Room.QuestionSetRef,
		count:      initial.Room.QuestionCount,
		inbox:      make(chan Msg, 64),
		state:      initial,
		stored:     initial,
		deps:       deps,
		opts:       opts,
		log:        deps.Logger.With(zap.String("room", initial.Room.ID)),
		presence:   presence.NewTracker(),
		reconciler: reconcile.New(opts.GracePeriod),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	if err := r.subscribe(); err != nil {
		cancel()
		return nil, err
	}
	lobby, err := deps.Transport.Subscribe(ctx, channel.LobbyTopic)
	if err != nil {
		r.conn.Close()
		cancel()
		return nil, fmt.Errorf("subscribe lobby feed: %w", err)
	}
	r.lobby = lobby

	// a room restored mid-question needs its bots rescheduled
	if initial.Round.Phase == engine.PhaseQuestionActive {
		r.scheduleBots(initial.Round.QuestionIndex)
	}

	go r.loop()
	return r, nil
}

func (r *Room) ID() string            { return r.id }
func (r *Room) Inbox() chan<- Msg     { return r.inbox }
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) loop() {
	defer r.shutdown()

	ticker := time.NewTicker(r.opts.TickInterval)
	defer ticker.Stop()

	for {
		var diffs <-chan presence.Diff
		var msgs, feed <-chan channel.Message
		if r.conn != nil {
			diffs = r.conn.Presence()
			msgs = r.conn.Messages()
		}
		if r.lobby != nil {
			feed = r.lobby.Messages()
		}

		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			r.onTick(r.opts.Now())

		case d, ok := <-diffs:
			if !ok {
				r.log.Warn("room subscription lost")
				r.conn = nil
				break
			}
			r.onPresence(d)

		case _, ok := <-msgs:
			// nothing is expected on the room topic from clients; drain so we are never the slow subscriber
			if !ok {
				r.conn = nil
			}

		case _, ok := <-feed:
			// other rooms' lobby updates
			if !ok {
				r.lobby = nil
			}

		case m := <-r.inbox:
			if stop := r.handle(m); stop {
				return
			}
		}

		if r.state.Room.Closed {
			return
		}
	}
}

func (r *Room) handle(m Msg) (stop bool) {
	now := r.opts.Now()

	switch msg := m.(type) {
	case Join:
		err := r.apply(engine.Command{Type: engine.CmdJoin, Identity: msg.Identity, At: now})
		msg.Reply <- r.result(msg.Identity, err)

	case Leave:
		err := r.apply(engine.Command{Type: engine.CmdLeave, Identity: msg.Identity, At: now})
		msg.Reply <- Result{SlotIndex: -1, Err: err}

	case UpdateSlot:
		err := r.apply(engine.Command{Type: engine.CmdUpdateSlot, Identity: msg.Identity, SlotIndex: msg.SlotIndex, Target: msg.Target, At: now})
		msg.Reply <- r.result(msg.Identity, err)

	case Kick:
		err := r.apply(engine.Command{Type: engine.CmdKick, Identity: msg.Identity, SlotIndex: msg.SlotIndex, At: now})
		msg.Reply <- r.result(msg.Identity, err)

	case StartGame:
		err := r.apply(engine.Command{Type: engine.CmdStartGame, Identity: msg.Identity, Questions: msg.Questions, At: now})
		msg.Reply <- r.result(msg.Identity, err)

	case SubmitAnswer:
		err := r.apply(engine.Command{
			Type:          engine.CmdSubmitAnswer,
			Identity:      msg.Identity,
			SlotIndex:     msg.SlotIndex,
			QuestionIndex: msg.QuestionIndex,
			OptionID:      msg.OptionID,
			At:            now,
		})
		msg.Reply <- r.result(msg.Identity, err)

	case botFire:
		if msg.gen != r.botGen {
			break // stale: the question moved on
		}
		err := r.apply(engine.Command{
			Type:          engine.CmdBotAnswer,
			SlotIndex:     msg.plan.SlotIndex,
			QuestionIndex: msg.plan.QuestionIndex,
			OptionID:      msg.plan.OptionID,
			At:            now,
		})
		if err != nil {
			r.log.Debug("bot answer dropped", zap.Int("slot", msg.plan.SlotIndex), zap.Error(err))
		}

	case Announce:
		r.toLobby(channel.Message{
			Type:    RoomOpened,
			Payload: Listing(r.state.Room, r.state.Slots.Summarize()),
		})

	case GetState:
		msg.Reply <- View{Version: r.version, State: r.state.Clone(), Roster: r.presence.Roster()}

	case Shutdown:
		return true
	}
	return false
}

func (r *Room) result(identity string, err error) Result {
	idx, ok := r.state.Slots.Find(identity)
	if !ok {
		idx = -1
	}
	return Result{SlotIndex: idx, Err: err}
}

// onTick drives the round clock and the disconnect sweep. A failure here
// leaves state as it was, so the next tick simply tries again.
func (r *Room) onTick(now time.Time) {
	if r.conn == nil {
		if err := r.subscribe(); err != nil {
			r.log.Warn("resubscribe failed", zap.Error(err))
		}
	}
	if r.lobby == nil {
		if lobby, err := r.deps.Transport.Subscribe(r.ctx, channel.LobbyTopic); err == nil {
			r.lobby = lobby
		}
	}

	if err := r.apply(engine.Command{Type: engine.CmdTick, At: now}); err != nil {
		r.log.Warn("tick failed", zap.Error(err))
	}
	if r.state.Room.Closed {
		return
	}

	host := r.state.Room.HostID
	for _, act := range r.reconciler.Due(now, r.state.Slots, host, r.presence.Online) {
		cmd := engine.Command{Type: engine.CmdKick, Identity: host, SlotIndex: act.SlotIndex, At: now}
		if act.Kind == reconcile.ActionClose {
			cmd = engine.Command{Type: engine.CmdCloseRoom, Identity: host, Reason: "host disconnected", At: now}
		}
		if err := r.apply(cmd); err != nil {
			r.log.Warn("reconcile action failed, retrying next tick",
				zap.String("action", string(act.Kind)),
				zap.String("identity", act.Identity),
				zap.Error(err))
			continue
		}
		r.log.Info("seat reclaimed after grace",
			zap.String("action", string(act.Kind)),
			zap.String("identity", act.Identity))
		if r.state.Room.Closed {
			return
		}
	}
}

func (r *Room) onPresence(d presence.Diff) {
	online, offline := r.presence.Apply(d)
	now := r.opts.Now()
	for _, id := range offline {
		if _, seated := r.state.Slots.Find(id); seated {
			r.reconciler.Left(id, now)
		}
	}
	if len(online) > 0 || len(offline) > 0 {
		r.log.Debug("presence changed", zap.Strings("online", online), zap.Strings("offline", offline))
	}
}

func (r *Room) subscribe() error {
	conn, err := r.deps.Transport.Subscribe(r.ctx, channel.RoomTopic(r.id))
	if err != nil {
		return fmt.Errorf("subscribe room %s: %w", r.id, err)
	}
	r.conn = conn
	r.presence = presence.NewTracker()
	return nil
}

func (r *Room) scheduleBots(questionIndex int) {
	r.cancelBots()
	if r.deps.Bots == nil {
		return
	}
	q, ok := r.state.CurrentQuestion()
	if !ok {
		return
	}
	gen := r.botGen
	for _, p := range r.deps.Bots.Plan(questionIndex, q, r.state.Slots.Bots(), r.state.Room.TimeLimit()) {
		fire := botFire{gen: gen, plan: p}
		r.botTimers = append(r.botTimers, time.AfterFunc(p.Delay, func() {
			select {
			case r.inbox <- fire:
			case <-r.ctx.Done():
			}
		}))
	}
}

func (r *Room) cancelBots() {
	r.botGen++
	for _, t := range r.botTimers {
		t.Stop()
	}
	r.botTimers = nil
}

func (r *Room) shutdown() {
	r.cancelBots()
	if r.conn != nil {
		_ = r.conn.Close()
	}
	if r.state.Room.Closed {
		// sockets still attached learn of the close even if RoomClosed was lost
		if err := r.deps.Transport.CloseTopic(channel.RoomTopic(r.id)); err != nil {
			r.log.Debug("close room topic failed", zap.Error(err))
		}
	}
	if r.lobby != nil {
		_ = r.lobby.Close()
	}
	r.cancel()
	close(r.done)
	r.log.Info("room stopped", zap.Bool("closed", r.state.Room.Closed))
	if r.opts.OnClose != nil {
		r.opts.OnClose(r.id)
	}
}

func (r *Room) call(ctx context.Context, build func(chan Result) Msg) (int, error) {
	reply := make(chan Result, 1)
	select {
	case r.inbox <- build(reply):
	case <-r.done:
		return -1, engine.ErrNotFound
	case <-ctx.Done():
		return -1, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.SlotIndex, res.Err
	case <-r.done:
		select {
		case res := <-reply:
			return res.SlotIndex, res.Err
		default:
			return -1, engine.ErrNotFound
		}
	case <-ctx.Done():
		return -1, ctx.Err()
	}
}

func (r *Room) JoinRoom(ctx context.Context, identity string) (int, error) {
	return r.call(ctx, func(reply chan Result) Msg { return Join{Identity: identity, Reply: reply} })
}

func (r *Room) LeaveRoom(ctx context.Context, identity string) error {
	_, err := r.call(ctx, func(reply chan Result) Msg { return Leave{Identity: identity, Reply: reply} })
	return err
}

func (r *Room) UpdateSlot(ctx context.Context, identity string, slot int, target engine.SlotType) error {
	_, err := r.call(ctx, func(reply chan Result) Msg {
		return UpdateSlot{Identity: identity, SlotIndex: slot, Target: target, Reply: reply}
	})
	return err
}

func (r *Room) KickPlayer(ctx context.Context, identity string, slot int) error {
	_, err := r.call(ctx, func(reply chan Result) Msg { return Kick{Identity: identity, SlotIndex: slot, Reply: reply} })
	return err
}

// StartGame loads the question set outside the loop, then hands it in.
// A missing set counts as zero questions.
func (r *Room) StartGame(ctx context.Context, identity string) error {
	if identity != r.hostID {
		return engine.ErrNotAuthorized
	}
	qs, err := r.deps.Bank.GetQuestions(ctx, r.setRef, r.count)
	if err != nil && !errors.Is(err, engine.ErrNotFound) {
		return fmt.Errorf("load questions: %w", err)
	}
	_, err = r.call(ctx, func(reply chan Result) Msg {
		return StartGame{Identity: identity, Questions: qs, Reply: reply}
	})
	return err
}

func (r *Room) SubmitAnswer(ctx context.Context, identity string, slot, question int, optionID string) error {
	_, err := r.call(ctx, func(reply chan Result) Msg {
		return SubmitAnswer{Identity: identity, SlotIndex: slot, QuestionIndex: question, OptionID: optionID, Reply: reply}
	})
	return err
}

func (r *Room) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	select {
	case r.inbox <- GetState{Reply: reply}:
	case <-r.done:
		return View{}, engine.ErrNotFound
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-r.done:
		return View{}, engine.ErrNotFound
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Announce puts the room on the lobby feed. It is a no-op for private rooms.
func (r *Room) Announce(ctx context.Context) error {
	select {
	case r.inbox <- Announce{}:
		return nil
	case <-r.done:
		return engine.ErrNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the loop to exit and waits for it.
func (r *Room) Stop(ctx context.Context) error {
	select {
	case r.inbox <- Shutdown{}:
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
