// Package session is the room orchestration core of the game server: it
// pairs players into two-seat rooms, relays their actions, enforces turn
// deadlines and action rates, and holds seats open across brief disconnects.
//
// All room, queue and registry state is owned by a single dispatcher
// goroutine (Hub.Run). Transport goroutines and timers never touch that state
// directly; they post closures onto the dispatcher.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/config"
	"github.com/cory-johannsen/jobwars/internal/observability"
	"github.com/cory-johannsen/jobwars/internal/protocol"
	"github.com/cory-johannsen/jobwars/internal/stats"
)

// ErrHubStopped is returned by Call once the hub has shut down.
var ErrHubStopped = errors.New("session hub stopped")

const eventBuffer = 1024

// MatchRecorder persists finished matches.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, m stats.Match) (int64, error)
}

// Option customizes a Hub.
type Option func(*Hub)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(h *Hub) { h.clock = c } }

// WithScheduler replaces the timer implementation.
func WithScheduler(s Scheduler) Option { return func(h *Hub) { h.sched = s } }

// WithRandomSource replaces the room code source.
func WithRandomSource(r RandomSource) Option { return func(h *Hub) { h.codes = r } }

// WithIDGenerator replaces the participant id generator.
func WithIDGenerator(fn func() string) Option { return func(h *Hub) { h.newID = fn } }

// Hub is the dispatcher and the owner of all session state.
type Hub struct {
	cfg      config.SessionConfig
	logger   *zap.Logger
	recorder MatchRecorder
	clock    Clock
	sched    Scheduler
	codes    RandomSource
	newID    func() string

	store      *Store
	registry   *Registry
	queue      *Queue
	turns      *TurnTimers
	reconnects *Reconnects
	relay      *Relay

	events     chan func()
	quit       chan struct{}
	done       chan struct{}
	running    atomic.Bool
	stopOnce   sync.Once
	recordings sync.WaitGroup
}

// NewHub creates a Hub. recorder may be nil, in which case finished matches
// are only logged.
//
// Precondition: cfg must have passed config validation; logger must be non-nil.
// Postcondition: the returned Hub accepts events but processes none until Run.
func NewHub(cfg config.SessionConfig, logger *zap.Logger, recorder MatchRecorder, opts ...Option) *Hub {
	h := &Hub{
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
		clock:    systemClock{},
		codes:    NewCryptoSource(),
		newID:    uuid.NewString,
		registry: NewRegistry(),
		queue:    NewQueue(),
		events:   make(chan func(), eventBuffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	h.sched = dispatchScheduler{post: h.post}
	for _, opt := range opts {
		opt(h)
	}
	h.store = NewStore(h.codes)
	h.turns = &TurnTimers{hub: h}
	h.reconnects = &Reconnects{hub: h}
	h.relay = &Relay{hub: h}
	return h
}

// Run processes events until ctx is cancelled or Stop is called.
//
// Precondition: Run is called at most once.
// Postcondition: every timer is cancelled and every connection closed.
func (h *Hub) Run(ctx context.Context) error {
	h.running.Store(true)
	defer close(h.done)

	h.every(h.cfg.PingInterval, h.pingAll)
	h.every(h.cfg.CleanupInterval, h.sweep)
	h.logger.Info("session hub running",
		zap.Duration("turn_duration", h.cfg.TurnDuration),
		zap.Duration("reconnect_grace", h.cfg.ReconnectGrace),
		zap.Bool("validate_actions", h.cfg.ValidateActions),
	)

	for {
		select {
		case fn := <-h.events:
			fn()
		case <-ctx.Done():
			h.shutdown()
			return nil
		case <-h.quit:
			h.shutdown()
			return nil
		}
	}
}

// Stop ends Run and waits for in-flight match recordings.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
	if h.running.Load() {
		<-h.done
	}
	h.recordings.Wait()
}

func (h *Hub) shutdown() {
	h.stopOnce.Do(func() { close(h.quit) })
	for _, room := range h.store.All() {
		h.turns.Stop(room)
		for _, p := range room.Participants {
			stopTimer(p.reconnectTimer)
		}
	}
	for _, c := range h.registry.Conns() {
		c.Close()
	}
	h.logger.Info("session hub stopped",
		zap.Int("rooms", h.store.Len()),
		zap.Int("queued", h.queue.Len()),
	)
}

// post hands fn to the dispatcher. Events posted after shutdown are dropped.
func (h *Hub) post(fn func()) {
	select {
	case h.events <- fn:
	case <-h.quit:
	}
}

// Call runs fn on the dispatcher and waits for it to finish.
func (h *Hub) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case h.events <- func() { fn(); close(finished) }:
	case <-h.quit:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-h.quit:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// every runs fn on the dispatcher each interval until shutdown.
func (h *Hub) every(interval time.Duration, fn func()) {
	var tick func()
	tick = func() {
		fn()
		h.sched.AfterFunc(interval, tick)
	}
	h.sched.AfterFunc(interval, tick)
}

// Connect registers a newly opened connection.
func (h *Hub) Connect(c Conn) {
	h.post(func() {
		h.registry.Add(c)
		h.logger.Debug("connection opened", observability.Conn(c.ID()))
	})
}

// Deliver decodes one client frame and queues it for handling. Malformed
// frames are answered with PARSE_ERROR straight away.
func (h *Hub) Deliver(c Conn, frame []byte) {
	in, err := protocol.Decode(frame)
	if err != nil {
		h.logger.Debug("rejecting malformed frame", observability.Conn(c.ID()), zap.Error(err))
		c.Send(protocol.NewError(protocol.CodeParseError, h.clock.Now()))
		return
	}
	h.post(func() { h.handle(c, in) })
}

// Disconnect reports that a connection has closed.
func (h *Hub) Disconnect(c Conn) {
	h.post(func() { h.handleDisconnect(c) })
}

func (h *Hub) handle(c Conn, in protocol.Inbound) {
	switch in.Type {
	case protocol.TypeCreateRoom:
		h.createRoom(c, in)
	case protocol.TypeJoinRoom:
		h.joinRoom(c, in)
	case protocol.TypeFindMatch:
		h.findMatch(c, in)
	case protocol.TypeReconnect:
		h.reconnect(c, in)
	case protocol.TypeLeaveRoom:
		h.leaveRoom(c)
	case protocol.TypeGameAction:
		h.relay.HandleAction(c, *in.Action, in.GameState)
	case protocol.TypeChat:
		h.chat(c, in.Message)
	case protocol.TypeEmote:
		h.emote(c, in.EmoteID)
	case protocol.TypeGameEnd:
		h.gameEnd(c, in.WinnerID, in.TurnCount)
	case protocol.TypePing:
		h.touch(c)
		c.Send(protocol.Header{Type: protocol.TypePong, Timestamp: h.clock.Now().UnixMilli()})
	case protocol.TypePong:
		h.touch(c)
	default:
		h.logger.Warn("unknown message type", observability.Conn(c.ID()), zap.String("type", string(in.Type)))
	}
}

// member resolves the room and participant bound to c.
func (h *Hub) member(c Conn) (*Room, *Participant, bool) {
	b, ok := h.registry.Lookup(c.ID())
	if !ok {
		return nil, nil, false
	}
	room, ok := h.store.Get(b.RoomCode)
	if !ok {
		return nil, nil, false
	}
	p := room.Participant(b.ParticipantID)
	if p == nil {
		return nil, nil, false
	}
	return room, p, true
}

func (h *Hub) touch(c Conn) {
	if _, p, ok := h.member(c); ok {
		p.LastPingAt = h.clock.Now()
	}
}

func (h *Hub) sendError(c Conn, code protocol.Code) {
	c.Send(protocol.NewError(code, h.clock.Now()))
}

func (h *Hub) pingAll() {
	ping := protocol.NewHeader(protocol.TypePing, h.clock.Now())
	for _, c := range h.registry.Conns() {
		c.Send(ping)
	}
}

// Health is a point-in-time summary of the hub.
type Health struct {
	Rooms       int
	QueueLength int
	Connections int
}

// Health reads the hub's counters on the dispatcher.
func (h *Hub) Health(ctx context.Context) (Health, error) {
	var out Health
	err := h.Call(ctx, func() {
		out = Health{Rooms: h.store.Len(), QueueLength: h.queue.Len(), Connections: h.registry.Len()}
	})
	return out, err
}

// RoomSummary describes a room in the lobby browser.
type RoomSummary struct {
	Code         string `json:"code"`
	HostName     string `json:"hostName"`
	HostDeckID   string `json:"hostDeckId"`
	CreatedAt    int64  `json:"createdAt"`
	PlayersCount int    `json:"playersCount"`
}

// WaitingRooms lists rooms awaiting a second player, newest first.
func (h *Hub) WaitingRooms(ctx context.Context) ([]RoomSummary, error) {
	out := []RoomSummary{}
	err := h.Call(ctx, func() {
		for _, room := range h.store.Waiting() {
			host := room.Participants[0]
			out = append(out, RoomSummary{
				Code:         room.Code,
				HostName:     host.Name,
				HostDeckID:   host.DeckID,
				CreatedAt:    room.CreatedAt.UnixMilli(),
				PlayersCount: len(room.Participants),
			})
		}
	})
	return out, err
}
