package session

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/jobwars/internal/config"
	"github.com/cory-johannsen/jobwars/internal/protocol"
	"github.com/cory-johannsen/jobwars/internal/stats"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type manualTimer struct {
	due     time.Time
	seq     int
	fn      func()
	stopped bool
}

func (t *manualTimer) Stop() { t.stopped = true }

// manualScheduler fires callbacks synchronously as the fake clock advances,
// in due order and then scheduling order.
type manualScheduler struct {
	clock  *fakeClock
	timers []*manualTimer
	seq    int
}

func (s *manualScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	t := &manualTimer{due: s.clock.now.Add(d), seq: s.seq, fn: fn}
	s.seq++
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) Advance(d time.Duration) {
	target := s.clock.now.Add(d)
	for {
		next := s.nextDue(target)
		if next == nil {
			break
		}
		s.clock.now = next.due
		next.stopped = true
		next.fn()
	}
	s.clock.now = target
}

func (s *manualScheduler) nextDue(limit time.Time) *manualTimer {
	var live []*manualTimer
	for _, t := range s.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.timers = live
	sort.SliceStable(live, func(i, j int) bool {
		if !live[i].due.Equal(live[j].due) {
			return live[i].due.Before(live[j].due)
		}
		return live[i].seq < live[j].seq
	})
	if len(live) == 0 || live[0].due.After(limit) {
		return nil
	}
	return live[0]
}

func (s *manualScheduler) Pending() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

type fakeConn struct {
	id     string
	mu     sync.Mutex
	msgs   []protocol.Outbound
	closed bool
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg protocol.Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.msgs = append(c.msgs, msg)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// take returns and clears everything received so far.
func (c *fakeConn) take() []protocol.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.msgs
	c.msgs = nil
	return out
}

func types(msgs []protocol.Outbound) []protocol.Type {
	out := make([]protocol.Type, len(msgs))
	for i, m := range msgs {
		out[i] = m.MessageType()
	}
	return out
}

func errorCodes(msgs []protocol.Outbound) []protocol.Code {
	var out []protocol.Code
	for _, m := range msgs {
		if e, ok := m.(protocol.Error); ok {
			out = append(out, e.Code)
		}
	}
	return out
}

func findMsg[T protocol.Outbound](msgs []protocol.Outbound) (T, bool) {
	for _, m := range msgs {
		if v, ok := m.(T); ok {
			return v, true
		}
	}
	var zero T
	return zero, false
}

type seededSource struct{ r *rand.Rand }

func (s seededSource) Intn(n int) int { return s.r.IntN(n) }

// scriptedSource replays fixed draws, then falls back to a seeded source.
type scriptedSource struct {
	draws []int
	rest  seededSource
}

func (s *scriptedSource) Intn(n int) int {
	if len(s.draws) == 0 {
		return s.rest.Intn(n)
	}
	v := s.draws[0] % n
	s.draws = s.draws[1:]
	return v
}

type fakeRecorder struct {
	mu      sync.Mutex
	matches []stats.Match
}

func (r *fakeRecorder) RecordMatch(_ context.Context, m stats.Match) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.matches = append(r.matches, m)
	return int64(len(r.matches)), nil
}

func (r *fakeRecorder) recorded() []stats.Match {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]stats.Match(nil), r.matches...)
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TurnDuration:        90 * time.Second,
		ReconnectGrace:      120 * time.Second,
		RoomExpiry:          time.Hour,
		CleanupInterval:     5 * time.Minute,
		PingInterval:        30 * time.Second,
		RateWindow:          time.Second,
		MaxActionsPerWindow: 10,
		KickThreshold:       5,
		ActionLogSize:       100,
		RecordTimeout:       time.Second,
	}
}

type harness struct {
	t        testing.TB
	hub      *Hub
	clock    *fakeClock
	sched    *manualScheduler
	recorder *fakeRecorder
	ids      int
	conns    int
}

func newHarness(t testing.TB, mutate ...func(*config.SessionConfig)) *harness {
	t.Helper()
	cfg := testSessionConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	clock := &fakeClock{now: epoch}
	h := &harness{
		t:        t,
		clock:    clock,
		sched:    &manualScheduler{clock: clock},
		recorder: &fakeRecorder{},
	}
	h.hub = NewHub(cfg, zaptest.NewLogger(t), h.recorder,
		WithClock(clock),
		WithScheduler(h.sched),
		WithRandomSource(seededSource{r: rand.New(rand.NewPCG(1, 2))}),
		WithIDGenerator(func() string {
			h.ids++
			return fmt.Sprintf("p%d", h.ids)
		}),
	)
	return h
}

// connect opens a connection the way the gateway does.
func (h *harness) connect() *fakeConn {
	h.conns++
	c := newFakeConn(fmt.Sprintf("c%d", h.conns))
	h.hub.registry.Add(c)
	return c
}

// disconnect closes c and reports it the way the gateway does.
func (h *harness) disconnect(c *fakeConn) {
	c.Close()
	h.hub.handleDisconnect(c)
}

func (h *harness) handle(c Conn, in protocol.Inbound) {
	h.hub.handle(c, in)
}

func (h *harness) create(c *fakeConn, name string) (code, id string) {
	h.t.Helper()
	h.handle(c, protocol.Inbound{Type: protocol.TypeCreateRoom, PlayerName: name, DeckID: name + "-deck"})
	created, ok := findMsg[protocol.RoomCreated](c.take())
	if !ok {
		h.t.Fatalf("no room_created for %s", name)
	}
	return created.RoomCode, created.PlayerID
}

func (h *harness) join(c *fakeConn, code, name string) {
	h.handle(c, protocol.Inbound{Type: protocol.TypeJoinRoom, RoomCode: code, PlayerName: name, DeckID: name + "-deck"})
}

func (h *harness) act(c *fakeConn, kind string) {
	h.handle(c, protocol.Inbound{
		Type:   protocol.TypeGameAction,
		Action: &protocol.Action{Type: kind},
	})
}

// playing sets up a Playing room with both participants connected and the
// opening messages drained.
func (h *harness) playing() (room *Room, host, guest *fakeConn) {
	h.t.Helper()
	host, guest = h.connect(), h.connect()
	code, _ := h.create(host, "Ann")
	h.join(guest, code, "Ben")
	host.take()
	guest.take()
	room, ok := h.hub.store.Get(code)
	if !ok || room.Status != StatusPlaying {
		h.t.Fatalf("room %s not playing", code)
	}
	return room, host, guest
}

// started is playing plus both keep_hand actions, so the host holds the turn.
func (h *harness) started() (room *Room, host, guest *fakeConn) {
	room, host, guest = h.playing()
	h.act(host, protocol.ActionKeepHand)
	h.act(guest, protocol.ActionKeepHand)
	host.take()
	guest.take()
	return room, host, guest
}

// snapshot returns a copy of everything received so far without clearing it.
func (c *fakeConn) snapshot() []protocol.Outbound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Outbound(nil), c.msgs...)
}
