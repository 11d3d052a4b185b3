package session

import (
	"time"

	"github.com/cory-johannsen/jobwars/internal/observability"
	"github.com/cory-johannsen/jobwars/internal/protocol"
)

// TurnTimers enforces the per-turn deadline. Each room has at most one
// pending turn timer.
type TurnTimers struct {
	hub *Hub
}

// Start hands the turn to participantID.
//
// Postcondition: any previous timer for room is cancelled, both participants
// have been sent turn_start, and a single expiry is scheduled.
func (t *TurnTimers) Start(room *Room, participantID string) {
	h := t.hub
	t.Stop(room)

	now := h.clock.Now()
	room.CurrentTurn = participantID
	room.TurnStartedAt = now
	room.broadcast(protocol.TurnStart{
		Header:       protocol.NewHeader(protocol.TypeTurnStart, now),
		PlayerID:     participantID,
		TurnDuration: h.cfg.TurnDuration.Milliseconds(),
	})

	code := room.Code
	room.turnTimer = h.sched.AfterFunc(h.cfg.TurnDuration, func() {
		t.expire(code, participantID)
	})
}

// Stop cancels the room's pending turn timer, if any.
func (t *TurnTimers) Stop(room *Room) {
	stopTimer(room.turnTimer)
	room.turnTimer = nil
}

// Remaining returns the time left in the current turn.
func (t *TurnTimers) Remaining(room *Room, now time.Time) time.Duration {
	if room.turnTimer == nil {
		return 0
	}
	left := t.hub.cfg.TurnDuration - now.Sub(room.TurnStartedAt)
	if left < 0 {
		return 0
	}
	return left
}

// expire ends participantID's turn on its behalf. A participant whose grace
// period has also run out is evicted instead, and no turn is synthesized.
func (t *TurnTimers) expire(code, participantID string) {
	h := t.hub
	room, ok := h.store.Get(code)
	if !ok || room.Status != StatusPlaying || room.CurrentTurn != participantID {
		return
	}
	room.turnTimer = nil
	p := room.Participant(participantID)
	if p == nil {
		return
	}
	now := h.clock.Now()
	if p.Disconnected() && !now.Before(p.DisconnectedAt.Add(h.cfg.ReconnectGrace)) {
		h.reconnects.evict(code, participantID)
		return
	}
	opponent := room.Opponent(participantID)
	if opponent == nil {
		return
	}

	h.logger.Info("turn expired", observability.Room(code), observability.Participant(participantID))
	room.broadcast(protocol.GameAction{
		Header: protocol.NewHeader(protocol.TypeGameAction, now),
		Action: protocol.AutoEndTurn(participantID),
	})
	t.Start(room, opponent.ID)
}
