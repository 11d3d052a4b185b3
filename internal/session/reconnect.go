package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/observability"
	"github.com/cory-johannsen/jobwars/internal/protocol"
)

// Reconnects holds a participant's seat through a grace period after its
// connection drops mid-game.
type Reconnects struct {
	hub *Hub
}

// Begin starts p's grace period.
//
// Precondition: room is Playing and p is a member whose connection just closed.
// Postcondition: the opponent has been told the deadline and an eviction is scheduled.
func (r *Reconnects) Begin(room *Room, p *Participant) {
	h := r.hub
	now := h.clock.Now()
	h.registry.Unbind(p.Conn.ID())
	p.DisconnectedAt = now
	room.refreshDeadline(h.cfg.ReconnectGrace)
	deadline := now.Add(h.cfg.ReconnectGrace)

	stopTimer(p.reconnectTimer)
	code, id := room.Code, p.ID
	p.reconnectTimer = h.sched.AfterFunc(h.cfg.ReconnectGrace, func() {
		r.evict(code, id)
	})

	h.logger.Info("participant disconnected",
		observability.Room(room.Code),
		observability.Participant(p.ID),
		zap.Time("deadline", deadline),
	)
	if opponent := room.Opponent(p.ID); opponent != nil {
		opponent.send(protocol.PlayerDisconnected{
			Header:            protocol.NewHeader(protocol.TypePlayerDisconnected, now),
			PlayerID:          p.ID,
			PlayerName:        p.Name,
			ReconnectDeadline: deadline.UnixMilli(),
		})
	}
}

// Reconnect rebinds a disconnected participant to c.
//
// Postcondition: on success the eviction is cancelled, c is bound to the
// membership, c has been sent a snapshot and the opponent player_joined.
func (r *Reconnects) Reconnect(code, participantID string, c Conn) error {
	h := r.hub
	room, ok := h.store.Get(code)
	if !ok {
		return ErrRoomNotFound
	}
	p := room.Participant(participantID)
	if p == nil {
		return ErrParticipantNotFound
	}
	if !p.Disconnected() {
		return ErrNotDisconnected
	}

	stopTimer(p.reconnectTimer)
	p.reconnectTimer = nil
	now := h.clock.Now()
	p.Conn = c
	p.DisconnectedAt = time.Time{}
	p.LastPingAt = now
	room.refreshDeadline(h.cfg.ReconnectGrace)
	h.bind(room, p)

	h.logger.Info("participant reconnected", observability.Room(code), observability.Participant(p.ID))
	c.Send(protocol.Reconnected{
		Header:    protocol.NewHeader(protocol.TypeReconnected, now),
		GameState: r.snapshot(room, p),
		RoomCode:  code,
	})
	if opponent := room.Opponent(p.ID); opponent != nil {
		opponent.send(protocol.PlayerJoined{
			Header:     protocol.NewHeader(protocol.TypePlayerJoined, now),
			PlayerID:   p.ID,
			PlayerName: p.Name,
			IsReady:    true,
		})
	}
	return nil
}

// snapshot is everything viewer needs to resume the match.
func (r *Reconnects) snapshot(room *Room, viewer *Participant) protocol.Snapshot {
	h := r.hub
	snap := protocol.Snapshot{
		RoomCode:            room.Code,
		Status:              string(room.Status),
		YourPlayerID:        viewer.ID,
		CurrentTurnPlayerID: room.CurrentTurn,
		TurnRemainingMs:     h.turns.Remaining(room, h.clock.Now()).Milliseconds(),
		MirroredState:       room.Mirrored,
	}
	for _, p := range room.Participants {
		snap.Players = append(snap.Players, p.Public())
	}
	if opponent := room.Opponent(viewer.ID); opponent != nil {
		snap.OpponentID = opponent.ID
	}
	if !room.GameStartedAt.IsZero() {
		snap.GameStartedAt = room.GameStartedAt.UnixMilli()
	}
	return snap
}

// evict removes a participant whose grace period ran out.
func (r *Reconnects) evict(code, participantID string) {
	h := r.hub
	room, ok := h.store.Get(code)
	if !ok {
		return
	}
	p := room.Participant(participantID)
	if p == nil || !p.Disconnected() {
		return
	}
	h.logger.Info("evicting participant after grace period", observability.Room(code), observability.Participant(participantID))
	h.removeParticipant(room, p)
}

func (h *Hub) reconnect(c Conn, in protocol.Inbound) {
	if h.busy(c) {
		h.sendError(c, protocol.CodeAlreadyInRoom)
		return
	}
	if err := h.reconnects.Reconnect(NormalizeCode(in.RoomCode), in.PlayerID, c); err != nil {
		h.logger.Debug("reconnect rejected",
			observability.Conn(c.ID()),
			zap.String("room", in.RoomCode),
			zap.String("participant", in.PlayerID),
			zap.Error(err),
		)
		h.sendError(c, CodeFor(err))
	}
}
