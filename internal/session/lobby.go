package session

import (
	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/observability"
	"github.com/cory-johannsen/jobwars/internal/protocol"
)

// busy reports whether c is already seated or queued.
func (h *Hub) busy(c Conn) bool {
	_, bound := h.registry.Lookup(c.ID())
	return bound || h.queue.Contains(c.ID())
}

func (h *Hub) newParticipant(c Conn, name, deckID string) *Participant {
	return &Participant{
		ID:         h.newID(),
		Name:       name,
		DeckID:     deckID,
		Conn:       c,
		Ready:      true,
		LastPingAt: h.clock.Now(),
	}
}

func (h *Hub) bind(room *Room, p *Participant) {
	h.registry.Bind(p.Conn.ID(), Binding{ParticipantID: p.ID, RoomCode: room.Code})
}

func (h *Hub) createRoom(c Conn, in protocol.Inbound) {
	if h.busy(c) {
		h.sendError(c, protocol.CodeAlreadyInRoom)
		return
	}
	now := h.clock.Now()
	host := h.newParticipant(c, in.PlayerName, in.DeckID)
	room := h.store.Create(host, now)
	h.bind(room, host)

	h.logger.Info("room created", observability.Room(room.Code), observability.Participant(host.ID))
	c.Send(protocol.RoomCreated{
		Header:   protocol.NewHeader(protocol.TypeRoomCreated, now),
		RoomCode: room.Code,
		PlayerID: host.ID,
	})
}

func (h *Hub) joinRoom(c Conn, in protocol.Inbound) {
	if h.busy(c) {
		h.sendError(c, protocol.CodeAlreadyInRoom)
		return
	}
	p := h.newParticipant(c, in.PlayerName, in.DeckID)
	room, err := h.store.Join(NormalizeCode(in.RoomCode), p)
	if err != nil {
		h.logger.Debug("join rejected", observability.Conn(c.ID()), zap.String("room", in.RoomCode), zap.Error(err))
		h.sendError(c, CodeFor(err))
		return
	}
	h.bind(room, p)
	h.logger.Info("participant joined", observability.Room(room.Code), observability.Participant(p.ID))

	joined := protocol.PlayerJoined{
		Header:     protocol.NewHeader(protocol.TypePlayerJoined, h.clock.Now()),
		PlayerID:   p.ID,
		PlayerName: p.Name,
		IsReady:    p.Ready,
	}
	room.broadcast(joined)
	if room.Status == StatusPlaying {
		h.startGame(room)
	}
}

func (h *Hub) findMatch(c Conn, in protocol.Inbound) {
	if h.busy(c) {
		h.sendError(c, protocol.CodeAlreadyInRoom)
		return
	}
	p := h.newParticipant(c, in.PlayerName, in.DeckID)
	opponent, matched := h.queue.Enqueue(p)
	if !matched {
		h.logger.Info("participant queued", observability.Participant(p.ID), zap.Int("queued", h.queue.Len()))
		return
	}

	now := h.clock.Now()
	room := h.store.CreatePlaying(opponent, p, now)
	for _, member := range room.Participants {
		h.bind(room, member)
		member.send(protocol.RoomCreated{
			Header:   protocol.NewHeader(protocol.TypeRoomCreated, now),
			RoomCode: room.Code,
			PlayerID: member.ID,
		})
	}
	h.logger.Info("matchmade room",
		observability.Room(room.Code),
		zap.String("first", opponent.ID),
		zap.String("second", p.ID),
	)
	h.startGame(room)
}

// startGame sends each participant its own game_start. The first turn timer
// waits for the first keep_hand.
func (h *Hub) startGame(room *Room) {
	first, second := room.Participants[0], room.Participants[1]
	now := h.clock.Now()
	for _, pair := range [][2]*Participant{{first, second}, {second, first}} {
		self, other := pair[0], pair[1]
		self.send(protocol.GameStart{
			Header: protocol.NewHeader(protocol.TypeGameStart, now),
			GameState: protocol.StartState{
				RoomCode:     room.Code,
				YourPlayerID: self.ID,
				OpponentID:   other.ID,
				Player1:      first.Public(),
				Player2:      second.Public(),
			},
		})
	}
	h.logger.Info("game started", observability.Room(room.Code))
}

func (h *Hub) leaveRoom(c Conn) {
	if h.queue.Withdraw(c.ID()) {
		return
	}
	room, p, ok := h.member(c)
	if !ok {
		h.sendError(c, protocol.CodeRoomNotFound)
		return
	}
	h.logger.Info("participant left", observability.Room(room.Code), observability.Participant(p.ID))
	h.removeParticipant(room, p)
}

// handleDisconnect withdraws a queued connection, starts the grace period for
// a Playing room, and otherwise removes the participant at once.
func (h *Hub) handleDisconnect(c Conn) {
	b, bound := h.registry.Lookup(c.ID())
	h.registry.Remove(c.ID())
	h.queue.Withdraw(c.ID())
	h.logger.Debug("connection closed", observability.Conn(c.ID()))
	if !bound {
		return
	}
	room, ok := h.store.Get(b.RoomCode)
	if !ok {
		return
	}
	p := room.Participant(b.ParticipantID)
	// A participant that already reconnected elsewhere is not affected by
	// its old connection closing.
	if p == nil || p.Conn == nil || p.Conn.ID() != c.ID() {
		return
	}
	if room.Status == StatusPlaying {
		h.reconnects.Begin(room, p)
		return
	}
	h.removeParticipant(room, p)
}

// removeParticipant takes p out of room, tells whoever remains, and deletes
// the room once empty. A Playing room that loses a seat is Finished, so it
// never holds a single participant while Playing.
func (h *Hub) removeParticipant(room *Room, p *Participant) {
	stopTimer(p.reconnectTimer)
	p.reconnectTimer = nil
	room.remove(p.ID)
	if p.Conn != nil {
		if b, ok := h.registry.Lookup(p.Conn.ID()); ok && b.ParticipantID == p.ID {
			h.registry.Unbind(p.Conn.ID())
		}
	}
	room.refreshDeadline(h.cfg.ReconnectGrace)
	if room.Status == StatusPlaying {
		h.turns.Stop(room)
		room.CurrentTurn = ""
		room.Status = StatusFinished
		room.FinishedAt = h.clock.Now()
	}

	room.broadcast(protocol.PlayerLeft{
		Header:     protocol.NewHeader(protocol.TypePlayerLeft, h.clock.Now()),
		PlayerID:   p.ID,
		PlayerName: p.Name,
	})
	if len(room.Participants) == 0 {
		h.deleteRoom(room)
	}
}

func (h *Hub) deleteRoom(room *Room) {
	h.turns.Stop(room)
	for _, p := range room.Participants {
		stopTimer(p.reconnectTimer)
		p.reconnectTimer = nil
		if p.Conn != nil {
			h.registry.Unbind(p.Conn.ID())
		}
	}
	h.store.Delete(room.Code)
	h.logger.Info("room deleted", observability.Room(room.Code))
}

// sweep deletes rooms that outlived the expiry window without being Playing.
func (h *Hub) sweep() {
	now := h.clock.Now()
	for _, room := range h.store.Stale(now, h.cfg.RoomExpiry) {
		h.logger.Info("expiring stale room", observability.Room(room.Code), zap.String("status", string(room.Status)))
		h.deleteRoom(room)
	}
}
