package session

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/jobwars/internal/observability"
	"github.com/cory-johannsen/jobwars/internal/protocol"
	"github.com/cory-johannsen/jobwars/internal/rules"
	"github.com/cory-johannsen/jobwars/internal/stats"
)

// Relay forwards gameplay actions between the two participants of a room
// after rate and turn checks.
type Relay struct {
	hub *Hub
}

// HandleAction processes one game_action from c. gameState is the optional
// client snapshot attached to the envelope.
//
// Postcondition: a rejected action is answered with an error to c only and
// leaves the room untouched apart from the abuse counter.
func (r *Relay) HandleAction(c Conn, action protocol.Action, gameState json.RawMessage) {
	h := r.hub
	room, p, ok := h.member(c)
	if !ok {
		h.sendError(c, protocol.CodeRoomNotFound)
		return
	}
	now := h.clock.Now()

	if room.actionsSince(p.ID, now.Add(-h.cfg.RateWindow)) >= h.cfg.MaxActionsPerWindow {
		r.penalize(c, room, p)
		return
	}

	if !protocol.IsPreGame(action.Type) && room.CurrentTurn != "" && room.CurrentTurn != p.ID {
		h.sendError(c, protocol.CodeNotYourTurn)
		return
	}

	if h.cfg.ValidateActions && len(room.Mirrored) > 0 {
		if reason, valid := r.validate(room, p, action); !valid {
			c.Send(protocol.NewErrorf(protocol.CodeInvalidAction, reason, now))
			return
		}
	}

	room.logAction(ActionEntry{ParticipantID: p.ID, Kind: action.Type, At: now}, h.cfg.ActionLogSize)
	if len(gameState) > 0 && string(gameState) != "null" {
		room.Mirrored = append(json.RawMessage(nil), gameState...)
	}

	opponent := room.Opponent(p.ID)
	if opponent != nil {
		opponent.send(protocol.GameAction{
			Header: protocol.NewHeader(protocol.TypeGameAction, now),
			Action: action,
		})
	}

	if room.Status != StatusPlaying {
		return
	}
	switch action.Type {
	case protocol.ActionEndTurn:
		if opponent != nil {
			h.turns.Start(room, opponent.ID)
		}
	case protocol.ActionKeepHand:
		p.KeptHand = true
		// The first keep_hand from either side starts the game clock.
		if room.turnTimer == nil && room.GameStartedAt.IsZero() {
			room.GameStartedAt = now
			h.turns.Start(room, room.Participants[0].ID)
		}
	}
}

// penalize answers a rate violation, kicking the sender once the room's
// violation count exceeds the threshold.
func (r *Relay) penalize(c Conn, room *Room, p *Participant) {
	h := r.hub
	room.Suspicious++
	h.logger.Warn("action rate exceeded",
		observability.Room(room.Code),
		observability.Participant(p.ID),
		zap.Int("violations", room.Suspicious),
	)
	h.sendError(c, protocol.CodeRateLimit)
	if room.Suspicious > h.cfg.KickThreshold {
		h.logger.Warn("kicking participant", observability.Room(room.Code), observability.Participant(p.ID))
		h.sendError(c, protocol.CodeKicked)
		c.Close()
	}
}

func (r *Relay) validate(room *Room, p *Participant, action protocol.Action) (string, bool) {
	state, err := rules.ParseState(room.Mirrored)
	if err != nil {
		r.hub.logger.Debug("skipping validation of undecodable state", observability.Room(room.Code), zap.Error(err))
		return "", true
	}
	res := rules.Validate(state, p.ID, action)
	return res.Error, res.Valid
}

func (h *Hub) chat(c Conn, message string) {
	room, p, ok := h.member(c)
	if !ok {
		h.sendError(c, protocol.CodeRoomNotFound)
		return
	}
	room.broadcast(protocol.Chat{
		Header:     protocol.NewHeader(protocol.TypeChat, h.clock.Now()),
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Message:    message,
	})
}

func (h *Hub) emote(c Conn, emoteID string) {
	room, p, ok := h.member(c)
	if !ok {
		h.sendError(c, protocol.CodeRoomNotFound)
		return
	}
	room.broadcast(protocol.Emote{
		Header:     protocol.NewHeader(protocol.TypeEmote, h.clock.Now()),
		PlayerID:   p.ID,
		PlayerName: p.Name,
		EmoteID:    emoteID,
	})
}

// gameEnd finishes the room on the first report and records the match.
// Later reports for the same room are ignored.
func (h *Hub) gameEnd(c Conn, winnerID *string, turnCount int) {
	room, _, ok := h.member(c)
	if !ok || room.Status == StatusFinished {
		return
	}
	now := h.clock.Now()
	// Only a seated pair can end a game; a lone host keeps its room open.
	if room.Status == StatusWaiting {
		h.logger.Debug("ignoring game_end in a waiting room", observability.Room(room.Code))
		return
	}
	room.Status = StatusFinished
	room.FinishedAt = now
	h.turns.Stop(room)
	room.CurrentTurn = ""

	if len(room.Participants) < MaxParticipants {
		h.logger.Info("game ended without an opponent, not recording", observability.Room(room.Code))
		return
	}
	start := room.GameStartedAt
	if start.IsZero() {
		start = room.CreatedAt
	}
	if winnerID != nil && *winnerID == "" {
		winnerID = nil
	}
	first, second := room.Participants[0], room.Participants[1]
	h.record(room.Code, stats.Match{
		Player1ID:   first.ID,
		Player1Name: first.Name,
		Player2ID:   second.ID,
		Player2Name: second.Name,
		WinnerID:    winnerID,
		StartTime:   start.UnixMilli(),
		EndTime:     now.UnixMilli(),
		TurnCount:   turnCount,
		Deck1ID:     first.DeckID,
		Deck2ID:     second.DeckID,
	})
}

// record persists m off the dispatcher.
func (h *Hub) record(code string, m stats.Match) {
	if h.recorder == nil {
		h.logger.Info("match finished", observability.Room(code))
		return
	}
	h.recordings.Add(1)
	go func() {
		defer h.recordings.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.RecordTimeout)
		defer cancel()
		start := time.Now()
		id, err := h.recorder.RecordMatch(ctx, m)
		if err != nil {
			h.logger.Error("recording match", observability.Room(code), zap.Error(err))
			return
		}
		h.logger.Info("match recorded",
			observability.Room(code),
			zap.Int64("match_id", id),
			zap.Duration("elapsed", time.Since(start)),
		)
	}()
}
