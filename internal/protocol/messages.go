// Package protocol defines the JSON envelopes exchanged between game clients
// and the session server.
//
// Every envelope carries a "type" discriminator and a millisecond
// "timestamp"; the remaining fields depend on the type.
package protocol

import (
	"encoding/json"
	"time"
)

// Type is the envelope discriminator.
type Type string

// Client → server envelope types.
const (
	TypeCreateRoom Type = "create_room"
	TypeJoinRoom   Type = "join_room"
	TypeLeaveRoom  Type = "leave_room"
	TypeFindMatch  Type = "find_match"
	TypeReconnect  Type = "reconnect"
	TypeGameEnd    Type = "game_end"
)

// Server → client envelope types.
const (
	TypeRoomCreated        Type = "room_created"
	TypePlayerJoined       Type = "player_joined"
	TypePlayerLeft         Type = "player_left"
	TypePlayerDisconnected Type = "player_disconnected"
	TypeReconnected        Type = "reconnected"
	TypeGameStart          Type = "game_start"
	TypeTurnStart          Type = "turn_start"
	TypeError              Type = "error"
)

// Envelope types used in both directions.
const (
	TypeGameAction Type = "game_action"
	TypeChat       Type = "chat"
	TypeEmote      Type = "emote"
	TypePing       Type = "ping"
	TypePong       Type = "pong"
)

// Gameplay action kinds. The server interprets only end_turn, mulligan and
// keep_hand; the rest are relayed untouched.
const (
	ActionPlayCard       = "play_card"
	ActionAttack         = "attack"
	ActionDeclareBlocker = "declare_blocker"
	ActionEndTurn        = "end_turn"
	ActionMulligan       = "mulligan"
	ActionKeepHand       = "keep_hand"
)

// IsPreGame reports whether kind belongs to the mulligan phase, which is
// exempt from turn ownership checks.
func IsPreGame(kind string) bool {
	return kind == ActionMulligan || kind == ActionKeepHand
}

// Action is a gameplay action. The original JSON is retained so that it can
// be relayed to the opponent byte for byte.
type Action struct {
	Type     string          `json:"type"`
	PlayerID string          `json:"playerId"`
	Data     json.RawMessage `json:"data,omitempty"`

	raw json.RawMessage
}

// UnmarshalJSON decodes the action and keeps a copy of the source bytes.
func (a *Action) UnmarshalJSON(b []byte) error {
	type plain Action
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*a = Action(p)
	a.raw = append(json.RawMessage(nil), b...)
	return nil
}

// MarshalJSON re-emits the source bytes when the action was decoded from a
// client, and the structured fields otherwise.
func (a Action) MarshalJSON() ([]byte, error) {
	if len(a.raw) > 0 {
		return a.raw, nil
	}
	type plain Action
	return json.Marshal(plain(a))
}

// AutoEndTurn builds the end_turn action synthesized when a turn timer
// expires on behalf of playerID.
func AutoEndTurn(playerID string) Action {
	return Action{
		Type:     ActionEndTurn,
		PlayerID: playerID,
		Data:     json.RawMessage(`{"auto":true}`),
	}
}

// Inbound is a decoded client envelope. Fields that do not apply to Type are
// left at their zero value.
type Inbound struct {
	Type       Type            `json:"type"`
	Timestamp  int64           `json:"timestamp"`
	PlayerName string          `json:"playerName"`
	DeckID     string          `json:"deckId"`
	RoomCode   string          `json:"roomCode"`
	PlayerID   string          `json:"playerId"`
	Action     *Action         `json:"action"`
	GameState  json.RawMessage `json:"gameState"`
	Message    string          `json:"message"`
	EmoteID    string          `json:"emoteId"`
	WinnerID   *string         `json:"winnerId"`
	TurnCount  int             `json:"turnCount"`
}

// Outbound is any envelope the server sends.
type Outbound interface {
	MessageType() Type
}

// Header is embedded in every outbound envelope.
type Header struct {
	Type      Type  `json:"type"`
	Timestamp int64 `json:"timestamp"`
}

// MessageType implements Outbound.
func (h Header) MessageType() Type { return h.Type }

// NewHeader stamps an envelope of type t at the given instant.
func NewHeader(t Type, at time.Time) Header {
	return Header{Type: t, Timestamp: at.UnixMilli()}
}

// PublicInfo is the part of a participant visible to its opponent.
type PublicInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	DeckID string `json:"deckId"`
}

type RoomCreated struct {
	Header
	RoomCode string `json:"roomCode"`
	PlayerID string `json:"playerId"`
}

type PlayerJoined struct {
	Header
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	IsReady    bool   `json:"isReady"`
}

type PlayerLeft struct {
	Header
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName,omitempty"`
}

// StartState is the game_start payload. Each participant receives its own
// copy with YourPlayerID and OpponentID filled from its point of view.
type StartState struct {
	RoomCode     string     `json:"roomCode"`
	YourPlayerID string     `json:"yourPlayerId"`
	OpponentID   string     `json:"opponentId"`
	Player1      PublicInfo `json:"player1"`
	Player2      PublicInfo `json:"player2"`
}

type GameStart struct {
	Header
	GameState StartState `json:"gameState"`
}

type TurnStart struct {
	Header
	PlayerID string `json:"playerId"`
	// TurnDuration is in milliseconds.
	TurnDuration int64 `json:"turnDuration"`
}

type GameAction struct {
	Header
	Action Action `json:"action"`
}

type PlayerDisconnected struct {
	Header
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	// ReconnectDeadline is a unix millisecond timestamp.
	ReconnectDeadline int64 `json:"reconnectDeadline"`
}

// Snapshot is everything a reconnecting client needs to resume a session.
// MirroredState is the last game state a client attached to an action.
type Snapshot struct {
	RoomCode            string          `json:"roomCode"`
	Status              string          `json:"status"`
	YourPlayerID        string          `json:"yourPlayerId"`
	OpponentID          string          `json:"opponentId,omitempty"`
	Players             []PublicInfo    `json:"players"`
	CurrentTurnPlayerID string          `json:"currentTurnPlayerId,omitempty"`
	TurnRemainingMs     int64           `json:"turnRemainingMs,omitempty"`
	GameStartedAt       int64           `json:"gameStartedAt,omitempty"`
	MirroredState       json.RawMessage `json:"mirroredState,omitempty"`
}

type Reconnected struct {
	Header
	GameState Snapshot `json:"gameState"`
	RoomCode  string   `json:"roomCode"`
}

type Chat struct {
	Header
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	Message    string `json:"message"`
}

type Emote struct {
	Header
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
	EmoteID    string `json:"emoteId"`
}

type Error struct {
	Header
	Code    Code   `json:"code"`
	Message string `json:"message"`
}
