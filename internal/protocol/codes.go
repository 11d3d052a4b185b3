package protocol

import "time"

// Code identifies an error condition reported to a client.
type Code string

const (
	CodeRoomNotFound    Code = "ROOM_NOT_FOUND"
	CodeRoomFull        Code = "ROOM_FULL"
	CodeGameInProgress  Code = "GAME_IN_PROGRESS"
	CodeRateLimit       Code = "RATE_LIMIT"
	CodeKicked          Code = "KICKED"
	CodeNotYourTurn     Code = "NOT_YOUR_TURN"
	CodePlayerNotFound  Code = "PLAYER_NOT_FOUND"
	CodeNotDisconnected Code = "NOT_DISCONNECTED"
	CodeParseError      Code = "PARSE_ERROR"
	CodeAlreadyInRoom   Code = "ALREADY_IN_ROOM"
	CodeInvalidAction   Code = "INVALID_ACTION"
)

var codeMessages = map[Code]string{
	CodeRoomNotFound:    "Room not found",
	CodeRoomFull:        "Room is full",
	CodeGameInProgress:  "Game already in progress",
	CodeRateLimit:       "Too many actions",
	CodeKicked:          "Kicked for suspicious activity",
	CodeNotYourTurn:     "Not your turn",
	CodePlayerNotFound:  "Player not found in room",
	CodeNotDisconnected: "Player is not disconnected",
	CodeParseError:      "Invalid message format",
	CodeAlreadyInRoom:   "Already in a room or queue",
	CodeInvalidAction:   "Invalid action",
}

// Message returns the default human readable text for c.
func (c Code) Message() string {
	if m, ok := codeMessages[c]; ok {
		return m
	}
	return string(c)
}

// NewError builds an error envelope with the default text for code.
func NewError(code Code, at time.Time) Error {
	return Error{Header: NewHeader(TypeError, at), Code: code, Message: code.Message()}
}

// NewErrorf builds an error envelope with a custom message.
func NewErrorf(code Code, message string, at time.Time) Error {
	return Error{Header: NewHeader(TypeError, at), Code: code, Message: message}
}
