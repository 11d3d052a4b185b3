package session

import (
	"errors"

	"github.com/cory-johannsen/jobwars/internal/protocol"
)

// State errors returned by the room store, queue and reconnection manager.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrGameInProgress      = errors.New("game already in progress")
	ErrParticipantNotFound = errors.New("participant not found in room")
	ErrNotDisconnected     = errors.New("participant is not disconnected")
	ErrAlreadyInRoom       = errors.New("connection already in a room or queue")
)

// CodeFor maps a state error to the error code reported to clients.
//
// Postcondition: unknown errors map to PARSE_ERROR.
func CodeFor(err error) protocol.Code {
	switch {
	case errors.Is(err, ErrRoomNotFound):
		return protocol.CodeRoomNotFound
	case errors.Is(err, ErrRoomFull):
		return protocol.CodeRoomFull
	case errors.Is(err, ErrGameInProgress):
		return protocol.CodeGameInProgress
	case errors.Is(err, ErrParticipantNotFound):
		return protocol.CodePlayerNotFound
	case errors.Is(err, ErrNotDisconnected):
		return protocol.CodeNotDisconnected
	case errors.Is(err, ErrAlreadyInRoom):
		return protocol.CodeAlreadyInRoom
	default:
		return protocol.CodeParseError
	}
}
