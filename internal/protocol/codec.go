package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMissingType is returned when an envelope has no type discriminator.
	ErrMissingType = errors.New("protocol: missing message type")
	// ErrMissingAction is returned for a game_action envelope without an action.
	ErrMissingAction = errors.New("protocol: game_action without action")
)

// Decode parses a single client frame.
//
// Precondition: data must be a JSON object.
// Postcondition: on success the returned Inbound has a non-empty Type and,
// for game_action, a non-nil Action with a non-empty Type.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if in.Type == "" {
		return Inbound{}, ErrMissingType
	}
	if in.Type == TypeGameAction && (in.Action == nil || in.Action.Type == "") {
		return Inbound{}, ErrMissingAction
	}
	return in, nil
}

// Encode serializes an outbound envelope.
func Encode(msg Outbound) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", msg.MessageType(), err)
	}
	return b, nil
}
