// Package rules checks gameplay actions against a client-mirrored game state.
//
// The session hub only consults it when session.validate_actions is enabled;
// the state it checks against is whatever a client last attached to an
// action, so it catches tampered clients, not a dishonest pair.
package rules

import (
	"encoding/json"
	"fmt"

	"github.com/cory-johannsen/jobwars/internal/protocol"
)

// Phase is a step within a turn.
type Phase string

const (
	PhaseMulligan Phase = "mulligan"
	PhaseBudget   Phase = "budget"
	PhaseMain     Phase = "main"
	PhaseCombat   Phase = "combat"
	PhaseEnd      Phase = "end"
)

// Card is one card instance in a zone.
type Card struct {
	InstanceID       string `json:"instanceId"`
	CardID           string `json:"cardId"`
	Cost             int    `json:"cost"`
	Attack           int    `json:"attack"`
	Defense          int    `json:"defense"`
	Zone             string `json:"zone"`
	OwnerID          string `json:"ownerId"`
	Tapped           bool   `json:"tapped"`
	SummonedThisTurn bool   `json:"summonedThisTurn"`
}

// Player is one side of the board.
type Player struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Reputation      int    `json:"reputation"`
	BudgetMax       int    `json:"budgetMax"`
	BudgetRemaining int    `json:"budgetRemaining"`
	Hand            []Card `json:"hand"`
	Field           []Card `json:"field"`
	Deck            []Card `json:"deck"`
	Graveyard       []Card `json:"graveyard"`
}

// State is the mirrored game state.
type State struct {
	GameID         string `json:"gameId"`
	Player1        Player `json:"player1"`
	Player2        Player `json:"player2"`
	ActivePlayerID string `json:"activePlayerId"`
	TurnNumber     int    `json:"turnNumber"`
	Phase          Phase  `json:"phase"`
}

// Result is the outcome of a validation. Error is empty when Valid.
type Result struct {
	Valid bool
	Error string
}

var ok = Result{Valid: true}

func reject(reason string) Result { return Result{Error: reason} }

// actionTargets are the card references an action may carry in its data.
type actionTargets struct {
	InstanceID string `json:"instanceId"`
	AttackerID string `json:"attackerId"`
	BlockerID  string `json:"blockerId"`
}

// ParseState decodes a mirrored game state.
func ParseState(raw json.RawMessage) (State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("decoding game state: %w", err)
	}
	return s, nil
}

// Validate checks action by playerID against state.
//
// Postcondition: keep_hand and unrecognized kinds are always valid.
func Validate(state State, playerID string, action protocol.Action) Result {
	var targets actionTargets
	if len(action.Data) > 0 {
		if err := json.Unmarshal(action.Data, &targets); err != nil {
			return reject("Malformed action data")
		}
	}

	switch action.Type {
	case protocol.ActionPlayCard:
		return validatePlayCard(state, playerID, targets.InstanceID)
	case protocol.ActionAttack:
		return validateAttack(state, playerID, firstNonEmpty(targets.AttackerID, targets.InstanceID))
	case protocol.ActionDeclareBlocker:
		return validateBlocker(state, playerID, targets.BlockerID, targets.AttackerID)
	case protocol.ActionEndTurn:
		if state.ActivePlayerID != playerID {
			return reject("Not your turn")
		}
		return ok
	case protocol.ActionMulligan:
		if state.Phase != PhaseMulligan {
			return reject("Not in mulligan phase")
		}
		return ok
	default:
		return ok
	}
}

func validatePlayCard(state State, playerID, instanceID string) Result {
	if state.ActivePlayerID != playerID {
		return reject("Not your turn")
	}
	if state.Phase != PhaseMain {
		return reject("Can only play cards during main phase")
	}
	player := state.player(playerID)
	if player == nil {
		return reject("Player not found")
	}
	card := findCard(player.Hand, instanceID)
	if card == nil {
		return reject("Card not in hand")
	}
	if card.Cost > player.BudgetRemaining {
		return reject("Insufficient budget")
	}
	return ok
}

func validateAttack(state State, playerID, attackerID string) Result {
	if state.ActivePlayerID != playerID {
		return reject("Not your turn")
	}
	if state.Phase != PhaseCombat {
		return reject("Can only attack during combat phase")
	}
	player := state.player(playerID)
	if player == nil {
		return reject("Player not found")
	}
	attacker := findCard(player.Field, attackerID)
	switch {
	case attacker == nil:
		return reject("Card not on field")
	case attacker.Tapped:
		return reject("Card is tapped")
	case attacker.SummonedThisTurn:
		return reject("Cannot attack on same turn as summoned")
	}
	return ok
}

func validateBlocker(state State, playerID, blockerID, attackerID string) Result {
	if state.ActivePlayerID == playerID {
		return reject("Cannot block on your own turn")
	}
	if state.Phase != PhaseCombat {
		return reject("Can only block during combat phase")
	}
	defender := state.player(playerID)
	if defender == nil {
		return reject("Player not found")
	}
	blocker := findCard(defender.Field, blockerID)
	if blocker == nil {
		return reject("Blocker not on field")
	}
	if blocker.Tapped {
		return reject("Blocker is tapped")
	}
	active := state.player(state.ActivePlayerID)
	if active == nil || findCard(active.Field, attackerID) == nil {
		return reject("Attacker not found")
	}
	return ok
}

func (s *State) player(id string) *Player {
	switch id {
	case s.Player1.ID:
		return &s.Player1
	case s.Player2.ID:
		return &s.Player2
	}
	return nil
}

func findCard(cards []Card, instanceID string) *Card {
	for i := range cards {
		if cards[i].InstanceID == instanceID {
			return &cards[i]
		}
	}
	return nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
