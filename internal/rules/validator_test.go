package rules_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/jobwars/internal/protocol"
	"github.com/cory-johannsen/jobwars/internal/rules"
)

func board(phase rules.Phase) rules.State {
	return rules.State{
		GameID:         "g1",
		ActivePlayerID: "p1",
		TurnNumber:     3,
		Phase:          phase,
		Player1: rules.Player{
			ID:              "p1",
			BudgetRemaining: 3,
			Hand: []rules.Card{
				{InstanceID: "cheap", Cost: 2},
				{InstanceID: "pricey", Cost: 5},
			},
			Field: []rules.Card{
				{InstanceID: "ready"},
				{InstanceID: "tired", Tapped: true},
				{InstanceID: "fresh", SummonedThisTurn: true},
			},
		},
		Player2: rules.Player{
			ID: "p2",
			Field: []rules.Card{
				{InstanceID: "wall"},
				{InstanceID: "sleeping", Tapped: true},
			},
		},
	}
}

func action(kind string, data string) protocol.Action {
	a := protocol.Action{Type: kind, PlayerID: "ignored"}
	if data != "" {
		a.Data = json.RawMessage(data)
	}
	return a
}

func TestValidate_PlayCard(t *testing.T) {
	cases := []struct {
		name   string
		state  rules.State
		player string
		data   string
		want   string
	}{
		{"affordable", board(rules.PhaseMain), "p1", `{"instanceId":"cheap"}`, ""},
		{"wrong turn", board(rules.PhaseMain), "p2", `{"instanceId":"cheap"}`, "Not your turn"},
		{"wrong phase", board(rules.PhaseCombat), "p1", `{"instanceId":"cheap"}`, "Can only play cards during main phase"},
		{"not in hand", board(rules.PhaseMain), "p1", `{"instanceId":"ready"}`, "Card not in hand"},
		{"too expensive", board(rules.PhaseMain), "p1", `{"instanceId":"pricey"}`, "Insufficient budget"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := rules.Validate(tc.state, tc.player, action(protocol.ActionPlayCard, tc.data))
			assert.Equal(t, tc.want == "", res.Valid)
			assert.Equal(t, tc.want, res.Error)
		})
	}
}

func TestValidate_Attack(t *testing.T) {
	cases := []struct {
		name string
		data string
		want string
	}{
		{"ready attacker", `{"attackerId":"ready"}`, ""},
		{"instance id accepted", `{"instanceId":"ready"}`, ""},
		{"tapped", `{"attackerId":"tired"}`, "Card is tapped"},
		{"summoning sick", `{"attackerId":"fresh"}`, "Cannot attack on same turn as summoned"},
		{"not on field", `{"attackerId":"cheap"}`, "Card not on field"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := rules.Validate(board(rules.PhaseCombat), "p1", action(protocol.ActionAttack, tc.data))
			assert.Equal(t, tc.want, res.Error)
		})
	}

	res := rules.Validate(board(rules.PhaseMain), "p1", action(protocol.ActionAttack, `{"attackerId":"ready"}`))
	assert.Equal(t, "Can only attack during combat phase", res.Error)
}

func TestValidate_DeclareBlocker(t *testing.T) {
	cases := []struct {
		name   string
		player string
		phase  rules.Phase
		data   string
		want   string
	}{
		{"valid block", "p2", rules.PhaseCombat, `{"blockerId":"wall","attackerId":"ready"}`, ""},
		{"own turn", "p1", rules.PhaseCombat, `{"blockerId":"ready","attackerId":"ready"}`, "Cannot block on your own turn"},
		{"wrong phase", "p2", rules.PhaseMain, `{"blockerId":"wall","attackerId":"ready"}`, "Can only block during combat phase"},
		{"missing blocker", "p2", rules.PhaseCombat, `{"blockerId":"nope","attackerId":"ready"}`, "Blocker not on field"},
		{"tapped blocker", "p2", rules.PhaseCombat, `{"blockerId":"sleeping","attackerId":"ready"}`, "Blocker is tapped"},
		{"missing attacker", "p2", rules.PhaseCombat, `{"blockerId":"wall","attackerId":"ghost"}`, "Attacker not found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := rules.Validate(board(tc.phase), tc.player, action(protocol.ActionDeclareBlocker, tc.data))
			assert.Equal(t, tc.want, res.Error)
		})
	}
}

func TestValidate_EndTurnAndMulligan(t *testing.T) {
	assert.True(t, rules.Validate(board(rules.PhaseEnd), "p1", action(protocol.ActionEndTurn, "")).Valid)
	assert.Equal(t, "Not your turn", rules.Validate(board(rules.PhaseEnd), "p2", action(protocol.ActionEndTurn, "")).Error)

	assert.True(t, rules.Validate(board(rules.PhaseMulligan), "p2", action(protocol.ActionMulligan, "")).Valid)
	assert.Equal(t, "Not in mulligan phase", rules.Validate(board(rules.PhaseMain), "p2", action(protocol.ActionMulligan, "")).Error)
}

func TestValidate_MalformedData(t *testing.T) {
	res := rules.Validate(board(rules.PhaseMain), "p1", action(protocol.ActionPlayCard, `[1,2]`))
	assert.False(t, res.Valid)
}

func TestParseState(t *testing.T) {
	raw := json.RawMessage(`{"gameId":"g","activePlayerId":"a","phase":"main","player1":{"id":"a","budgetRemaining":2,"hand":[{"instanceId":"c","cost":1}]},"player2":{"id":"b"}}`)
	state, err := rules.ParseState(raw)
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseMain, state.Phase)
	assert.True(t, rules.Validate(state, "a", action(protocol.ActionPlayCard, `{"instanceId":"c"}`)).Valid)

	_, err = rules.ParseState(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}

// Property: keep_hand and unknown kinds are accepted in every phase for every player.
func TestPropertyUninterpretedKindsAlwaysValid(t *testing.T) {
	phases := []rules.Phase{rules.PhaseMulligan, rules.PhaseBudget, rules.PhaseMain, rules.PhaseCombat, rules.PhaseEnd}
	rapid.Check(t, func(t *rapid.T) {
		phase := rapid.SampledFrom(phases).Draw(t, "phase")
		player := rapid.SampledFrom([]string{"p1", "p2", "stranger"}).Draw(t, "player")
		kind := rapid.OneOf(
			rapid.Just(protocol.ActionKeepHand),
			rapid.StringMatching(`x_[a-z]{1,8}`),
		).Draw(t, "kind")
		if res := rules.Validate(board(phase), player, action(kind, "")); !res.Valid {
			t.Fatalf("%s by %s in %s rejected: %s", kind, player, phase, res.Error)
		}
	})
}
