package session

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/jobwars/internal/protocol"
)

func TestReconnect_WithinGrace(t *testing.T) {
	h := newHarness(t)
	room, host, guest := h.started()
	room.Mirrored = json.RawMessage(`{"turnNumber":3}`)

	h.disconnect(host)
	notice, ok := findMsg[protocol.PlayerDisconnected](guest.take())
	require.True(t, ok)
	assert.Equal(t, "p1", notice.PlayerID)
	assert.Equal(t, epoch.Add(120*time.Second).UnixMilli(), notice.ReconnectDeadline)
	assert.Equal(t, epoch.Add(120*time.Second), room.DisconnectDeadline)

	h.sched.Advance(60 * time.Second)
	fresh := h.connect()
	h.handle(fresh, protocol.Inbound{Type: protocol.TypeReconnect, RoomCode: strings.ToLower(room.Code), PlayerID: "p1"})

	back, ok := findMsg[protocol.Reconnected](fresh.take())
	require.True(t, ok)
	assert.Equal(t, room.Code, back.RoomCode)
	snap := back.GameState
	assert.Equal(t, "p1", snap.YourPlayerID)
	assert.Equal(t, "p2", snap.OpponentID)
	assert.Equal(t, "p1", snap.CurrentTurnPlayerID)
	assert.Equal(t, int64(30000), snap.TurnRemainingMs)
	assert.Equal(t, epoch.UnixMilli(), snap.GameStartedAt)
	assert.Equal(t, "playing", snap.Status)
	assert.Len(t, snap.Players, 2)
	assert.JSONEq(t, `{"turnNumber":3}`, string(snap.MirroredState))

	joined, ok := findMsg[protocol.PlayerJoined](guest.take())
	require.True(t, ok)
	assert.Equal(t, "p1", joined.PlayerID)
	assert.True(t, joined.IsReady)

	assert.True(t, room.DisconnectDeadline.IsZero())
	assert.False(t, room.Participant("p1").Disconnected())

	// Actions from the new connection are attributed to the same participant.
	h.act(fresh, protocol.ActionEndTurn)
	assert.Equal(t, []protocol.Type{protocol.TypeGameAction, protocol.TypeTurnStart}, types(guest.take()))

	// The grace deadline passes without evicting anyone.
	h.sched.Advance(70 * time.Second)
	assert.Len(t, room.Participants, 2)
}

func TestReconnect_AfterGraceFails(t *testing.T) {
	h := newHarness(t)
	room, host, guest := h.started()
	h.disconnect(host)
	guest.take()

	h.sched.Advance(121 * time.Second)
	assert.Nil(t, room.Participant("p1"))
	assert.Contains(t, types(guest.take()), protocol.TypePlayerLeft)

	fresh := h.connect()
	h.handle(fresh, protocol.Inbound{Type: protocol.TypeReconnect, RoomCode: room.Code, PlayerID: "p1"})
	assert.Equal(t, []protocol.Code{protocol.CodePlayerNotFound}, errorCodes(fresh.take()))

	h.disconnect(guest)
	h.sched.Advance(121 * time.Second)
	_, ok := h.hub.store.Get(room.Code)
	assert.False(t, ok)

	h.handle(fresh, protocol.Inbound{Type: protocol.TypeReconnect, RoomCode: room.Code, PlayerID: "p2"})
	assert.Equal(t, []protocol.Code{protocol.CodeRoomNotFound}, errorCodes(fresh.take()))
}

func TestReconnect_RejectsConnectedParticipant(t *testing.T) {
	h := newHarness(t)
	room, _, _ := h.started()

	intruder := h.connect()
	h.handle(intruder, protocol.Inbound{Type: protocol.TypeReconnect, RoomCode: room.Code, PlayerID: "p2"})
	assert.Equal(t, []protocol.Code{protocol.CodeNotDisconnected}, errorCodes(intruder.take()))
	_, bound := h.hub.registry.Lookup(intruder.ID())
	assert.False(t, bound)
}

func TestReconnect_BusyConnection(t *testing.T) {
	h := newHarness(t)
	room, host, _ := h.started()
	h.disconnect(host)

	other := h.connect()
	h.create(other, "Cal")
	h.handle(other, protocol.Inbound{Type: protocol.TypeReconnect, RoomCode: room.Code, PlayerID: "p1"})
	assert.Equal(t, []protocol.Code{protocol.CodeAlreadyInRoom}, errorCodes(other.take()))
}

func TestReconnect_BothDisconnected(t *testing.T) {
	h := newHarness(t)
	room, host, guest := h.started()

	h.disconnect(host)
	h.sched.Advance(30 * time.Second)
	h.disconnect(guest)
	assert.Equal(t, epoch.Add(150*time.Second), room.DisconnectDeadline)

	// The host's grace ends first; the room survives until the guest's does.
	h.sched.Advance(95 * time.Second)
	require.NotNil(t, room.Participant("p2"))
	_, ok := h.hub.store.Get(room.Code)
	assert.True(t, ok)

	h.sched.Advance(30 * time.Second)
	_, ok = h.hub.store.Get(room.Code)
	assert.False(t, ok)
	assert.Equal(t, 0, h.sched.Pending())
}

func TestReconnect_DisconnectedParticipantReceivesNothing(t *testing.T) {
	h := newHarness(t)
	room, host, guest := h.started()
	h.disconnect(host)
	p1 := room.Participant("p1")
	p1.Conn = newFakeConn("detached")

	h.handle(guest, protocol.Inbound{Type: protocol.TypeChat, Message: "you there?"})
	assert.Empty(t, p1.Conn.(*fakeConn).take())
	assert.NotEmpty(t, guest.take())
}
