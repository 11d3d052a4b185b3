package session

import (
	"encoding/json"
	"time"

	"github.com/cory-johannsen/jobwars/internal/protocol"
)

// MaxParticipants is the capacity of every room.
const MaxParticipants = 2

// Status is a room's lifecycle state.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusPlaying  Status = "playing"
	StatusFinished Status = "finished"
)

// Participant is a player's membership in a room. ID outlives any single
// connection and is the only key accepted for reconnection.
type Participant struct {
	ID     string
	Name   string
	DeckID string
	Conn   Conn
	// Ready is set once the participant is seated in a room.
	Ready bool
	// KeptHand records that the participant finished the pre-game mulligan.
	// It is informational; the first keep_hand from either side starts play.
	KeptHand   bool
	LastPingAt time.Time
	// DisconnectedAt is non-zero while the participant is inside its
	// reconnection grace period.
	DisconnectedAt time.Time

	reconnectTimer Timer
}

// Disconnected reports whether the participant is awaiting reconnection.
func (p *Participant) Disconnected() bool { return !p.DisconnectedAt.IsZero() }

// Public returns the details shown to the opponent.
func (p *Participant) Public() protocol.PublicInfo {
	return protocol.PublicInfo{ID: p.ID, Name: p.Name, DeckID: p.DeckID}
}

// send delivers msg unless the participant is mid-reconnect.
func (p *Participant) send(msg protocol.Outbound) {
	if p.Disconnected() || p.Conn == nil {
		return
	}
	p.Conn.Send(msg)
}

// ActionEntry is one logged gameplay action.
type ActionEntry struct {
	ParticipantID string
	Kind          string
	At            time.Time
}

// Room binds up to MaxParticipants participants for one match.
//
// Invariant: len(Participants) <= MaxParticipants.
// Invariant: Status Playing implies len(Participants) == MaxParticipants.
// Invariant: at most one turn timer is pending.
type Room struct {
	Code         string
	Participants []*Participant
	Status       Status
	CreatedAt    time.Time

	CurrentTurn   string
	TurnStartedAt time.Time
	turnTimer     Timer

	// DisconnectDeadline is the latest reconnection deadline among the
	// participants still inside their grace period.
	DisconnectDeadline time.Time

	Actions    []ActionEntry
	Suspicious int

	GameStartedAt time.Time
	// FinishedAt is set by the first game_end report or when a Playing room
	// loses a participant.
	FinishedAt time.Time
	// Mirrored is the last game state a client attached to an action.
	Mirrored json.RawMessage
}

// Participant returns the member with the given id, or nil.
func (r *Room) Participant(id string) *Participant {
	for _, p := range r.Participants {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Opponent returns the other member, or nil.
func (r *Room) Opponent(id string) *Participant {
	for _, p := range r.Participants {
		if p.ID != id {
			return p
		}
	}
	return nil
}

// Full reports whether the room is at capacity.
func (r *Room) Full() bool { return len(r.Participants) >= MaxParticipants }

// TurnRunning reports whether a turn timer is pending.
func (r *Room) TurnRunning() bool { return r.turnTimer != nil }

func (r *Room) remove(id string) *Participant {
	for i, p := range r.Participants {
		if p.ID == id {
			r.Participants = append(r.Participants[:i:i], r.Participants[i+1:]...)
			return p
		}
	}
	return nil
}

func (r *Room) broadcast(msg protocol.Outbound) {
	for _, p := range r.Participants {
		p.send(msg)
	}
}

// logAction appends an entry, dropping the oldest beyond limit.
func (r *Room) logAction(e ActionEntry, limit int) {
	r.Actions = append(r.Actions, e)
	if over := len(r.Actions) - limit; over > 0 {
		r.Actions = append(r.Actions[:0:0], r.Actions[over:]...)
	}
}

// actionsSince counts the participant's logged actions strictly after since.
func (r *Room) actionsSince(participantID string, since time.Time) int {
	n := 0
	for i := len(r.Actions) - 1; i >= 0; i-- {
		e := r.Actions[i]
		if !e.At.After(since) {
			break
		}
		if e.ParticipantID == participantID {
			n++
		}
	}
	return n
}

// refreshDeadline recomputes DisconnectDeadline from the participants still
// inside their grace period.
func (r *Room) refreshDeadline(grace time.Duration) {
	r.DisconnectDeadline = time.Time{}
	for _, p := range r.Participants {
		if !p.Disconnected() {
			continue
		}
		if d := p.DisconnectedAt.Add(grace); d.After(r.DisconnectDeadline) {
			r.DisconnectDeadline = d
		}
	}
}
