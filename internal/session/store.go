package session

import (
	"cmp"
	"slices"
	"time"
)

// Store owns every live room, keyed by code.
type Store struct {
	rooms map[string]*Room
	codes RandomSource
}

// NewStore creates an empty Store drawing room codes from codes.
//
// Precondition: codes must be non-nil.
func NewStore(codes RandomSource) *Store {
	return &Store{rooms: make(map[string]*Room), codes: codes}
}

func (s *Store) freshCode() string {
	for {
		code := NewCode(s.codes)
		if _, taken := s.rooms[code]; !taken {
			return code
		}
	}
}

// Create opens a Waiting room hosted by host.
//
// Postcondition: the room is stored under a code no other live room uses.
func (s *Store) Create(host *Participant, now time.Time) *Room {
	room := &Room{
		Code:         s.freshCode(),
		Participants: []*Participant{host},
		Status:       StatusWaiting,
		CreatedAt:    now,
	}
	s.rooms[room.Code] = room
	return room
}

// CreatePlaying opens a room that starts Playing with both participants
// seated, for matchmade pairs.
func (s *Store) CreatePlaying(first, second *Participant, now time.Time) *Room {
	room := &Room{
		Code:         s.freshCode(),
		Participants: []*Participant{first, second},
		Status:       StatusPlaying,
		CreatedAt:    now,
	}
	s.rooms[room.Code] = room
	return room
}

// Get returns the room with the given code.
func (s *Store) Get(code string) (*Room, bool) {
	room, ok := s.rooms[code]
	return room, ok
}

// Join seats p in the room with the given code.
//
// Postcondition: on success the room holds p; if that filled the room its
// status is Playing. Errors are checked in the order ErrRoomNotFound,
// ErrRoomFull, ErrGameInProgress, and leave the room untouched.
func (s *Store) Join(code string, p *Participant) (*Room, error) {
	room, ok := s.rooms[code]
	if !ok {
		return nil, ErrRoomNotFound
	}
	if room.Full() {
		return nil, ErrRoomFull
	}
	if room.Status != StatusWaiting {
		return nil, ErrGameInProgress
	}
	room.Participants = append(room.Participants, p)
	if room.Full() {
		room.Status = StatusPlaying
	}
	return room, nil
}

// Delete forgets the room. Timers must already be stopped.
func (s *Store) Delete(code string) {
	delete(s.rooms, code)
}

// Len returns the number of live rooms.
func (s *Store) Len() int { return len(s.rooms) }

// Waiting returns rooms that are Waiting with exactly one participant,
// newest first.
func (s *Store) Waiting() []*Room {
	var out []*Room
	for _, room := range s.rooms {
		if room.Status == StatusWaiting && len(room.Participants) == 1 {
			out = append(out, room)
		}
	}
	slices.SortFunc(out, func(a, b *Room) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return out
}

// Stale returns rooms created more than expiry before now that are not Playing.
func (s *Store) Stale(now time.Time, expiry time.Duration) []*Room {
	var out []*Room
	for _, room := range s.rooms {
		if room.Status != StatusPlaying && now.Sub(room.CreatedAt) > expiry {
			out = append(out, room)
		}
	}
	return out
}

// All returns every live room in no particular order.
func (s *Store) All() []*Room {
	out := make([]*Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		out = append(out, room)
	}
	return out
}

