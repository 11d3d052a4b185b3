package session

// Queue is the FIFO of participants waiting for an automatic opponent.
type Queue struct {
	entries []*Participant
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue { return &Queue{} }

// Enqueue pairs p with the longest-waiting entry, or appends p when nobody
// is waiting.
//
// Postcondition: when matched is true the opponent has left the queue and p
// was never added.
func (q *Queue) Enqueue(p *Participant) (opponent *Participant, matched bool) {
	if len(q.entries) == 0 {
		q.entries = append(q.entries, p)
		return nil, false
	}
	opponent = q.entries[0]
	q.entries[0] = nil
	q.entries = q.entries[1:]
	return opponent, true
}

// Withdraw removes the still-unmatched entry owned by connID.
func (q *Queue) Withdraw(connID string) bool {
	for i, p := range q.entries {
		if p.Conn.ID() == connID {
			q.entries = append(q.entries[:i:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Contains reports whether connID is waiting in the queue.
func (q *Queue) Contains(connID string) bool {
	for _, p := range q.entries {
		if p.Conn.ID() == connID {
			return true
		}
	}
	return false
}

// Len returns the number of waiting participants.
func (q *Queue) Len() int { return len(q.entries) }
