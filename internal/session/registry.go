package session

// Binding ties a connection to its room membership.
type Binding struct {
	ParticipantID string
	RoomCode      string
}

// Registry tracks every live connection and the membership each one is
// bound to. It never holds room state.
type Registry struct {
	conns    map[string]Conn
	bindings map[string]Binding
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]Conn),
		bindings: make(map[string]Binding),
	}
}

// Add registers a newly opened connection.
func (r *Registry) Add(c Conn) { r.conns[c.ID()] = c }

// Remove forgets a closed connection and its binding.
func (r *Registry) Remove(connID string) {
	delete(r.conns, connID)
	delete(r.bindings, connID)
}

// Bind associates a live connection with a membership. Unknown connections
// are ignored.
func (r *Registry) Bind(connID string, b Binding) {
	if _, ok := r.conns[connID]; !ok {
		return
	}
	r.bindings[connID] = b
}

// Unbind clears a connection's membership.
func (r *Registry) Unbind(connID string) { delete(r.bindings, connID) }

// Lookup returns the membership bound to a connection.
func (r *Registry) Lookup(connID string) (Binding, bool) {
	b, ok := r.bindings[connID]
	return b, ok
}

// Conns returns every live connection.
func (r *Registry) Conns() []Conn {
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// Len returns the number of live connections.
func (r *Registry) Len() int { return len(r.conns) }
