package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"cmp"
	"slices"
	"sync"
	"time"
)

type Set map[string]struct{}

type session struct {
	user domain.User
	seq  uint64
}

// Binding is the outcome of binding a connection to an identity.
// Replaced holds the user whose id was taken over, or the sentinel.
type Binding struct {
	User     domain.User
	Created  bool
	Replaced domain.User
}

// IdentityRegistry tracks connected users.
// Every method is safe for concurrent use and returns copies.
type IdentityRegistry struct {
	mu       sync.RWMutex
	sessions map[string]session // map connection -> user
	owners   map[string]string  // map user id -> connection
	issued   Set                // every id issued or supplied since startup
	seq      uint64
	ids      IDGenerator
	now      func() time.Time
}

func NewIdentityRegistry(ids IDGenerator) *IdentityRegistry {
	return &IdentityRegistry{
		sessions: make(map[string]session),
		owners:   make(map[string]string),
		issued:   make(Set),
		ids:      ids,
		now:      time.Now,
	}
}

// RecognizeOrCreate returns the user already bound to conn unchanged, or binds a new one.
// An empty id asks for a generated one. A supplied id bound to another live connection
// fails with errors.ErrIDInUse.
func (r *IdentityRegistry) RecognizeOrCreate(conn domain.Connection, name, id string) (Binding, error) {
	return r.bind(conn, name, id, false)
}

// Takeover behaves like RecognizeOrCreate, except that a supplied id bound to another
// connection is moved to conn. The previous holder is reported in Binding.Replaced.
func (r *IdentityRegistry) Takeover(conn domain.Connection, name, id string) (Binding, error) {
	return r.bind(conn, name, id, true)
}

func (r *IdentityRegistry) bind(conn domain.Connection, name, id string, takeover bool) (Binding, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[conn.ID()]; ok {
		return Binding{User: s.user, Replaced: domain.SentinelUser}, nil
	}

	replaced := domain.SentinelUser
	switch {
	case id == "":
		generated, err := r.ids.Generate(UserIDLength, r.isIssued)
		if err != nil {
			return Binding{}, err
		}
		id = generated
	default:
		if holder, ok := r.owners[id]; ok {
			if !takeover {
				return Binding{}, errors.ErrIDInUse
			}
			replaced = r.sessions[holder].user
			delete(r.sessions, holder)
			delete(r.owners, id)
		}
	}

	r.seq++
	user := domain.NewUser(conn, name, id, r.now())
	r.sessions[conn.ID()] = session{user: user, seq: r.seq}
	r.owners[id] = conn.ID()
	r.issued[id] = struct{}{}
	return Binding{User: user, Created: true, Replaced: replaced}, nil
}

// isIssued must be called with the lock held.
func (r *IdentityRegistry) isIssued(id string) bool {
	_, ok := r.issued[id]
	return ok
}

// IsIssued reports whether id was ever bound since startup.
func (r *IdentityRegistry) IsIssued(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isIssued(id)
}

// ByConnection returns the user bound to conn, or the sentinel.
func (r *IdentityRegistry) ByConnection(conn domain.Connection) domain.User {
	if conn == nil {
		return domain.SentinelUser
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.sessions[conn.ID()]; ok {
		return s.user
	}
	return domain.SentinelUser
}

// ByID returns the live user with that id, or the sentinel.
func (r *IdentityRegistry) ByID(id string) domain.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if holder, ok := r.owners[id]; ok {
		return r.sessions[holder].user
	}
	return domain.SentinelUser
}

// Remove unbinds conn. It is a no-op for connections that never sent connect.
func (r *IdentityRegistry) Remove(conn domain.Connection) (domain.User, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[conn.ID()]
	if !ok {
		return domain.SentinelUser, false
	}
	delete(r.sessions, conn.ID())
	if r.owners[s.user.ID] == conn.ID() {
		delete(r.owners, s.user.ID)
	}
	return s.user, true
}

// All returns a snapshot of the connected users in connection order.
func (r *IdentityRegistry) All() []domain.User {
	r.mu.RLock()
	sessions := make([]session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	slices.SortFunc(sessions, func(a, b session) int { return cmp.Compare(a.seq, b.seq) })
	users := make([]domain.User, len(sessions))
	for i, s := range sessions {
		users[i] = s.user
	}
	return users
}

func (r *IdentityRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
