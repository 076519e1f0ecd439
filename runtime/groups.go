package runtime

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/lo"
)

// GroupRegistry owns the private and group chats.
// The public room is not stored: its members are always the identity registry's users.
type GroupRegistry struct {
	mu         sync.RWMutex
	groups     map[string]*domain.Group
	order      []string // creation order
	identities *IdentityRegistry
	ids        IDGenerator
	now        func() time.Time
}

func NewGroupRegistry(identities *IdentityRegistry, ids IDGenerator) *GroupRegistry {
	return &GroupRegistry{
		groups:     make(map[string]*domain.Group),
		identities: identities,
		ids:        ids,
		now:        time.Now,
	}
}

// CreatePrivate registers a chat holding exactly a and b and returns its id.
func (g *GroupRegistry) CreatePrivate(a, b domain.User) (string, error) {
	if !a.Exists || !b.Exists || a.ID == b.ID {
		return "", errors.ErrNotEnoughMembers
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id, err := g.ids.Generate(ChatIDLength, g.isTaken)
	if err != nil {
		return "", fmt.Errorf("create chat: %w", err)
	}
	group := domain.NewGroup(id, g.now(), a.ID, b.ID)
	g.groups[id] = &group
	g.order = append(g.order, id)
	return id, nil
}

// isTaken must be called with the lock held.
func (g *GroupRegistry) isTaken(id string) bool {
	if id == domain.PublicGroupID {
		return true
	}
	_, ok := g.groups[id]
	return ok
}

// ByID returns the chat with that id. There is no fallback group.
func (g *GroupRegistry) ByID(id string) (domain.Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	group, ok := g.groups[id]
	if !ok {
		return domain.Group{}, false
	}
	return group.Clone(), true
}

// ByMember returns the first chat, in creation order, that user belongs to.
func (g *GroupRegistry) ByMember(user domain.User) (domain.Group, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, id := range g.order {
		if group := g.groups[id]; group.HasMember(user.ID) {
			return group.Clone(), true
		}
	}
	return domain.Group{}, false
}

// AddMember appends user to the chat. Adding an existing member is a no-op and reports false.
func (g *GroupRegistry) AddMember(groupID string, user domain.User) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	group, ok := g.groups[groupID]
	if !ok {
		return false, errors.ErrChatNotFound
	}
	if group.HasMember(user.ID) {
		return false, nil
	}
	group.MemberIDs = append(group.MemberIDs, user.ID)
	return true, nil
}

// PublicMembers is a view over the identity registry, never a copy kept here.
func (g *GroupRegistry) PublicMembers() []domain.User {
	return g.identities.All()
}

// Members resolves the chat's member ids to connected users, skipping offline ones.
func (g *GroupRegistry) Members(group domain.Group) []domain.User {
	return lo.FilterMap(group.MemberIDs, func(id string, _ int) (domain.User, bool) {
		user := g.identities.ByID(id)
		return user, user.Exists
	})
}

// All returns a snapshot of every chat in creation order.
func (g *GroupRegistry) All() []domain.Group {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return lo.Map(g.order, func(id string, _ int) domain.Group {
		return g.groups[id].Clone()
	})
}

func (g *GroupRegistry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.groups)
}
