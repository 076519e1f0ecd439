package domain

import (
	"slices"
	"time"
)

// PublicGroupID is reserved for the implicit room holding every connected user.
const PublicGroupID = "public"

// Group is a private or group chat. Members are user ids so a user
// reconnecting with the same id keeps their chats.
type Group struct {
	ID        string
	MemberIDs []string
	CreatedAt time.Time
}

func NewGroup(id string, at time.Time, memberIDs ...string) Group {
	return Group{ID: id, MemberIDs: slices.Clone(memberIDs), CreatedAt: at}
}

func (g Group) HasMember(userID string) bool {
	return slices.Contains(g.MemberIDs, userID)
}

// Clone returns a copy whose member list can be read without holding any lock.
func (g Group) Clone() Group {
	g.MemberIDs = slices.Clone(g.MemberIDs)
	return g
}
