// Package domain contains core concepts of the relay.
// This file defines User identities and the sentinel returned by failed lookups.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

const (
	undefined = "undefined"
	// UnknownAddress is used when the transport cannot tell where a connection comes from.
	UnknownAddress = "0.0.0.0"
)

// User is an identity bound to one live connection.
// Exists is false only for the sentinel, so callers must check it before trusting a lookup.
type User struct {
	ID          string
	Name        string
	RemoteAddr  string
	Conn        Connection
	Exists      bool
	ConnectedAt time.Time
}

// SentinelUser is returned by every lookup that misses.
var SentinelUser = User{
	ID:         undefined,
	Name:       undefined,
	RemoteAddr: undefined,
	Exists:     false,
}

func NewUser(conn Connection, name, id string, at time.Time) User {
	addr := UnknownAddress
	if conn != nil && conn.RemoteAddr() != "" {
		addr = conn.RemoteAddr()
	}
	return User{
		ID:          id,
		Name:        name,
		RemoteAddr:  addr,
		Conn:        conn,
		Exists:      true,
		ConnectedAt: at,
	}
}

// ConnID returns the id of the bound connection, or an empty string for the sentinel.
func (u User) ConnID() string {
	if u.Conn == nil {
		return ""
	}
	return u.Conn.ID()
}
