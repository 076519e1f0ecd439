// Package domain contains core concepts of the relay.
// This file defines the messages kept by the history store.
package domain

// StoredMessage is a chat message as the history store returns it.
// Timestamp is unix milliseconds.
type StoredMessage struct {
	ID         string
	Room       string
	Content    string
	AuthorName string
	AuthorID   string
	Timestamp  int64
}
