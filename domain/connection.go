//go:generate go run go.uber.org/mock/mockgen -source=connection.go -destination=../mocks/mock_connection.go -package=mocks
package domain

// Connection is the transport-side handle a User is bound to.
// Send must not block: a full or closed outbound queue fails with errors.ErrConnectionClosed.
type Connection interface {
	ID() string
	RemoteAddr() string
	Send(payload []byte) error
	Close() error
}
