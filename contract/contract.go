//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// MessageStore is the history collaborator of the router.
// It assigns message ids and keeps messages per room, ordered by timestamp.
type MessageStore interface {
	Append(room string, message domain.StoredMessage) (string, error)
	QueryRange(room string, fromMs, toMs int64) ([]domain.StoredMessage, error)
}

// Censor rewrites forbidden words in a chat message and reports the ones it found.
type Censor interface {
	Censor(content string) (string, []string)
}

// TokenIssuer signs and checks reconnect tokens bound to a user id.
type TokenIssuer interface {
	Generate(userID string) (string, error)
	Validate(token string) (string, error)
}

// ConnectionHandler receives the transport events of every connection.
type ConnectionHandler interface {
	OnConnect(conn domain.Connection)
	OnMessage(ctx context.Context, conn domain.Connection, payload []byte)
	OnDisconnect(conn domain.Connection)
}
