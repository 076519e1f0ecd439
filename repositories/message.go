package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	keyPrefix     = "msg"
	timestampSize = 19
)

// MessageRepository keeps the chat history in BadgerDB, one key per message.
type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

// NewMessageRepository returns a repository over db.
// A non-nil limitMessages caps the number of messages a single range query returns.
func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) MessageRepository {
	return MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

func roomPrefix(room string) string {
	return fmt.Sprintf("%s:%s:", keyPrefix, room)
}

// Append persists a message and returns its generated id.
// The key is formatted as "msg:{room}:{timestamp_padded}:{uuid}" so that a forward
// scan over a room prefix yields messages in timestamp order. The uuid keeps two
// messages sent in the same millisecond apart.
func (m MessageRepository) Append(room string, message domain.StoredMessage) (string, error) {
	if room == "" {
		return "", fmt.Errorf("append: empty room")
	}
	message.ID = uuid.NewString()
	message.Room = room
	if message.Timestamp < 0 {
		message.Timestamp = 0
	}

	value, err := toRecord(message)
	if err != nil {
		return "", err
	}
	bytes, err := proto.Marshal(value)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%s%0*d:%s", roomPrefix(room), timestampSize, message.Timestamp, message.ID)
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), bytes)
	})
	if err != nil {
		return "", fmt.Errorf("append %s: %w", room, err)
	}
	return message.ID, nil
}

// QueryRange returns the messages of room whose timestamp lies in [fromMs, toMs],
// oldest first. The scan seeks directly to fromMs and stops at the first key past toMs.
// Storage failures wrap errors.ErrHistoryUnavailable.
func (m MessageRepository) QueryRange(room string, fromMs, toMs int64) ([]domain.StoredMessage, error) {
	if fromMs > toMs {
		fromMs, toMs = toMs, fromMs
	}
	if toMs < 0 {
		return []domain.StoredMessage{}, nil
	}
	fromMs = max(fromMs, 0)

	var values [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := []byte(roomPrefix(room))
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := fmt.Appendf(nil, "%s%0*d", prefix, timestampSize, fromMs)
		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			ts, err := timestampOf(item.Key()[len(prefix):])
			if err != nil {
				m.log.Warn("Skipping malformed history key", "key", string(item.Key()), "error", err)
				continue
			}
			if ts > toMs {
				break
			}
			if m.limitMessages != nil && len(values) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d message reached", *m.limitMessages))
				break
			}
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, value)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %w", errors.ErrHistoryUnavailable, room, err)
	}

	messages := make([]domain.StoredMessage, 0, len(values))
	for _, b := range values {
		var record structpb.Struct
		if err := proto.Unmarshal(b, &record); err != nil {
			return nil, fmt.Errorf("%w: decode %s: %w", errors.ErrHistoryUnavailable, room, err)
		}
		messages = append(messages, fromRecord(&record))
	}
	return messages, nil
}

// timestampOf reads the padded timestamp at the start of a key suffix.
func timestampOf(suffix []byte) (int64, error) {
	raw, _, ok := strings.Cut(string(suffix), ":")
	if !ok {
		return 0, fmt.Errorf("missing id separator")
	}
	return strconv.ParseInt(raw, 10, 64)
}

func toRecord(message domain.StoredMessage) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"id":        message.ID,
		"room":      message.Room,
		"content":   message.Content,
		"author":    message.AuthorName,
		"author_id": message.AuthorID,
		"at":        strconv.FormatInt(message.Timestamp, 10),
	})
}

func fromRecord(record *structpb.Struct) domain.StoredMessage {
	fields := record.GetFields()
	at, _ := strconv.ParseInt(fields["at"].GetStringValue(), 10, 64)
	return domain.StoredMessage{
		ID:         fields["id"].GetStringValue(),
		Room:       fields["room"].GetStringValue(),
		Content:    fields["content"].GetStringValue(),
		AuthorName: fields["author"].GetStringValue(),
		AuthorID:   fields["author_id"].GetStringValue(),
		Timestamp:  at,
	}
}
