package protocol

import (
	"chat-relay/domain"
	"encoding/json"
	"strconv"

	"github.com/samber/lo"
)

// Member is how a chat member is listed in join_chat replies.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HistoryEntry is one stored message inside a message_history reply.
type HistoryEntry struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Author   string `json:"author"`
	AuthorID string `json:"author_id"`
	Time     string `json:"time"`
}

func millis(ms int64) string {
	return strconv.FormatInt(ms, 10)
}

// ConnectID answers connect and connect_with_id with the bound id and a reconnect token.
func ConnectID(id, token string) Message {
	m := Message{FieldType: TypeConnectID, FieldContent: id, FieldID: id}
	if token != "" {
		m[FieldToken] = token
	}
	return m
}

func UserJoin(u domain.User, at int64) Message {
	return Message{
		FieldType:    TypeUserJoin,
		FieldContent: u.Name,
		FieldName:    u.Name,
		FieldID:      u.ID,
		FieldIP:      u.RemoteAddr,
		FieldTime:    millis(at),
	}
}

func UserDisconnect(u domain.User, at int64) Message {
	return Message{
		FieldType:    TypeUserDisconnect,
		FieldContent: u.Name,
		FieldName:    u.Name,
		FieldID:      u.ID,
		FieldTime:    millis(at),
	}
}

// ChatMessage is a relayed message. An empty chatID means the public room.
func ChatMessage(content string, author domain.User, at int64, chatID string) Message {
	m := Message{
		FieldType:    TypeMessage,
		FieldContent: content,
		FieldName:    author.Name,
		FieldID:      author.ID,
		FieldTime:    millis(at),
	}
	if chatID != "" {
		m[FieldChatID] = chatID
	}
	return m
}

func History(messages []domain.StoredMessage, chatID string) (Message, error) {
	entries := lo.Map(messages, func(item domain.StoredMessage, _ int) HistoryEntry {
		return HistoryEntry{
			ID:       item.ID,
			Content:  item.Content,
			Author:   item.AuthorName,
			AuthorID: item.AuthorID,
			Time:     millis(item.Timestamp),
		}
	})
	b, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	m := Message{FieldType: TypeMessageHistory, FieldContent: string(b)}
	if chatID != "" {
		m[FieldChatID] = chatID
	}
	return m, nil
}

func JoinChat(chatID string, members []domain.User) (Message, error) {
	b, err := json.Marshal(lo.Map(members, func(item domain.User, _ int) Member {
		return Member{ID: item.ID, Name: item.Name}
	}))
	if err != nil {
		return nil, err
	}
	return Message{FieldType: TypeJoinChat, FieldContent: string(b), FieldChatID: chatID}, nil
}

func UserJoinedChat(chatID string, u domain.User) Message {
	return Message{
		FieldType:    TypeUserJoinedChat,
		FieldContent: u.Name,
		FieldChatID:  chatID,
		FieldID:      u.ID,
		FieldName:    u.Name,
	}
}

func UserNotFound(userID string) Message {
	return Message{FieldType: TypeUserNotFound, FieldContent: userID, FieldUserID: userID}
}

func ChatNotFound(chatID string) Message {
	return Message{FieldType: TypeChatNotFound, FieldContent: chatID, FieldChatID: chatID}
}

func ValidationFailed(err *ValidationError) Message {
	return Message{FieldType: TypeValidationError, FieldContent: err.Error()}
}

func Error(content string) Message {
	return Message{FieldType: TypeError, FieldContent: content}
}
