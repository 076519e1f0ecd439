// Package protocol is the wire codec of the relay: it converts transport payloads to
// string-keyed messages, turns those into typed commands, and builds replies.
package protocol

import (
	"chat-relay/errors"
	"encoding/json"
	"fmt"
)

// Field names exchanged on the wire.
const (
	FieldType    = "type"
	FieldContent = "content"
	FieldID      = "id"
	FieldName    = "name"
	FieldTime    = "time"
	FieldFrom    = "from"
	FieldTo      = "to"
	FieldUserID  = "user_id"
	FieldChatID  = "chat_id"
	FieldIP      = "ip"
	FieldToken   = "token"
)

// Inbound message types.
const (
	TypeConnect               = "connect"
	TypeConnectWithID         = "connect_with_id"
	TypeMessage               = "message"
	TypeRequestMessageHistory = "request_message_history"
	TypeRequestPrivateChat    = "request_private_chat"
	TypeAddUserToChat         = "add_user_to_chat"
	TypeMessageToChat         = "message_to_chat"
)

// Outbound message types. TypeMessage is shared by both directions.
const (
	TypeConnectID       = "connect_id"
	TypeError           = "error"
	TypeMessageHistory  = "message_history"
	TypeJoinChat        = "join_chat"
	TypeUserJoinedChat  = "user_joined_chat"
	TypeUserNotFound    = "user_not_found"
	TypeChatNotFound    = "chat_not_found"
	TypeValidationError = "validation_error"
	TypeUserJoin        = "user_join"
	TypeUserDisconnect  = "user_disconnect"
)

// Message is the unit of wire exchange. The set of fields present depends on its type.
type Message map[string]string

func (m Message) Type() string { return m[FieldType] }

func (m Message) Get(field string) string { return m[field] }

// Encode renders a message as a JSON object of strings.
func Encode(m Message) ([]byte, error) {
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", m.Type(), err)
	}
	return b, nil
}

// Decode parses a JSON object whose values are all strings.
// Anything else fails with errors.ErrDecode.
func Decode(payload []byte) (Message, error) {
	var m map[string]string
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrDecode, err)
	}
	if m == nil {
		return nil, errors.ErrDecode
	}
	return m, nil
}
