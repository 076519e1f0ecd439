package protocol

import (
	"chat-relay/errors"
	stderrors "errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report wire names (user_id, chat_id...) instead of Go field names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// Command is one inbound message, decoded into the variant of its type.
type Command interface {
	Kind() string
}

type Connect struct {
	Name string `json:"content" validate:"required,max=64"`
}

type ConnectWithID struct {
	Name  string `json:"content" validate:"required,max=64"`
	ID    string `json:"id" validate:"required,alphanum,max=64"`
	Token string `json:"token"`
}

type PostMessage struct {
	Content string `json:"content" validate:"required"`
}

// HistoryRequest covers [From, To] in unix milliseconds, already normalized so From <= To.
// An empty ChatID means the public room.
type HistoryRequest struct {
	From   int64
	To     int64
	ChatID string
}

type PrivateChatRequest struct {
	TargetID string `json:"content" validate:"required"`
}

type AddUserToChat struct {
	UserID string `json:"user_id" validate:"required"`
	ChatID string `json:"chat_id" validate:"required"`
}

type MessageToChat struct {
	ChatID  string `json:"chat_id" validate:"required"`
	Content string `json:"content" validate:"required"`
}

func (Connect) Kind() string            { return TypeConnect }
func (ConnectWithID) Kind() string      { return TypeConnectWithID }
func (PostMessage) Kind() string        { return TypeMessage }
func (HistoryRequest) Kind() string     { return TypeRequestMessageHistory }
func (PrivateChatRequest) Kind() string { return TypeRequestPrivateChat }
func (AddUserToChat) Kind() string      { return TypeAddUserToChat }
func (MessageToChat) Kind() string      { return TypeMessageToChat }

// ValidationError reports a kind-specific requirement the message violates.
type ValidationError struct {
	Kind  string
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Kind, e.Field, e.Rule)
}

// Parse checks the universally required fields, then builds and validates the variant
// matching the message type. It returns errors.ErrInvalidMessage when type or content is
// missing, errors.ErrUnknownType for an unsupported type and *ValidationError otherwise.
func Parse(m Message) (Command, error) {
	if m.Get(FieldType) == "" || m.Get(FieldContent) == "" {
		return nil, errors.ErrInvalidMessage
	}

	var cmd Command
	switch m.Type() {
	case TypeConnect:
		cmd = Connect{Name: m.Get(FieldContent)}
	case TypeConnectWithID:
		cmd = ConnectWithID{Name: m.Get(FieldContent), ID: m.Get(FieldID), Token: m.Get(FieldToken)}
	case TypeMessage:
		cmd = PostMessage{Content: m.Get(FieldContent)}
	case TypeRequestMessageHistory:
		return parseHistory(m)
	case TypeRequestPrivateChat:
		cmd = PrivateChatRequest{TargetID: m.Get(FieldContent)}
	case TypeAddUserToChat:
		cmd = AddUserToChat{UserID: m.Get(FieldUserID), ChatID: m.Get(FieldChatID)}
	case TypeMessageToChat:
		cmd = MessageToChat{ChatID: m.Get(FieldChatID), Content: m.Get(FieldContent)}
	default:
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownType, m.Type())
	}

	if err := validate.Struct(cmd); err != nil {
		return nil, toValidationError(cmd.Kind(), err)
	}
	return cmd, nil
}

func parseHistory(m Message) (Command, error) {
	from, err := parseMillis(m, FieldFrom)
	if err != nil {
		return nil, err
	}
	to, err := parseMillis(m, FieldTo)
	if err != nil {
		return nil, err
	}
	if from > to {
		from, to = to, from
	}
	return HistoryRequest{From: from, To: to, ChatID: m.Get(FieldChatID)}, nil
}

func parseMillis(m Message, field string) (int64, error) {
	raw := m.Get(field)
	if raw == "" {
		return 0, &ValidationError{Kind: TypeRequestMessageHistory, Field: field, Rule: "is required"}
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, &ValidationError{Kind: TypeRequestMessageHistory, Field: field, Rule: "must be an integer"}
	}
	return v, nil
}

func toValidationError(kind string, err error) error {
	var fieldErrors validator.ValidationErrors
	if !stderrors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return &ValidationError{Kind: kind, Field: "message", Rule: err.Error()}
	}
	fe := fieldErrors[0]
	return &ValidationError{Kind: kind, Field: fe.Field(), Rule: describeRule(fe)}
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "alphanum":
		return "must be alphanumeric"
	default:
		return fmt.Sprintf("failed on %s", fe.Tag())
	}
}
