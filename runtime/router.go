// Package runtime holds the relay's shared state and the protocol state machine that
// mutates it. Transport, storage and moderation are reached through contract interfaces.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"chat-relay/protocol"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"
)

const (
	replyInvalidMessage     = "Invalid message"
	replyUnknownType        = "Unknown message type"
	replyNotConnected       = "Not connected"
	replyHistoryUnavailable = "Message history unavailable"
	replyInternal           = "Internal error"
)

// Router validates inbound messages, dispatches them by type and fans replies out.
// Handlers for one connection are expected to run sequentially; handlers for
// different connections may run concurrently.
type Router struct {
	log             *slog.Logger
	identities      *IdentityRegistry
	groups          *GroupRegistry
	store           contract.MessageStore
	censor          contract.Censor
	tokens          contract.TokenIssuer
	metrics         *observability.Metrics
	strictReconnect bool
	now             func() time.Time

	mu   sync.Mutex
	open map[string]struct{} // connections seen by OnConnect and not yet closed
}

// NewRouter wires the registries to their collaborators.
// censor and tokens are optional: nil disables moderation and reconnect tokens.
func NewRouter(log *slog.Logger, identities *IdentityRegistry, groups *GroupRegistry,
	store contract.MessageStore, censor contract.Censor, tokens contract.TokenIssuer,
	metrics *observability.Metrics, strictReconnect bool) *Router {
	return &Router{
		log:             log,
		identities:      identities,
		groups:          groups,
		store:           store,
		censor:          censor,
		tokens:          tokens,
		metrics:         metrics,
		strictReconnect: strictReconnect,
		now:             time.Now,
		open:            make(map[string]struct{}),
	}
}

// OnConnect only starts tracking the connection: nothing is sent before connect.
func (r *Router) OnConnect(conn domain.Connection) {
	r.mu.Lock()
	if _, ok := r.open[conn.ID()]; ok {
		r.mu.Unlock()
		return
	}
	r.open[conn.ID()] = struct{}{}
	r.mu.Unlock()
	r.metrics.ConnectionsActive.Inc()
	r.log.Debug("Connection opened", "conn", conn.ID(), "remote", conn.RemoteAddr())
}

// OnDisconnect unbinds the connection and tells the remaining users.
// It may be called for connections that never sent connect, and more than once.
func (r *Router) OnDisconnect(conn domain.Connection) {
	r.mu.Lock()
	_, tracked := r.open[conn.ID()]
	delete(r.open, conn.ID())
	r.mu.Unlock()
	if tracked {
		r.metrics.ConnectionsActive.Dec()
	}
	user, ok := r.identities.Remove(conn)
	if !ok {
		r.log.Debug("Anonymous connection closed", "conn", conn.ID())
		return
	}
	r.metrics.UsersActive.Set(float64(r.identities.Count()))
	r.log.Info(fmt.Sprintf("%s@%s has left the room", user.Name, user.RemoteAddr), "user_id", user.ID)
	r.broadcast(r.groups.PublicMembers(), protocol.UserDisconnect(user, r.now().UnixMilli()))
}

// OnMessage handles one raw payload to completion.
func (r *Router) OnMessage(ctx context.Context, conn domain.Connection, payload []byte) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()

	msg, err := protocol.Decode(payload)
	if err != nil {
		r.log.Debug("Undecodable payload", "conn", conn.ID(), "error", err)
		r.reject(conn, protocol.Error(replyInvalidMessage))
		return
	}

	cmd, err := protocol.Parse(msg)
	if err != nil {
		r.rejectParse(conn, msg, err)
		return
	}

	r.metrics.MessagesReceived.WithLabelValues(cmd.Kind()).Inc()
	defer func() {
		r.metrics.HandleDuration.WithLabelValues(cmd.Kind()).Observe(time.Since(start).Seconds())
	}()
	r.log.Debug(fmt.Sprintf("Received type '%s'", cmd.Kind()), "conn", conn.ID())

	switch c := cmd.(type) {
	case protocol.Connect:
		r.connect(conn, c)
	case protocol.ConnectWithID:
		r.connectWithID(conn, c)
	case protocol.PostMessage:
		r.postMessage(conn, c)
	case protocol.HistoryRequest:
		r.history(conn, c)
	case protocol.PrivateChatRequest:
		r.privateChat(conn, c)
	case protocol.AddUserToChat:
		r.addUserToChat(conn, c)
	case protocol.MessageToChat:
		r.messageToChat(conn, c)
	}
}

func (r *Router) rejectParse(conn domain.Connection, msg protocol.Message, err error) {
	var validationErr *protocol.ValidationError
	switch {
	case stderrors.As(err, &validationErr):
		r.reject(conn, protocol.ValidationFailed(validationErr))
	case stderrors.Is(err, errors.ErrUnknownType):
		r.reject(conn, protocol.Error(replyUnknownType))
	default:
		r.reject(conn, protocol.Error(replyInvalidMessage))
	}
	r.log.Debug("Rejected message", "conn", conn.ID(), "type", msg.Type(), "error", err)
}

func (r *Router) connect(conn domain.Connection, c protocol.Connect) {
	binding, err := r.identities.RecognizeOrCreate(conn, c.Name, "")
	if err != nil {
		r.log.Error("Unable to bind connection", "conn", conn.ID(), "error", err)
		r.reject(conn, protocol.Error(replyInternal))
		return
	}
	r.welcome(conn, binding)
}

func (r *Router) connectWithID(conn domain.Connection, c protocol.ConnectWithID) {
	takeover := false
	switch {
	case c.Token != "" && r.tokens != nil:
		userID, err := r.tokens.Validate(c.Token)
		if err != nil || userID != c.ID {
			r.reject(conn, protocol.ValidationFailed(&protocol.ValidationError{
				Kind: c.Kind(), Field: protocol.FieldToken, Rule: "is invalid or does not match id",
			}))
			return
		}
		takeover = true
	case r.strictReconnect:
		r.reject(conn, protocol.ValidationFailed(&protocol.ValidationError{
			Kind: c.Kind(), Field: protocol.FieldToken, Rule: "is required",
		}))
		return
	}

	bind := r.identities.RecognizeOrCreate
	if takeover {
		bind = r.identities.Takeover
	}
	binding, err := bind(conn, c.Name, c.ID)
	switch {
	case stderrors.Is(err, errors.ErrIDInUse):
		r.reject(conn, protocol.ValidationFailed(&protocol.ValidationError{
			Kind: c.Kind(), Field: protocol.FieldID, Rule: "is already in use",
		}))
		return
	case err != nil:
		r.log.Error("Unable to bind connection", "conn", conn.ID(), "error", err)
		r.reject(conn, protocol.Error(replyInternal))
		return
	}

	if binding.Replaced.Exists {
		r.log.Info("Identity moved to a new connection", "user_id", binding.User.ID,
			"old_conn", binding.Replaced.ConnID(), "new_conn", conn.ID())
		if err := binding.Replaced.Conn.Close(); err != nil {
			r.log.Debug("Closing replaced connection failed", "error", err)
		}
	}
	r.welcome(conn, binding)
}

// welcome answers a bound connection with its id and, for new users, announces them.
func (r *Router) welcome(conn domain.Connection, binding Binding) {
	user := binding.User
	r.send(conn, protocol.ConnectID(user.ID, r.issueToken(user.ID)))
	if !binding.Created {
		return
	}
	r.metrics.UsersActive.Set(float64(r.identities.Count()))
	r.log.Info(fmt.Sprintf("%s@%s joined the room", user.Name, user.RemoteAddr), "user_id", user.ID)
	r.broadcast(r.groups.PublicMembers(), protocol.UserJoin(user, user.ConnectedAt.UnixMilli()))
}

func (r *Router) issueToken(userID string) string {
	if r.tokens == nil {
		return ""
	}
	token, err := r.tokens.Generate(userID)
	if err != nil {
		r.log.Warn("Reconnect token not issued", "user_id", userID, "error", err)
		return ""
	}
	return token
}

func (r *Router) postMessage(conn domain.Connection, c protocol.PostMessage) {
	sender, ok := r.sender(conn)
	if !ok {
		return
	}
	content := r.moderate(c.Content, sender)
	at := r.now().UnixMilli()
	r.archive(domain.PublicGroupID, content, sender, at)
	r.broadcast(r.groups.PublicMembers(), protocol.ChatMessage(content, sender, at, ""))
}

func (r *Router) history(conn domain.Connection, c protocol.HistoryRequest) {
	room := domain.PublicGroupID
	if c.ChatID != "" && c.ChatID != domain.PublicGroupID {
		if _, ok := r.memberChat(conn, c.ChatID); !ok {
			return
		}
		room = c.ChatID
	}

	messages, err := r.store.QueryRange(room, c.From, c.To)
	if err != nil {
		r.metrics.PersistenceErrors.WithLabelValues("query").Inc()
		r.log.Error("Message history query failed", "room", room, "from", c.From, "to", c.To, "error", err)
		r.reject(conn, protocol.Error(replyHistoryUnavailable))
		return
	}
	reply, err := protocol.History(messages, c.ChatID)
	if err != nil {
		r.log.Error("Message history encoding failed", "error", err)
		r.reject(conn, protocol.Error(replyHistoryUnavailable))
		return
	}
	r.send(conn, reply)
}

func (r *Router) privateChat(conn domain.Connection, c protocol.PrivateChatRequest) {
	sender, ok := r.sender(conn)
	if !ok {
		return
	}
	target := r.identities.ByID(c.TargetID)
	if !target.Exists {
		r.reject(conn, protocol.UserNotFound(c.TargetID))
		return
	}
	if target.ID == sender.ID {
		r.reject(conn, protocol.ValidationFailed(&protocol.ValidationError{
			Kind: c.Kind(), Field: protocol.FieldContent, Rule: "must name another user",
		}))
		return
	}

	chatID, err := r.groups.CreatePrivate(sender, target)
	if err != nil {
		r.log.Error("Private chat creation failed", "error", err)
		r.reject(conn, protocol.Error(replyInternal))
		return
	}
	r.metrics.ChatsTotal.Set(float64(r.groups.Count()))
	r.log.Info("Private chat created", "chat_id", chatID, "members", []string{sender.ID, target.ID})

	members := []domain.User{sender, target}
	reply, err := protocol.JoinChat(chatID, members)
	if err != nil {
		r.log.Error("join_chat encoding failed", "error", err)
		return
	}
	r.broadcast(members, reply)
}

func (r *Router) addUserToChat(conn domain.Connection, c protocol.AddUserToChat) {
	sender, ok := r.sender(conn)
	if !ok {
		return
	}
	user := r.identities.ByID(c.UserID)
	if !user.Exists {
		r.reject(conn, protocol.UserNotFound(c.UserID))
		return
	}
	group, ok := r.groups.ByID(c.ChatID)
	if !ok || !group.HasMember(sender.ID) {
		r.reject(conn, protocol.ChatNotFound(c.ChatID))
		return
	}

	added, err := r.groups.AddMember(group.ID, user)
	if err != nil {
		r.reject(conn, protocol.ChatNotFound(c.ChatID))
		return
	}
	group, _ = r.groups.ByID(group.ID)
	members := r.groups.Members(group)

	reply, err := protocol.JoinChat(group.ID, members)
	if err != nil {
		r.log.Error("join_chat encoding failed", "error", err)
		return
	}
	r.send(user.Conn, reply)
	if !added {
		return
	}
	r.log.Info("User added to chat", "chat_id", group.ID, "user_id", user.ID, "by", sender.ID)
	others := lo.Reject(members, func(item domain.User, _ int) bool { return item.ID == user.ID })
	r.broadcast(others, protocol.UserJoinedChat(group.ID, user))
}

func (r *Router) messageToChat(conn domain.Connection, c protocol.MessageToChat) {
	group, ok := r.memberChat(conn, c.ChatID)
	if !ok {
		return
	}
	sender := r.identities.ByConnection(conn)
	content := r.moderate(c.Content, sender)
	at := r.now().UnixMilli()
	r.archive(group.ID, content, sender, at)
	r.broadcast(r.groups.Members(group), protocol.ChatMessage(content, sender, at, group.ID))
}

// sender returns the user bound to conn, answering "Not connected" when there is none.
func (r *Router) sender(conn domain.Connection) (domain.User, bool) {
	user := r.identities.ByConnection(conn)
	if !user.Exists {
		r.reject(conn, protocol.Error(replyNotConnected))
		return domain.SentinelUser, false
	}
	return user, true
}

// memberChat resolves a chat the connection's user belongs to.
// Unknown chats and chats the user is not in both answer chat_not_found.
func (r *Router) memberChat(conn domain.Connection, chatID string) (domain.Group, bool) {
	sender, ok := r.sender(conn)
	if !ok {
		return domain.Group{}, false
	}
	group, ok := r.groups.ByID(chatID)
	if !ok || !group.HasMember(sender.ID) {
		r.reject(conn, protocol.ChatNotFound(chatID))
		return domain.Group{}, false
	}
	return group, true
}

func (r *Router) moderate(content string, author domain.User) string {
	if r.censor == nil {
		return content
	}
	censored, words := r.censor.Censor(content)
	if len(words) > 0 {
		r.log.Info("Message censored", "user_id", author.ID, "words", len(words))
	}
	return censored
}

// archive stores a message. Failures are logged and never stop the delivery.
func (r *Router) archive(room, content string, author domain.User, at int64) {
	_, err := r.store.Append(room, domain.StoredMessage{
		Room:       room,
		Content:    content,
		AuthorName: author.Name,
		AuthorID:   author.ID,
		Timestamp:  at,
	})
	if err != nil {
		r.metrics.PersistenceErrors.WithLabelValues("append").Inc()
		r.log.Error("Message append failed", "room", room, "user_id", author.ID, "error", err)
	}
}

func (r *Router) reject(conn domain.Connection, msg protocol.Message) {
	r.metrics.MessagesRejected.WithLabelValues(msg.Type()).Inc()
	r.send(conn, msg)
}

func (r *Router) send(conn domain.Connection, msg protocol.Message) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		r.log.Error("Reply encoding failed", "type", msg.Type(), "error", err)
		return
	}
	r.deliver(conn, payload)
}

// broadcast sends msg to a snapshot of recipients. One failed delivery never stops the others.
func (r *Router) broadcast(recipients []domain.User, msg protocol.Message) {
	payload, err := protocol.Encode(msg)
	if err != nil {
		r.log.Error("Broadcast encoding failed", "type", msg.Type(), "error", err)
		return
	}
	for _, user := range recipients {
		r.deliver(user.Conn, payload)
	}
}

func (r *Router) deliver(conn domain.Connection, payload []byte) {
	if conn == nil {
		return
	}
	if err := conn.Send(payload); err != nil {
		r.metrics.Deliveries.WithLabelValues("dropped").Inc()
		r.log.Debug("Delivery dropped", "conn", conn.ID(), "error", err)
		return
	}
	r.metrics.Deliveries.WithLabelValues("sent").Inc()
}
