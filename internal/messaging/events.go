package messaging

import (
	"encoding/json"
	"time"
)

// Client to server events.
const (
	EventJoinRoom    = "joinRoom"
	EventTyping      = "typing"
	EventStopTyping  = "stopTyping"
	EventSendMessage = "sendMessage"
)

// Server to client events. typing and stopTyping travel both ways. Order
// updates are pushed as "orderUpdated" by the marketplace.
const (
	EventReceiveMessage  = "receiveMessage"
	EventNewConversation = "newConversation"
	EventOnlineUsers     = "onlineUsers"
	EventMessageSent     = "messageSent"
	EventError           = "error"
)

// wsEvent is the envelope of every frame in both directions.
type wsEvent struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinRoomPayload struct {
	UserID string `json:"userId"`
}

type typingSignal struct {
	ReceiverID string `json:"receiverId"`
}

// SendMessagePayload is accepted both on the push channel and over HTTP.
type SendMessagePayload struct {
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId" validate:"required"`
	Content    string `json:"content" validate:"required"`
	OrderID    string `json:"orderId,omitempty"`
	GigID      string `json:"gigId,omitempty"`
	JobID      string `json:"jobId,omitempty"`
	ClientID   string `json:"clientId,omitempty"`
}

// TypingPayload names who is typing.
type TypingPayload struct {
	UserID string `json:"userId"`
}

// OnlineUsersPayload is the presence snapshot.
type OnlineUsersPayload struct {
	UserIDs []string `json:"userIds"`
}

// NewConversationPayload is a conversation-list delta.
type NewConversationPayload struct {
	UserID      string    `json:"userId"`
	LastMessage string    `json:"lastMessage"`
	Timestamp   time.Time `json:"timestamp"`
}

// MessageSentPayload acknowledges a sendMessage with the stored message.
type MessageSentPayload struct {
	Message  Message `json:"message"`
	ClientID string  `json:"clientId,omitempty"`
}

// ErrorPayload reports a rejected client event.
type ErrorPayload struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	ClientID string `json:"clientId,omitempty"`
}
