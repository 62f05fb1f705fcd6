package messaging

import (
	"context"
	"time"
)

// Message is a direct message between two users, optionally about an order,
// gig or job.
type Message struct {
	ID         string    `gorm:"primaryKey;size:36" json:"messageId"`
	SenderID   string    `gorm:"size:64;not null;index" json:"senderId"`
	ReceiverID string    `gorm:"size:64;not null;index" json:"receiverId"`
	PairKey    string    `gorm:"size:130;not null;index:idx_messages_pair_created,priority:1" json:"-"`
	Body       string    `gorm:"type:text;not null" json:"content"`
	OrderID    string    `gorm:"size:36" json:"orderId,omitempty"`
	GigID      string    `gorm:"size:36" json:"gigId,omitempty"`
	JobID      string    `gorm:"size:36" json:"jobId,omitempty"`
	CreatedAt  time.Time `gorm:"not null;index:idx_messages_pair_created,priority:2" json:"timestamp"`
}

// Conversation is the derived summary of a user's thread with one counterpart.
type Conversation struct {
	UserID      string    `json:"userId"`
	LastMessage string    `json:"lastMessage"`
	Timestamp   time.Time `json:"timestamp"`
}

// PairKey indexes the unordered pair {a, b}.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// MessageStore persists messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *Message) error
	// ListBetween returns the pair's messages created after since (zero for
	// all), oldest first.
	ListBetween(ctx context.Context, a, b string, since time.Time) ([]Message, error)
	// LatestPerCounterpart returns the newest message of each of userID's
	// threads, newest first.
	LatestPerCounterpart(ctx context.Context, userID string, limit int) ([]Message, error)
}
