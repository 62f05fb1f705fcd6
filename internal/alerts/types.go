package alerts

import "time"

// Task type constants
const (
	TaskOrderPaid      = "order:paid"
	TaskOrderDelivered = "order:delivered"
	TaskOrderCompleted = "order:completed"
	TaskOrderCancelled = "order:cancelled"
	TaskMessageOffline = "message:offline"
)

// Queues and their worker priorities.
const (
	QueueNotifications = "notifications"
	QueueAlerts        = "alerts"
)

var queuePriorities = map[string]int{
	QueueNotifications: 10,
	QueueAlerts:        5,
}

// OrderStatusPayload tells the recipients that an order moved to Status.
type OrderStatusPayload struct {
	OrderID    string    `json:"order_id"`
	GigID      string    `json:"gig_id"`
	BuyerID    string    `json:"buyer_id"`
	SellerID   string    `json:"seller_id"`
	Status     string    `json:"status"`
	Price      int64     `json:"price"`
	Recipients []string  `json:"recipients"`
	SentAt     time.Time `json:"sent_at"`
}

// MessageOfflinePayload is sent to a receiver who was not connected.
type MessageOfflinePayload struct {
	MessageID  string    `json:"message_id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Preview    string    `json:"preview"`
	SentAt     time.Time `json:"sent_at"`
}
