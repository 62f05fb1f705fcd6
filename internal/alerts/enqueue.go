package alerts

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/messaging"
	"github.com/sudo-init-do/gigmarket/internal/observability"
)

const previewRunes = 140

// Enqueuer is the part of *asynq.Client the queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue turns domain events into asynq tasks. It serves as both the
// marketplace Notifier and the messaging OfflineNotifier.
type Queue struct {
	client Enqueuer
	now    func() time.Time
}

func NewQueue(client Enqueuer, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{client: client, now: now}
}

// NewRedisQueue connects an asynq client to redisAddr. Close the returned
// client on shutdown.
func NewRedisQueue(redisAddr string) (*Queue, *asynq.Client) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	return NewQueue(client, nil), client
}

// OrderChanged enqueues the status alert for ev. Events without an alert are
// ignored.
func (q *Queue) OrderChanged(ctx context.Context, o marketplace.Order, ev marketplace.Event) error {
	var (
		task       string
		recipients []string
	)
	switch ev {
	case marketplace.EventPaymentConfirmed:
		task, recipients = TaskOrderPaid, []string{o.SellerID}
	case marketplace.EventDeliver:
		task, recipients = TaskOrderDelivered, []string{o.BuyerID}
	case marketplace.EventApprove:
		task, recipients = TaskOrderCompleted, []string{o.SellerID}
	case marketplace.EventCancel:
		task, recipients = TaskOrderCancelled, []string{o.BuyerID, o.SellerID}
	default:
		return nil
	}
	return q.enqueue(ctx, task, QueueNotifications, OrderStatusPayload{
		OrderID:    o.ID,
		GigID:      o.GigID,
		BuyerID:    o.BuyerID,
		SellerID:   o.SellerID,
		Status:     string(o.Status),
		Price:      o.Price,
		Recipients: recipients,
		SentAt:     q.now().UTC(),
	})
}

// MessageForOffline enqueues a new-message alert for the receiver.
func (q *Queue) MessageForOffline(ctx context.Context, m messaging.Message) error {
	return q.enqueue(ctx, TaskMessageOffline, QueueAlerts, MessageOfflinePayload{
		MessageID:  m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Preview:    preview(m.Body),
		SentAt:     q.now().UTC(),
	})
}

func (q *Queue) enqueue(ctx context.Context, taskType, queue string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = q.client.EnqueueContext(ctx, asynq.NewTask(taskType, b), asynq.Queue(queue), asynq.MaxRetry(5))
	result := "ok"
	if err != nil {
		result = "error"
	}
	observability.AlertsEnqueued.WithLabelValues(taskType, result).Inc()
	return err
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewRunes]) + "…"
}
