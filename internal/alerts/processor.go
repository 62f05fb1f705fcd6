package alerts

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/log"
)

// Processor runs the asynq worker for alert tasks. Delivery is logged; there
// is no outbound mail or push transport.
type Processor struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

func NewProcessor(redisAddr string, concurrency int) *Processor {
	if concurrency <= 0 {
		concurrency = 5
	}
	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: redisAddr}, asynq.Config{
		Concurrency: concurrency,
		Queues:      queuePriorities,
	})
	return &Processor{server: srv, mux: NewServeMux()}
}

// NewServeMux routes every alert task type to its handler.
func NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskOrderPaid, handleOrderStatus)
	mux.HandleFunc(TaskOrderDelivered, handleOrderStatus)
	mux.HandleFunc(TaskOrderCompleted, handleOrderStatus)
	mux.HandleFunc(TaskOrderCancelled, handleOrderStatus)
	mux.HandleFunc(TaskMessageOffline, handleMessageOffline)
	return mux
}

// Start runs the worker in the background.
func (p *Processor) Start() error {
	if err := p.server.Start(p.mux); err != nil {
		return fmt.Errorf("start alerts worker: %w", err)
	}
	log.Info().Msg("alerts worker started")
	return nil
}

// Shutdown waits for in-flight tasks and stops the worker.
func (p *Processor) Shutdown() {
	p.server.Shutdown()
}

func handleOrderStatus(_ context.Context, t *asynq.Task) error {
	var p OrderStatusPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	for _, to := range p.Recipients {
		log.Info().
			Str("task", t.Type()).
			Str("order_id", p.OrderID).
			Str("status", p.Status).
			Str("to", to).
			Msg("order alert delivered")
	}
	return nil
}

func handleMessageOffline(_ context.Context, t *asynq.Task) error {
	var p MessageOfflinePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("%s: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	log.Info().
		Str("message_id", p.MessageID).
		Str("from", p.SenderID).
		Str("to", p.ReceiverID).
		Msg("offline message alert delivered")
	return nil
}
