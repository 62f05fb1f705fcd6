package messaging

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
	"github.com/sudo-init-do/gigmarket/internal/observability"
)

// Pusher delivers events to online users.
type Pusher interface {
	PushToUser(userID, eventType string, data any) bool
}

// OfflineNotifier is told about messages whose receiver was not connected.
type OfflineNotifier interface {
	MessageForOffline(ctx context.Context, m Message) error
}

const conversationsLimit = 50

// DispatcherDeps wires a Dispatcher. Offline and Now are optional.
type DispatcherDeps struct {
	Store    MessageStore
	Pusher   Pusher
	Offline  OfflineNotifier
	MaxRunes int
	Now      func() time.Time
}

// Dispatcher persists direct messages and fans them out to live connections.
//
// Messages between the same ordered (sender, receiver) pair are pushed in
// the order they were accepted, which is also their timestamp order. Each Send
// takes a ticket under mu, persists without holding any lock, then waits for
// the previous ticket of its pair before pushing.
type Dispatcher struct {
	store    MessageStore
	pusher   Pusher
	offline  OfflineNotifier
	maxRunes int
	now      func() time.Time
	tracer   trace.Tracer

	mu    sync.Mutex
	last  time.Time
	tails map[string]chan struct{}
}

func NewDispatcher(d DispatcherDeps) *Dispatcher {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	max := d.MaxRunes
	if max <= 0 {
		max = 5000
	}
	return &Dispatcher{
		store:    d.Store,
		pusher:   d.Pusher,
		offline:  d.Offline,
		maxRunes: max,
		now:      now,
		tracer:   otel.Tracer("gigmarket/messaging"),
		tails:    make(map[string]chan struct{}),
	}
}

// SendRequest is a message to deliver.
type SendRequest struct {
	SenderID   string
	ReceiverID string
	Body       string
	OrderID    string
	GigID      string
	JobID      string
}

// Send validates, persists and pushes a message. If persisting fails nothing
// is pushed and the error is StoreUnavailable.
func (d *Dispatcher) Send(ctx context.Context, req SendRequest) (Message, error) {
	ctx, span := d.tracer.Start(ctx, "Dispatcher.Send", trace.WithAttributes(
		attribute.String("message.sender", req.SenderID),
		attribute.String("message.receiver", req.ReceiverID),
	))
	defer span.End()

	body := strings.TrimSpace(req.Body)
	switch {
	case req.SenderID == "" || req.ReceiverID == "":
		return Message{}, apperr.Validation("sender and receiver are required")
	case req.SenderID == req.ReceiverID:
		return Message{}, apperr.Validation("cannot message yourself")
	case body == "":
		return Message{}, apperr.Validation("message content must not be empty")
	case utf8.RuneCountInString(body) > d.maxRunes:
		return Message{}, apperr.Validation("message exceeds %d characters", d.maxRunes)
	}

	ts, prev, done, key := d.ticket(req.SenderID, req.ReceiverID)
	defer d.release(key, prev, done)

	m := Message{
		ID:         uuid.NewString(),
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
		PairKey:    PairKey(req.SenderID, req.ReceiverID),
		Body:       body,
		OrderID:    req.OrderID,
		GigID:      req.GigID,
		JobID:      req.JobID,
		CreatedAt:  ts,
	}
	if err := d.store.SaveMessage(ctx, &m); err != nil {
		span.RecordError(err)
		return Message{}, apperr.Unavailable("could not persist message", err)
	}

	if prev != nil {
		<-prev
	}
	d.fanOut(ctx, m)
	return m, nil
}

// ticket assigns a strictly increasing timestamp and links the call into
// its pair's chain.
func (d *Dispatcher) ticket(sender, receiver string) (time.Time, <-chan struct{}, chan struct{}, string) {
	key := sender + "\x00" + receiver
	done := make(chan struct{})

	d.mu.Lock()
	defer d.mu.Unlock()
	ts := d.now().UTC().Truncate(time.Microsecond)
	if !ts.After(d.last) {
		ts = d.last.Add(time.Microsecond)
	}
	d.last = ts
	prev := d.tails[key]
	d.tails[key] = done
	return ts, prev, done, key
}

// release hands the pair on to the next Send. A failed Send still waits for
// its predecessor so a later message cannot overtake an earlier push.
func (d *Dispatcher) release(key string, prev <-chan struct{}, done chan struct{}) {
	if prev != nil {
		<-prev
	}
	d.mu.Lock()
	if d.tails[key] == done {
		delete(d.tails, key)
	}
	d.mu.Unlock()
	close(done)
}

// fanOut pushes to both sides. A receiveMessage the receiver's connection
// refused (full send buffer) is treated like an offline receiver: the message
// counts as stored only and an offline alert goes out. The conversation list
// update is still attempted either way.
func (d *Dispatcher) fanOut(ctx context.Context, m Message) {
	delivered := d.pusher.PushToUser(m.ReceiverID, EventReceiveMessage, m)
	d.pusher.PushToUser(m.ReceiverID, EventNewConversation, NewConversationPayload{
		UserID: m.SenderID, LastMessage: m.Body, Timestamp: m.CreatedAt,
	})
	if delivered {
		observability.MessagesSent.WithLabelValues("pushed").Inc()
	} else {
		observability.MessagesSent.WithLabelValues("stored_only").Inc()
		if d.offline != nil {
			if err := d.offline.MessageForOffline(ctx, m); err != nil {
				log.Warn().Err(err).Str("message_id", m.ID).Msg("offline alert not enqueued")
			}
		}
	}
	d.pusher.PushToUser(m.SenderID, EventNewConversation, NewConversationPayload{
		UserID: m.ReceiverID, LastMessage: m.Body, Timestamp: m.CreatedAt,
	})
}

// Fetch returns the conversation between a and b, oldest first. The result
// is the same whichever way round the pair is given.
func (d *Dispatcher) Fetch(ctx context.Context, a, b string, since time.Time) ([]Message, error) {
	if a == "" || b == "" {
		return nil, apperr.Validation("both participants are required")
	}
	msgs, err := d.store.ListBetween(ctx, a, b, since)
	if err != nil {
		return nil, apperr.Unavailable("could not load messages", err)
	}
	return msgs, nil
}

// Conversations lists userID's threads, newest first.
func (d *Dispatcher) Conversations(ctx context.Context, userID string) ([]Conversation, error) {
	latest, err := d.store.LatestPerCounterpart(ctx, userID, conversationsLimit)
	if err != nil {
		return nil, apperr.Unavailable("could not load conversations", err)
	}
	out := make([]Conversation, 0, len(latest))
	for _, m := range latest {
		other := m.ReceiverID
		if other == userID {
			other = m.SenderID
		}
		out = append(out, Conversation{UserID: other, LastMessage: m.Body, Timestamp: m.CreatedAt})
	}
	return out, nil
}
