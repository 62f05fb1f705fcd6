package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
	"github.com/sudo-init-do/gigmarket/internal/observability"
)

// PushEventOrderUpdated is the server event sent to both participants after
// every successful transition.
const PushEventOrderUpdated = "orderUpdated"

// Pusher delivers a server event to a user's live connection, if any.
type Pusher interface {
	PushToUser(userID, eventType string, data any) bool
}

// Notifier raises out-of-band alerts for order changes. Failures never undo
// the change that triggered them.
type Notifier interface {
	OrderChanged(ctx context.Context, o Order, ev Event) error
}

// OrderUpdate is the payload of an orderUpdated push.
type OrderUpdate struct {
	Order Order `json:"order"`
	Event Event `json:"event"`
}

// OrderDeps wires an OrderService. Pusher and Notifier are optional.
type OrderDeps struct {
	Orders   OrderStore
	Gigs     GigStore
	Pusher   Pusher
	Notifier Notifier
	Now      func() time.Time
}

// OrderService applies the order lifecycle.
type OrderService struct {
	orders   OrderStore
	gigs     GigStore
	pusher   Pusher
	notifier Notifier
	now      func() time.Time
	tracer   trace.Tracer
}

func NewOrderService(d OrderDeps) *OrderService {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &OrderService{
		orders:   d.Orders,
		gigs:     d.Gigs,
		pusher:   d.Pusher,
		notifier: d.Notifier,
		now:      now,
		tracer:   otel.Tracer("gigmarket/marketplace"),
	}
}

// CreateOrderInput describes a new order.
type CreateOrderInput struct {
	GigID    string
	BuyerID  string
	SellerID string
	Price    int64
	// PaymentRef marks an order created by a payment confirmation.
	PaymentRef string
}

// Create stores a new pending order.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (Order, error) {
	switch {
	case in.GigID == "" || in.BuyerID == "" || in.SellerID == "":
		return Order{}, apperr.Validation("gig, buyer and seller are required")
	case in.BuyerID == in.SellerID:
		return Order{}, apperr.Validation("you cannot order your own gig")
	case in.Price < 0:
		return Order{}, apperr.Validation("price must not be negative")
	}

	now := s.now()
	o := Order{
		ID:        uuid.NewString(),
		BuyerID:   in.BuyerID,
		SellerID:  in.SellerID,
		GigID:     in.GigID,
		Price:     in.Price,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.PaymentRef != "" {
		ref := in.PaymentRef
		o.PaymentRef = &ref
	}
	if err := s.orders.CreateOrder(ctx, &o); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return Order{}, apperr.Conflict("order for payment %s already exists", in.PaymentRef)
		}
		return Order{}, apperr.Unavailable("could not create order", err)
	}
	return o, nil
}

// Book creates a pending order for gigID at the gig's listed price.
func (s *OrderService) Book(ctx context.Context, buyer Actor, gigID string) (Order, error) {
	g, err := s.gig(ctx, gigID)
	if err != nil {
		return Order{}, err
	}
	return s.Create(ctx, CreateOrderInput{GigID: g.ID, BuyerID: buyer.ID, SellerID: g.SellerID, Price: g.Price})
}

// TransitionInput carries event-specific data.
type TransitionInput struct {
	DeliveryMessage string
	PaymentRef      string
}

// Transition fires ev on the order as actor. The write is conditional on the
// status read here; if another writer got there first the call fails with
// InvalidTransition and is not retried.
func (s *OrderService) Transition(ctx context.Context, orderID string, ev Event, actor Actor, in TransitionInput) (o Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.Transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.event", string(ev)),
	))
	defer func() {
		observability.OrderTransitions.WithLabelValues(string(ev), apperr.Result(err)).Inc()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	cur, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if d := Authorize(actor, cur, ev); !d.Allowed {
		return Order{}, apperr.Forbidden("%s", d.Reason)
	}
	to, ok := Next(cur.Status, ev)
	if !ok {
		return Order{}, invalid(cur, ev)
	}

	now := s.now()
	patch := StatusPatch{UpdatedAt: now}
	switch ev {
	case EventDeliver:
		msg := in.DeliveryMessage
		patch.DeliveryMessage = &msg
	case EventPaymentConfirmed:
		patch.Paid = true
		patch.PaidAt = &now
		if in.PaymentRef != "" {
			ref := in.PaymentRef
			patch.PaymentRef = &ref
		}
	}

	o, err = s.orders.UpdateOrderStatus(ctx, cur.ID, cur.Status, to, patch)
	switch {
	case errors.Is(err, ErrStatusMismatch):
		latest, rerr := s.load(ctx, orderID)
		if rerr != nil {
			return Order{}, rerr
		}
		return Order{}, invalid(latest, ev)
	case errors.Is(err, ErrDuplicate):
		return Order{}, apperr.Conflict("payment %s is already attached to another order", in.PaymentRef)
	case errors.Is(err, ErrNoRecord):
		return Order{}, apperr.NotFound("order %s not found", orderID)
	case err != nil:
		return Order{}, apperr.Unavailable("could not update order", err)
	}

	s.announce(ctx, o, ev)
	return o, nil
}

// Get returns an order visible to actor.
func (s *OrderService) Get(ctx context.Context, actor Actor, orderID string) (Order, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if !o.IsParticipant(actor.ID) && !actor.IsAdmin() {
		return Order{}, apperr.Forbidden("not a participant in this order")
	}
	return o, nil
}

// ListMine returns actor's orders. side is "buyer", "seller" or "" for both.
func (s *OrderService) ListMine(ctx context.Context, actor Actor, side string) ([]Order, error) {
	f := OrderFilter{}
	switch side {
	case RoleBuyer:
		f.BuyerID = actor.ID
	case RoleSeller:
		f.SellerID = actor.ID
	case "":
		f.Participant = actor.ID
	default:
		return nil, apperr.Validation("role must be buyer or seller")
	}
	return s.list(ctx, f)
}

// ListAll is the admin listing with arbitrary buyer, seller and status filters.
func (s *OrderService) ListAll(ctx context.Context, actor Actor, f OrderFilter) ([]Order, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("admin access only")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation("unknown status %q", f.Status)
	}
	return s.list(ctx, f)
}

// OrderStats counts orders per status. Every status is present.
type OrderStats struct {
	Total    int            `json:"total"`
	ByStatus map[Status]int `json:"by_status"`
}

// Stats is the admin overview of the order book.
func (s *OrderService) Stats(ctx context.Context, actor Actor) (OrderStats, error) {
	if !actor.IsAdmin() {
		return OrderStats{}, apperr.Forbidden("admin access only")
	}
	counts, err := s.orders.CountOrdersByStatus(ctx)
	if err != nil {
		return OrderStats{}, apperr.Unavailable("could not count orders", err)
	}
	st := OrderStats{ByStatus: make(map[Status]int, len(Statuses))}
	for _, status := range Statuses {
		st.ByStatus[status] = counts[status]
		st.Total += counts[status]
	}
	return st, nil
}

func (s *OrderService) list(ctx context.Context, f OrderFilter) ([]Order, error) {
	out, err := s.orders.ListOrders(ctx, f)
	if err != nil {
		return nil, apperr.Unavailable("could not list orders", err)
	}
	return out, nil
}

func (s *OrderService) load(ctx context.Context, id string) (Order, error) {
	o, err := s.orders.GetOrder(ctx, id)
	if errors.Is(err, ErrNoRecord) {
		return Order{}, apperr.NotFound("order %s not found", id)
	}
	if err != nil {
		return Order{}, apperr.Unavailable("could not load order", err)
	}
	return o, nil
}

func (s *OrderService) gig(ctx context.Context, id string) (Gig, error) {
	return loadGig(ctx, s.gigs, id)
}

// announce pushes the new state to both participants and raises an alert.
// Neither can fail the transition that already committed.
func (s *OrderService) announce(ctx context.Context, o Order, ev Event) {
	if s.pusher != nil {
		update := OrderUpdate{Order: o, Event: ev}
		s.pusher.PushToUser(o.BuyerID, PushEventOrderUpdated, update)
		s.pusher.PushToUser(o.SellerID, PushEventOrderUpdated, update)
	}
	if s.notifier != nil {
		if err := s.notifier.OrderChanged(ctx, o, ev); err != nil {
			log.Warn().Err(err).Str("order_id", o.ID).Str("event", string(ev)).Msg("order alert not enqueued")
		}
	}
}

func invalid(o Order, ev Event) error {
	return apperr.InvalidTransition("order %s is %s; %s is not allowed", o.ID, o.Status, ev)
}
