package marketplace

import (
	"context"
	"errors"
	"time"
)

// Store errors. Implementations return these (possibly wrapped) so services
// can map them without knowing the backend.
var (
	ErrNoRecord       = errors.New("marketplace: no record found")
	ErrStatusMismatch = errors.New("marketplace: order status changed concurrently")
	ErrDuplicate      = errors.New("marketplace: duplicate record")
)

// StatusPatch carries the fields written together with a status change.
type StatusPatch struct {
	DeliveryMessage *string
	PaymentRef      *string
	Paid            bool
	PaidAt          *time.Time
	UpdatedAt       time.Time
}

// OrderFilter narrows ListOrders. Participant matches either side of the order.
type OrderFilter struct {
	BuyerID     string
	SellerID    string
	Participant string
	Status      Status
	Limit       int
}

// OrderStore persists orders.
type OrderStore interface {
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	GetOrderByPaymentRef(ctx context.Context, ref string) (Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]Order, error)
	// UpdateOrderStatus moves the order from -> to only if it is still in
	// from, returning ErrStatusMismatch otherwise.
	UpdateOrderStatus(ctx context.Context, id string, from, to Status, patch StatusPatch) (Order, error)
	// CompletedOrderFor returns the newest completed order of buyerID for gigID.
	CompletedOrderFor(ctx context.Context, buyerID, gigID string) (Order, error)
	// CountOrdersByStatus returns the number of orders in each status that
	// has at least one.
	CountOrdersByStatus(ctx context.Context) (map[Status]int, error)
}

// GigStore persists gigs and their derived rating.
type GigStore interface {
	CreateGig(ctx context.Context, g *Gig) error
	GetGig(ctx context.Context, id string) (Gig, error)
	ListGigIDs(ctx context.Context) ([]string, error)
	// RefreshGigRating recomputes the gig's average from its reviews.
	RefreshGigRating(ctx context.Context, gigID string) (Gig, error)
}

// ReviewStore persists reviews. Every write recomputes the gig rating in the
// same transaction, with the gig row locked, and returns the refreshed gig.
type ReviewStore interface {
	CreateReview(ctx context.Context, r *Review) (Gig, error)
	GetReview(ctx context.Context, id string) (Review, error)
	UpdateReview(ctx context.Context, id string, rating int, comment string, at time.Time) (Review, Gig, error)
	DeleteReview(ctx context.Context, id string) (Gig, error)
	ListReviewsByGig(ctx context.Context, gigID string) ([]Review, error)
}

// Store is the full persistence surface used by the server.
type Store interface {
	OrderStore
	GigStore
	ReviewStore
	Ping(ctx context.Context) error
	Close() error
}
