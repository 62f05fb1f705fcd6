package marketplace

import "time"

// Status is the lifecycle state of an Order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDelivered  Status = "delivered"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every valid status, in lifecycle order.
var Statuses = []Status{StatusPending, StatusInProgress, StatusDelivered, StatusCompleted, StatusCancelled}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no event can move an order out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Event drives an order transition.
type Event string

const (
	EventPaymentConfirmed Event = "payment_confirmed"
	EventDeliver          Event = "deliver"
	EventApprove          Event = "approve"
	EventCancel           Event = "cancel"
)

// Roles carried in access tokens.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// SystemActorID identifies transitions triggered by the payment pipeline.
const SystemActorID = "system"

// Actor is whoever asks for an operation.
type Actor struct {
	ID   string
	Role string
}

// System is the actor used for payment confirmations.
func System() Actor { return Actor{ID: SystemActorID} }

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Order is a buyer hiring a seller for a gig. Price is in minor currency
// units and never changes after creation.
type Order struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	BuyerID         string     `gorm:"size:64;not null;index:idx_orders_participants,priority:1" json:"buyer_id"`
	SellerID        string     `gorm:"size:64;not null;index:idx_orders_participants,priority:2;index" json:"seller_id"`
	GigID           string     `gorm:"size:36;not null;index" json:"gig_id"`
	Price           int64      `gorm:"not null" json:"price"`
	Status          Status     `gorm:"size:16;not null;index" json:"status"`
	DeliveryMessage string     `gorm:"type:text" json:"delivery_message,omitempty"`
	PaymentRef      *string    `gorm:"size:128;uniqueIndex" json:"payment_ref,omitempty"`
	Paid            bool       `gorm:"not null;default:false" json:"paid"`
	PaidAt          *time.Time `json:"paid_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// IsParticipant reports whether userID is the buyer or the seller.
func (o Order) IsParticipant(userID string) bool {
	return userID != "" && (userID == o.BuyerID || userID == o.SellerID)
}

// Counterpart returns the other participant of the order.
func (o Order) Counterpart(userID string) string {
	if userID == o.BuyerID {
		return o.SellerID
	}
	return o.BuyerID
}

// Gig is a listed unit of work. AverageRating and ReviewCount are derived
// from the gig's reviews and only written by rating refreshes.
type Gig struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	SellerID      string    `gorm:"size:64;not null;index" json:"seller_id"`
	Title         string    `gorm:"size:200;not null" json:"title"`
	Description   string    `gorm:"type:text" json:"description,omitempty"`
	Price         int64     `gorm:"not null" json:"price"`
	AverageRating float64   `gorm:"not null;default:0" json:"average_rating"`
	ReviewCount   int       `gorm:"not null;default:0" json:"review_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Review is a buyer's rating of a gig, at most one per (gig, author).
type Review struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	GigID     string    `gorm:"size:36;not null;uniqueIndex:idx_reviews_gig_author,priority:1" json:"gig_id"`
	AuthorID  string    `gorm:"size:64;not null;uniqueIndex:idx_reviews_gig_author,priority:2" json:"author_id"`
	OrderID   string    `gorm:"size:36;not null" json:"order_id"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RatingSummary is the aggregate shown alongside a gig's reviews.
type RatingSummary struct {
	GigID         string  `json:"gig_id"`
	AverageRating float64 `json:"average_rating"`
	ReviewCount   int     `json:"review_count"`
}

// Summary returns the gig's current rating aggregate.
func (g Gig) Summary() RatingSummary {
	return RatingSummary{GigID: g.ID, AverageRating: g.AverageRating, ReviewCount: g.ReviewCount}
}

// RoundedAverage returns sum/count rounded half-up to one decimal place.
// An empty set averages to 0. Halves are resolved in integer arithmetic.
func RoundedAverage(sum, count int) float64 {
	if count <= 0 {
		return 0
	}
	tenths := (sum*20 + count) / (2 * count)
	return float64(tenths) / 10
}
