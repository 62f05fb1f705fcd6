package pgstore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/gigmarket/internal/db"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/messaging"
)

// newTestStore needs a disposable database in TEST_DATABASE_URL.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return New(pool)
}

func seedOrder(t *testing.T, s *Store, status marketplace.Status) marketplace.Order {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := marketplace.Order{
		ID: uuid.NewString(), BuyerID: "b-" + uuid.NewString(), SellerID: "s-" + uuid.NewString(),
		GigID: uuid.NewString(), Price: 2000, Status: status, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateOrder(context.Background(), &o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func TestUpdateOrderStatusCompareAndSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, marketplace.StatusInProgress)

	msg := "done"
	got, err := s.UpdateOrderStatus(ctx, o.ID, marketplace.StatusInProgress, marketplace.StatusDelivered,
		marketplace.StatusPatch{DeliveryMessage: &msg, UpdatedAt: time.Now().UTC()})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if got.Status != marketplace.StatusDelivered || got.DeliveryMessage != "done" {
		t.Fatalf("order = %+v", got)
	}

	_, err = s.UpdateOrderStatus(ctx, o.ID, marketplace.StatusInProgress, marketplace.StatusCancelled,
		marketplace.StatusPatch{UpdatedAt: time.Now().UTC()})
	if !errors.Is(err, marketplace.ErrStatusMismatch) {
		t.Fatalf("stale CAS err = %v", err)
	}
	_, err = s.UpdateOrderStatus(ctx, uuid.NewString(), marketplace.StatusPending, marketplace.StatusCancelled,
		marketplace.StatusPatch{UpdatedAt: time.Now().UTC()})
	if !errors.Is(err, marketplace.ErrNoRecord) {
		t.Fatalf("missing order err = %v", err)
	}
}

func TestReviewWritesRefreshRating(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	g := marketplace.Gig{ID: uuid.NewString(), SellerID: "s", Title: "logo", Price: 2000, CreatedAt: now, UpdatedAt: now}
	if err := s.CreateGig(ctx, &g); err != nil {
		t.Fatalf("gig: %v", err)
	}
	var last marketplace.Review
	for _, rating := range []int{5, 4, 3} {
		last = marketplace.Review{ID: uuid.NewString(), GigID: g.ID, AuthorID: uuid.NewString(), OrderID: "o", Rating: rating, CreatedAt: now, UpdatedAt: now}
		if _, err := s.CreateReview(ctx, &last); err != nil {
			t.Fatalf("review: %v", err)
		}
	}
	got, _ := s.GetGig(ctx, g.ID)
	if got.AverageRating != 4.0 || got.ReviewCount != 3 {
		t.Fatalf("after 3 reviews: %+v", got.Summary())
	}
	got, err := s.DeleteReview(ctx, last.ID)
	if err != nil || got.AverageRating != 4.5 {
		t.Fatalf("after delete: %+v %v", got.Summary(), err)
	}

	dup := marketplace.Review{ID: uuid.NewString(), GigID: g.ID, AuthorID: "same-author", OrderID: "o", Rating: 1, CreatedAt: now, UpdatedAt: now}
	if _, err := s.CreateReview(ctx, &dup); err != nil {
		t.Fatalf("first: %v", err)
	}
	dup.ID = uuid.NewString()
	if _, err := s.CreateReview(ctx, &dup); !errors.Is(err, marketplace.ErrDuplicate) {
		t.Fatalf("duplicate err = %v", err)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := "a-"+uuid.NewString(), "b-"+uuid.NewString()
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i, pair := range [][2]string{{a, b}, {b, a}, {a, b}} {
		m := messaging.Message{
			ID: uuid.NewString(), SenderID: pair[0], ReceiverID: pair[1], PairKey: messaging.PairKey(pair[0], pair[1]),
			Body: "hi", CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := s.SaveMessage(ctx, &m); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	msgs, err := s.ListBetween(ctx, b, a, time.Time{})
	if err != nil || len(msgs) != 3 {
		t.Fatalf("list = %d %v", len(msgs), err)
	}
	latest, err := s.LatestPerCounterpart(ctx, a, 10)
	if err != nil || len(latest) != 1 || !latest[0].CreatedAt.Equal(base.Add(2*time.Millisecond)) {
		t.Fatalf("latest = %+v %v", latest, err)
	}
}

func TestCountOrdersByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	before, err := s.CountOrdersByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	seedOrder(t, s, marketplace.StatusPending)
	seedOrder(t, s, marketplace.StatusPending)
	seedOrder(t, s, marketplace.StatusCompleted)

	after, err := s.CountOrdersByStatus(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if d := after[marketplace.StatusPending] - before[marketplace.StatusPending]; d != 2 {
		t.Fatalf("pending delta = %d", d)
	}
	if d := after[marketplace.StatusCompleted] - before[marketplace.StatusCompleted]; d != 1 {
		t.Fatalf("completed delta = %d", d)
	}
}
