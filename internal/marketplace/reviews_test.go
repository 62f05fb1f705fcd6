package marketplace_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

// completed runs an order for g from booking to approval.
func (e *env) completed(t *testing.T, b marketplace.Actor, g marketplace.Gig) marketplace.Order {
	t.Helper()
	ctx := context.Background()
	o, err := e.orders.Book(ctx, b, g.ID)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	steps := []struct {
		ev    marketplace.Event
		actor marketplace.Actor
	}{
		{marketplace.EventPaymentConfirmed, marketplace.System()},
		{marketplace.EventDeliver, seller},
		{marketplace.EventApprove, b},
	}
	for _, s := range steps {
		if o, err = e.orders.Transition(ctx, o.ID, s.ev, s.actor, marketplace.TransitionInput{}); err != nil {
			t.Fatalf("%s: %v", s.ev, err)
		}
	}
	return o
}

func TestReviewRatingAggregate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.gig(t, 2000)

	var reviews []marketplace.Review
	for i, rating := range []int{5, 4, 3} {
		b := marketplace.Actor{ID: fmt.Sprintf("buyer-%d", i+10), Role: marketplace.RoleBuyer}
		e.completed(t, b, g)
		r, gig, err := e.reviews.Create(ctx, b, marketplace.CreateReviewRequest{GigID: g.ID, Rating: rating, Comment: "  ok  "})
		if err != nil {
			t.Fatalf("review %d: %v", i, err)
		}
		if r.Comment != "ok" || gig.ReviewCount != i+1 {
			t.Fatalf("review %+v gig %+v", r, gig.Summary())
		}
		reviews = append(reviews, r)
	}

	_, gig, err := e.reviews.ListByGig(ctx, g.ID)
	if err != nil || gig.AverageRating != 4.0 || gig.ReviewCount != 3 {
		t.Fatalf("after three: %+v %v", gig.Summary(), err)
	}

	third := marketplace.Actor{ID: reviews[2].AuthorID}
	gig, err = e.reviews.Delete(ctx, third, reviews[2].ID)
	if err != nil || gig.AverageRating != 4.5 || gig.ReviewCount != 2 {
		t.Fatalf("after delete: %+v %v", gig.Summary(), err)
	}

	_, err = e.reviews.Delete(ctx, admin, reviews[1].ID)
	if err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	gig, err = e.reviews.Delete(ctx, marketplace.Actor{ID: reviews[0].AuthorID}, reviews[0].ID)
	if err != nil || gig.AverageRating != 0 || gig.ReviewCount != 0 {
		t.Fatalf("empty gig: %+v %v", gig.Summary(), err)
	}

	rs, gig, err := e.reviews.ListByGig(ctx, g.ID)
	if err != nil || len(rs) != 0 || gig.AverageRating != 0 {
		t.Fatalf("list empty: %d %+v %v", len(rs), gig.Summary(), err)
	}
}

func TestReviewRequiresCompletedOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.gig(t, 100)

	req := marketplace.CreateReviewRequest{GigID: g.ID, Rating: 5}
	if _, _, err := e.reviews.Create(ctx, buyer, req); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("no order err = %v", err)
	}
	e.paidOrder(t, g)
	if _, _, err := e.reviews.Create(ctx, buyer, req); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("in-progress order err = %v", err)
	}

	e.completed(t, buyer, g)
	if _, _, err := e.reviews.Create(ctx, buyer, req); err != nil {
		t.Fatalf("completed order: %v", err)
	}
	if _, _, err := e.reviews.Create(ctx, buyer, req); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("second review err = %v", err)
	}
	if _, _, err := e.reviews.Create(ctx, buyer, marketplace.CreateReviewRequest{GigID: "missing", Rating: 4}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing gig err = %v", err)
	}
}

func TestReviewValidationAndOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.gig(t, 100)
	e.completed(t, buyer, g)

	for _, rating := range []int{0, 6, -1} {
		_, _, err := e.reviews.Create(ctx, buyer, marketplace.CreateReviewRequest{GigID: g.ID, Rating: rating})
		if !errors.Is(err, apperr.ErrValidation) {
			t.Fatalf("rating %d err = %v", rating, err)
		}
	}

	r, _, err := e.reviews.Create(ctx, buyer, marketplace.CreateReviewRequest{GigID: g.ID, Rating: 2})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := e.reviews.Update(ctx, seller, r.ID, marketplace.UpdateReviewRequest{Rating: 5}); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger edit err = %v", err)
	}
	if _, err := e.reviews.Delete(ctx, seller, r.ID); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger delete err = %v", err)
	}
	updated, gig, err := e.reviews.Update(ctx, buyer, r.ID, marketplace.UpdateReviewRequest{Rating: 5, Comment: "better now"})
	if err != nil || updated.Rating != 5 || gig.AverageRating != 5 {
		t.Fatalf("update: %+v %+v %v", updated, gig.Summary(), err)
	}
	if _, _, err := e.reviews.Update(ctx, buyer, "missing", marketplace.UpdateReviewRequest{Rating: 3}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing review err = %v", err)
	}
}

func TestRecomputeRatings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g := e.gig(t, 100)
	e.completed(t, buyer, g)
	if _, _, err := e.reviews.Create(ctx, buyer, marketplace.CreateReviewRequest{GigID: g.ID, Rating: 4}); err != nil {
		t.Fatalf("review: %v", err)
	}
	empty := e.gig(t, 50)

	gigs, err := e.gigs.RecomputeRatings(ctx)
	if err != nil || len(gigs) != 2 {
		t.Fatalf("recompute all: %d %v", len(gigs), err)
	}
	byID := map[string]marketplace.Gig{}
	for _, x := range gigs {
		byID[x.ID] = x
	}
	if byID[g.ID].AverageRating != 4 || byID[empty.ID].ReviewCount != 0 {
		t.Fatalf("recomputed %+v", byID)
	}
	if _, err := e.gigs.RecomputeRatings(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("missing gig err = %v", err)
	}
}
