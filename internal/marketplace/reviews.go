package marketplace

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
)

const maxCommentRunes = 1000

// ReviewDeps wires a ReviewService.
type ReviewDeps struct {
	Reviews ReviewStore
	Orders  OrderStore
	Gigs    GigStore
	Now     func() time.Time
}

// ReviewService manages reviews and keeps gig ratings in step with them.
type ReviewService struct {
	reviews ReviewStore
	orders  OrderStore
	gigs    GigStore
	now     func() time.Time
	tracer  trace.Tracer
}

func NewReviewService(d ReviewDeps) *ReviewService {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ReviewService{
		reviews: d.Reviews,
		orders:  d.Orders,
		gigs:    d.Gigs,
		now:     now,
		tracer:  otel.Tracer("gigmarket/marketplace"),
	}
}

// Create records author's review of a gig they bought and completed.
func (s *ReviewService) Create(ctx context.Context, author Actor, in CreateReviewRequest) (Review, Gig, error) {
	ctx, span := s.tracer.Start(ctx, "ReviewService.Create", trace.WithAttributes(attribute.String("gig.id", in.GigID)))
	defer span.End()

	comment, err := checkReview(in.Rating, in.Comment)
	if err != nil {
		return Review{}, Gig{}, err
	}
	if _, err := loadGig(ctx, s.gigs, in.GigID); err != nil {
		return Review{}, Gig{}, err
	}
	o, err := s.orders.CompletedOrderFor(ctx, author.ID, in.GigID)
	if errors.Is(err, ErrNoRecord) {
		return Review{}, Gig{}, apperr.Forbidden("only buyers with a completed order can review this gig")
	}
	if err != nil {
		return Review{}, Gig{}, apperr.Unavailable("could not check orders", err)
	}

	now := s.now()
	r := Review{
		ID:        uuid.NewString(),
		GigID:     in.GigID,
		AuthorID:  author.ID,
		OrderID:   o.ID,
		Rating:    in.Rating,
		Comment:   comment,
		CreatedAt: now,
		UpdatedAt: now,
	}
	g, err := s.reviews.CreateReview(ctx, &r)
	switch {
	case errors.Is(err, ErrDuplicate):
		return Review{}, Gig{}, apperr.Conflict("you have already reviewed this gig")
	case errors.Is(err, ErrNoRecord):
		return Review{}, Gig{}, apperr.NotFound("gig %s not found", in.GigID)
	case err != nil:
		return Review{}, Gig{}, apperr.Unavailable("could not save review", err)
	}
	return r, g, nil
}

// Update changes rating and comment. Only the author may edit a review.
func (s *ReviewService) Update(ctx context.Context, actor Actor, reviewID string, in UpdateReviewRequest) (Review, Gig, error) {
	cur, err := s.load(ctx, reviewID)
	if err != nil {
		return Review{}, Gig{}, err
	}
	if cur.AuthorID != actor.ID {
		return Review{}, Gig{}, apperr.Forbidden("only the author can edit a review")
	}
	comment, err := checkReview(in.Rating, in.Comment)
	if err != nil {
		return Review{}, Gig{}, err
	}
	r, g, err := s.reviews.UpdateReview(ctx, reviewID, in.Rating, comment, s.now())
	if errors.Is(err, ErrNoRecord) {
		return Review{}, Gig{}, apperr.NotFound("review %s not found", reviewID)
	}
	if err != nil {
		return Review{}, Gig{}, apperr.Unavailable("could not update review", err)
	}
	return r, g, nil
}

// Delete removes a review. Authors and admins may delete.
func (s *ReviewService) Delete(ctx context.Context, actor Actor, reviewID string) (Gig, error) {
	cur, err := s.load(ctx, reviewID)
	if err != nil {
		return Gig{}, err
	}
	if cur.AuthorID != actor.ID && !actor.IsAdmin() {
		return Gig{}, apperr.Forbidden("only the author can delete a review")
	}
	g, err := s.reviews.DeleteReview(ctx, reviewID)
	if errors.Is(err, ErrNoRecord) {
		return Gig{}, apperr.NotFound("review %s not found", reviewID)
	}
	if err != nil {
		return Gig{}, apperr.Unavailable("could not delete review", err)
	}
	return g, nil
}

// ListByGig returns a gig's reviews, newest first, with its rating.
func (s *ReviewService) ListByGig(ctx context.Context, gigID string) ([]Review, Gig, error) {
	g, err := loadGig(ctx, s.gigs, gigID)
	if err != nil {
		return nil, Gig{}, err
	}
	rs, err := s.reviews.ListReviewsByGig(ctx, gigID)
	if err != nil {
		return nil, Gig{}, apperr.Unavailable("could not list reviews", err)
	}
	return rs, g, nil
}

func (s *ReviewService) load(ctx context.Context, id string) (Review, error) {
	r, err := s.reviews.GetReview(ctx, id)
	if errors.Is(err, ErrNoRecord) {
		return Review{}, apperr.NotFound("review %s not found", id)
	}
	if err != nil {
		return Review{}, apperr.Unavailable("could not load review", err)
	}
	return r, nil
}

func checkReview(rating int, comment string) (string, error) {
	if rating < 1 || rating > 5 {
		return "", apperr.ValidationFields("rating must be between 1 and 5", map[string]string{"rating": "range"})
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > maxCommentRunes {
		return "", apperr.ValidationFields("comment too long (max 1000 characters)", map[string]string{"comment": "max"})
	}
	return comment, nil
}
