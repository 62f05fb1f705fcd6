package marketplace

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sudo-init-do/gigmarket/internal/apperr"
)

// GigService lists gigs for sellers.
type GigService struct {
	gigs GigStore
	now  func() time.Time
}

func NewGigService(gigs GigStore, now func() time.Time) *GigService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &GigService{gigs: gigs, now: now}
}

// CreateGigInput describes a new listing.
type CreateGigInput struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=5000"`
	Price       int64  `json:"price" validate:"min=0"`
}

// Create lists a gig owned by seller.
func (s *GigService) Create(ctx context.Context, seller Actor, in CreateGigInput) (Gig, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return Gig{}, apperr.Validation("title is required")
	}
	if in.Price < 0 {
		return Gig{}, apperr.Validation("price must not be negative")
	}
	now := s.now()
	g := Gig{
		ID:          uuid.NewString(),
		SellerID:    seller.ID,
		Title:       title,
		Description: in.Description,
		Price:       in.Price,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.gigs.CreateGig(ctx, &g); err != nil {
		return Gig{}, apperr.Unavailable("could not create gig", err)
	}
	return g, nil
}

// Get returns a gig with its current rating.
func (s *GigService) Get(ctx context.Context, id string) (Gig, error) {
	return loadGig(ctx, s.gigs, id)
}

// RecomputeRatings refreshes the rating of every gig, or of the given ones.
func (s *GigService) RecomputeRatings(ctx context.Context, ids ...string) ([]Gig, error) {
	if len(ids) == 0 {
		all, err := s.gigs.ListGigIDs(ctx)
		if err != nil {
			return nil, apperr.Unavailable("could not list gigs", err)
		}
		ids = all
	}
	out := make([]Gig, 0, len(ids))
	for _, id := range ids {
		if _, err := loadGig(ctx, s.gigs, id); err != nil {
			return out, err
		}
		g, err := s.gigs.RefreshGigRating(ctx, id)
		if err != nil {
			return out, apperr.Unavailable("could not refresh rating", err)
		}
		out = append(out, g)
	}
	return out, nil
}

func loadGig(ctx context.Context, gigs GigStore, id string) (Gig, error) {
	g, err := gigs.GetGig(ctx, id)
	if errors.Is(err, ErrNoRecord) {
		return Gig{}, apperr.NotFound("gig %s not found", id)
	}
	if err != nil {
		return Gig{}, apperr.Unavailable("could not load gig", err)
	}
	return g, nil
}
