package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

func (s *Store) CreateGig(ctx context.Context, g *marketplace.Gig) error {
	return translate(s.db.WithContext(ctx).Create(g).Error, "create gig")
}

func (s *Store) GetGig(ctx context.Context, id string) (marketplace.Gig, error) {
	var g marketplace.Gig
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&g).Error
	return g, translate(err, "get gig")
}

func (s *Store) ListGigIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&marketplace.Gig{}).Order("id").Pluck("id", &ids).Error
	return ids, translate(err, "list gigs")
}

func (s *Store) RefreshGigRating(ctx context.Context, gigID string) (marketplace.Gig, error) {
	var g marketplace.Gig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", gigID).First(&marketplace.Gig{}).Error; err != nil {
			return err
		}
		var err error
		g, err = s.refresh(tx, gigID)
		return err
	})
	return g, translate(err, "refresh rating")
}

// refresh recomputes the gig aggregate inside tx. SQLite transactions are
// serialized, so no row lock is needed.
func (s *Store) refresh(tx *gorm.DB, gigID string) (marketplace.Gig, error) {
	var agg struct {
		N     int
		Total int
	}
	if err := tx.Raw(`SELECT COUNT(*) AS n, COALESCE(SUM(rating), 0) AS total FROM reviews WHERE gig_id = ?`, gigID).
		Scan(&agg).Error; err != nil {
		return marketplace.Gig{}, err
	}
	if err := tx.Model(&marketplace.Gig{}).Where("id = ?", gigID).Updates(map[string]any{
		"average_rating": marketplace.RoundedAverage(agg.Total, agg.N),
		"review_count":   agg.N,
		"updated_at":     s.now().UTC(),
	}).Error; err != nil {
		return marketplace.Gig{}, err
	}
	var g marketplace.Gig
	err := tx.Where("id = ?", gigID).First(&g).Error
	return g, err
}

func (s *Store) CreateReview(ctx context.Context, r *marketplace.Review) (marketplace.Gig, error) {
	var g marketplace.Gig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", r.GigID).First(&marketplace.Gig{}).Error; err != nil {
			return err
		}
		if err := tx.Create(r).Error; err != nil {
			return err
		}
		var err error
		g, err = s.refresh(tx, r.GigID)
		return err
	})
	return g, translate(err, "create review")
}

func (s *Store) GetReview(ctx context.Context, id string) (marketplace.Review, error) {
	var r marketplace.Review
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	return r, translate(err, "get review")
}

func (s *Store) UpdateReview(ctx context.Context, id string, rating int, comment string, at time.Time) (marketplace.Review, marketplace.Gig, error) {
	var (
		r marketplace.Review
		g marketplace.Gig
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			return err
		}
		if err := tx.Model(&marketplace.Review{}).Where("id = ?", id).Updates(map[string]any{
			"rating":     rating,
			"comment":    comment,
			"updated_at": at,
		}).Error; err != nil {
			return err
		}
		r.Rating, r.Comment, r.UpdatedAt = rating, comment, at
		var err error
		g, err = s.refresh(tx, r.GigID)
		return err
	})
	return r, g, translate(err, "update review")
}

func (s *Store) DeleteReview(ctx context.Context, id string) (marketplace.Gig, error) {
	var g marketplace.Gig
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var r marketplace.Review
		if err := tx.Where("id = ?", id).First(&r).Error; err != nil {
			return err
		}
		if err := tx.Where("id = ?", id).Delete(&marketplace.Review{}).Error; err != nil {
			return err
		}
		var err error
		g, err = s.refresh(tx, r.GigID)
		return err
	})
	return g, translate(err, "delete review")
}

func (s *Store) ListReviewsByGig(ctx context.Context, gigID string) ([]marketplace.Review, error) {
	var out []marketplace.Review
	err := s.db.WithContext(ctx).Where("gig_id = ?", gigID).Order("created_at DESC").Order("id").Find(&out).Error
	return out, translate(err, "list reviews")
}
