package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

const gigColumns = `id, seller_id, title, description, price, average_rating, review_count, created_at, updated_at`

const reviewColumns = `id, gig_id, author_id, order_id, rating, comment, created_at, updated_at`

func scanGig(row scanner) (marketplace.Gig, error) {
	var g marketplace.Gig
	err := row.Scan(&g.ID, &g.SellerID, &g.Title, &g.Description, &g.Price,
		&g.AverageRating, &g.ReviewCount, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func scanReview(row scanner) (marketplace.Review, error) {
	var r marketplace.Review
	err := row.Scan(&r.ID, &r.GigID, &r.AuthorID, &r.OrderID, &r.Rating, &r.Comment, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (s *Store) CreateGig(ctx context.Context, g *marketplace.Gig) error {
	_, err := s.pool.Exec(ctx, `
        INSERT INTO gigs (id, seller_id, title, description, price, average_rating, review_count, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		g.ID, g.SellerID, g.Title, g.Description, g.Price, g.AverageRating, g.ReviewCount, g.CreatedAt, g.UpdatedAt,
	)
	return translate(err, "create gig")
}

func (s *Store) GetGig(ctx context.Context, id string) (marketplace.Gig, error) {
	g, err := scanGig(s.pool.QueryRow(ctx, `SELECT `+gigColumns+` FROM gigs WHERE id = $1`, id))
	return g, translate(err, "get gig")
}

func (s *Store) ListGigIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM gigs ORDER BY id`)
	if err != nil {
		return nil, translate(err, "list gigs")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	return ids, translate(err, "list gigs")
}

func (s *Store) RefreshGigRating(ctx context.Context, gigID string) (marketplace.Gig, error) {
	var g marketplace.Gig
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockGig(ctx, tx, gigID); err != nil {
			return err
		}
		var err error
		g, err = s.refresh(ctx, tx, gigID)
		return err
	})
	return g, translate(err, "refresh rating")
}

// lockGig takes the row lock that serializes rating refreshes for a gig.
func lockGig(ctx context.Context, tx pgx.Tx, gigID string) error {
	var id string
	return tx.QueryRow(ctx, `SELECT id FROM gigs WHERE id = $1 FOR UPDATE`, gigID).Scan(&id)
}

// refresh recomputes the gig aggregate from its reviews inside tx.
func (s *Store) refresh(ctx context.Context, tx pgx.Tx, gigID string) (marketplace.Gig, error) {
	var count, sum int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(rating), 0) FROM reviews WHERE gig_id = $1`, gigID,
	).Scan(&count, &sum); err != nil {
		return marketplace.Gig{}, err
	}
	return scanGig(tx.QueryRow(ctx, `
        UPDATE gigs SET average_rating = $2, review_count = $3, updated_at = $4
        WHERE id = $1
        RETURNING `+gigColumns,
		gigID, marketplace.RoundedAverage(sum, count), count, s.now().UTC(),
	))
}

func (s *Store) CreateReview(ctx context.Context, r *marketplace.Review) (marketplace.Gig, error) {
	var g marketplace.Gig
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := lockGig(ctx, tx, r.GigID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
            INSERT INTO reviews (id, gig_id, author_id, order_id, rating, comment, created_at, updated_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			r.ID, r.GigID, r.AuthorID, r.OrderID, r.Rating, r.Comment, r.CreatedAt, r.UpdatedAt,
		); err != nil {
			return err
		}
		var err error
		g, err = s.refresh(ctx, tx, r.GigID)
		return err
	})
	return g, translate(err, "create review")
}

func (s *Store) GetReview(ctx context.Context, id string) (marketplace.Review, error) {
	r, err := scanReview(s.pool.QueryRow(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = $1`, id))
	return r, translate(err, "get review")
}

func (s *Store) UpdateReview(ctx context.Context, id string, rating int, comment string, at time.Time) (marketplace.Review, marketplace.Gig, error) {
	var (
		r marketplace.Review
		g marketplace.Gig
	)
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		gigID, err := reviewGig(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := lockGig(ctx, tx, gigID); err != nil {
			return err
		}
		r, err = scanReview(tx.QueryRow(ctx, `
            UPDATE reviews SET rating = $2, comment = $3, updated_at = $4
            WHERE id = $1
            RETURNING `+reviewColumns,
			id, rating, comment, at,
		))
		if err != nil {
			return err
		}
		g, err = s.refresh(ctx, tx, gigID)
		return err
	})
	return r, g, translate(err, "update review")
}

func (s *Store) DeleteReview(ctx context.Context, id string) (marketplace.Gig, error) {
	var g marketplace.Gig
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		gigID, err := reviewGig(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := lockGig(ctx, tx, gigID); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM reviews WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		g, err = s.refresh(ctx, tx, gigID)
		return err
	})
	return g, translate(err, "delete review")
}

func (s *Store) ListReviewsByGig(ctx context.Context, gigID string) ([]marketplace.Review, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE gig_id = $1 ORDER BY created_at DESC, id`, gigID)
	if err != nil {
		return nil, translate(err, "list reviews")
	}
	defer rows.Close()
	var out []marketplace.Review
	for rows.Next() {
		r, err := scanReview(rows)
		if err != nil {
			return nil, translate(err, "scan review")
		}
		out = append(out, r)
	}
	return out, translate(rows.Err(), "list reviews")
}

func reviewGig(ctx context.Context, tx pgx.Tx, reviewID string) (string, error) {
	var gigID string
	err := tx.QueryRow(ctx, `SELECT gig_id FROM reviews WHERE id = $1`, reviewID).Scan(&gigID)
	return gigID, err
}
