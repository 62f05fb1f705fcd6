// Package db opens the Postgres pool and keeps its schema current.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Connect opens a pool for dsn and pings it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Info().Str("host", cfg.ConnConfig.Host).Str("database", cfg.ConnConfig.Database).Msg("connected to postgres")
	return pool, nil
}

// EnsureSchema creates the tables and indexes the store needs. Every
// statement is idempotent.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, step := range []struct {
		name string
		sql  string
	}{
		{"gigs", gigsTable},
		{"orders", ordersTable},
		{"orders_status_check", ordersStatusCheck},
		{"messages", messagesTable},
		{"reviews", reviewsTable},
	} {
		if _, err := pool.Exec(ctx, step.sql); err != nil {
			return fmt.Errorf("ensure %s: %w", step.name, err)
		}
	}
	log.Debug().Msg("schema ensured")
	return nil
}

const gigsTable = `
CREATE TABLE IF NOT EXISTS gigs (
    id             TEXT PRIMARY KEY,
    seller_id      TEXT NOT NULL,
    title          TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    price          BIGINT NOT NULL CHECK (price >= 0),
    average_rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    review_count   INTEGER NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_gigs_seller ON gigs(seller_id);`

const ordersTable = `
CREATE TABLE IF NOT EXISTS orders (
    id               TEXT PRIMARY KEY,
    buyer_id         TEXT NOT NULL,
    seller_id        TEXT NOT NULL,
    gig_id           TEXT NOT NULL,
    price            BIGINT NOT NULL CHECK (price >= 0),
    status           TEXT NOT NULL,
    delivery_message TEXT NOT NULL DEFAULT '',
    payment_ref      TEXT UNIQUE,
    paid             BOOLEAN NOT NULL DEFAULT FALSE,
    paid_at          TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_orders_participants ON orders(buyer_id, seller_id);
CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders(seller_id);
CREATE INDEX IF NOT EXISTS idx_orders_gig ON orders(gig_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);`

// The constraint is dropped and re-added so older databases pick up the
// current status set.
const ordersStatusCheck = `
ALTER TABLE orders DROP CONSTRAINT IF EXISTS orders_status_check;
ALTER TABLE orders ADD CONSTRAINT orders_status_check
    CHECK (status IN ('pending','in_progress','delivered','completed','cancelled'));`

const messagesTable = `
CREATE TABLE IF NOT EXISTS messages (
    id          TEXT PRIMARY KEY,
    sender_id   TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    pair_key    TEXT NOT NULL,
    body        TEXT NOT NULL,
    order_id    TEXT NOT NULL DEFAULT '',
    gig_id      TEXT NOT NULL DEFAULT '',
    job_id      TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_pair_created ON messages(pair_key, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages(receiver_id);`

const reviewsTable = `
CREATE TABLE IF NOT EXISTS reviews (
    id         TEXT PRIMARY KEY,
    gig_id     TEXT NOT NULL REFERENCES gigs(id) ON DELETE CASCADE,
    author_id  TEXT NOT NULL,
    order_id   TEXT NOT NULL,
    rating     SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
    comment    TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT reviews_gig_author_key UNIQUE (gig_id, author_id)
);`
