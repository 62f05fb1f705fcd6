package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/sudo-init-do/gigmarket/internal/config"
	"github.com/sudo-init-do/gigmarket/internal/db"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
	"github.com/sudo-init-do/gigmarket/internal/observability"
	"github.com/sudo-init-do/gigmarket/internal/store/pgstore"
	"github.com/sudo-init-do/gigmarket/internal/store/sqlstore"
)

func main() {
	gigs := pflag.StringSlice("gig", nil, "gig id to recompute (repeatable); all gigs when omitted")
	driver := pflag.String("store", "", "store driver: postgres|sqlite (overrides STORE_DRIVER)")
	timeout := pflag.Duration("timeout", 5*time.Minute, "overall deadline")
	pflag.Parse()

	cfg, _ := config.Load()
	if *driver != "" {
		cfg.DB.Driver = *driver
	}
	observability.SetupLogger(cfg.LogLevel, true)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var st marketplace.GigStore
	switch cfg.DB.Driver {
	case config.DriverSQLite:
		s, err := sqlstore.Open(cfg.DB.SQLitePath)
		if err != nil {
			log.Fatal().Err(err).Msg("open sqlite")
		}
		defer s.Close()
		st = s
	default:
		pool, err := db.Connect(ctx, cfg.DB.DSN())
		if err != nil {
			log.Fatal().Err(err).Msg("connect postgres")
		}
		defer pool.Close()
		// Ensure the rating columns exist (idempotent)
		if err := db.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("ensure schema")
		}
		st = pgstore.New(pool)
	}

	updated, err := marketplace.NewGigService(st, nil).RecomputeRatings(ctx, *gigs...)
	for _, g := range updated {
		fmt.Printf("%s\t%.1f\t%d\n", g.ID, g.AverageRating, g.ReviewCount)
	}
	if err != nil {
		log.Fatal().Err(err).Int("done", len(updated)).Msg("recompute failed")
	}
	log.Info().Int("gigs", len(updated)).Msg("ratings recomputed")
}
