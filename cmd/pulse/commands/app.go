package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/solpulse/engine/internal/store"
	"github.com/solpulse/engine/pkg/config"
	"github.com/solpulse/engine/pkg/database"
	"github.com/solpulse/engine/pkg/logger"
	"github.com/solpulse/engine/pkg/redis"
)

// app bundles the shared process dependencies every command needs
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *database.DB
	redis *redis.Client
	store *store.Store
}

// newApp loads config, connects to the database, runs migrations and
// opens the optional redis connection
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Migrate(ctx, db.Pool); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	rdb, err := redis.New(cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, caching disabled")
		rdb = &redis.Client{}
	}

	return &app{
		cfg:   cfg,
		log:   log,
		db:    db,
		redis: rdb,
		store: store.NewPostgres(db.Pool),
	}, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}
