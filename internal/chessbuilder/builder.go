// Package chessbuilder wires the store, room manager, results repository,
// bot factory, message catalog and renderer from configuration.
package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/bot"
	"github.com/park285/Cheese-RelayChess/internal/config"
	"github.com/park285/Cheese-RelayChess/internal/kvstore"
	"github.com/park285/Cheese-RelayChess/internal/msgcat"
	"github.com/park285/Cheese-RelayChess/internal/obslog"
	"github.com/park285/Cheese-RelayChess/internal/pvpchan"
	"github.com/park285/Cheese-RelayChess/internal/render"
	"github.com/park285/Cheese-RelayChess/internal/results"
)

type Deps struct {
	Config   *config.AppConfig
	Store    kvstore.Store
	Rooms    *pvpchan.Manager
	Repo     results.Repository
	Catalog  *msgcat.Catalog
	Renderer render.Renderer
}

func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger := obslog.L()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var repo results.Repository
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		pg, err := results.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init results repository: %w", err)
		}
		repo = pg
	} else {
		logger.Warn("results_memory_repository", zap.String("reason", "DATABASE_URL not set"))
		repo = results.NewMemoryRepository()
	}

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		_ = store.Close()
		_ = repo.Close()
		return nil, fmt.Errorf("init message catalog: %w", err)
	}

	logger.Info("deps_ready",
		zap.String("store", cfg.StoreBackend),
		zap.Int("bot_depth", cfg.BotDepth),
		zap.Bool("postgres", cfg.DatabaseURL != ""))

	return &Deps{
		Config:   cfg,
		Store:    store,
		Rooms:    pvpchan.NewManager(store),
		Repo:     repo,
		Catalog:  catalog,
		Renderer: render.NewSVGBoardRenderer(),
	}, nil
}

func openStore(ctx context.Context, cfg *config.AppConfig) (kvstore.Store, error) {
	opts := kvstore.Options{
		Prefix:       cfg.StoreKeyPrefix,
		TTL:          cfg.StoreTTL(),
		PollInterval: cfg.StorePollInterval(),
	}
	switch cfg.StoreBackend {
	case config.BackendRedis:
		s, err := kvstore.OpenRedis(ctx, cfg.RedisURL, opts)
		if err != nil {
			return nil, fmt.Errorf("init redis store: %w", err)
		}
		return s, nil
	case config.BackendBadger:
		s, err := kvstore.OpenBadger(cfg.BadgerDir, opts)
		if err != nil {
			return nil, fmt.Errorf("init badger store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

// NewBot returns a bot for a named preset, or the configured depth when
// preset is empty. BOT_SEED drives tie-breaks; varied presets without a seed
// draw one from the clock.
func (d *Deps) NewBot(preset string) (*bot.Bot, error) {
	if strings.TrimSpace(preset) == "" {
		b := bot.New(d.Config.BotDepth)
		b.SetRandomSeed(d.Config.BotSeed)
		return b, nil
	}
	p, err := bot.GetPreset(preset)
	if err != nil {
		return nil, err
	}
	seed := d.Config.BotSeed
	if seed == 0 && p.Varied {
		seed = time.Now().UnixNano()
	}
	return bot.NewFromPreset(p, seed), nil
}

func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	if d.Repo != nil {
		errs = append(errs, d.Repo.Close())
	}
	return errors.Join(errs...)
}
