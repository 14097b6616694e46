package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/park285/Cheese-RelayChess/internal/chessbuilder"
	"github.com/park285/Cheese-RelayChess/internal/config"
	"github.com/park285/Cheese-RelayChess/internal/httpapi"
	"github.com/park285/Cheese-RelayChess/internal/obslog"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := chessbuilder.New(ctx, cfg)
	if err != nil {
		obslog.L().Fatal("deps_init_error", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			obslog.L().Warn("deps_close_error", zap.Error(err))
		}
	}()

	srv := httpapi.New(httpapi.Options{
		Rooms:       deps.Rooms,
		Repo:        deps.Repo,
		Catalog:     deps.Catalog,
		Renderer:    deps.Renderer,
		NewBot:      deps.NewBot,
		WaitTimeout: cfg.WaitTimeout(),
		IdleTimeout: cfg.IdleTimeout(),
	})
	if err := srv.ListenAndServe(ctx, cfg.HTTPAddr, cfg.WSAddr); err != nil {
		obslog.L().Error("server_stopped", zap.Error(err))
		return
	}
	obslog.L().Info("server_shutdown")
}
