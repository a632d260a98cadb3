package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/park285/cheese-arena/internal/chessbuilder"
	appcfg "github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/obslog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("arena-server: %v", err)
	}
}

func run() error {
	cfg, err := appcfg.Load()
	if err != nil {
		return err
	}
	flush, err := obslog.InitFromEnv()
	if err != nil {
		return err
	}
	defer func() { _ = flush() }()
	logger := obslog.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	deps, err := chessbuilder.New(initCtx, cfg)
	cancel()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           deps.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server_shutdown")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		// hijacked websocket connections are not covered by Shutdown
		err := srv.Shutdown(sctx)
		return errors.Join(err, deps.Close(sctx))
	})

	if err := g.Wait(); err != nil {
		logger.Error("server_exit", zap.Error(err))
		return err
	}
	logger.Info("server_stopped")
	return nil
}
