package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/captains-backend/internal/config"
	"github.com/DoyleJ11/captains-backend/internal/httpapi"
	"github.com/DoyleJ11/captains-backend/internal/hub"
	"github.com/DoyleJ11/captains-backend/internal/logging"
	"github.com/DoyleJ11/captains-backend/internal/session"
	"github.com/DoyleJ11/captains-backend/internal/ws"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, session.Options{
		SettleDelay:   cfg.SettleDelay,
		WatchdogGrace: cfg.WatchdogGrace,
		TargetScore:   cfg.TargetScore,
		Logger:        logger,
	})

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, ws.Options{
		OutboxSize:     cfg.OutboxSize,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		select {
		case h.Inbox() <- hub.ShutdownHub{}:
			<-h.Done()
		case <-h.Done():
		}
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
