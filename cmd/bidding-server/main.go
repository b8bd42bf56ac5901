// Command bidding-server serves campaigns and bids over HTTP.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"

	"bidding/internal/api"
	"bidding/internal/bidding"
	"bidding/internal/config"
	"bidding/internal/events"
	"bidding/internal/logging"
	"bidding/internal/metrics"
	"bidding/internal/throttle"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatal(err)
	}

	logger := logging.New("bidding-server", cfg.LogLevel, nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, cfg config.Server, logger *log.Logger) error {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	store, closeStore, err := openStore(connectCtx, cfg, logger)
	cancel()

	if err != nil {
		return err
	}
	defer closeStore()

	var publisher events.Publisher = events.Nop{}
	if cfg.AMQPURL != "" {
		p, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}

		logger.Infof("Publishing won bids to exchange %s", p.Exchange())
		publisher = p
	}
	defer publisher.Close()

	throttler := throttle.New(
		throttle.WithLimit(cfg.SpendLimit),
		throttle.WithWindow(cfg.SpendWindow),
	)
	bidder := bidding.New(store, throttler,
		bidding.WithAmount(cfg.BidAmount),
		bidding.WithTimeout(cfg.BidTimeout),
	)

	srv := api.New(store, bidder, publisher, logger)
	admin := &http.Server{
		Addr:              cfg.AdminAddr,
		Handler:           api.NewAdminRouter(metrics.NewRegistry(), store),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 2)

	go func() {
		logger.Infof("Starting server on %s", cfg.Addr)
		if err := srv.Start(cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	go func() {
		logger.Infof("Admin endpoints on %s", cfg.AdminAddr)
		if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errc:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutting down api: %v", err)
	}

	if err := admin.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutting down admin: %v", err)
	}

	return nil
}
