package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trader-backend/internal/config"
	"trader-backend/internal/infrastructure/adapters"
	"trader-backend/internal/infrastructure/binance"
	"trader-backend/internal/infrastructure/db"
	"trader-backend/internal/infrastructure/fcm"
	"trader-backend/internal/repository"
	"trader-backend/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	markets := repository.NewPostgresMarketRepository(pool)
	strategies := repository.NewPostgresStrategyRepository(pool)
	candles := repository.NewPostgresCandleRepository(pool)
	positions := repository.NewPostgresPositionRepository(pool)
	orders := repository.NewPostgresOrderRepository(pool)
	tokens := repository.NewPostgresTokenRepository(pool)

	fcmClient, err := fcm.NewClient()
	if err != nil {
		log.Fatalf("fcm: %v", err)
	}
	notifier := usecase.NewFCMNotifier(fcmClient, tokens)

	var stream *binance.Stream
	if len(cfg.StreamSymbols) > 0 {
		stream = binance.NewStream(cfg.StreamSymbols)
		go stream.Run(ctx)
	}
	factory := adapters.NewFactory(stream)

	strategySvc := usecase.NewStrategyService(markets, markets, strategies, candles, factory)
	positionSvc := usecase.NewPositionService(markets, markets, markets, strategies, positions, orders, candles, factory, notifier)

	watchdog := usecase.NewWatchdog(strategySvc, positionSvc, strategies, positions, cfg.WatchdogInterval(), cfg.Watchdog.Workers)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		log.Printf("metrics listening on %s", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	watchdog.Run(ctx)
}
