package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-commerce-inventory/internal/cart"
	"github.com/ariefcatur/go-commerce-inventory/internal/config"
	kafkax "github.com/ariefcatur/go-commerce-inventory/internal/kafka"
	"github.com/ariefcatur/go-commerce-inventory/internal/orders"
	"github.com/ariefcatur/go-commerce-inventory/internal/postgres"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	pStock := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockChanged, 1024)
	pStock.Start(ctx)

	sweeper := &cart.Sweeper{
		DB:        db,
		IdleAfter: cfg.CartIdleAfter,
		Notifier: &orders.KafkaNotifier{
			Stock:   pStock,
			Service: cfg.ServiceName + "-sweeper",
		},
	}

	go func() {
		log.Info().
			Dur("interval", cfg.SweepInterval).
			Dur("idle_after", cfg.CartIdleAfter).
			Msg("abandonment sweeper started")
		sweeper.Run(ctx, cfg.SweepInterval)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down sweeper...")

	pStock.Close()
	cancel()
	pStock.WaitClosed()
}
