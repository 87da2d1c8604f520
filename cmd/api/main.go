package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ariefcatur/go-commerce-inventory/internal/cart"
	"github.com/ariefcatur/go-commerce-inventory/internal/catalog"
	"github.com/ariefcatur/go-commerce-inventory/internal/config"
	"github.com/ariefcatur/go-commerce-inventory/internal/httpx"
	kafkax "github.com/ariefcatur/go-commerce-inventory/internal/kafka"
	"github.com/ariefcatur/go-commerce-inventory/internal/orders"
	"github.com/ariefcatur/go-commerce-inventory/internal/postgres"
	"github.com/ariefcatur/go-commerce-inventory/internal/redisx"
)

func main() {
	_ = godotenv.Load()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pOrders := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderCreated, 1024)
	pOrders.Start(ctx)
	pStatus := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderStatusChanged, 1024)
	pStatus.Start(ctx)
	pStock := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockChanged, 1024)
	pStock.Start(ctx)

	notifier := &orders.KafkaNotifier{
		Orders:   pOrders,
		Statuses: pStatus,
		Stock:    pStock,
		Service:  cfg.ServiceName,
	}

	// Services & handlers
	catalogRepo := &catalog.Repo{DB: db, Redis: rdb}
	cartSvc := &cart.Service{DB: db, Notifier: notifier}
	orderSvc := &orders.Service{DB: db, Notifier: notifier, Catalog: catalogRepo}
	orderRepo := &orders.Repo{DB: db}

	router := httpx.NewRouter()
	(&httpx.CartHandler{Service: cartSvc}).Register(router)
	(&httpx.OrdersHandler{Service: orderSvc, Repo: orderRepo, Redis: rdb}).Register(router)
	(&httpx.ProductsHandler{Catalog: catalogRepo}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)

	// close inboxes -> flush & close writers, then stop the loops
	pOrders.Close()
	pStatus.Close()
	pStock.Close()
	cancel()
	pOrders.WaitClosed()
	pStatus.WaitClosed()
	pStock.WaitClosed()
}
