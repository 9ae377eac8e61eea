package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oakmart/storefront/internal/assistant"
	"github.com/oakmart/storefront/internal/cache"
	"github.com/oakmart/storefront/internal/cart"
	"github.com/oakmart/storefront/internal/catalog"
	"github.com/oakmart/storefront/internal/checkout"
	"github.com/oakmart/storefront/internal/config"
	"github.com/oakmart/storefront/internal/events"
	"github.com/oakmart/storefront/internal/httpx"
	kafkax "github.com/oakmart/storefront/internal/kafka"
	"github.com/oakmart/storefront/internal/postgres"
	"github.com/oakmart/storefront/internal/redisx"
	"github.com/oakmart/storefront/internal/session"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	orderProd := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicOrderCreated, 1024)
	orderProd.Start(ctx)
	activityProd := kafkax.NewProducer(cfg.KafkaBrokers, events.TopicActivityTracked, 1024)
	activityProd.Start(ctx)

	// Stores & services
	c := cache.New(rdb)
	cartSvc := &cart.Service{
		Repo:  &cart.Repo{DB: db},
		Cache: c,
		Guest: &cart.GuestStore{R: rdb},
	}
	checkoutSvc := &checkout.Service{
		Repo:        &checkout.Repo{DB: db},
		Redis:       rdb,
		Cache:       c,
		Producer:    orderProd,
		ServiceName: cfg.ServiceName,
	}
	assistantSvc := &assistant.Service{
		Redis:       rdb,
		Chat:        assistant.NewHTTPChatClient(cfg.AssistantAPIURL),
		Producer:    activityProd,
		ServiceName: cfg.ServiceName,
	}

	// Router
	router := httpx.NewRouter()
	router.Use(httpx.WithSession(session.NewReader(rdb)))
	(&httpx.StorefrontHandler{Products: &catalog.Repo{DB: db}, Cache: c}).Register(router)
	(&httpx.CartHandler{Svc: cartSvc, Cache: c}).Register(router)
	(&httpx.CheckoutHandler{Svc: checkoutSvc}).Register(router)
	(&httpx.AssistantHandler{Svc: assistantSvc}).Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	orderProd.Close()
	activityProd.Close()
	cancel()
	orderProd.WaitClosed()
	activityProd.WaitClosed()
}
