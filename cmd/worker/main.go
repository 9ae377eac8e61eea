package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/oakmart/storefront/internal/config"
	"github.com/oakmart/storefront/internal/events"
	kafkax "github.com/oakmart/storefront/internal/kafka"
	"github.com/oakmart/storefront/internal/redisx"
	"github.com/oakmart/storefront/internal/worker"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	svc := &worker.Service{
		Redis:       rdb,
		ServiceName: cfg.ServiceName + "-worker",
	}

	group := getenv("ACTIVITY_GROUP", "activity-worker")
	workers := mustAtoi(os.Getenv("ACTIVITY_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, events.TopicActivityTracked, workers)

	go func() {
		log.Printf("activity consumer started: group=%s topic=%s workers=%d",
			group, events.TopicActivityTracked, workers)
		if err := cons.Start(ctx, svc.HandleActivityTracked); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down consumer...")
	cancel()
	time.Sleep(500 * time.Millisecond)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}
