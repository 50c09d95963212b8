package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/furnistore/order-reserve/internal/audit"
	"github.com/furnistore/order-reserve/internal/config"
	kafkax "github.com/furnistore/order-reserve/internal/kafka"
	"github.com/furnistore/order-reserve/internal/metrics"
	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/furnistore/order-reserve/internal/postgres"
	"github.com/joho/godotenv"
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	mset := metrics.New("auditor")
	aud := &audit.Auditor{DB: db, Metrics: mset}

	group := getenv("AUDIT_GROUP", "order-auditor")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicOrderLifecycle, 4)

	go func() {
		log.Printf("audit consumer started: group=%s topic=%s", group, orders.TopicOrderLifecycle)
		if err := cons.Start(ctx, aud.HandleLifecycle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	// metrics endpoint only
	msrv := &http.Server{Addr: getenv("METRICS_ADDR", ":9102"), Handler: metrics.Handler()}
	go func() {
		if err := msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down auditor...")
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = msrv.Shutdown(ctx2)
	time.Sleep(500 * time.Millisecond)
}
