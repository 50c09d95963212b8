package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/furnistore/order-reserve/internal/checkout"
	"github.com/furnistore/order-reserve/internal/config"
	"github.com/furnistore/order-reserve/internal/httpx"
	kafkax "github.com/furnistore/order-reserve/internal/kafka"
	"github.com/furnistore/order-reserve/internal/metrics"
	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/furnistore/order-reserve/internal/payments"
	"github.com/furnistore/order-reserve/internal/postgres"
	"github.com/furnistore/order-reserve/internal/reconcile"
	"github.com/furnistore/order-reserve/internal/redisx"
	"github.com/furnistore/order-reserve/internal/stock"
	"github.com/joho/godotenv"
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

	// Kafka producer (lifecycle events)
	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024)
	prod.Start(ctx)

	// Wiring
	repo := &orders.Repo{DB: db}
	ledger := &stock.PGLedger{DB: db}
	gateway := payments.NewClient(cfg.GatewayBaseURL)
	mset := metrics.New("api")

	svc := &checkout.Service{
		Ledger:  ledger,
		Store:   repo,
		Gateway: gateway,
		TTL:     cfg.ReservationTTL,
	}
	rec := &reconcile.Reconciler{
		Store:   repo,
		Ledger:  ledger,
		Gateway: gateway,
	}

	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Checkout: svc,
		Rec:      rec,
		Store:    repo,
		Products: ledger,
		Redis:    rdb,
		Producer: prod,
		Metrics:  mset,
		Service:  cfg.ServiceName,
	}
	oh.Register(router)

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
	prod.Close()
	cancel()
	prod.WaitClosed()
}
