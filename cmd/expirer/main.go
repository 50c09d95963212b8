package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/furnistore/order-reserve/internal/config"
	"github.com/furnistore/order-reserve/internal/expiry"
	kafkax "github.com/furnistore/order-reserve/internal/kafka"
	"github.com/furnistore/order-reserve/internal/metrics"
	"github.com/furnistore/order-reserve/internal/orders"
	"github.com/furnistore/order-reserve/internal/postgres"
	"github.com/furnistore/order-reserve/internal/reconcile"
	"github.com/furnistore/order-reserve/internal/stock"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"
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

	prod := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderLifecycle, 1024)
	prod.Start(ctx)

	repo := &orders.Repo{DB: db}
	rec := &reconcile.Reconciler{
		Store:  repo,
		Ledger: &stock.PGLedger{DB: db},
	}

	service := cfg.ServiceName + "-expirer"
	mset := metrics.New("expirer")
	sweeper := &expiry.Sweeper{
		Store:    repo,
		Rec:      rec,
		Interval: cfg.SweepInterval,
		Batch:    cfg.SweepBatch,
		Workers:  cfg.SweepWorkers,
		Metrics:  mset,
		OnExpire: func(orderID string) {
			ev := orders.Envelope{
				EventID:       uuid.NewString(),
				EventType:     orders.EventOrderExpired,
				EventVersion:  1,
				OccurredAt:    time.Now().UTC(),
				Producer:      service,
				CorrelationID: orderID,
				Payload: kafkax.MustMarshal(orders.OrderStatusPayload{
					OrderID: orderID,
					Status:  orders.StatusExpired,
					Reason:  "reservation window elapsed",
				}),
			}
			prod.Publish(orders.PartitionKey(orderID), kafkax.MustMarshal(ev),
				kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderExpired)},
				kafkago.Header{Key: "x-event-version", Value: []byte("1")},
			)
		},
	}

	go func() {
		log.Printf("expiry sweeper started: interval=%s batch=%d workers=%d",
			cfg.SweepInterval, cfg.SweepBatch, cfg.SweepWorkers)
		if err := sweeper.Run(ctx); err != nil {
			log.Printf("sweeper exit: %v", err)
			cancel()
		}
	}()

	msrv := &http.Server{Addr: getenv("METRICS_ADDR", ":9101"), Handler: metrics.Handler()}
	go func() {
		if err := msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down sweeper...")
	cancel()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = msrv.Shutdown(ctx2)
	prod.Close()
	prod.WaitClosed()
}
