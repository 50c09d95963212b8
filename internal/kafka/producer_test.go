package kafka

import (
	"context"
	"testing"
	"time"
)

func waitClosed(t *testing.T, p *Producer) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.WaitClosed()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not shut down")
	}
}

func TestProducerCloseAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewProducer([]string{"localhost:9092"}, "orders.test", 8)
	p.Start(ctx)

	cancel()
	waitClosed(t, p)

	// the loop already closed the inbox on cancellation
	p.Close()
	p.Close()
}

func TestProducerCloseThenCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewProducer([]string{"localhost:9092"}, "orders.test", 8)
	p.Start(ctx)

	p.Close()
	cancel()
	waitClosed(t, p)
}
