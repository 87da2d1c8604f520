package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Shutdown closes the inbox and then cancels the context; the write loop
// must survive that ordering every time without a double close.
func TestShutdownCloseThenCancel(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewProducer([]string{"localhost:9092"}, "shutdown.test", 8)
		p.Start(ctx)
		p.Close()
		cancel()
		p.WaitClosed()
	}
}

func TestShutdownCancelThenClose(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		p := NewProducer([]string{"localhost:9092"}, "shutdown.test", 8)
		p.Start(ctx)
		cancel()
		p.Close()
		p.WaitClosed()
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := NewProducer([]string{"localhost:9092"}, "shutdown.test", 8)
	p.Start(ctx)

	assert.NotPanics(t, func() {
		p.Close()
		p.Close()
	})

	select {
	case <-p.closeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("write loop did not exit after Close")
	}
}
