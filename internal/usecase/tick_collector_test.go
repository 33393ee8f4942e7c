package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"MarketPulse/internal/domain/models"
)

func TestConsumeStopsWhenStreamChannelsClose(t *testing.T) {
	c := NewTickCollector(nil, nil, nopMetrics{}, nil)

	tickCh := make(chan *models.Tick)
	errCh := make(chan error)
	close(tickCh)
	close(errCh)

	done := make(chan struct{})
	go func() {
		c.consume(context.Background(), tickCh, errCh)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not return after the stream channels closed")
	}
}

func TestConsumeCountsStreamErrors(t *testing.T) {
	m := &countingMetrics{}
	c := NewTickCollector(nil, nil, m, nil)

	tickCh := make(chan *models.Tick)
	errCh := make(chan error, 2)
	errCh <- context.DeadlineExceeded
	errCh <- context.DeadlineExceeded
	close(errCh)
	close(tickCh)

	done := make(chan struct{})
	go func() {
		c.consume(context.Background(), tickCh, errCh)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume did not drain the error channel")
	}
	assert.Equal(t, 2, m.errors())
}
