package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketPulse/internal/domain/models"
	drepo "MarketPulse/internal/domain/repository"
	svccache "MarketPulse/internal/service/cache"
)

// TickProcessor turns live ticks into price observations. Writes are
// batched; the response cache is refreshed immediately so scheduled
// resolutions see the freshest price without a provider call.
type TickProcessor struct {
	store   drepo.Store
	cache   *svccache.ResponseCache
	metrics drepo.Metrics
	batchSz int
	batchTO time.Duration

	mu      sync.Mutex
	pending []*models.Observation
	stopCh  chan struct{}
	started bool
}

func NewTickProcessor(store drepo.Store, cache *svccache.ResponseCache, metrics drepo.Metrics, batchSz int, batchTO time.Duration) *TickProcessor {
	if batchSz <= 0 {
		batchSz = 100
	}
	if batchTO <= 0 {
		batchTO = 2 * time.Second
	}
	return &TickProcessor{
		store:   store,
		cache:   cache,
		metrics: metrics,
		batchSz: batchSz,
		batchTO: batchTO,
		stopCh:  make(chan struct{}),
	}
}

// Start launches the periodic flush loop.
func (p *TickProcessor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		ticker := time.NewTicker(p.batchTO)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := p.Flush(ctx); err != nil {
					p.metrics.RecordError("tick_flush")
				}
			}
		}
	}()
}

// Stop halts the flush loop and drains the remaining batch.
func (p *TickProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
	return p.Flush(ctx)
}

// Process accepts one tick. The cache refresh is synchronous; the store
// write waits for the next batch flush.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}
	obs := &models.Observation{
		DataType: models.DataTypePrice,
		Symbol:   t.Symbol,
		Value:    t.Price,
		Source:   "exchange-ws",
		Ts:       time.Unix(t.Timestamp, 0),
	}

	p.cache.Put(obs.Key(), obs.Value, obs.Source)
	p.metrics.RecordMetricValue(obs.Key().String(), obs.Value)

	p.mu.Lock()
	p.pending = append(p.pending, obs)
	full := len(p.pending) >= p.batchSz
	p.mu.Unlock()

	if full {
		return p.Flush(ctx)
	}
	return nil
}

// Flush writes the pending batch to the store.
func (p *TickProcessor) Flush(ctx context.Context) error {
	p.mu.Lock()
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	if err := p.store.InsertObservations(ctx, batch); err != nil {
		// put the batch back so the next flush retries it
		p.mu.Lock()
		p.pending = append(batch, p.pending...)
		p.mu.Unlock()
		return fmt.Errorf("flush ticks: %w", err)
	}
	p.metrics.RecordLatency("tick_batch_insert", time.Since(start).Seconds())
	return nil
}
