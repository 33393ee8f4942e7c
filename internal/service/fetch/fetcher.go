package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"MarketPulse/internal/domain/models"
	"MarketPulse/internal/domain/repository"
	"MarketPulse/internal/service/ratelimit"
	xhttp "MarketPulse/pkg/http"
	xlogger "MarketPulse/pkg/logger"
)

// Request is one outbound call, relative to the provider's base URL.
type Request struct {
	Path   string
	Query  url.Values
	Header map[string]string
}

// Response is the raw provider reply.
type Response struct {
	Provider string
	Status   int
	Body     []byte
	Latency  time.Duration
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRetryBackoff sets the fixed delay before the single rate-limit retry.
func WithRetryBackoff(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.retryBackoff = d
		}
	}
}

func WithClock(c repository.Clock) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.clock = c
		}
	}
}

func WithHTTPClient(c *xhttp.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// Fetcher issues outbound calls to named providers under their rate-limit
// class. All calls to one provider flow through a single ordered worker, so
// the rate window is never checked by two in-flight calls concurrently.
type Fetcher struct {
	client       *xhttp.Client
	logger       *xlogger.Logger
	metrics      repository.Metrics
	clock        repository.Clock
	retryBackoff time.Duration

	workers map[string]*worker
	stopCh  chan struct{}
}

type worker struct {
	spec    models.ProviderSpec
	gate    *ratelimit.Gate
	breaker *gobreaker.CircuitBreaker
	jobs    chan *job
}

type job struct {
	ctx   context.Context
	req   *Request
	reply chan result
}

type result struct {
	resp *Response
	err  error
}

// NewFetcher starts one dispatch worker per provider. Close releases them.
func NewFetcher(specs []models.ProviderSpec, logger *xlogger.Logger, metrics repository.Metrics, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:       xhttp.NewClient(),
		logger:       logger,
		metrics:      metrics,
		clock:        repository.SystemClock{},
		retryBackoff: 60 * time.Second,
		workers:      make(map[string]*worker, len(specs)),
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}

	for _, spec := range specs {
		w := &worker{
			spec: spec,
			gate: ratelimit.NewGate(spec.MaxCalls, spec.Window, spec.MinInterval, f.clock),
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:    spec.ID,
				Timeout: 30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
			}),
			jobs: make(chan *job, 64),
		}
		f.workers[spec.ID] = w
		go f.runWorker(w)
	}
	return f
}

// Do executes a request against the named provider, waiting in that
// provider's FIFO queue for a dispatch slot.
func (f *Fetcher) Do(ctx context.Context, providerID string, req *Request) (*Response, error) {
	w, ok := f.workers[providerID]
	if !ok {
		return nil, &Error{Provider: providerID, Kind: KindUnavailable, Err: fmt.Errorf("unknown provider")}
	}

	j := &job{ctx: ctx, req: req, reply: make(chan result, 1)}
	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.stopCh:
		return nil, closedErr(providerID)
	}

	select {
	case r := <-j.reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.stopCh:
		// the worker may have replied just before stopping
		select {
		case r := <-j.reply:
			return r.resp, r.err
		default:
		}
		return nil, closedErr(providerID)
	}
}

// Window reports how many dispatches to the provider are inside its active
// rate window.
func (f *Fetcher) Window(providerID string) int {
	if w, ok := f.workers[providerID]; ok {
		return w.gate.InWindow()
	}
	return 0
}

// Close stops all provider workers. Pending and queued calls are answered
// with an unavailable error; an in-flight HTTP request is left to finish
// but its caller is released immediately.
func (f *Fetcher) Close() {
	close(f.stopCh)
}

func (f *Fetcher) runWorker(w *worker) {
	for {
		select {
		case <-f.stopCh:
			f.drainJobs(w)
			return
		case j := <-w.jobs:
			r := f.process(w, j)
			j.reply <- r
		}
	}
}

// drainJobs answers every queued job so no caller is left waiting after
// Close.
func (f *Fetcher) drainJobs(w *worker) {
	for {
		select {
		case j := <-w.jobs:
			j.reply <- result{err: closedErr(w.spec.ID)}
		default:
			return
		}
	}
}

func (f *Fetcher) process(w *worker, j *job) result {
	if err := j.ctx.Err(); err != nil {
		return result{err: err}
	}
	if err := w.gate.Wait(j.ctx); err != nil {
		return result{err: err}
	}

	resp, err := f.attempt(w, j)
	if err == nil {
		f.metrics.RecordFetch(w.spec.ID, j.req.Path, "ok")
		return result{resp: resp}
	}

	switch KindOf(err) {
	case KindRateLimited:
		// exactly one bounded backoff retry on 429
		f.logger.Warn("provider rate limited, backing off",
			xlogger.String("provider", w.spec.ID),
			xlogger.Duration("backoff", f.retryBackoff))
		if werr := sleepCtx(j.ctx, f.retryBackoff); werr != nil {
			return result{err: werr}
		}
		if werr := w.gate.Wait(j.ctx); werr != nil {
			return result{err: werr}
		}
		resp, err = f.attempt(w, j)
	case KindTimeout, KindNetwork:
		// one immediate retry for transient failures
		if werr := w.gate.Wait(j.ctx); werr != nil {
			return result{err: werr}
		}
		resp, err = f.attempt(w, j)
	}

	if err != nil {
		f.metrics.RecordFetch(w.spec.ID, j.req.Path, string(KindOf(err)))
		return result{err: err}
	}
	f.metrics.RecordFetch(w.spec.ID, j.req.Path, "ok")
	return result{resp: resp}
}

// attempt performs a single HTTP call through the provider's breaker.
func (f *Fetcher) attempt(w *worker, j *job) (*Response, error) {
	out, err := w.breaker.Execute(func() (interface{}, error) {
		return f.roundTrip(j.ctx, w.spec, j.req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &Error{Provider: w.spec.ID, Kind: KindUnavailable, Err: err}
		}
		return nil, err
	}
	return out.(*Response), nil
}

func (f *Fetcher) roundTrip(ctx context.Context, spec models.ProviderSpec, req *Request) (*Response, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := f.clock.Now()
	httpResp, err := f.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         spec.BaseURL + req.Path,
		QueryParams: req.Query,
		Headers:     req.Header,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Provider: spec.ID, Kind: KindTimeout, Err: err}
		}
		return nil, &Error{Provider: spec.ID, Kind: KindNetwork, Err: err}
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return nil, &Error{Provider: spec.ID, Kind: KindNetwork, Err: err}
	}
	latency := f.clock.Now().Sub(start)
	f.metrics.RecordLatency("provider_"+spec.ID, latency.Seconds())

	if httpResp.StatusCode == nethttp.StatusTooManyRequests {
		return nil, &Error{Provider: spec.ID, Kind: KindRateLimited, Status: httpResp.StatusCode}
	}
	if httpResp.StatusCode >= 400 {
		return nil, &Error{Provider: spec.ID, Kind: KindHTTP, Status: httpResp.StatusCode}
	}

	return &Response{
		Provider: spec.ID,
		Status:   httpResp.StatusCode,
		Body:     body,
		Latency:  latency,
	}, nil
}

func closedErr(provider string) error {
	return &Error{Provider: provider, Kind: KindUnavailable, Err: fmt.Errorf("fetcher closed")}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
