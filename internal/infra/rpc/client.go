package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/regsync/internal/metrics"
)

// Config holds registrar connection settings.
type Config struct {
	BaseURL           string        `yaml:"base_url"`
	AuthUserID        string        `yaml:"auth_user_id"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"` // negative disables retries
	BaseRetryDelay    time.Duration `yaml:"base_retry_delay"`
	QueueSize         int           `yaml:"queue_size"`
}

// ErrClosed is returned for calls submitted after Close.
var ErrClosed = errors.New("registrar client closed")

type result struct {
	resp *Response
	err  error
}

type job struct {
	ctx  context.Context
	call Call
	done chan result
}

// Client is the single entry point for registrar calls. All calls are
// funneled through one dispatcher goroutine, so at most one request is in
// flight and dispatches are spaced by 1s/RequestsPerSecond in FIFO order.
type Client struct {
	cfg        Config
	retry      RetryPolicy
	httpClient *http.Client
	monitor    *Monitor
	log        *slog.Logger

	// owned by the dispatcher goroutine
	minInterval  time.Duration
	lastDispatch time.Time

	mu      sync.RWMutex
	closed  bool
	jobs    chan *job
	stopped chan struct{}

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option customizes a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// NewClient creates a client and starts its dispatcher.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseRetryDelay <= 0 {
		cfg.BaseRetryDelay = time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	c := &Client{
		cfg:         cfg,
		retry:       RetryPolicy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.BaseRetryDelay},
		httpClient:  newHTTPClient(),
		monitor:     NewMonitor(),
		log:         slog.Default(),
		minInterval: time.Duration(float64(time.Second) / cfg.RequestsPerSecond),
		jobs:        make(chan *job, cfg.QueueSize),
		stopped:     make(chan struct{}),
		now:         time.Now,
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.run()
	return c
}

func (c *Client) run() {
	defer close(c.stopped)
	for j := range c.jobs {
		metrics.RegistrarQueueDepth.Set(float64(len(c.jobs)))
		c.dispatch(j)
	}
}

func (c *Client) dispatch(j *job) {
	if err := j.ctx.Err(); err != nil {
		j.done <- result{err: err}
		return
	}

	start := time.Now()
	resp, err := c.execute(j.ctx, j.call)

	metrics.RegistrarRequests.WithLabelValues(j.call.Endpoint, j.call.Verb.String()).Inc()
	metrics.RegistrarLatency.WithLabelValues(j.call.Endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		kind, ok := KindOf(err)
		if !ok {
			kind = "UNCLASSIFIED"
		}
		metrics.RegistrarErrors.WithLabelValues(j.call.Endpoint, string(kind)).Inc()
		c.monitor.RecordFailure(err)
	}

	j.done <- result{resp: resp, err: err}
}

// Do submits call and waits for its result. Cancelling ctx abandons the wait
// and aborts the call if it is still queued or in flight.
func (c *Client) Do(ctx context.Context, call Call) (*Response, error) {
	j := &job{ctx: ctx, call: call, done: make(chan result, 1)}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, ErrClosed
	}
	select {
	case c.jobs <- j:
		c.mu.RUnlock()
	case <-ctx.Done():
		c.mu.RUnlock()
		return nil, ctx.Err()
	}

	select {
	case r := <-j.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get performs a read call.
func (c *Client) Get(ctx context.Context, endpoint string, params Params, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, newCall(endpoint, VerbRead, params, opts))
}

// Post performs a write call.
func (c *Client) Post(ctx context.Context, endpoint string, params Params, opts ...CallOption) (*Response, error) {
	return c.Do(ctx, newCall(endpoint, VerbWrite, params, opts))
}

func newCall(endpoint string, verb Verb, params Params, opts []CallOption) Call {
	call := Call{Endpoint: endpoint, Verb: verb, Params: append(Params(nil), params...)}
	for _, opt := range opts {
		opt(&call)
	}
	return call
}

// Stats returns the health monitor snapshot.
func (c *Client) Stats() MonitorStats {
	return c.monitor.Stats()
}

// Close stops accepting calls, lets queued calls finish and releases connections.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.jobs)
	}
	c.mu.Unlock()

	<-c.stopped
	c.httpClient.CloseIdleConnections()
	return nil
}

// GetJSON performs a read call and decodes the body into T.
func GetJSON[T any](ctx context.Context, c *Client, endpoint string, params Params, opts ...CallOption) (T, error) {
	var out T
	resp, err := c.Get(ctx, endpoint, params, opts...)
	if err != nil {
		return out, err
	}
	err = resp.Decode(&out)
	return out, err
}

// PostJSON performs a write call and decodes the body into T.
func PostJSON[T any](ctx context.Context, c *Client, endpoint string, params Params, opts ...CallOption) (T, error) {
	var out T
	resp, err := c.Post(ctx, endpoint, params, opts...)
	if err != nil {
		return out, err
	}
	err = resp.Decode(&out)
	return out, err
}

var defaultClient atomic.Pointer[Client]

// SetDefault installs the process-wide client. Components should still
// receive their client explicitly; Default exists for convenience call sites.
func SetDefault(c *Client) {
	defaultClient.Store(c)
}

// Default returns the client installed with SetDefault, or nil.
func Default() *Client {
	return defaultClient.Load()
}
