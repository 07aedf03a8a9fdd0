// Package api is a client for the FME Flow REST API and its webhook services.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fmeflow/fmeflow-cli/internal/aoi"
	"github.com/fmeflow/fmeflow-cli/internal/validation"
)

// State is the lifecycle stage of a Client.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

var (
	errRequestTimeout = errors.New("request timed out")
	errClientDisposed = errors.New("client disposed")
	// errAborted marks a request cancelled by the caller. It never leaves
	// the package; operations turn it into an aborted Response.
	errAborted = errors.New("request aborted")
)

// validateServerURL is replaced in tests so httptest servers on loopback pass.
var validateServerURL = validation.ValidateServerURL

// Client talks to one FME Flow server. It is safe for concurrent use.
//
// Setup runs on a private FIFO queue: construction and UpdateConfig enqueue
// it, and every request waits for the latest one. Dispose cancels in-flight
// requests and enqueues a teardown that releases the client's token.
type Client struct {
	transport  Transport
	registry   *TokenRegistry
	engines    aoi.Engines
	httpClient *http.Client

	queue    *taskQueue
	lifetime context.Context
	cancel   context.CancelFunc
	state    atomic.Int32

	mu    sync.Mutex
	cfg   ClientConfig
	setup *taskResult
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(t Transport) Option {
	return func(c *Client) { c.transport = t }
}

// WithTokenRegistry scopes tokens to reg instead of the process-wide registry.
func WithTokenRegistry(reg *TokenRegistry) Option {
	return func(c *Client) { c.registry = reg }
}

// WithEngines replaces the geometry engines used by SubmitGeometryJob.
func WithEngines(e aoi.Engines) Option {
	return func(c *Client) { c.engines = e }
}

// WithHTTPClient sets the *http.Client of the default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient validates cfg and starts setup in the background. Setup errors
// surface on the first request.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{
		registry: DefaultTokenRegistry(),
		engines:  aoi.DefaultEngines("", nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		t := NewHTTPTransport(c.registry.Config())
		if c.httpClient != nil {
			t.HTTP = c.httpClient
		}
		c.transport = t
	}
	c.lifetime, c.cancel = context.WithCancel(context.Background())
	c.queue = newTaskQueue()
	c.cfg = cfg
	c.setup = c.queue.enqueue(c.setupTask(cfg))
	return c, nil
}

// State returns the lifecycle stage.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Config returns the active configuration.
func (c *Client) Config() ClientConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cfg
}

// Engines returns the geometry engines in use.
func (c *Client) Engines() aoi.Engines {
	return c.engines
}

func (c *Client) setupTask(cfg ClientConfig) func() error {
	return func() error {
		if err := validateServerURL(cfg.ServerURL); err != nil {
			return err
		}
		c.registry.Config().EnsureMaxURLLength(DefaultMaxURLLength)
		if err := c.registry.SetToken(cfg.ServerURL, cfg.Token); err != nil {
			return err
		}
		c.state.CompareAndSwap(int32(StateUninitialized), int32(StateReady))
		return nil
	}
}

// UpdateConfig replaces the configuration and enqueues a new setup. When the
// host changes the token of the previous host is released.
func (c *Client) UpdateConfig(cfg ClientConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if c.State() == StateDisposed {
		return disposedError()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.cfg
	c.cfg = cfg
	setup := c.setupTask(cfg)
	c.setup = c.queue.enqueue(func() error {
		oldHost, _ := HostOf(old.ServerURL)
		newHost, _ := HostOf(cfg.ServerURL)
		if oldHost != newHost {
			c.registry.ReleaseToken(old.ServerURL, old.Token)
		}
		return setup()
	})
	return nil
}

// Dispose cancels in-flight requests and releases the client's token. It
// does not wait for the teardown; Done closes once it has run.
func (c *Client) Dispose() {
	if State(c.state.Swap(int32(StateDisposed))) == StateDisposed {
		return
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Warn("cancel panicked during dispose", "panic", r)
			}
		}()
		c.cancel()
	}()

	cfg := c.Config()
	c.queue.close(func() error {
		c.registry.ReleaseToken(cfg.ServerURL, cfg.Token)
		return nil
	})
}

// Done closes when the client's background worker has exited after Dispose.
func (c *Client) Done() <-chan struct{} {
	return c.queue.Done()
}

func disposedError() *Error {
	return newError(CodeClientDisposed, 0, string(CodeClientDisposed), nil)
}

// ready waits for the latest setup. A failed setup is retried once; a
// second failure means the client cannot make requests at all.
func (c *Client) ready(ctx context.Context) (ClientConfig, error) {
	if c.State() == StateDisposed {
		return ClientConfig{}, disposedError()
	}
	c.mu.Lock()
	setup, cfg := c.setup, c.cfg
	c.mu.Unlock()

	err := setup.wait(ctx)
	if err == nil {
		return cfg, c.checkDisposed()
	}
	if ctx.Err() != nil {
		return cfg, errAborted
	}
	slog.Debug("client setup failed, retrying", "error", err)

	retry := c.queue.enqueue(c.setupTask(cfg))
	c.mu.Lock()
	if c.setup == setup {
		c.setup = retry
	}
	c.mu.Unlock()

	if err := retry.wait(ctx); err != nil {
		switch {
		case ctx.Err() != nil:
			return cfg, errAborted
		case errors.Is(err, errQueueClosed):
			return cfg, disposedError()
		default:
			return cfg, newError(CodeArcGISModule, 0, string(CodeArcGISModule), err)
		}
	}
	return cfg, c.checkDisposed()
}

func (c *Client) checkDisposed() error {
	if c.State() == StateDisposed {
		return disposedError()
	}
	return nil
}

// requestContext merges the caller's ctx with the client lifetime and an
// optional timeout. context.Cause tells which of them fired.
func (c *Client) requestContext(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	merged, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(c.lifetime, func() { cancel(errClientDisposed) })
	reqCtx := merged
	cancelTimeout := context.CancelFunc(func() {})
	if timeout > 0 {
		reqCtx, cancelTimeout = context.WithTimeoutCause(merged, timeout, errRequestTimeout)
	}
	return reqCtx, func() {
		cancelTimeout()
		stop()
		cancel(nil)
	}
}

// exchange sends req once setup is done and maps interruptions. req.Timeout
// bounds the exchange alongside the caller's ctx. Non-2xx responses are
// returned as-is for the operation to interpret.
func (c *Client) exchange(ctx context.Context, op ErrorCode, req *Request) (*RawResponse, error) {
	if ctx.Err() != nil {
		return nil, errAborted
	}
	reqCtx, done := c.requestContext(ctx, req.Timeout)
	defer done()

	raw, err := c.transport.Do(reqCtx, req)
	if err == nil {
		return raw, nil
	}
	if reqCtx.Err() != nil {
		return nil, interrupted(ctx, reqCtx, op, err)
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return nil, apiErr
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return nil, newError(CodeRequestTimeout, http.StatusRequestTimeout, string(CodeRequestTimeout), err)
	}
	return nil, newError(op, 0, string(op), err)
}

func interrupted(ctx, reqCtx context.Context, op ErrorCode, err error) error {
	cause := context.Cause(reqCtx)
	switch {
	case errors.Is(cause, errRequestTimeout):
		return newError(CodeRequestTimeout, http.StatusRequestTimeout, string(CodeRequestTimeout), err)
	case errors.Is(cause, errClientDisposed):
		return disposedError()
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return newError(CodeRequestTimeout, http.StatusRequestTimeout, string(CodeRequestTimeout), err)
	case ctx.Err() != nil:
		return errAborted
	default:
		return newError(op, 0, string(op), err)
	}
}

// fetchJSON runs a REST call and decodes its JSON body.
func fetchJSON[T any](ctx context.Context, c *Client, op ErrorCode, req *Request) (Response[T], error) {
	raw, err := c.exchange(ctx, op, req)
	if err != nil {
		if errors.Is(err, errAborted) {
			return aborted[T](), nil
		}
		return Response[T]{}, err
	}
	if raw.Status < 200 || raw.Status >= 300 {
		return Response[T]{}, statusError(op, raw)
	}
	return decodeJSON[T](raw, op)
}

// begin waits for setup. ok is false when the caller has already cancelled.
func (c *Client) begin(ctx context.Context) (cfg ClientConfig, ok bool, err error) {
	cfg, err = c.ready(ctx)
	if errors.Is(err, errAborted) {
		return cfg, false, nil
	}
	if err != nil {
		return cfg, false, err
	}
	return cfg, true, nil
}

func repositoryOr(cfg ClientConfig, repository string) string {
	if repository != "" {
		return repository
	}
	return cfg.Repository
}
