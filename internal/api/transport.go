package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/fmeflow/fmeflow-cli/internal/debug"
)

// DefaultTimeout bounds a single HTTP exchange when no other deadline applies.
const DefaultTimeout = 60 * time.Second

// ResponseType tells the client how to read a response body.
type ResponseType string

const (
	ResponseJSON ResponseType = "json"
	ResponseBlob ResponseType = "blob"
)

// Request is one outgoing call. Header and Query may be modified by
// interceptors before the request is sent.
type Request struct {
	Method       string
	URL          string
	Header       http.Header
	Query        url.Values
	Body         []byte
	ContentType  string
	ResponseType ResponseType
	// Timeout bounds the exchange in place of the HTTP client's own timeout;
	// zero keeps the client timeout.
	Timeout time.Duration
	// QueryAuth also carries the token as an fmetoken query parameter.
	QueryAuth bool
}

// RawResponse is the transport's view of a response.
type RawResponse struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
}

// Transport performs a single request.
type Transport interface {
	Do(ctx context.Context, req *Request) (*RawResponse, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*RawResponse, error)

// Do implements Transport.
func (f TransportFunc) Do(ctx context.Context, req *Request) (*RawResponse, error) {
	return f(ctx, req)
}

// HTTPTransport sends requests over net/http. It applies the interceptors of
// its RequestConfig, retries idempotent requests on 429 and 5xx, and trips a
// circuit breaker after repeated server failures.
type HTTPTransport struct {
	HTTP      *http.Client
	Config    *RequestConfig
	Retry     RetryConfig
	UserAgent string
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

var _ Transport = (*HTTPTransport)(nil)

// errServerFailure marks a 5xx response for the circuit breaker.
var errServerFailure = errors.New("server error")

// NewHTTPTransport returns a transport using cfg for interceptors. A nil cfg
// means no interceptors.
func NewHTTPTransport(cfg *RequestConfig) *HTTPTransport {
	baseTransport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		baseTransport = &http.Transport{}
	}
	transport := baseTransport.Clone()
	if transport.TLSClientConfig == nil {
		transport.TLSClientConfig = &tls.Config{}
	} else {
		transport.TLSClientConfig = transport.TLSClientConfig.Clone()
	}
	transport.TLSClientConfig.MinVersion = tls.VersionTLS12

	if cfg == nil {
		cfg = NewRequestConfig()
	}
	t := &HTTPTransport{
		HTTP:   &http.Client{Timeout: DefaultTimeout, Transport: transport},
		Config: cfg,
	}
	t.SetRetryConfig(DefaultRetryConfig())
	return t
}

// SetRetryConfig replaces the retry settings and resets the circuit breaker.
func (t *HTTPTransport) SetRetryConfig(rc RetryConfig) {
	t.Retry = rc
	threshold := rc.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = DefaultCircuitBreakerThreshold
	}
	reset := rc.CircuitBreakerResetTime
	if reset <= 0 {
		reset = DefaultCircuitBreakerResetTime
	}
	t.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "fmeflow",
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})
}

// BreakerState returns the circuit breaker state.
func (t *HTTPTransport) BreakerState() gobreaker.State {
	return t.breaker.State()
}

// Do sends req. Non-2xx responses are returned without error; only
// transport failures and an open circuit produce errors.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*RawResponse, error) {
	out := cloneRequest(req)
	if t.Config != nil {
		t.Config.Apply(out)
	}
	if out.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, out.Timeout)
		defer cancel()
	}

	var resp *RawResponse
	_, err := t.breaker.Execute(func() (struct{}, error) {
		r, err := t.roundTrip(ctx, out)
		resp = r
		if err != nil {
			return struct{}{}, err
		}
		if r.Status >= 500 {
			return struct{}{}, errServerFailure
		}
		return struct{}{}, nil
	})
	switch {
	case err == nil, errors.Is(err, errServerFailure):
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, newError(CodeCircuitOpen, 0, "circuit breaker is open, too many recent failures", err)
	default:
		return nil, err
	}
}

func cloneRequest(req *Request) *Request {
	out := *req
	out.Header = req.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Query = url.Values{}
	for k, v := range req.Query {
		out.Query[k] = append([]string(nil), v...)
	}
	return &out
}

func fullURL(req *Request) (string, error) {
	if len(req.Query) == 0 {
		return req.URL, nil
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", fmt.Errorf("invalid request URL: %w", unwrapURLError(err))
	}
	q := u.Query()
	for k, v := range req.Query {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (t *HTTPTransport) roundTrip(ctx context.Context, req *Request) (*RawResponse, error) {
	target, err := fullURL(req)
	if err != nil {
		return nil, err
	}
	isIdempotent := req.Method == http.MethodGet || req.Method == http.MethodHead || req.Method == http.MethodOptions
	client := t.HTTP
	if req.Timeout > 0 && client.Timeout > 0 {
		unbounded := *client
		unbounded.Timeout = 0
		client = &unbounded
	}

	var retries429, retries5xx int
	attempt := 0
	for {
		attempt++
		start := time.Now()
		var bodyReader io.Reader
		if req.Body != nil {
			bodyReader = bytes.NewReader(req.Body)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", unwrapURLError(err))
		}
		for k, v := range req.Header {
			httpReq.Header[k] = v
		}
		if req.ContentType != "" {
			httpReq.Header.Set("Content-Type", req.ContentType)
		}
		if httpReq.Header.Get("Accept") == "" {
			if req.ResponseType == ResponseBlob {
				httpReq.Header.Set("Accept", "*/*")
			} else {
				httpReq.Header.Set("Accept", "application/json")
			}
		}
		if t.UserAgent != "" {
			httpReq.Header.Set("User-Agent", t.UserAgent)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			err = redactURLError(err)
			if debug.IsEnabled(ctx) {
				slog.Debug("request failed", "method", req.Method, "url", debug.RedactURL(target), "attempt", attempt, "error", err)
			}
			return nil, err
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		if debug.IsEnabled(ctx) {
			slog.Debug("request complete",
				"method", req.Method,
				"url", debug.RedactURL(target),
				"authorization", debug.RedactAuthorization(httpReq.Header.Get("Authorization")),
				"status", resp.StatusCode,
				"attempt", attempt,
				"duration", time.Since(start))
		}

		if resp.StatusCode == http.StatusTooManyRequests && isIdempotent && retries429 < t.Retry.MaxRateLimitRetries {
			delay, ok := retryAfterDuration(resp.Header)
			if !ok {
				delay = t.Retry.RateLimitBaseDelay * time.Duration(1<<retries429)
			}
			slog.Info("rate limited, retrying", "delay", delay, "attempt", retries429+1)
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, err
			}
			retries429++
			continue
		}

		if resp.StatusCode >= 500 && isIdempotent && retries5xx < t.Retry.Max5xxRetries {
			slog.Info("server error, retrying", "status", resp.StatusCode)
			if err := sleepWithContext(ctx, t.Retry.ServerErrorRetryDelay); err != nil {
				return nil, err
			}
			retries5xx++
			continue
		}

		return &RawResponse{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Header:     resp.Header,
			Body:       body,
		}, nil
	}
}

// redactURLError masks token parameters in the URL that net/http puts into
// its error text.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = debug.RedactURL(urlErr.URL)
	}
	return err
}

// unwrapURLError drops the URL from a parse failure, which cannot be redacted.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		return urlErr.Err
	}
	return err
}
