// Package httpx is the outbound HTTP capability shared by every upstream
// client: per-call headers and query params, a flat timeout, a rate limit
// and an optional circuit breaker.
package httpx

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0"

// Request is a single outbound call.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	Query  url.Values
	Body   []byte
}

// Response is a fully read upstream response.
type Response struct {
	Status   int
	Header   http.Header
	Body     []byte
	FinalURL string
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

func (r *Response) Text() string { return string(r.Body) }

// Doer performs outbound calls.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// DoerFunc adapts a function to Doer.
type DoerFunc func(ctx context.Context, req Request) (*Response, error)

func (f DoerFunc) Do(ctx context.Context, req Request) (*Response, error) { return f(ctx, req) }

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d body=%q", e.URL, e.Status, e.Body)
}

// Checked performs req and wraps transport failures and non-2xx statuses in
// media.ErrUpstream.
func Checked(ctx context.Context, d Doer, req Request) (*Response, error) {
	resp, err := d.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", media.ErrUpstream, methodOf(req), req.URL, err)
	}
	if !resp.OK() {
		body := resp.Body
		if len(body) > 200 {
			body = body[:200]
		}
		return nil, fmt.Errorf("%w: %w", media.ErrUpstream, &StatusError{URL: req.URL, Status: resp.Status, Body: string(body)})
	}
	return resp, nil
}

// Get is Checked with GET.
func Get(ctx context.Context, d Doer, rawURL string, header map[string]string, query url.Values) (*Response, error) {
	return Checked(ctx, d, Request{Method: http.MethodGet, URL: rawURL, Header: header, Query: query})
}

func methodOf(req Request) string {
	if req.Method == "" {
		return http.MethodGet
	}
	return req.Method
}

// ClientConfig holds transport settings.
type ClientConfig struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
}

// Client is the net/http backed Doer.
type Client struct {
	HTTPClient *http.Client
	Config     ClientConfig
	CB         *gobreaker.CircuitBreaker
	Limiter    *rate.Limiter
	Log        *zap.Logger
}

var _ Doer = (*Client)(nil)

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

func New(cfg ClientConfig, opts ...Option) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 8 << 20
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 10
	}
	c := &Client{
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Config:     cfg,
		Limiter:    rate.NewLimiter(limit, cfg.Burst),
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BreakerConfig mirrors gobreaker.Settings in env-friendly form.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// NewCircuitBreaker trips after FailureThreshold consecutive failures.
func NewCircuitBreaker(name string, cfg BreakerConfig, log *zap.Logger) *gobreaker.CircuitBreaker {
	if log == nil {
		log = zap.NewNop()
	}
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info("circuit-breaker state change", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
}

// serverError lets 5xx responses count against the breaker while still
// reaching the caller.
type serverError struct{ resp *Response }

func (e *serverError) Error() string { return fmt.Sprintf("server error: status %d", e.resp.Status) }

func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if err := c.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if c.CB == nil {
		return c.do(ctx, req)
	}
	result, err := c.CB.Execute(func() (interface{}, error) {
		resp, err := c.do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Status >= 500 {
			return resp, &serverError{resp: resp}
		}
		return resp, nil
	})
	var se *serverError
	if errors.As(err, &se) {
		return se.resp, nil
	}
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

func (c *Client) do(ctx context.Context, r Request) (*Response, error) {
	u := r.URL
	if len(r.Query) > 0 {
		parsed, err := url.Parse(r.URL)
		if err != nil {
			return nil, err
		}
		q := parsed.Query()
		for k, vs := range r.Query {
			q[k] = vs
		}
		parsed.RawQuery = q.Encode()
		u = parsed.String()
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, methodOf(r), u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", c.Config.UserAgent)
	for k, v := range r.Header {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		c.Log.Debug("request failed", zap.String("url", u), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	reader := resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		reader = gz
	}
	b, err := io.ReadAll(io.LimitReader(reader, c.Config.MaxBodyBytes))
	if err != nil {
		return nil, err
	}
	c.Log.Debug("request done", zap.String("url", u), zap.Int("status", resp.StatusCode), zap.Duration("took", time.Since(start)))
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: b, FinalURL: resp.Request.URL.String()}, nil
}
