package network

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout applies when neither the request nor the client
// defaults name one.
const DefaultTimeout = 30 * time.Second

// Doer executes one logical request.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Interceptors are the plugin-supplied hooks of one client. Each slot
// holds at most one function.
type Interceptors struct {
	Request   func(ctx context.Context, req Request) (Request, error)
	Response  func(ctx context.Context, resp Response) (Response, error)
	Validator func(ctx context.Context, resp Response) (bool, error)
}

// Defaults are merged into every request; per-call values win.
type Defaults struct {
	Headers   map[string]string
	Cookies   []Cookie
	Timeout   time.Duration
	UserAgent string
}

// Client is the network client owned by exactly one runner.
type Client struct {
	runnerID string
	http     *http.Client
	logger   zerolog.Logger
	metrics  *Metrics

	hooks    atomic.Pointer[Interceptors]
	defaults atomic.Pointer[Defaults]
	limitMu  sync.Mutex
	limiter  atomic.Pointer[rateLimiter]
	closed   atomic.Bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMetrics records request metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithDefaults sets the initial request defaults.
func WithDefaults(d Defaults) Option {
	return func(c *Client) { c.defaults.Store(&d) }
}

// NewClient creates the client for a runner.
func NewClient(runnerID string, opts ...Option) *Client {
	c := &Client{
		runnerID: runnerID,
		http:     &http.Client{},
		logger:   zerolog.Nop(),
	}
	c.defaults.Store(&Defaults{})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetInterceptors replaces all hook slots. Calls already in flight keep
// the hooks they started with.
func (c *Client) SetInterceptors(i Interceptors) {
	c.hooks.Store(&i)
}

// Interceptors returns the currently installed hooks.
func (c *Client) Interceptors() Interceptors {
	if h := c.hooks.Load(); h != nil {
		return *h
	}
	return Interceptors{}
}

// ClearInterceptors empties every hook slot.
func (c *Client) ClearInterceptors() {
	c.hooks.Store(nil)
}

// SetDefaults replaces the request defaults.
func (c *Client) SetDefaults(d Defaults) {
	c.defaults.Store(&d)
}

// Defaults returns the current request defaults.
func (c *Client) Defaults() Defaults {
	return *c.defaults.Load()
}

// SetRateLimit caps dispatches per second. rps <= 0 removes the cap.
// An unchanged rate keeps the current queue. Waiters queued on a replaced
// limiter move to the new one.
func (c *Client) SetRateLimit(rps float64) {
	c.limitMu.Lock()
	defer c.limitMu.Unlock()
	if c.closed.Load() {
		return
	}
	cur := c.limiter.Load()
	if (cur == nil && rps <= 0) || (cur != nil && cur.interval == limitInterval(rps)) {
		return
	}
	if old := c.limiter.Swap(newRateLimiter(rps)); old != nil {
		old.stop()
	}
}

// Close releases the limiter and hooks. Later requests fail with
// ErrClientClosed.
func (c *Client) Close() {
	c.limitMu.Lock()
	defer c.limitMu.Unlock()
	c.closed.Store(true)
	c.ClearInterceptors()
	if old := c.limiter.Swap(nil); old != nil {
		old.stop()
	}
}

// Do runs req through interception, dispatch, validation and
// classification in a single pass.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.closed.Load() {
		return nil, ErrClientClosed
	}
	hooks := c.Interceptors()

	req = req.Normalized()
	if hooks.Request != nil {
		intercepted, err := hooks.Request(ctx, req)
		if err != nil {
			c.metrics.observe(c.runnerID, "intercept_error", 0)
			return nil, err
		}
		req = intercepted.Normalized()
	}

	req = c.materialize(req)

	if err := c.waitTurn(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.dispatch(ctx, req)
	if err != nil {
		c.metrics.observe(c.runnerID, outcome(err), time.Since(start))
		return nil, err
	}

	if hooks.Response != nil {
		intercepted, err := hooks.Response(ctx, *resp)
		if err != nil {
			c.metrics.observe(c.runnerID, "intercept_error", time.Since(start))
			return nil, err
		}
		resp = &intercepted
	}

	valid := resp.Status >= 200 && resp.Status < 300
	if hooks.Validator != nil {
		valid, err = hooks.Validator(ctx, *resp)
		if err != nil {
			c.metrics.observe(c.runnerID, "validator_error", time.Since(start))
			return nil, err
		}
	}
	if !valid {
		err := Classify(resp)
		c.metrics.observe(c.runnerID, outcome(err), time.Since(start))
		c.logger.Debug().Int("status", resp.Status).Str("url", req.URL).Msg("Request failed validation")
		return nil, err
	}

	c.metrics.observe(c.runnerID, "success", time.Since(start))
	return resp, nil
}

// waitTurn blocks on the current limiter, following replacements, and
// fails once the client is closed.
func (c *Client) waitTurn(ctx context.Context) error {
	for {
		if c.closed.Load() {
			return ErrClientClosed
		}
		l := c.limiter.Load()
		if l == nil {
			return nil
		}
		err := l.Wait(ctx)
		switch {
		case err == nil && c.closed.Load():
			return ErrClientClosed
		case !errors.Is(err, errLimiterStopped):
			return err
		}
	}
}

func (c *Client) materialize(req Request) Request {
	d := c.defaults.Load()

	headers := make(map[string]string, len(d.Headers)+len(req.Headers)+1)
	for k, v := range d.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	for k, v := range req.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	if d.UserAgent != "" {
		if _, ok := headers["User-Agent"]; !ok {
			headers["User-Agent"] = d.UserAgent
		}
	}
	if len(headers) > 0 {
		req.Headers = headers
	}

	if len(d.Cookies) > 0 {
		seen := make(map[string]bool, len(req.Cookies))
		for _, ck := range req.Cookies {
			seen[ck.Name] = true
		}
		cookies := append([]Cookie(nil), req.Cookies...)
		for _, ck := range d.Cookies {
			if !seen[ck.Name] {
				cookies = append(cookies, ck)
			}
		}
		req.Cookies = cookies
	}

	if req.Timeout <= 0 {
		timeout := d.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		req.Timeout = timeout.Seconds()
	}
	return req
}

func (c *Client) dispatch(ctx context.Context, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, req.TimeoutDuration())
	defer cancel()

	httpReq, err := req.ToHTTP(callCtx)
	if err != nil {
		return nil, err
	}

	res, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &EmptyResponseError{Request: req, Err: err}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &EmptyResponseError{Request: req, Err: err}
	}

	return &Response{
		Data:    string(body),
		Status:  res.StatusCode,
		Headers: flattenHeaders(res.Header),
		Request: req,
	}, nil
}

func outcome(err error) string {
	var cf *CloudflareError
	var ne *NetworkError
	var ee *EmptyResponseError
	switch {
	case errors.As(err, &cf):
		return "cloudflare"
	case errors.As(err, &ne):
		return "status_" + strconv.Itoa(ne.Status)
	case errors.As(err, &ee):
		return "empty_response"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "error"
}
