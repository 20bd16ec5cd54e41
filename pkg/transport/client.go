package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/net/http2"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/logging"
)

// DefaultForwardTimeout bounds a single forward attempt.
const DefaultForwardTimeout = 30 * time.Second

// ForwardError reports a failed forward. Timeouts map to 504, every other
// failure to 502.
type ForwardError struct {
	Target  string
	Timeout bool
	Err     error
}

func (e *ForwardError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("forward to %s timed out: %v", e.Target, e.Err)
	}
	return fmt.Sprintf("forward to %s failed: %v", e.Target, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }

// StatusCode is the response status reported to the client.
func (e *ForwardError) StatusCode() int {
	if e.Timeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// Client forwards requests to upstream servers. It is safe for concurrent
// use.
type Client struct {
	http        *http.Client
	timeout     time.Duration
	maxBodySize int64
	enableH2    bool
	insecure    bool
	log         *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout bounds each forward attempt.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTP2 negotiates HTTP/2 with TLS upstreams.
func WithHTTP2(enabled bool) ClientOption {
	return func(c *Client) { c.enableH2 = enabled }
}

// WithInsecureSkipVerify disables upstream certificate verification.
func WithInsecureSkipVerify(skip bool) ClientOption {
	return func(c *Client) { c.insecure = skip }
}

// WithMaxBodySize bounds the upstream response body that is read.
func WithMaxBodySize(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. Used in tests.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// NewClient creates a forwarding client.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		timeout:     DefaultForwardTimeout,
		maxBodySize: DefaultMaxBodySize,
		log:         logging.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http != nil {
		return c, nil
	}

	tr := &http.Transport{
		Proxy:               nil,
		DialContext:         (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: c.insecure}, //nolint:gosec // opt-in for self-signed upstreams
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
	}
	if c.enableH2 {
		if _, err := http2.ConfigureTransports(tr); err != nil {
			return nil, fmt.Errorf("configuring http2: %w", err)
		}
	}
	c.http = &http.Client{
		Transport: tr,
		// upstream redirects are returned to the caller as-is
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	return c, nil
}

// SetLogger sets the operational logger.
func (c *Client) SetLogger(log *slog.Logger) {
	if log != nil {
		c.log = log
	}
}

// Send forwards req to target and returns the upstream response. A nil
// policy makes a single attempt. Cancelling ctx aborts the call.
func (c *Client) Send(ctx context.Context, req *expectation.HTTPRequest, target *expectation.SocketAddress, policy *expectation.RetryPolicy) (*expectation.HTTPResponse, error) {
	first, err := BuildRequest(req, target)
	if err != nil {
		return nil, &ForwardError{Target: describeTarget(target), Err: err}
	}
	where := first.URL.Host

	attempt := func() (*expectation.HTTPResponse, error) {
		out, err := BuildRequest(req, target)
		if err != nil {
			return nil, retry.Unrecoverable(err)
		}
		actx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.http.Do(out.WithContext(actx))
		if err != nil {
			return nil, err
		}
		return ReadResponse(resp, c.maxBodySize)
	}

	var resp *expectation.HTTPResponse
	if policy == nil || policy.Attempts <= 1 {
		resp, err = attempt()
	} else {
		resp, err = retry.DoWithData(attempt,
			retry.Context(ctx),
			retry.Attempts(policy.Attempts),
			retry.Delay(policy.Delay.Duration()),
			retry.DelayType(retry.FixedDelay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				c.log.Debug("retrying forward", "target", where, "attempt", n+1, "error", err)
			}),
		)
	}
	if err != nil {
		return nil, &ForwardError{Target: where, Timeout: isTimeout(err), Err: err}
	}
	return resp, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func describeTarget(sa *expectation.SocketAddress) string {
	if sa == nil {
		return "<unknown>"
	}
	return net.JoinHostPort(sa.Host, fmt.Sprint(sa.Port))
}
