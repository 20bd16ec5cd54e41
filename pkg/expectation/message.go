package expectation

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Scheme is the transport scheme of a socket address.
type Scheme string

const (
	SchemeHTTP  Scheme = "HTTP"
	SchemeHTTPS Scheme = "HTTPS"
)

// SocketAddress identifies an upstream or inbound endpoint.
type SocketAddress struct {
	Host   string `json:"host,omitempty"`
	Port   int    `json:"port,omitempty"`
	Scheme Scheme `json:"scheme,omitempty"`
}

// HTTPRequest is a concrete request: inbound, forwarded or produced by a
// template. Header and cookie names compare case-insensitively.
type HTTPRequest struct {
	Method                string         `json:"method,omitempty"`
	Path                  string         `json:"path,omitempty"`
	PathParameters        Multimap       `json:"pathParameters,omitempty"`
	QueryStringParameters Multimap       `json:"queryStringParameters,omitempty"`
	Headers               Multimap       `json:"headers,omitempty"`
	Cookies               Multimap       `json:"cookies,omitempty"`
	Body                  *Body          `json:"body,omitempty"`
	KeepAlive             *bool          `json:"keepAlive,omitempty"`
	Secure                *bool          `json:"secure,omitempty"`
	Protocol              string         `json:"protocol,omitempty"`
	SocketAddress         *SocketAddress `json:"socketAddress,omitempty"`
	LocalAddress          string         `json:"localAddress,omitempty"`
	RemoteAddress         string         `json:"remoteAddress,omitempty"`
}

// Clone returns a deep copy.
func (r *HTTPRequest) Clone() *HTTPRequest {
	if r == nil {
		return nil
	}
	c := *r
	c.PathParameters = r.PathParameters.Clone()
	c.QueryStringParameters = r.QueryStringParameters.Clone()
	c.Headers = r.Headers.Clone()
	c.Cookies = r.Cookies.Clone()
	c.Body = r.Body.Clone()
	if r.KeepAlive != nil {
		v := *r.KeepAlive
		c.KeepAlive = &v
	}
	if r.Secure != nil {
		v := *r.Secure
		c.Secure = &v
	}
	if r.SocketAddress != nil {
		sa := *r.SocketAddress
		c.SocketAddress = &sa
	}
	return &c
}

// IsSecure reports whether the request arrived over TLS.
func (r *HTTPRequest) IsSecure() bool { return r.Secure != nil && *r.Secure }

// JSON renders the request as indented JSON, as used in log and failure messages.
func (r *HTTPRequest) JSON() string {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", *r)
	}
	return string(raw)
}

// TimeUnit is the unit of a Delay or TimeToLive.
type TimeUnit string

const (
	Nanoseconds  TimeUnit = "NANOSECONDS"
	Microseconds TimeUnit = "MICROSECONDS"
	Milliseconds TimeUnit = "MILLISECONDS"
	Seconds      TimeUnit = "SECONDS"
	Minutes      TimeUnit = "MINUTES"
	Hours        TimeUnit = "HOURS"
	Days         TimeUnit = "DAYS"
)

// Duration converts n units to a time.Duration. Unknown units are
// milliseconds.
func (u TimeUnit) Duration(n int64) time.Duration {
	switch u {
	case Nanoseconds:
		return time.Duration(n)
	case Microseconds:
		return time.Duration(n) * time.Microsecond
	case Seconds:
		return time.Duration(n) * time.Second
	case Minutes:
		return time.Duration(n) * time.Minute
	case Hours:
		return time.Duration(n) * time.Hour
	case Days:
		return time.Duration(n) * 24 * time.Hour
	default:
		return time.Duration(n) * time.Millisecond
	}
}

func validTimeUnit(u TimeUnit) bool {
	switch u {
	case "", Nanoseconds, Microseconds, Milliseconds, Seconds, Minutes, Hours, Days:
		return true
	}
	return false
}

// Delay is artificial latency applied before an action completes.
type Delay struct {
	TimeUnit TimeUnit `json:"timeUnit,omitempty"`
	Value    int64    `json:"value"`
}

// Millis is a convenience constructor.
func Millis(n int64) *Delay { return &Delay{TimeUnit: Milliseconds, Value: n} }

// Duration returns the delay length. A nil delay is zero.
func (d *Delay) Duration() time.Duration {
	if d == nil || d.Value <= 0 {
		return 0
	}
	return d.TimeUnit.Duration(d.Value)
}

// ConnectionOptions tweak how a response is written to the connection.
type ConnectionOptions struct {
	SuppressContentLengthHeader bool  `json:"suppressContentLengthHeader,omitempty"`
	ContentLengthHeaderOverride *int  `json:"contentLengthHeaderOverride,omitempty"`
	SuppressConnectionHeader    bool  `json:"suppressConnectionHeader,omitempty"`
	KeepAliveOverride           *bool `json:"keepAliveOverride,omitempty"`
	CloseSocket                 bool  `json:"closeSocket,omitempty"`
}

// HTTPResponse is a concrete response. As an Action it is returned literally.
type HTTPResponse struct {
	StatusCode        int                `json:"statusCode,omitempty"`
	ReasonPhrase      string             `json:"reasonPhrase,omitempty"`
	Headers           Multimap           `json:"headers,omitempty"`
	Cookies           Multimap           `json:"cookies,omitempty"`
	Body              *Body              `json:"body,omitempty"`
	Delay             *Delay             `json:"delay,omitempty"`
	ConnectionOptions *ConnectionOptions `json:"connectionOptions,omitempty"`
}

// Response creates a response with the given status.
func Response(status int) *HTTPResponse { return &HTTPResponse{StatusCode: status} }

// NotFound is the default response for unmatched requests: 404, no body.
func NotFound() *HTTPResponse {
	return &HTTPResponse{StatusCode: http.StatusNotFound, ReasonPhrase: http.StatusText(http.StatusNotFound)}
}

// Status returns the status code, defaulting to 200.
func (r *HTTPResponse) Status() int {
	if r == nil || r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

// Clone returns a deep copy.
func (r *HTTPResponse) Clone() *HTTPResponse {
	if r == nil {
		return nil
	}
	c := *r
	c.Headers = r.Headers.Clone()
	c.Cookies = r.Cookies.Clone()
	c.Body = r.Body.Clone()
	if r.Delay != nil {
		d := *r.Delay
		c.Delay = &d
	}
	if r.ConnectionOptions != nil {
		co := *r.ConnectionOptions
		c.ConnectionOptions = &co
	}
	return &c
}

// JSON renders the response as indented JSON.
func (r *HTTPResponse) JSON() string {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", *r)
	}
	return string(raw)
}
