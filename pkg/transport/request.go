package transport

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/getmockd/expectd/pkg/expectation"
)

// DefaultMaxBodySize is the default maximum body size read from a request
// or an upstream response (10MB).
const DefaultMaxBodySize = 10 * 1024 * 1024

var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"TE",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

func isHopByHop(name string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// ReadRequest converts an inbound request. The body is read up to maxBody
// bytes; maxBody <= 0 uses DefaultMaxBodySize.
func ReadRequest(r *http.Request, maxBody int64) (*expectation.HTTPRequest, error) {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	var raw []byte
	if r.Body != nil {
		var err error
		raw, err = io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
	}

	secure := r.TLS != nil
	keepAlive := !r.Close
	req := &expectation.HTTPRequest{
		Method:                r.Method,
		Path:                  r.URL.Path,
		QueryStringParameters: expectation.ParseQuery(r.URL.RawQuery),
		Headers:               headerMultimap(r.Header),
		Body:                  decodeBody(r.Header.Get("Content-Type"), raw),
		KeepAlive:             &keepAlive,
		Secure:                &secure,
		Protocol:              r.Proto,
		RemoteAddress:         r.RemoteAddr,
		SocketAddress:         socketAddress(r.Host, secure),
	}
	if r.Host != "" && !req.Headers.Has("Host", true) {
		req.Headers = append(expectation.Multimap{{Name: "Host", Values: []string{r.Host}}}, req.Headers...)
	}
	for _, c := range r.Cookies() {
		req.Cookies = req.Cookies.Add(c.Name, c.Value)
	}
	if local, ok := r.Context().Value(http.LocalAddrContextKey).(net.Addr); ok {
		req.LocalAddress = local.String()
	}
	return req, nil
}

// headerMultimap converts headers with names in sorted order.
func headerMultimap(h http.Header) expectation.Multimap {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	m := make(expectation.Multimap, 0, len(names))
	for _, name := range names {
		m = append(m, expectation.Entry{Name: name, Values: append([]string(nil), h[name]...)})
	}
	return m
}

func socketAddress(host string, secure bool) *expectation.SocketAddress {
	if host == "" {
		return nil
	}
	sa := &expectation.SocketAddress{Host: host, Scheme: expectation.SchemeHTTP, Port: 80}
	if secure {
		sa.Scheme = expectation.SchemeHTTPS
		sa.Port = 443
	}
	if h, p, err := net.SplitHostPort(host); err == nil {
		sa.Host = h
		if port, err := strconv.Atoi(p); err == nil {
			sa.Port = port
		}
	}
	return sa
}

// BuildRequest creates the outbound request for req sent to target. A nil
// target falls back to the request's socket address and then its Host
// header.
func BuildRequest(req *expectation.HTTPRequest, target *expectation.SocketAddress) (*http.Request, error) {
	target = resolveTarget(req, target)
	if target == nil || target.Host == "" {
		return nil, fmt.Errorf("no forward target for %s %s", req.Method, req.Path)
	}

	scheme := "http"
	if target.Scheme == expectation.SchemeHTTPS {
		scheme = "https"
	}
	host := target.Host
	if target.Port > 0 {
		host = net.JoinHostPort(target.Host, strconv.Itoa(target.Port))
	}
	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	u := &url.URL{Scheme: scheme, Host: host, Path: path, RawQuery: encodeQuery(req.QueryStringParameters)}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if !req.Body.Empty() {
		body = strings.NewReader(string(req.Body.Bytes()))
	}
	out, err := http.NewRequest(method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building forward request: %w", err)
	}

	for _, e := range req.Headers {
		switch {
		case isHopByHop(e.Name), strings.EqualFold(e.Name, "Content-Length"):
			continue
		case strings.EqualFold(e.Name, "Host"):
			if len(e.Values) > 0 {
				out.Host = e.Values[0]
			}
			continue
		case strings.EqualFold(e.Name, "Cookie") && len(req.Cookies) > 0:
			continue
		}
		for _, v := range e.Values {
			out.Header.Add(e.Name, v)
		}
	}
	for _, e := range req.Cookies {
		for _, v := range e.Values {
			out.AddCookie(&http.Cookie{Name: e.Name, Value: v})
		}
	}
	if req.Body != nil && req.Body.ContentType != "" && out.Header.Get("Content-Type") == "" {
		out.Header.Set("Content-Type", req.Body.ContentType)
	}
	return out, nil
}

func resolveTarget(req *expectation.HTTPRequest, target *expectation.SocketAddress) *expectation.SocketAddress {
	if target != nil {
		return target
	}
	if req.SocketAddress != nil {
		return req.SocketAddress
	}
	if host := req.Headers.First("Host", true); host != "" {
		return socketAddress(host, req.IsSecure())
	}
	return nil
}

func queryEscape(s string) string { return url.QueryEscape(s) }
