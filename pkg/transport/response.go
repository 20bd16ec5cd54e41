package transport

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/getmockd/expectd/pkg/expectation"
)

// ReadResponse converts an upstream response and closes its body.
// Hop-by-hop and Content-Length headers are dropped; Set-Cookie headers are
// kept and their name/value pairs also populate Cookies.
func ReadResponse(resp *http.Response, maxBody int64) (*expectation.HTTPResponse, error) {
	defer func() { _ = resp.Body.Close() }()
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading upstream response body: %w", err)
	}

	headers := headerMultimap(resp.Header)
	for _, name := range headers.Names() {
		if isHopByHop(name) || strings.EqualFold(name, "Content-Length") {
			headers = headers.Remove(name, true)
		}
	}
	out := &expectation.HTTPResponse{
		StatusCode:   resp.StatusCode,
		ReasonPhrase: reasonPhrase(resp),
		Headers:      headers,
		Body:         decodeBody(resp.Header.Get("Content-Type"), raw),
	}
	for _, c := range resp.Cookies() {
		out.Cookies = out.Cookies.Add(c.Name, c.Value)
	}
	return out, nil
}

func reasonPhrase(resp *http.Response) string {
	_, reason, ok := strings.Cut(resp.Status, " ")
	if !ok {
		return http.StatusText(resp.StatusCode)
	}
	return reason
}

// WriteResponse writes resp to w, honouring its connection options.
// Cookies without a matching Set-Cookie header are added as one.
func WriteResponse(w http.ResponseWriter, resp *expectation.HTTPResponse) error {
	h := w.Header()
	for _, e := range resp.Headers {
		if strings.EqualFold(e.Name, "Content-Length") {
			continue
		}
		for _, v := range e.Values {
			h.Add(e.Name, v)
		}
	}
	for _, e := range resp.Cookies {
		if hasSetCookie(h, e.Name) {
			continue
		}
		for _, v := range e.Values {
			h.Add("Set-Cookie", (&http.Cookie{Name: e.Name, Value: v}).String())
		}
	}

	body := resp.Body.Bytes()
	if resp.Body != nil && resp.Body.ContentType != "" && h.Get("Content-Type") == "" {
		h.Set("Content-Type", resp.Body.ContentType)
	}

	opts := resp.ConnectionOptions
	if opts == nil {
		opts = &expectation.ConnectionOptions{}
	}
	switch {
	case opts.ContentLengthHeaderOverride != nil:
		h.Set("Content-Length", strconv.Itoa(*opts.ContentLengthHeaderOverride))
	case !opts.SuppressContentLengthHeader:
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}
	if opts.CloseSocket || (opts.KeepAliveOverride != nil && !*opts.KeepAliveOverride) {
		h.Set("Connection", "close")
	} else if opts.SuppressConnectionHeader {
		h.Del("Connection")
	}

	w.WriteHeader(resp.Status())
	if opts.SuppressContentLengthHeader && opts.ContentLengthHeaderOverride == nil {
		// flushing before the body forces chunked encoding
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
	if len(body) == 0 {
		return nil
	}
	_, err := w.Write(body)
	return err
}

func hasSetCookie(h http.Header, name string) bool {
	for _, v := range h.Values("Set-Cookie") {
		if strings.HasPrefix(v, name+"=") {
			return true
		}
	}
	return false
}
