package transport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/getmockd/expectd/pkg/expectation"
	"github.com/getmockd/expectd/pkg/logging"
)

// Outcome is the result of dispatching one request: either a response to
// write or a fault to inject.
type Outcome struct {
	Response *expectation.HTTPResponse
	Fault    *expectation.HTTPError
}

// Dispatcher decides what to do with an inbound request.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *expectation.HTTPRequest) Outcome
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, req *expectation.HTTPRequest) Outcome

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, req *expectation.HTTPRequest) Outcome {
	return f(ctx, req)
}

// Handler is the http.Handler in front of a Dispatcher.
type Handler struct {
	dispatcher  Dispatcher
	maxBodySize int64
	log         *slog.Logger
}

// NewHandler creates a Handler. maxBodySize <= 0 uses DefaultMaxBodySize.
func NewHandler(d Dispatcher, maxBodySize int64) *Handler {
	return &Handler{dispatcher: d, maxBodySize: maxBodySize, log: logging.Nop()}
}

// SetLogger sets the operational logger.
func (h *Handler) SetLogger(log *slog.Logger) {
	if log != nil {
		h.log = log
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, err := ReadRequest(r, h.maxBodySize)
	if err != nil {
		h.log.Warn("failed to read request", "method", r.Method, "path", r.URL.Path, "error", err)
		http.Error(w, "Error reading request", http.StatusBadRequest)
		return
	}

	out := h.dispatcher.Dispatch(r.Context(), req)
	if out.Fault != nil {
		if err := InjectFault(w, out.Fault); err != nil {
			h.log.Warn("failed to inject fault", "path", req.Path, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	resp := out.Response
	if resp == nil {
		resp = expectation.NotFound()
	}
	if err := WriteResponse(w, resp); err != nil {
		h.log.Debug("failed to write response", "path", req.Path, "error", err)
	}
}

var _ http.Handler = (*Handler)(nil)
