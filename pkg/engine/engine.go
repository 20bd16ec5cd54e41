package engine

import (
	"log/slog"

	"github.com/getmockd/expectd/internal/id"
	"github.com/getmockd/expectd/internal/matching"
	"github.com/getmockd/expectd/internal/storage"
	"github.com/getmockd/expectd/pkg/logging"
	"github.com/getmockd/expectd/pkg/metrics"
	"github.com/getmockd/expectd/pkg/openapi"
	"github.com/getmockd/expectd/pkg/requestlog"
	"github.com/getmockd/expectd/pkg/template"
	"github.com/getmockd/expectd/pkg/transport"
	"github.com/getmockd/expectd/pkg/validation"
	"github.com/getmockd/expectd/pkg/verification"
)

// Engine owns the expectation store and the request log and runs the
// dispatch pipeline over them. It is safe for concurrent use.
type Engine struct {
	store     storage.ExpectationStore
	requests  *requestlog.Log
	matcher   *matching.Matcher
	schemas   *validation.Validator
	templates *template.Engine
	client    *transport.Client
	openapi   *openapi.Resolver
	verifier  *verification.Verifier
	callbacks *CallbackRegistry
	history   *matcherHistory
	source    id.Source

	nearMisses int
	observer   func(correlationID string, s State)
	metrics    *engineMetrics
	log        *slog.Logger
}

type options struct {
	source          id.Source
	maxExpectations int
	maxLogEntries   int
	caseInsensitive bool
	maxPreview      int
	nearMisses      int
	client          *transport.Client
	clientOpts      []transport.ClientOption
	sinks           []requestlog.Sink
	callbacks       *CallbackRegistry
	observer        func(string, State)
	registry        *metrics.Registry
	log             *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithSource sets the clock and id source used for expectation ids, log
// timestamps and templates.
func WithSource(src id.Source) Option {
	return func(o *options) { o.source = src }
}

// WithMaxExpectations caps the store; the oldest inserted expectation is
// evicted beyond it.
func WithMaxExpectations(n int) Option {
	return func(o *options) { o.maxExpectations = n }
}

// WithMaxLogEntries caps the request log; the oldest entries are evicted
// beyond it.
func WithMaxLogEntries(n int) Option {
	return func(o *options) { o.maxLogEntries = n }
}

// WithCaseInsensitive makes every matcher value comparison case-insensitive.
func WithCaseInsensitive(enabled bool) Option {
	return func(o *options) { o.caseInsensitive = enabled }
}

// WithMaxPreview sets how many recorded requests verification failures show.
func WithMaxPreview(n int) Option {
	return func(o *options) { o.maxPreview = n }
}

// WithNearMisses sets how many near misses are recorded for unmatched
// requests.
func WithNearMisses(n int) Option {
	return func(o *options) { o.nearMisses = n }
}

// WithClient sets the forward client.
func WithClient(c *transport.Client) Option {
	return func(o *options) { o.client = c }
}

// WithClientOptions configures the forward client created by New. It is
// ignored when WithClient is used.
func WithClientOptions(opts ...transport.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// WithSink mirrors every log entry to s.
func WithSink(s requestlog.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s) }
}

// WithCallbacks sets the callback registry used by callback actions.
func WithCallbacks(r *CallbackRegistry) Option {
	return func(o *options) { o.callbacks = r }
}

// WithObserver registers fn to be called on every dispatch state change.
func WithObserver(fn func(correlationID string, s State)) Option {
	return func(o *options) { o.observer = fn }
}

// WithMetrics registers the engine's dispatch metrics in r.
func WithMetrics(r *metrics.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger sets the operational logger of the engine and its components.
func WithLogger(log *slog.Logger) Option {
	return func(o *options) { o.log = log }
}

// New creates an Engine.
func New(opts ...Option) (*Engine, error) {
	o := &options{source: id.System(), log: logging.Nop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.log == nil {
		o.log = logging.Nop()
	}

	client := o.client
	if client == nil {
		var err error
		if client, err = transport.NewClient(o.clientOpts...); err != nil {
			return nil, err
		}
	}

	logOpts := []requestlog.Option{requestlog.WithSource(o.source)}
	if o.maxLogEntries > 0 {
		logOpts = append(logOpts, requestlog.WithMaxEntries(o.maxLogEntries))
	}
	for _, s := range o.sinks {
		logOpts = append(logOpts, requestlog.WithSink(s))
	}
	requests := requestlog.NewLog(logOpts...)

	storeOpts := []storage.Option{storage.WithSource(o.source)}
	if o.maxExpectations > 0 {
		storeOpts = append(storeOpts, storage.WithMaxExpectations(o.maxExpectations))
	}
	store := storage.NewMemoryStore(storeOpts...)

	schemas := validation.NewValidator()
	resolver := openapi.NewResolver()
	matcher := matching.New(
		matching.WithSchemaValidator(schemas),
		matching.WithOperationResolver(resolver),
		matching.WithCaseInsensitive(o.caseInsensitive),
	)

	callbacks := o.callbacks
	if callbacks == nil {
		callbacks = NewCallbackRegistry()
	}

	e := &Engine{
		store:      store,
		requests:   requests,
		matcher:    matcher,
		schemas:    schemas,
		templates:  template.New(o.source),
		client:     client,
		openapi:    resolver,
		callbacks:  callbacks,
		history:    newMatcherHistory(o.maxExpectations),
		source:     o.source,
		nearMisses: o.nearMisses,
		observer:   o.observer,
		log:        logging.Nop(),
	}
	e.metrics = newEngineMetrics(o.registry, e)
	e.verifier = verification.New(requests, matcher,
		verification.WithResolver(e),
		verification.WithMaxPreview(o.maxPreview),
	)
	e.SetLogger(o.log)
	return e, nil
}

// SetLogger sets the operational logger of the engine and its components.
func (e *Engine) SetLogger(log *slog.Logger) {
	if log == nil {
		return
	}
	e.log = log
	e.requests.SetLogger(log)
	e.matcher.SetLogger(log)
	e.schemas.SetLogger(log)
	e.templates.SetLogger(log)
	e.client.SetLogger(log)
	e.openapi.SetLogger(log)
	e.verifier.SetLogger(log)
	if s, ok := e.store.(*storage.MemoryStore); ok {
		s.SetLogger(log)
	}
}

// Callbacks returns the registry used by callback actions.
func (e *Engine) Callbacks() *CallbackRegistry { return e.callbacks }

// Log returns the request log.
func (e *Engine) Log() *requestlog.Log { return e.requests }

func (e *Engine) record(entry *requestlog.Entry) {
	e.requests.Record(entry)
}

var (
	_ transport.Dispatcher             = (*Engine)(nil)
	_ verification.ExpectationResolver = (*Engine)(nil)
)
