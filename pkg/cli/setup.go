package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/getmockd/expectd/pkg/config"
	"github.com/getmockd/expectd/pkg/engine"
	"github.com/getmockd/expectd/pkg/logging"
	"github.com/getmockd/expectd/pkg/metrics"
	"github.com/getmockd/expectd/pkg/requestlog"
	"github.com/getmockd/expectd/pkg/tls"
	"github.com/getmockd/expectd/pkg/transport"
)

// asyncSinkSize bounds the goroutines mirroring log entries to slog.
const asyncSinkSize = 64

// newLogger builds the operational logger from the configuration.
func newLogger(cfg config.LogConfig, out io.Writer) *slog.Logger {
	lc := logging.Config{
		Level:  logging.ParseLevel(cfg.Level),
		Format: logging.ParseFormat(cfg.Format),
		Output: out,
	}
	if cfg.File != "" {
		lc.File = &logging.FileConfig{
			Path:       cfg.File,
			MaxSizeMB:  cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAgeDays: cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}
	}
	return logging.New(lc)
}

// instance is a configured engine with its server and cleanup. registry
// is nil unless metrics are enabled.
type instance struct {
	engine   *engine.Engine
	server   *engine.Server
	registry *metrics.Registry
	close    func()
}

// newInstance wires an engine and server from cfg.
func newInstance(cfg *config.ServerConfiguration, log *slog.Logger) (*instance, error) {
	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithMaxExpectations(cfg.MaxExpectations),
		engine.WithMaxLogEntries(cfg.MaxLogEntries),
		engine.WithCaseInsensitive(cfg.CaseInsensitive),
		engine.WithMaxPreview(cfg.MaxPreview),
		engine.WithNearMisses(cfg.NearMisses),
		engine.WithClientOptions(
			transport.WithTimeout(config.Seconds(cfg.Forward.Timeout)),
			transport.WithHTTP2(cfg.Forward.HTTP2),
			transport.WithInsecureSkipVerify(cfg.Forward.InsecureSkipVerify),
			transport.WithMaxBodySize(cfg.MaxBodySize),
		),
	}

	var registry *metrics.Registry
	if cfg.Metrics.Addr != "" {
		registry = metrics.NewRegistry()
		if cfg.Metrics.Runtime {
			metrics.RegisterRuntime(registry)
		}
		opts = append(opts, engine.WithMetrics(registry))
	}

	closeFn := func() {}
	if cfg.Log.Entries {
		sink, err := requestlog.NewAsyncSink(requestlog.NewSlogSink(log), asyncSinkSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create log sink: %w", err)
		}
		opts = append(opts, engine.WithSink(sink))
		closeFn = sink.Close
	}

	e, err := engine.New(opts...)
	if err != nil {
		closeFn()
		return nil, err
	}

	srvOpts := []engine.ServerOption{
		engine.WithReadTimeout(config.Seconds(cfg.ReadTimeout)),
		engine.WithWriteTimeout(config.Seconds(cfg.WriteTimeout)),
		engine.WithMaxRequestBody(cfg.MaxBodySize),
	}
	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsCfg, err := tls.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, cfg.TLS.Hosts)
		if err != nil {
			closeFn()
			return nil, fmt.Errorf("failed to setup TLS: %w", err)
		}
		srvOpts = append(srvOpts, engine.WithTLSConfig(tlsCfg))
	}

	return &instance{
		engine:   e,
		server:   engine.NewServer(e, cfg.Addr, srvOpts...),
		registry: registry,
		close:    closeFn,
	}, nil
}
