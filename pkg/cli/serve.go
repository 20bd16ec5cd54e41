package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/getmockd/expectd/pkg/config"
)

// shutdownTimeout bounds how long in-flight requests may take to finish.
const shutdownTimeout = 10 * time.Second

type serveFlags struct {
	configPath string
	addr       string
	logLevel   string
	logFormat  string
}

func newServeCmd() *cobra.Command {
	f := &serveFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the expectation server",
		Long: `Start the expectation server in the foreground.

Initialization files listed in the configuration are loaded before the
listener opens; an invalid file aborts start-up. The server runs until
SIGINT or SIGTERM and then drains in-flight requests.`,
		Example: `  expectd serve
  expectd serve --config expectd.yaml
  EXPECTD_ADDR=:8080 expectd serve --log-level debug`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(f.configPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("addr") {
				cfg.Addr = f.addr
			}
			if flags.Changed("log-level") {
				cfg.Log.Level = f.logLevel
			}
			if flags.Changed("log-format") {
				cfg.Log.Format = f.logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			log := newLogger(cfg.Log, cmd.ErrOrStderr())
			return serve(ctx, cfg, log, nil)
		},
	}
	cmd.Flags().StringVarP(&f.configPath, "config", "c", "", "Path to configuration file (YAML or JSON)")
	cmd.Flags().StringVar(&f.addr, "addr", "", "Listen address, overrides the configuration")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&f.logFormat, "log-format", "", "Log format (text, json)")
	return cmd
}

// serve runs the server and the expiry sweeper until ctx is done or the
// server fails. ready, when set, is called with the bound address.
func serve(ctx context.Context, cfg *config.ServerConfiguration, log *slog.Logger, ready func(net.Addr)) error {
	inst, err := newInstance(cfg, log)
	if err != nil {
		return err
	}
	defer inst.close()

	initial, err := cfg.InitializationExpectations()
	if err != nil {
		return fmt.Errorf("loading initialization files: %w", err)
	}
	if len(initial) > 0 {
		if _, err := inst.engine.Upsert(ctx, initial...); err != nil {
			return fmt.Errorf("loading initialization files: %w", err)
		}
		log.Info("loaded initialization expectations", "count", len(initial))
	}

	l, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Addr, err)
	}

	var (
		metricsSrv *http.Server
		ml         net.Listener
	)
	if inst.registry != nil {
		if ml, err = net.Listen("tcp", cfg.Metrics.Addr); err != nil {
			_ = l.Close()
			return fmt.Errorf("listen on %s: %w", cfg.Metrics.Addr, err)
		}
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", inst.registry.Handler())
		metricsSrv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		log.Info("serving metrics", "addr", ml.Addr().String())
	}
	if ready != nil {
		ready(l.Addr())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return inst.server.Serve(l)
	})
	if metricsSrv != nil {
		g.Go(func() error {
			if err := metricsSrv.Serve(ml); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		return inst.engine.RunSweeper(gctx, config.Seconds(cfg.SweepInterval))
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(sctx)
		}
		return inst.server.Shutdown(sctx)
	})
	return g.Wait()
}
