package nserve

import (
	"context"
	"net"
	"net/http"

	"github.com/muir/nhttp/npoint"
	"github.com/muir/nhttp/nvelope"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// NewLogger builds the zap logger described by cfg
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log.level")
	}
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// EndpointOpts turns the configuration into npoint options for a
// service: the app's graph, the logger, body limits, the worker
// pool, and metrics registered with reg.
func (app *App) EndpointOpts(cfg *Config, log nvelope.BasicLogger, reg prometheus.Registerer) ([]npoint.Opt, error) {
	opts := []npoint.Opt{
		npoint.WithGraph(app.Graph),
		npoint.WithLogger(log),
		npoint.WithMaxBody(cfg.Server.MaxBody),
		npoint.WithPool(npoint.NewPool(cfg.Server.Threads)),
		npoint.WithMiddleware(nvelope.Recover(log)),
	}
	if cfg.Metrics.Enabled {
		m, err := npoint.NewMetrics(reg, cfg.Metrics.Namespace)
		if err != nil {
			return nil, errors.Wrap(err, "register metrics")
		}
		opts = append(opts, npoint.WithMetrics(m))
	}
	return opts, nil
}

// MetricsHandler serves the metrics gathered by g
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Serve runs the Start hook, serves handler on ln until ctx is done
// or the server fails, and then shuts down gracefully and runs the
// Stop and Shutdown hooks.  A nil ln listens on cfg.Server.Addr.
func (app *App) Serve(ctx context.Context, cfg *Config, ln net.Listener, handler http.Handler, log nvelope.BasicLogger) error {
	if log == nil {
		log = nvelope.NoLogger()
	}
	if ln == nil {
		var err error
		ln, err = net.Listen("tcp", cfg.Server.Addr)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", cfg.Server.Addr)
		}
	}
	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return app.ctx },
	}
	if err := app.Do(ctx, Start); err != nil {
		_ = ln.Close()
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Debug("serving", map[string]interface{}{"addr": ln.Addr().String(), "app": app.Name})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "serve")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// a failed Stop runs Shutdown itself
	if stopErr := app.Do(stopCtx, Stop); stopErr != nil {
		log.Error("stop failed", map[string]interface{}{"error": stopErr.Error()})
		if err == nil {
			err = stopErr
		}
		return err
	}
	if shutErr := app.Do(stopCtx, Shutdown); shutErr != nil && err == nil {
		err = shutErr
	}
	return err
}
