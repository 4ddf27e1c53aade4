package main

import (
	"net/http"

	"github.com/muir/nhttp/nbus"
	"github.com/muir/nhttp/ngraph"
	"github.com/muir/nhttp/njwt"
	"github.com/muir/nhttp/npoint"
	"github.com/muir/nhttp/nserve"
	"github.com/muir/nhttp/nvelope"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type server struct {
	app       *nserve.App
	handler   http.Handler
	endpoints *npoint.ServiceRegistration
	bus       *nbus.Registry
}

func newServer(cfg *nserve.Config, secret string, log nvelope.BasicLogger, reg *prometheus.Registry) (*server, error) {
	app, err := nserve.CreateApp("nhttpd", ngraph.New(), NewStore)
	if err != nil {
		return nil, err
	}
	auth := njwt.New([]byte(secret), njwt.WithIssuer("nhttpd"), njwt.WithRealm("todos"))
	opts, err := app.EndpointOpts(cfg, log, reg)
	if err != nil {
		return nil, err
	}

	bus := nbus.New(nbus.WithLogger(log))
	listenTodos(bus, log)
	opts = append(opts, npoint.WithBus(bus))

	svc := npoint.PreregisterService("todos", opts...)
	registerTodos(svc, auth)
	router := chi.NewRouter()
	if err := start(svc, router); err != nil {
		return nil, err
	}
	if cfg.Metrics.Enabled {
		router.Method(http.MethodGet, cfg.Metrics.Path, nserve.MetricsHandler(reg))
	}
	s := &server{
		app:       app,
		handler:   router,
		endpoints: svc,
		bus:       bus,
	}
	return s, nil
}

// start turns the panic from a misconfigured endpoint into an error
func start(svc *npoint.ServiceRegistration, router chi.Router) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("%v", r)
		}
	}()
	svc.Start(npoint.ChiBinder(router))
	return nil
}
