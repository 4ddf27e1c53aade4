package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/muir/nhttp/nserve"
	"github.com/muir/nhttp/nvelope"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the todo service until interrupted.

Examples:
  nhttpd serve
  nhttpd serve --addr :9000 --log-level debug
  NHTTP_AUTH_SECRET=s3cret nhttpd serve --config nhttpd.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("config")
			return runServe(cmd.Context(), v, path)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	cmd.Flags().String("log-level", "", "debug, info, warn, or error")
	cmd.Flags().String("secret", "", "token signing secret")
	_ = v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("log.level", cmd.Flags().Lookup("log-level"))
	_ = v.BindPFlag("auth.secret", cmd.Flags().Lookup("secret"))
	return cmd
}

func loadConfig(v *viper.Viper, path string) (*nserve.Config, string, error) {
	_ = v.BindEnv("auth.secret", nserve.EnvPrefix+"_AUTH_SECRET")
	cfg, err := nserve.LoadConfigFrom(v, path)
	if err != nil {
		return nil, "", err
	}
	return cfg, v.GetString("auth.secret"), nil
}

func runServe(ctx context.Context, v *viper.Viper, path string) error {
	cfg, secret, err := loadConfig(v, path)
	if err != nil {
		return err
	}
	zlog, err := nserve.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	log := nvelope.LoggerFromZap(zlog)
	defer log.Flush()
	if secret == "" {
		// tokens will not survive a restart
		secret = uuid.NewString()
		log.Warn("no auth.secret configured, using a random one")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s, err := newServer(cfg, secret, log, reg)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	log.Debug("starting", map[string]interface{}{"addr": cfg.Server.Addr, "version": Version})
	return s.app.Serve(ctx, cfg, nil, s.handler, log)
}
