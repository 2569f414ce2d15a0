package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/backend"
	"github.com/quiver-ml/quiver/internal/config"
	"github.com/quiver-ml/quiver/internal/manager"
	"github.com/quiver-ml/quiver/internal/server"
	"github.com/quiver-ml/quiver/plugin"
)

func newServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve models over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}

			logger, err := buildLogger(cfg.Debug)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			reg := backend.NewRegistry(backend.WithLogger(logger))
			if err := backend.Bootstrap(reg, logger); err != nil {
				return err
			}

			factory := plugin.NewFactory(
				plugin.WithFactoryLogger(logger),
				plugin.WithRegistry(reg))
			reg.SetResolver(factory)
			for _, dir := range cfg.PluginPaths {
				if err := factory.AddSearchPath(dir); err != nil {
					return err
				}
			}
			defer func() { _ = factory.Close() }()

			ctx, stop := signal.NotifyContext(context.Background(),
				syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.WatchPlugins && len(cfg.PluginPaths) > 0 {
				go func() {
					if err := factory.Watch(ctx); err != nil && ctx.Err() == nil {
						logger.Warn("plugin watcher stopped", zap.Error(err))
					}
				}()
			}

			kind, err := backend.ParseKind(cfg.DefaultBackend)
			if err != nil {
				return err
			}

			promReg := prometheus.NewRegistry()
			promReg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			mgr, err := manager.New(reg,
				manager.WithLogger(logger),
				manager.WithMetrics(promReg),
				manager.WithDefaultKind(kind),
				manager.WithEngineConfig(backend.Config{
					Device: cfg.Device,
					Logger: logger,
				}))
			if err != nil {
				return err
			}
			defer func() { _ = mgr.Close() }()

			srv, err := server.New(cfg.Addr, mgr,
				server.WithLogger(logger),
				server.WithGatherer(promReg),
				server.WithInferTimeout(cfg.InferTimeout))
			if err != nil {
				return err
			}
			return srv.Run(ctx, cfg.ShutdownGrace)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides QUIVER_ADDR)")
	return cmd
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
