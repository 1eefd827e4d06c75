package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/ekisa-team/localgen/internal/backend"
	"github.com/ekisa-team/localgen/internal/backend/llama"
	"github.com/ekisa-team/localgen/internal/config"
	"github.com/ekisa-team/localgen/internal/env"
	"github.com/ekisa-team/localgen/internal/envvar"
	"github.com/ekisa-team/localgen/internal/logger"
	"github.com/ekisa-team/localgen/internal/metrics"
	"github.com/ekisa-team/localgen/internal/model"
	grpcserver "github.com/ekisa-team/localgen/internal/server/grpc"
	httpserver "github.com/ekisa-team/localgen/internal/server/http"
	"github.com/ekisa-team/localgen/internal/service"
	"github.com/ekisa-team/localgen/internal/xfs"
)

type flags struct {
	configPath string
	schemaPath string
	httpPort   int
	grpcPort   int
	modelPath  string
	logLevel   string
}

func main() {
	var f flags

	app := &cli.Command{
		Name:  "localgen",
		Usage: "Local LLM inference server with streaming generation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to the YAML config file",
				Value:       config.DefaultConfigFile(),
				Sources:     cli.EnvVars(envvar.LocalgenConfig),
				Destination: &f.configPath,
			},
			&cli.StringFlag{
				Name:        "schema",
				Usage:       "path to a JSON schema overriding the embedded one",
				Destination: &f.schemaPath,
			},
			&cli.IntFlag{
				Name:        "http-port",
				Usage:       "HTTP port to listen on",
				Destination: &f.httpPort,
			},
			&cli.IntFlag{
				Name:        "grpc-port",
				Usage:       "gRPC health port to listen on (negative disables)",
				Destination: &f.grpcPort,
			},
			&cli.StringFlag{
				Name:        "model",
				Usage:       "model file or directory",
				Destination: &f.modelPath,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "debug, info, warn or error",
				Destination: &f.logLevel,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return serve(ctx, f)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// apply overrides cfg with the flags that were given.
func (f flags) apply(cfg *config.Config) {
	if f.httpPort > 0 {
		cfg.Server.HTTPPort = f.httpPort
	}
	if f.grpcPort != 0 {
		cfg.Server.GRPCPort = f.grpcPort
	}
	if f.modelPath != "" {
		cfg.Model.Path = f.modelPath
	}
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
}

func serve(ctx context.Context, f flags) error {
	environment := env.FromEnv()
	slog.SetDefault(logger.New(environment))

	cfg, err := config.LoadOrDefault(f.configPath, f.schemaPath)
	if err != nil {
		return err
	}
	f.apply(cfg)

	slog.SetDefault(logger.New(environment,
		logger.WithLevel(logger.ParseLevel(cfg.Logging.Level)),
		logger.WithLogToFile(cfg.Logging.ToFile),
		logger.WithLogFile(cfg.Logging.File),
	))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	backends := backend.NewRegistry()
	llm, err := llama.NewBackend(cfg.Model.Binary, cfg.Model.Timeout)
	if err != nil {
		slog.Error("Failed to create llama.cpp backend", "binary", cfg.Model.Binary, "error", err)
	} else if err := backends.Register(llm); err != nil {
		return err
	}

	svc := service.NewLLM(backends, model.NewManager(),
		service.WithObserver(m),
		service.WithCompleteRecorder(m),
	)

	// A missing model leaves the server up; generation answers 500 until it loads.
	if err := svc.Load(ctx, cfg); err != nil {
		slog.Warn("Serving without a model", "error", err)
	}

	slog.Info("Starting localgen",
		"env", environment,
		"http", cfg.Server.Addr(),
		"grpc_port", cfg.Server.GRPCPort,
		"model", cfg.Model.Path,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	var health *grpcserver.HealthServer
	if cfg.Server.GRPCPort > 0 {
		health = grpcserver.NewHealthServer(cfg.Server.GRPCAddr(), svc)
		g.Go(func() error {
			return health.Run(ctx)
		})
	}

	if xfs.Exists(f.configPath) {
		watcher, err := config.NewWatcher(f.configPath, f.schemaPath, func(next *config.Config, err error) {
			if err != nil {
				slog.Error("Failed to reload config", "error", err)
				return
			}
			f.apply(next)

			svc.ApplyGeneration(next.Generation)
			if next.Model != cfg.Model {
				if next.Model.Binary != cfg.Model.Binary || next.Model.Timeout != cfg.Model.Timeout {
					slog.Warn("Model binary and timeout changes need a restart", "binary", next.Model.Binary)
				}
				if err := svc.Load(ctx, next); errors.Is(err, service.ErrGenerationActive) {
					// Keep the old model config so the next edit retries the swap.
					slog.Warn("Model reload deferred until generation ends", "path", next.Model.Path)
					return
				} else if err != nil {
					slog.Error("Failed to reload model", "error", err)
				}
				cfg.Model = next.Model
				if health != nil {
					health.Refresh()
				}
			}
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			return watcher.Run(ctx)
		})
	}

	srv := httpserver.NewServer(cfg.Server, svc, reg)
	g.Go(func() error {
		return srv.Run(ctx)
	})

	// Ending the active job lets open streams return before the HTTP shutdown.
	g.Go(func() error {
		<-ctx.Done()
		return svc.Close()
	})

	if err := g.Wait(); err != nil {
		slog.Error("localgen stopped", "error", err)
		return err
	}

	slog.Info("localgen stopped")
	return nil
}
