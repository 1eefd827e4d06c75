package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"

	"github.com/ekisa-team/localgen/internal/config"
	"github.com/ekisa-team/localgen/internal/env"
	"github.com/ekisa-team/localgen/internal/envvar"
	"github.com/ekisa-team/localgen/internal/logger"
	"github.com/ekisa-team/localgen/internal/metrics"
	"github.com/ekisa-team/localgen/internal/relay"
)

func main() {
	var (
		configPath string
		schemaPath string
		listen     string
		backendURL string
		redisAddr  string
		logLevel   string
		wait       time.Duration
	)

	app := &cli.Command{
		Name:  "localgen-relay",
		Usage: "Web chat relay re-framing localgen streams as server-sent events",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "path to the YAML config file",
				Value:       config.DefaultConfigFile(),
				Sources:     cli.EnvVars(envvar.LocalgenConfig),
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:        "schema",
				Usage:       "path to a JSON schema overriding the embedded one",
				Destination: &schemaPath,
			},
			&cli.StringFlag{
				Name:        "listen",
				Usage:       "listen address",
				Destination: &listen,
			},
			&cli.StringFlag{
				Name:        "backend-url",
				Usage:       "URL of the localgen inference server",
				Sources:     cli.EnvVars(envvar.LocalgenRelayBackendURL),
				Destination: &backendURL,
			},
			&cli.StringFlag{
				Name:        "redis-addr",
				Usage:       "Redis address for sessions shared between replicas",
				Sources:     cli.EnvVars(envvar.LocalgenRelayRedisAddr),
				Destination: &redisAddr,
			},
			&cli.DurationFlag{
				Name:        "wait",
				Usage:       "wait up to this long for the inference server before serving (0 = do not wait)",
				Destination: &wait,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "debug, info, warn or error",
				Sources:     cli.EnvVars(envvar.LocalgenLogLevel),
				Destination: &logLevel,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			environment := env.FromEnv()
			slog.SetDefault(logger.New(environment))

			cfg, err := config.LoadOrDefault(configPath, schemaPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Relay.Listen = listen
			}
			if backendURL != "" {
				cfg.Relay.BackendURL = backendURL
			}
			if redisAddr != "" {
				cfg.Relay.Redis.Addr = redisAddr
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}

			slog.SetDefault(logger.New(environment,
				logger.WithLevel(logger.ParseLevel(cfg.Logging.Level)),
				logger.WithLogToFile(cfg.Logging.ToFile),
				logger.WithLogFile(cfg.Logging.File),
			))

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg.Relay, wait)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.RelayConfig, wait time.Duration) error {
	client := relay.NewClient(cfg)
	if wait > 0 {
		if err := client.WaitReady(ctx, wait, time.Second); err != nil {
			return err
		}
		slog.Info("Inference server is ready", "backend", cfg.BackendURL)
	}

	var sessions relay.SessionStore = relay.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		store, err := relay.NewRedisStore(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		sessions = store
		slog.Info("Using Redis session store", "addr", cfg.Redis.Addr)
	}
	defer sessions.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	h := relay.NewHandler(client, sessions, relay.WithRecorder(m))

	e := echo.New()
	e.Use(middleware.RequestLogger())
	e.Use(middleware.Recover())
	h.Register(e)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))

	slog.Info("localgen-relay started", "addr", cfg.Listen, "backend", cfg.BackendURL)

	sc := echo.StartConfig{
		Address: cfg.Listen,
		BeforeServeFunc: func(srv *http.Server) error {
			srv.ReadHeaderTimeout = cfg.RequestTimeout
			return nil
		},
	}
	return sc.Start(ctx, e)
}
