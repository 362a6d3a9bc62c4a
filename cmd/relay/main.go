// Command relay runs the capability dispatch and chaining server.
//
// Configuration is read from a YAML file (-config, RELAY_CONFIG,
// ./config.yaml or /etc/relay/config.yaml) and RELAY_* environment
// variables; see pkg/config.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/rhuss/relay/pkg/config"
	"github.com/rhuss/relay/pkg/conversation"
	"github.com/rhuss/relay/pkg/debug"
	"github.com/rhuss/relay/pkg/dispatch"
	"github.com/rhuss/relay/pkg/engine"
	"github.com/rhuss/relay/pkg/observability"
	"github.com/rhuss/relay/pkg/oracle"
	"github.com/rhuss/relay/pkg/planner"
	"github.com/rhuss/relay/pkg/transport"
	transporthttp "github.com/rhuss/relay/pkg/transport/http"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("relay failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(debug.Options{
		Categories: cfg.Logging.Debug,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
	})

	ctx := context.Background()

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: "relay",
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}

	store, err := newTaskStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}

	reg, err := buildRegistry(ctx, cfg.Capabilities)
	if err != nil {
		store.Close()
		return err
	}
	slog.Info("capabilities registered", "count", reg.Len())

	d := dispatch.New(reg, store, dispatch.Config{
		InlineThreshold: cfg.Dispatch.InlineThreshold,
		Workers:         cfg.Dispatch.Workers,
		PollInterval:    cfg.Dispatch.PollInterval,
	})

	orc := oracle.NewChatOracle(oracle.Config{
		BaseURL: cfg.Oracle.BackendURL,
		APIKey:  cfg.Oracle.APIKey,
		Model:   cfg.Oracle.Model,
		Timeout: cfg.Oracle.Timeout,
	})
	p := planner.New(orc, reg, d, conversation.NewMemory(cfg.Planner.HistoryTurns), planner.Config{
		MaxDepth:      cfg.Planner.MaxDepth,
		PollInterval:  cfg.Dispatch.PollInterval,
		RenderedCalls: cfg.Planner.RenderedCalls,
	})

	eng, err := engine.New(d, p)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	authMW, err := buildAuth(cfg.Auth)
	if err != nil {
		return err
	}

	adapterCfg := transporthttp.DefaultConfig()
	adapterCfg.MaxBodySize = cfg.Server.MaxBodySize
	adapter := transporthttp.NewAdapter(eng, eng, eng, adapterCfg,
		transport.Recovery(),
		transport.RequestID(),
		transport.Logging(slog.Default()),
		transport.Admission(cfg.Planner.MaxConcurrentChains),
	)

	metricsPath := ""
	if cfg.Observability.Metrics.Enabled {
		metricsPath = cfg.Observability.Metrics.Path
	}
	srv := transporthttp.NewServer(adapter,
		transporthttp.WithAddr(":"+strconv.Itoa(cfg.Server.Port)),
		transporthttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
		transporthttp.WithMetricsPath(metricsPath),
		transporthttp.WithReadiness(d),
		transporthttp.WithHTTPMiddleware(authMW),
		transporthttp.WithShutdownHook(d.Close),
		transporthttp.WithShutdownHook(func(context.Context) error { return reg.Close() }),
		transporthttp.WithShutdownHook(func(context.Context) error { return store.Close() }),
		transporthttp.WithShutdownHook(tp.Shutdown),
	)

	slog.Info("relay configured",
		"version", version,
		"oracle", cfg.Oracle.BackendURL,
		"model", cfg.Oracle.Model,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"inline_threshold", cfg.Dispatch.InlineThreshold,
		"max_depth", cfg.Planner.MaxDepth,
	)
	return srv.ListenAndServe()
}
