//
// Tencent is pleased to support the open source community by making trpc-council-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-council-go is licensed under the Apache License Version 2.0.
//
//

// councild runs the meeting intelligence pipeline as an HTTP service:
// it ingests meeting events, drives the analysis graph to the review
// suspension and applies reviewer verdicts until sessions close.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"github.com/panjf2000/ants/v2"

	"trpc.group/trpc-go/trpc-council-go/capability/openai"
	"trpc.group/trpc-go/trpc-council-go/config"
	"trpc.group/trpc-go/trpc-council-go/graph"
	"trpc.group/trpc-go/trpc-council-go/graph/checkpoint/sqlite"
	"trpc.group/trpc-go/trpc-council-go/guard"
	"trpc.group/trpc-go/trpc-council-go/log"
	"trpc.group/trpc-go/trpc-council-go/runner"
	"trpc.group/trpc-go/trpc-council-go/server"
	cmetric "trpc.group/trpc-go/trpc-council-go/telemetry/metric"
	ctrace "trpc.group/trpc-go/trpc-council-go/telemetry/trace"
	"trpc.group/trpc-go/trpc-council-go/transcript"
	"trpc.group/trpc-go/trpc-council-go/transcript/remote"
)

var confPath = flag.String("conf", "", "path to the YAML configuration file")

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatalf("councild: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(*confPath)
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		cleanup, err := startTelemetry(ctx, cfg.Telemetry)
		if err != nil {
			return err
		}
		defer cleanup()
	}

	db, err := sql.Open("sqlite3", cfg.Storage.Path)
	if err != nil {
		return err
	}
	store, err := sqlite.New(db)
	if err != nil {
		return err
	}
	defer store.Close()

	caps := openai.New(openaiOptions(cfg.OpenAI)...)
	g, err := graph.NewCouncilGraph(caps)
	if err != nil {
		return err
	}

	pool, err := ants.NewPool(cfg.Server.Workers)
	if err != nil {
		return err
	}
	defer pool.Release()

	exec, err := graph.NewExecutor(g,
		graph.WithCheckpointStore(store),
		graph.WithStepTimeout(cfg.Server.StepTimeout),
		graph.WithPool(pool),
	)
	if err != nil {
		return err
	}

	gd := guard.New(store)
	if err := gd.Rehydrate(ctx); err != nil {
		return err
	}

	runnerOpts := []runner.Option{}
	if src := transcriptSource(cfg.Transcript); src != nil {
		runnerOpts = append(runnerOpts, runner.WithTranscriptSource(src))
	}
	r, err := runner.New(exec, store, gd, runnerOpts...)
	if err != nil {
		return err
	}

	srv, err := server.New(r, server.WithBaseContext(ctx))
	if err != nil {
		return err
	}
	return srv.Serve(ctx, cfg.Server.Addr)
}

func openaiOptions(cfg config.OpenAIConfig) []openai.Option {
	opts := []openai.Option{openai.WithModel(cfg.Model)}
	if cfg.APIKey != "" {
		opts = append(opts, openai.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

func transcriptSource(cfg config.TranscriptConfig) transcript.Source {
	if cfg.Endpoint == "" || cfg.APIKey == "" {
		log.Warnf("transcript source not configured; meetings must carry their own transcripts")
		return nil
	}
	return remote.New(cfg.Endpoint, cfg.APIKey)
}

// startTelemetry wires the OTLP trace and metric exporters and returns a
// combined shutdown.
func startTelemetry(ctx context.Context, cfg config.TelemetryConfig) (func(), error) {
	var traceOpts []ctrace.Option
	if cfg.Protocol != "" {
		traceOpts = append(traceOpts, ctrace.WithProtocol(cfg.Protocol))
	}
	if cfg.TracesEndpoint != "" {
		traceOpts = append(traceOpts, ctrace.WithEndpoint(cfg.TracesEndpoint))
	}
	traceClean, err := ctrace.Start(ctx, traceOpts...)
	if err != nil {
		return nil, err
	}

	var metricOpts []cmetric.Option
	if cfg.MetricsEndpoint != "" {
		metricOpts = append(metricOpts, cmetric.WithEndpoint(cfg.MetricsEndpoint))
	}
	metricClean, err := cmetric.Start(ctx, metricOpts...)
	if err != nil {
		_ = traceClean()
		return nil, err
	}

	return func() {
		if err := traceClean(); err != nil {
			log.Errorf("shutdown trace exporter: %v", err)
		}
		if err := metricClean(); err != nil {
			log.Errorf("shutdown metric exporter: %v", err)
		}
	}, nil
}
