// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zentask/internal/config"
	"github.com/pbinitiative/zentask/internal/log"
	"github.com/pbinitiative/zentask/internal/otel"
	"github.com/pbinitiative/zentask/internal/persistence"
	"github.com/pbinitiative/zentask/internal/profile"
	"github.com/pbinitiative/zentask/internal/rest"
	"github.com/pbinitiative/zentask/pkg/bpmn/workflow"
	"github.com/pbinitiative/zentask/pkg/events"
	otelPkg "github.com/pbinitiative/zentask/pkg/otel"
	"github.com/pbinitiative/zentask/pkg/processor"
	"github.com/pbinitiative/zentask/pkg/script/feel"
	"github.com/pbinitiative/zentask/pkg/script/js"
	otelApi "go.opentelemetry.io/otel"
)

func main() {
	profile.InitProfile()
	log.Init()
	defer log.Sync()

	appContext, ctxCancel := context.WithCancel(context.Background())

	conf := config.InitConfig()

	openTelemetry, err := otel.SetupOtel(conf.Name, conf.Tracing)
	if err != nil {
		log.Error("Failed to set up OTEL: %s", err)
		os.Exit(1)
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:       conf.Name,
		Level:      hclog.Info,
		JSONFormat: true,
	})

	db, err := persistence.Open(appContext, conf.Persistence, conf.Cache, conf.Processor.NodeId, logger.Named("persistence"))
	if err != nil {
		log.Error("Failed to open database %s: %s", conf.Persistence.Path, err)
		os.Exit(1)
	}

	jsRuntime, err := js.NewJsRuntime(appContext, conf.Script.MaxVMs, conf.Script.MinVMs)
	if err != nil {
		log.Error("Failed to start script runtime: %s", err)
		os.Exit(1)
	}
	factory := workflow.NewFactory(
		workflow.WithJsRuntime(jsRuntime),
		workflow.WithFeelRuntime(feel.NewFeelRuntime()),
		workflow.WithPredictions(conf.Processor.PersistPredictedTasks),
		workflow.WithLogger(logger.Named("workflow")),
	)

	metrics, err := otelPkg.NewMetrics(otelApi.Meter("processor"))
	if err != nil {
		log.Error("Failed to register processor metrics: %s", err)
		os.Exit(1)
	}

	proc := processor.New(
		db,
		processor.EngineFactoryFuncs[*workflow.Workflow]{New: factory.New, Restore: factory.Restore},
		conf.Processor,
		conf.Cache,
		metrics,
		logger.Named("processor"),
		events.NewLogExporter(logger.Named("events")),
	)

	svr := rest.NewServer(proc, db, conf)
	if _, err := svr.Start(); err != nil {
		log.Error("Failed to start REST server: %s", err)
		os.Exit(1)
	}

	appStop := make(chan os.Signal, 2)
	signal.Notify(appStop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	handleSigterm(appStop, appContext)

	ctxCancel()
	// cleanup
	svr.Stop(context.Background())
	if err := db.Close(); err != nil {
		log.Error("Failed to close database: %s", err)
	}
	openTelemetry.Stop(context.Background())
}

func handleSigterm(appStop chan os.Signal, ctx context.Context) {
	sig := <-appStop
	log.Infof(ctx, "Received %s. Shutting down", sig.String())
}
