package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/tradecore/decision-core/internal/config"
	"github.com/tradecore/decision-core/internal/di"
	"github.com/tradecore/decision-core/internal/orchestrator"
	"github.com/tradecore/decision-core/pkg/logger"
)

func main() {
	once := flag.Bool("once", false, "run a single invocation and exit, instead of scheduling recurring runs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	log.Info().Msg("starting decision core")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build container")
	}
	defer container.Close()

	if *once {
		os.Exit(container.Orchestrator.Run(ctx))
	}

	if container.StatusServer != nil {
		go func() {
			if err := container.StatusServer.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
	}

	sched := cron.New(cron.WithSeconds())
	for _, cadence := range []orchestrator.Cadence{orchestrator.CadencePreMarket, orchestrator.CadenceMarketOpen} {
		expr, err := orchestrator.ScheduleExpr(cadence)
		if err != nil {
			log.Fatal().Err(err).Str("cadence", string(cadence)).Msg("unknown cadence")
		}
		c := cadence
		if _, err := sched.AddFunc(expr, func() {
			log.Info().Str("cadence", string(c)).Msg("triggering scheduled run")
			exitCode := container.Orchestrator.Run(ctx)
			log.Info().Str("cadence", string(c)).Int("exit_code", exitCode).Msg("run finished")
		}); err != nil {
			log.Fatal().Err(err).Str("cadence", string(cadence)).Msg("failed to register cadence")
		}
		log.Info().Str("cadence", string(cadence)).Str("schedule", expr).Msg("cadence registered")
	}
	sched.Start()
	defer func() {
		stopCtx := sched.Stop()
		<-stopCtx.Done()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
}
