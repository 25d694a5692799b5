package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/pushd/internal/adapters/http"
	pushws "github.com/dkeye/pushd/internal/adapters/signal"
	"github.com/dkeye/pushd/internal/app"
	"github.com/dkeye/pushd/internal/config"
	"github.com/dkeye/pushd/internal/core"
	"github.com/dkeye/pushd/internal/metrics"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	gate, err := core.NewGate(cfg.Compat.LegacyClient, cfg.Compat.MinVersion)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid compat settings")
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promReg)

	reg := app.NewRegistry(gate, m)
	mgr := app.NewManager(reg, m, cfg.SendTimeout, cfg.BroadcastConcurrency)

	push := pushws.NewPushWSController(mgr, m, clockwork.NewRealClock(), pushws.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		KeepAlive:    cfg.KeepAlive,
		RateLimit:    cfg.InboundRate.Limit,
		RateInterval: cfg.InboundRate.Interval,
	})

	// Sockets outlive the signal context so the shutdown notice can be flushed.
	connCtx, connCancel := context.WithCancel(context.Background())
	defer connCancel()

	r := router.SetupRouter(connCtx, cfg, mgr, push, promReg)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("push server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	mgr.Shutdown(shutdownCtx)
	connCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
