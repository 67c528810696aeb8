package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/trafficsim/internal/domain"
	httpx "github.com/splax/trafficsim/internal/http"
	"github.com/splax/trafficsim/internal/service/catalog"
	"github.com/splax/trafficsim/internal/service/export"
	"github.com/splax/trafficsim/internal/service/telemetry"
	"github.com/splax/trafficsim/internal/ws"
	"github.com/splax/trafficsim/pkg/config"
	"github.com/splax/trafficsim/pkg/logger"
)

func main() {
	cfg := config.LoadDashboardConfig()
	log := logger.New("trafficd", logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	seed := cfg.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	opts := []telemetry.Option{}
	if cfg.PhaseReset {
		opts = append(opts, telemetry.WithPhaseDurations(map[domain.SignalStatus]int{
			domain.SignalRed:    cfg.PhaseRedSeconds,
			domain.SignalGreen:  cfg.PhaseGreenSeconds,
			domain.SignalYellow: cfg.PhaseYellowSeconds,
		}))
	}
	generator := telemetry.NewGenerator(rand.New(rand.NewSource(seed)), opts...)

	hub := ws.NewHub()
	defer hub.Close()

	metrics := telemetry.NewMetrics(prometheus.DefaultRegisterer)
	feed := telemetry.NewLiveFeed(generator, hub, metrics, log, cfg.RefreshInterval, cfg.LiveOnStart)
	go feed.Run(ctx)

	if url := strings.TrimSpace(cfg.ExportURL); url != "" {
		forwarder, err := export.NewForwarder(url, cfg.ExportToken, nil, log, cfg.ExportQueueSize)
		if err != nil {
			log.Error("snapshot export disabled", "error", err)
		} else {
			hub.Register(telemetry.SnapshotTopic, forwarder)
			go forwarder.Run(ctx)
			log.Info("snapshot export enabled", "url", url)
		}
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter.Close()
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, feed, hub, catalog.New(), limiter, cfg)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("trafficd starting", "addr", cfg.Addr, "refresh_interval", cfg.RefreshInterval, "live", cfg.LiveOnStart, "seed", seed)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("trafficd stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
