package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"drivewatch/internal/broadcast"
	"drivewatch/internal/dispatch"
	"drivewatch/internal/geo"
	"drivewatch/internal/location"
	"drivewatch/internal/monitor"
	"drivewatch/internal/platform/config"
	"drivewatch/internal/platform/httpserver"
	"drivewatch/internal/platform/logger"
	"drivewatch/internal/platform/metrics"
	platformredis "drivewatch/internal/platform/redis"
	"drivewatch/internal/service"
	httptransport "drivewatch/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	index := geo.NewIndex()
	if err := index.LoadFile(cfg.FacilitiesFile); err != nil {
		// The service still accepts alerts without a facility set; nearest
		// resolution reports unavailable until a reload.
		log.Warn("facility index not loaded", "file", cfg.FacilitiesFile, "error", err.Error())
	} else {
		log.Info("facility index loaded", "file", cfg.FacilitiesFile, "count", index.Len())
	}

	locations := location.NewStore()
	broadcaster := broadcast.New(
		broadcast.WithLogger(log),
		broadcast.WithQueueDepth(cfg.EventQueueDepth),
	)

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "addr", cfg.Redis.Addr, "error", err.Error())
		return err
	}

	dispatchOpts := []dispatch.Option{dispatch.WithLogger(log)}
	serviceOpts := []service.Option{
		service.WithLogger(log),
		service.WithMetrics(m),
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		mirror := platformredis.NewMirror(redisClient)
		dispatchOpts = append(dispatchOpts, dispatch.WithMirror(mirror))
		serviceOpts = append(serviceOpts, service.WithLocationMirror(mirror))
		log.Info("redis mirror enabled", "addr", cfg.Redis.Addr)
	}

	dispatcher := dispatch.New(dispatch.NewLog(), index, locations, broadcaster, dispatchOpts...)

	svc := service.New(index, locations, dispatcher, broadcaster,
		[]monitor.Option{
			monitor.WithLogger(log),
			monitor.WithSampleBuffer(cfg.SampleBuffer),
			monitor.WithStopGrace(cfg.StopGrace),
		},
		serviceOpts...,
	)

	handler := httptransport.NewHandler(svc, log)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err.Error())
		}

		svc.StopAllMonitors()
		broadcaster.Close()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err.Error())
		return err
	}
	log.Info("server stopped")
	return nil
}
