package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/edgecomet/pagerender/internal/common/config"
	"github.com/edgecomet/pagerender/internal/common/configtypes"
	logutil "github.com/edgecomet/pagerender/internal/common/logger"
	"github.com/edgecomet/pagerender/internal/common/metricsserver"
	"github.com/edgecomet/pagerender/internal/common/redis"
	"github.com/edgecomet/pagerender/internal/render/args"
	"github.com/edgecomet/pagerender/internal/render/chrome"
	"github.com/edgecomet/pagerender/internal/render/metrics"
	"github.com/edgecomet/pagerender/internal/render/orchestrator"
	"github.com/edgecomet/pagerender/internal/render/registry"
	"github.com/edgecomet/pagerender/internal/render/service"
	"github.com/edgecomet/pagerender/internal/render/stats"
)

const (
	shutdownTimeout     = 30 * time.Second
	poolShutdownTimeout = 10 * time.Second
)

func runServe(cmd *cobra.Command, _ []string) error {
	initialLogger, err := newBootstrapLogger()
	if err != nil {
		return err
	}

	initialLogger.Info("Loading configuration", zap.String("path", flagConfigPath))
	cfg, _, err := loadConfig(initialLogger)
	if err != nil {
		return err
	}

	// INFO during startup even when a higher level is configured
	dynamicLogger, err := logutil.NewLoggerWithStartupOverride(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create configured logger: %w", err)
	}
	logger := dynamicLogger.Logger
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, dynamicLogger)
}

func serve(ctx context.Context, cfg *config.RSConfig, dynamicLogger *logutil.DynamicLogger) error {
	logger := dynamicLogger.Logger

	logger.Info("Render Service starting",
		zap.String("rs", cfg.Server.ID),
		zap.String("version", version),
		zap.String("listen", cfg.Server.Listen),
		zap.String("chrome_pool_size", cfg.Chrome.PoolSize))

	metricsCollector := metrics.NewMetricsCollector(cfg.Metrics.Namespace, logger)

	recorder, err := newStatsRecorder(ctx, cfg, metricsCollector, logger)
	if err != nil {
		return err
	}

	chromeConfig := chrome.NewConfigFromYAML(cfg.Chrome, poolShutdownTimeout)
	logger.Info("Initializing Chrome pool")
	pool, err := chrome.NewChromePool(chromeConfig, metricsCollector, logger)
	if err != nil {
		return fmt.Errorf("failed to create Chrome pool: %w", err)
	}
	defer pool.Shutdown()

	scheduler := orchestrator.NewScheduler(logger)
	if err := scheduler.Start(); err != nil {
		return err
	}

	svc := service.New(service.Deps{
		Engine: chrome.NewEngine(pool, logger),
		Extractor: args.NewExtractor(args.Limits{
			DefaultTimeout:    cfg.Render.DefaultTimeout.ToDuration(),
			MaxTimeout:        cfg.Render.MaxTimeout.ToDuration(),
			MaxViewport:       cfg.Render.MaxViewport,
			BlockPrivateHosts: cfg.Render.BlockPrivateHosts,
		}),
		Scheduler: scheduler,
		Stats:     recorder,
		Metrics:   metricsCollector,
		Pool:      pool,
		Logger:    logger,
	})

	serverTimeout := cfg.Render.CalculateServerTimeout()
	server := &fasthttp.Server{
		Handler:      svc.Handler(),
		ReadTimeout:  serverTimeout,
		WriteTimeout: serverTimeout,
		IdleTimeout:  serverTimeout,
		Name:         "RenderService/" + cfg.Server.ID,
		Logger:       zap.NewStdLog(logger.Named("fasthttp")),
	}

	listenHost, listenPort, err := configtypes.ParseListenAddress(cfg.Server.Listen)
	if err != nil {
		return err
	}
	ln, err := net.Listen("tcp", net.JoinHostPort(listenHost, strconv.Itoa(listenPort)))
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Listen, err)
	}

	metricsServer := metricsserver.New(cfg.Metrics, metricsCollector, logger)
	var metricsLn net.Listener
	if metricsServer != nil {
		if metricsLn, err = metricsServer.Listen(); err != nil {
			_ = ln.Close()
			return err
		}
	}

	var advertiser *registry.Advertiser
	if cfg.Registry.Enabled {
		var closeRedis func()
		advertiser, closeRedis, err = newAdvertiser(ctx, cfg, listenHost, listenPort, pool, scheduler, logger)
		if err != nil {
			_ = ln.Close()
			if metricsLn != nil {
				_ = metricsLn.Close()
			}
			return err
		}
		defer closeRedis()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting HTTP server", zap.String("listen", ln.Addr().String()))
		return server.Serve(ln)
	})

	if metricsServer != nil {
		g.Go(func() error { return metricsServer.Serve(metricsLn) })
	}

	advertiserCtx, stopAdvertiser := context.WithCancel(context.Background())
	defer stopAdvertiser()
	advertiserDone := make(chan struct{})

	if advertiser != nil {
		g.Go(func() error {
			defer close(advertiserDone)
			return advertiser.Run(advertiserCtx)
		})
	} else {
		close(advertiserDone)
	}

	logger.Info("Render Service ready",
		zap.String("rs", cfg.Server.ID),
		zap.Int("chrome_instances", pool.PoolSize()))
	dynamicLogger.SwitchToConfiguredLevel()

	g.Go(func() error {
		<-gctx.Done()

		dynamicLogger.EnsureInfoLevelForShutdown()
		logger.Info("Shutting down gracefully")

		// stop advertising before refusing traffic
		stopAdvertiser()
		<-advertiserDone

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// in-flight renders see their request context end and answer 504
		if err := server.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Error("Scheduler stop error", zap.Error(err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown error", zap.Error(err))
			}
		}
		return nil
	})

	err = g.Wait()
	logger.Info("Render Service stopped", zap.Error(err))
	return err
}

// newStatsRecorder routes stats records to the stats logger. Peak RSS sampling is
// best effort: without it records carry rss 0.
func newStatsRecorder(ctx context.Context, cfg *config.RSConfig, counter stats.Counter, logger *zap.Logger) (*stats.Recorder, error) {
	statsLogger, err := logutil.NewStatsLogger(cfg.Stats, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create stats logger: %w", err)
	}

	var sampler stats.MemorySampler
	if ps, err := stats.NewProcessSampler(ctx); err != nil {
		logger.Warn("Peak RSS sampling unavailable", zap.Error(err))
	} else {
		sampler = ps
	}

	return stats.NewRecorder(stats.NewZapSink(statsLogger), sampler, counter, logger), nil
}

func newAdvertiser(ctx context.Context, cfg *config.RSConfig, listenHost string, listenPort int,
	pool *chrome.ChromePool, scheduler *orchestrator.Scheduler, logger *zap.Logger,
) (*registry.Advertiser, func(), error) {
	redisClient, err := redis.NewClient(ctx, &cfg.Redis, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = cfg.Server.ID
	}
	address := listenHost
	if address == "" || address == "0.0.0.0" || address == "::" {
		address = hostname
	}

	info := registry.ServiceInfo{
		ID:      cfg.Server.ID,
		Address: address,
		Port:    listenPort,
		Version: version,
	}

	load := func() registry.Load {
		s := pool.Stats()
		return registry.Load{
			Capacity:  s.TotalInstances,
			Available: s.AvailableInstances,
			Inflight:  scheduler.Inflight(),
		}
	}

	advertiser := registry.NewAdvertiser(registry.NewServiceRegistry(redisClient, logger), info, hostname,
		cfg.Registry.HeartbeatInterval.ToDuration(), load, logger)

	return advertiser, func() { _ = redisClient.Close() }, nil
}
