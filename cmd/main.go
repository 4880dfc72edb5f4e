package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-trigger-engine/internal/api"
	"crypto-trigger-engine/internal/executor"
	"crypto-trigger-engine/internal/pipeline"
	"crypto-trigger-engine/internal/service"
	"crypto-trigger-engine/internal/stream"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	service.InitLogger("info")
	defer service.Logger.Sync()

	configPath := "config"
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		service.Logger.Warn("Configuration directory 'config/' not found, using defaults")
	}
	store, err := service.LoadConfig(configPath)
	if err != nil {
		service.Logger.Fatal("Failed to load config", zap.Error(err))
	}
	cfg := store.Config()
	if err := service.SetLogLevel(cfg.Log.Level); err != nil {
		service.Logger.Fatal("Invalid log level", zap.Error(err))
	}
	store.Watch()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 下游: 日志 + websocket 桥接 (+ Redis)
	hub := stream.NewHub(service.Logger)
	sinks := executor.MultiExecutor{executor.NewLogExecutor(service.Logger), hub}
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Redis 不可用不影响触发，发布失败只记日志
			service.Logger.Warn("Redis ping failed", zap.String("Addr", cfg.Redis.Addr), zap.Error(err))
		}
		sinks = append(sinks, executor.NewRedisExecutor(rdb, service.Logger))
	}

	// 2. 每个交易所一条隔离的管道
	opts := pipeline.Options{
		FlushInterval: cfg.Engine.FlushInterval,
		MinBackoff:    cfg.Engine.MinBackoff,
		MaxBackoff:    cfg.Engine.MaxBackoff,
	}
	adapters := []api.FeedAdapter{
		api.NewBinanceAdapter(cfg.Exchanges.Binance.WSURL),
		api.NewCoinbaseAdapter(cfg.Exchanges.Coinbase.WSURL),
	}

	runners := make([]*pipeline.Runner, 0, len(adapters))
	for _, adapter := range adapters {
		runners = append(runners, pipeline.NewRunner(adapter, store, sinks, opts))
	}

	snap := store.Snapshot()
	service.Logger.Info("Trigger engine started",
		zap.String("Symbol", snap.Symbol),
		zap.String("CoinbaseSymbol", snap.CoinbaseSymbol),
		zap.Bool("IsActive", snap.IsActive),
		zap.Int("Tiers", len(snap.Tiers)),
		zap.String("Interval", service.FormatInterval(cfg.Engine.FlushInterval)))

	// 3. 桥接服务
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           stream.NewRouter(hub, store, service.Logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	if err := serve(ctx, runners, srv, hub); err != nil {
		service.Logger.Fatal("Trigger engine stopped with error", zap.Error(err))
	}
	service.Logger.Info("Trigger engine stopped")
}

// serve 运行所有管道和桥接服务，任意一个失败都会取消其余部分
func serve(ctx context.Context, runners []*pipeline.Runner, srv *http.Server, hub *stream.Hub) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range runners {
		runner := runner
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}
	g.Go(func() error {
		service.Logger.Info("Stream server listening", zap.String("Addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stream server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		service.Logger.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		hub.Close()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
