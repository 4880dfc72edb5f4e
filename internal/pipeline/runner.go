package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"crypto-trigger-engine/internal/api"
	"crypto-trigger-engine/internal/data"
	"crypto-trigger-engine/internal/executor"
	"crypto-trigger-engine/internal/metrics"
	"crypto-trigger-engine/internal/model"
	"crypto-trigger-engine/internal/service"
	"crypto-trigger-engine/internal/strategy"

	"go.uber.org/zap"
)

const tradeBuffer = 1024

// SnapshotSource 提供触发配置快照和变更通知 (service.ConfigStore)
type SnapshotSource interface {
	Snapshot() *model.Configuration
	Subscribe() <-chan *model.Configuration
}

// Options 引擎参数
type Options struct {
	FlushInterval time.Duration
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
}

// FeedConfig 决定连接本身的参数，变化时整条管道重启
type FeedConfig struct {
	Symbol  string
	Enabled bool
}

// FeedConfigFor 从快照中取出某个交易所的连接参数
func FeedConfigFor(exchange model.Exchange, snap *model.Configuration) FeedConfig {
	if snap == nil {
		return FeedConfig{}
	}
	symbol := snap.SymbolFor(exchange)
	return FeedConfig{Symbol: symbol, Enabled: snap.IsActive && symbol != ""}
}

// Runner 单个交易所的完整管道: 连接 -> 聚合 -> 分级 -> 下游。
// 不同交易所的 Runner 之间没有共享状态。
type Runner struct {
	adapter api.FeedAdapter
	store   SnapshotSource
	updates <-chan *model.Configuration
	sink    executor.Executor
	opts    Options
	logger  *zap.Logger

	dispatch *dispatcher
}

// NewRunner 创建 Runner，构造时即订阅配置变更，避免漏掉启动期间的更新
func NewRunner(adapter api.FeedAdapter, store SnapshotSource, sink executor.Executor, opts Options) *Runner {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = data.DefaultFlushInterval
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = time.Second
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = opts.MinBackoff
	}
	return &Runner{
		adapter: adapter,
		store:   store,
		updates: store.Subscribe(),
		sink:    sink,
		opts:    opts,
		logger:  service.Logger.With(zap.String("Exchange", adapter.Exchange().String())),
	}
}

// Run 阻塞直到 ctx 取消
func (r *Runner) Run(ctx context.Context) error {
	current := FeedConfigFor(r.adapter.Exchange(), r.store.Snapshot())

	r.dispatch = newDispatcher(r.sink, r.adapter.Exchange(), r.logger)
	go r.dispatch.run(context.WithoutCancel(ctx))
	defer r.dispatch.close()

	for {
		feedCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		if current.Enabled {
			r.logger.Info("Starting feed pipeline", zap.String("Symbol", current.Symbol))
			go func(fc FeedConfig) {
				defer close(done)
				r.runFeed(feedCtx, fc)
			}(current)
		} else {
			close(done)
			r.logger.Info("Feed disabled", zap.String("Symbol", current.Symbol))
			r.publishStatus(model.StatusDisconnected)
		}

		next, ok := r.waitForChange(ctx, current)
		cancel()
		<-done
		if !ok {
			return ctx.Err()
		}
		r.dispatch.discard()
		r.logger.Info("Feed config changed, restarting pipeline",
			zap.String("From", current.Symbol), zap.String("To", next.Symbol), zap.Bool("Enabled", next.Enabled))
		current = next
	}
}

// waitForChange 档位变化不需要重启，分级时总是读取最新快照
func (r *Runner) waitForChange(ctx context.Context, current FeedConfig) (FeedConfig, bool) {
	for {
		select {
		case <-ctx.Done():
			return current, false
		case snap := <-r.updates:
			if next := FeedConfigFor(r.adapter.Exchange(), snap); next != current {
				return next, true
			}
		}
	}
}

// runFeed 在同一 FeedConfig 下无限重连，退避时间指数增长
func (r *Runner) runFeed(ctx context.Context, fc FeedConfig) {
	acc := data.NewVolumeAccumulator(r.adapter.Exchange(), r.opts.FlushInterval, time.Now())
	backoff := r.opts.MinBackoff

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			metrics.ReconnectsTotal.WithLabelValues(r.adapter.Exchange().String()).Inc()
			// 重连后累计量清零，最新价保留
			acc.Reset(time.Now(), true)
		}

		connected, err := r.session(ctx, fc.Symbol, acc)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = r.opts.MinBackoff
		}
		r.logger.Warn("Feed session ended, reconnecting",
			zap.Error(err), zap.Duration("Backoff", backoff), zap.Int("Attempt", attempt+1))

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff = min(backoff*2, r.opts.MaxBackoff)
	}
}

// session 一次连接: adapter 读取成交，DataEngine 聚合。返回是否曾连接成功。
func (r *Runner) session(ctx context.Context, symbol string, acc *data.VolumeAccumulator) (bool, error) {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// 回调只做非阻塞投递，下游由 dispatcher 异步调用
	trades := make(chan model.TradeEvent, tradeBuffer)
	engine := data.NewDataEngine(acc, symbol, trades, r.dispatch.price, r.handleSample)
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = engine.Run(sessCtx)
	}()

	var connected atomic.Bool
	err := r.adapter.Stream(sessCtx, symbol, trades, func(status model.ConnectionStatus) {
		if status == model.StatusConnected {
			connected.Store(true)
		}
		r.publishStatus(status)
	})

	cancel()
	<-engineDone
	return connected.Load(), err
}

// handleSample 用最新配置快照分级，结果 (包括空结果) 交给下游
func (r *Runner) handleSample(sample model.VolumeSample) {
	exchange := r.adapter.Exchange().String()
	metrics.SamplesTotal.WithLabelValues(exchange).Inc()

	triggers := strategy.Classify(sample, r.store.Snapshot())
	for _, t := range triggers {
		metrics.FiredTotal.WithLabelValues(exchange, t.TierID).Inc()
	}
	r.dispatch.triggers(model.TriggerSet{Exchange: sample.Exchange, Sample: sample, Triggers: triggers})
}

func (r *Runner) publishStatus(status model.ConnectionStatus) {
	metrics.SetFeedStatus(r.adapter.Exchange(), status)
	r.dispatch.status(status)
}
