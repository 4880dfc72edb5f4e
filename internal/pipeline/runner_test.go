package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crypto-trigger-engine/internal/api"
	"crypto-trigger-engine/internal/metrics"
	"crypto-trigger-engine/internal/model"
	"crypto-trigger-engine/internal/service"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testOptions = Options{
	FlushInterval: 20 * time.Millisecond,
	MinBackoff:    5 * time.Millisecond,
	MaxBackoff:    20 * time.Millisecond,
}

type streamFunc func(n int, ctx context.Context, symbol string, out chan<- model.TradeEvent, onStatus api.StatusFunc) error

// fakeAdapter 按调用次数执行脚本，记录每次订阅的 symbol
type fakeAdapter struct {
	exchange model.Exchange
	script   streamFunc

	mu      sync.Mutex
	symbols []string
}

func (f *fakeAdapter) Exchange() model.Exchange { return f.exchange }

func (f *fakeAdapter) Stream(ctx context.Context, symbol string, out chan<- model.TradeEvent, onStatus api.StatusFunc) error {
	f.mu.Lock()
	f.symbols = append(f.symbols, symbol)
	n := len(f.symbols)
	f.mu.Unlock()
	return f.script(n, ctx, symbol, out, onStatus)
}

func (f *fakeAdapter) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.symbols...)
}

// blockUntilDone 正常连接后一直保持，直到被取消
func blockUntilDone(ctx context.Context, onStatus api.StatusFunc) error {
	onStatus(model.StatusConnecting)
	onStatus(model.StatusConnected)
	<-ctx.Done()
	onStatus(model.StatusDisconnected)
	return ctx.Err()
}

type recordingSink struct {
	mu       sync.Mutex
	samples  []model.VolumeSample
	fired    []model.TriggerSet
	ticks    []model.PriceTick
	statuses []model.ConnectionStatus
}

func (s *recordingSink) ExecuteTriggers(_ context.Context, set model.TriggerSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, set.Sample)
	if len(set.Triggers) > 0 {
		s.fired = append(s.fired, set)
	}
	return nil
}

func (s *recordingSink) PublishPrice(_ context.Context, tick model.PriceTick) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, tick)
	return nil
}

func (s *recordingSink) PublishStatus(_ context.Context, _ model.Exchange, status model.ConnectionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *recordingSink) snapshot() ([]model.VolumeSample, []model.TriggerSet, []model.PriceTick, []model.ConnectionStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.VolumeSample(nil), s.samples...),
		append([]model.TriggerSet(nil), s.fired...),
		append([]model.PriceTick(nil), s.ticks...),
		append([]model.ConnectionStatus(nil), s.statuses...)
}

func newStore(symbol string, active bool, tiers ...model.TierDefinition) *service.ConfigStore {
	return service.NewStaticStore(&service.Config{}, &model.Configuration{
		Symbol:         symbol,
		CoinbaseSymbol: "BTC-USD",
		IsActive:       active,
		Tiers:          tiers,
	})
}

func trade(side model.Side, price, qty string) model.TradeEvent {
	return model.TradeEvent{
		Exchange:  model.ExchangeBinance,
		Symbol:    "btcusdt",
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.RequireFromString(qty),
		Side:      side,
		EventTime: time.Now(),
	}
}

func startRunner(t *testing.T, r *Runner) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(2 * time.Second):
			t.Error("runner did not stop")
		}
	})
	return cancel
}

func TestFeedConfigFor(t *testing.T) {
	snap := &model.Configuration{Symbol: "btcusdt", CoinbaseSymbol: "BTC-USD", IsActive: true}
	assert.Equal(t, FeedConfig{Symbol: "btcusdt", Enabled: true}, FeedConfigFor(model.ExchangeBinance, snap))
	assert.Equal(t, FeedConfig{Symbol: "BTC-USD", Enabled: true}, FeedConfigFor(model.ExchangeCoinbase, snap))

	snap.IsActive = false
	assert.False(t, FeedConfigFor(model.ExchangeBinance, snap).Enabled)

	snap = &model.Configuration{Symbol: "btcusdt", IsActive: true}
	assert.False(t, FeedConfigFor(model.ExchangeCoinbase, snap).Enabled, "空 symbol 不连接")
	assert.Equal(t, FeedConfig{}, FeedConfigFor(model.ExchangeBinance, nil))
}

func TestRunnerClassifiesSamples(t *testing.T) {
	tier := model.TierDefinition{
		ID:       "binance-special-1",
		Exchange: model.ExchangeBinance,
		Category: model.SideBuy,
		Min:      decimal.RequireFromString("0.01"),
		Max:      decimal.RequireFromString("0.09999999"),
		Action:   model.SingleKey("x"),
	}
	adapter := &fakeAdapter{exchange: model.ExchangeBinance, script: func(_ int, ctx context.Context, _ string, out chan<- model.TradeEvent, onStatus api.StatusFunc) error {
		onStatus(model.StatusConnecting)
		onStatus(model.StatusConnected)
		out <- trade(model.SideBuy, "37000", "0.03")
		out <- trade(model.SideBuy, "37001", "0.02")
		<-ctx.Done()
		onStatus(model.StatusDisconnected)
		return ctx.Err()
	}}
	sink := &recordingSink{}
	startRunner(t, NewRunner(adapter, newStore("btcusdt", true, tier), sink, testOptions))

	// 两笔成交可能落在不同窗口，但每个窗口的买量都在档位内
	require.Eventually(t, func() bool {
		samples, _, _, _ := sink.snapshot()
		total := decimal.Zero
		for _, s := range samples {
			total = total.Add(s.BuyQuantity)
		}
		return total.Equal(decimal.RequireFromString("0.05"))
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, _, _, statuses := sink.snapshot()
		return len(statuses) == 2
	}, 2*time.Second, 5*time.Millisecond)

	_, fired, ticks, statuses := sink.snapshot()
	require.NotEmpty(t, fired)
	for _, set := range fired {
		require.Len(t, set.Triggers, 1)
		assert.Equal(t, "binance-special-1", set.Triggers[0].TierID)
		assert.Equal(t, model.SideBuy, set.Triggers[0].Category)
	}
	assert.Equal(t, []string{"btcusdt"}, adapter.calls())
	assert.LessOrEqual(t, len(ticks), 2, "价格只发布最新一笔，可能合并")
	assert.Equal(t, []model.ConnectionStatus{model.StatusConnecting, model.StatusConnected}, statuses)

	require.Eventually(t, func() bool {
		_, _, ticks, _ := sink.snapshot()
		return len(ticks) > 0 && ticks[len(ticks)-1].Price.Equal(decimal.NewFromInt(37001))
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRunnerReconnects(t *testing.T) {
	firstConsumed := make(chan struct{})
	var once sync.Once
	sink := &recordingSink{}

	adapter := &fakeAdapter{exchange: model.ExchangeBinance, script: func(n int, ctx context.Context, _ string, out chan<- model.TradeEvent, onStatus api.StatusFunc) error {
		if n == 1 {
			onStatus(model.StatusConnecting)
			onStatus(model.StatusConnected)
			out <- trade(model.SideBuy, "100", "0.5")
			<-firstConsumed
			onStatus(model.StatusDisconnected)
			return errors.New("connection reset")
		}
		onStatus(model.StatusConnecting)
		onStatus(model.StatusConnected)
		out <- trade(model.SideSell, "101", "0.1")
		<-ctx.Done()
		onStatus(model.StatusDisconnected)
		return ctx.Err()
	}}
	observer := &priceObserver{recordingSink: sink, onTick: func() { once.Do(func() { close(firstConsumed) }) }}

	before := testutil.ToFloat64(metrics.ReconnectsTotal.WithLabelValues("binance"))
	startRunner(t, NewRunner(adapter, newStore("btcusdt", true), observer, testOptions))

	// 重连后的窗口里只有卖单，断线前的买量不会带过来
	require.Eventually(t, func() bool {
		samples, _, _, _ := sink.snapshot()
		for _, s := range samples {
			if s.SellQuantity.Equal(decimal.RequireFromString("0.1")) {
				return s.BuyQuantity.IsZero()
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	want := []model.ConnectionStatus{
		model.StatusConnecting, model.StatusConnected, model.StatusDisconnected,
		model.StatusConnecting, model.StatusConnected,
	}
	require.Eventually(t, func() bool {
		_, _, _, statuses := sink.snapshot()
		return len(statuses) == len(want)
	}, 2*time.Second, 5*time.Millisecond)
	_, _, _, statuses := sink.snapshot()
	assert.Equal(t, want, statuses, "状态按顺序发布")
	assert.Equal(t, []string{"btcusdt", "btcusdt"}, adapter.calls())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ReconnectsTotal.WithLabelValues("binance"))-before)
}

// priceObserver 在第一笔价格发布时回调
type priceObserver struct {
	*recordingSink
	onTick func()
}

func (p *priceObserver) PublishPrice(ctx context.Context, tick model.PriceTick) error {
	err := p.recordingSink.PublishPrice(ctx, tick)
	p.onTick()
	return err
}

func TestRunnerRestartsOnSymbolChange(t *testing.T) {
	adapter := &fakeAdapter{exchange: model.ExchangeBinance, script: func(_ int, ctx context.Context, _ string, _ chan<- model.TradeEvent, onStatus api.StatusFunc) error {
		return blockUntilDone(ctx, onStatus)
	}}
	store := newStore("btcusdt", true)
	sink := &recordingSink{}
	startRunner(t, NewRunner(adapter, store, sink, testOptions))

	require.Eventually(t, func() bool { return len(adapter.calls()) == 1 }, 2*time.Second, 5*time.Millisecond)

	// 只改档位不重启
	store.Update(&model.Configuration{Symbol: "btcusdt", CoinbaseSymbol: "BTC-USD", IsActive: true,
		Tiers: []model.TierDefinition{{ID: "new", Exchange: model.ExchangeBinance, Category: model.SideBuy, Action: model.SingleKey("x")}}})
	// Coinbase 的 symbol 变化与 Binance 无关
	store.Update(&model.Configuration{Symbol: "btcusdt", CoinbaseSymbol: "ETH-USD", IsActive: true})
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"btcusdt"}, adapter.calls())

	store.Update(&model.Configuration{Symbol: "ethusdt", CoinbaseSymbol: "ETH-USD", IsActive: true})
	require.Eventually(t, func() bool { return len(adapter.calls()) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"btcusdt", "ethusdt"}, adapter.calls())
}

func TestRunnerDisableAndEnable(t *testing.T) {
	adapter := &fakeAdapter{exchange: model.ExchangeCoinbase, script: func(_ int, ctx context.Context, _ string, _ chan<- model.TradeEvent, onStatus api.StatusFunc) error {
		return blockUntilDone(ctx, onStatus)
	}}
	store := newStore("btcusdt", false)
	sink := &recordingSink{}
	startRunner(t, NewRunner(adapter, store, sink, testOptions))

	require.Eventually(t, func() bool {
		_, _, _, statuses := sink.snapshot()
		return len(statuses) == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, adapter.calls(), "未激活时不连接")

	store.Update(&model.Configuration{Symbol: "btcusdt", CoinbaseSymbol: "BTC-USD", IsActive: true})
	require.Eventually(t, func() bool { return len(adapter.calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "BTC-USD", adapter.calls()[0])

	store.Update(&model.Configuration{Symbol: "btcusdt", CoinbaseSymbol: "BTC-USD", IsActive: false})
	require.Eventually(t, func() bool {
		_, _, _, statuses := sink.snapshot()
		return len(statuses) > 0 && statuses[len(statuses)-1] == model.StatusDisconnected &&
			len(statuses) >= 5
	}, 2*time.Second, 5*time.Millisecond)
	assert.Len(t, adapter.calls(), 1)
}

// slowSink 每次发布都阻塞，模拟 Redis 不可达时的超时
type slowSink struct {
	recordingSink
	delay time.Duration
}

func (s *slowSink) PublishPrice(ctx context.Context, tick model.PriceTick) error {
	time.Sleep(s.delay)
	return s.recordingSink.PublishPrice(ctx, tick)
}

func (s *slowSink) PublishStatus(ctx context.Context, ex model.Exchange, status model.ConnectionStatus) error {
	time.Sleep(s.delay)
	return s.recordingSink.PublishStatus(ctx, ex, status)
}

func TestRunnerSlowSinkKeepsCadence(t *testing.T) {
	const trades = 50
	adapter := &fakeAdapter{exchange: model.ExchangeBinance, script: func(_ int, ctx context.Context, _ string, out chan<- model.TradeEvent, onStatus api.StatusFunc) error {
		onStatus(model.StatusConnecting)
		onStatus(model.StatusConnected)
		for i := 0; i < trades; i++ {
			out <- trade(model.SideBuy, "100", "0.01")
		}
		<-ctx.Done()
		onStatus(model.StatusDisconnected)
		return ctx.Err()
	}}
	sink := &slowSink{delay: 100 * time.Millisecond}
	startRunner(t, NewRunner(adapter, newStore("btcusdt", true), sink, testOptions))

	// 每笔价格发布要 100ms，若阻塞聚合循环，50 笔成交要 5s 才能聚合完
	require.Eventually(t, func() bool {
		samples, _, _, _ := sink.snapshot()
		total := decimal.Zero
		for _, s := range samples {
			total = total.Add(s.BuyQuantity)
		}
		return total.Equal(decimal.RequireFromString("0.5"))
	}, 2*time.Second, 5*time.Millisecond)

	samples, _, ticks, _ := sink.snapshot()
	assert.Less(t, len(ticks), trades, "价格发布被合并")
	for _, s := range samples {
		assert.Less(t, s.Window(), 100*time.Millisecond, "窗口长度不受下游拖慢")
	}
}

func TestOfferKeepsLatest(t *testing.T) {
	ch := make(chan int, 2)
	assert.True(t, offer(ch, 1))
	assert.True(t, offer(ch, 2))
	assert.False(t, offer(ch, 3), "满了丢弃最旧的")
	assert.Equal(t, 2, <-ch)
	assert.Equal(t, 3, <-ch)
}

func TestDispatcherDiscardKeepsStatuses(t *testing.T) {
	d := newDispatcher(&recordingSink{}, model.ExchangeBinance, zap.NewNop())
	d.price(model.PriceTick{Symbol: "btcusdt"})
	d.triggers(model.TriggerSet{Exchange: model.ExchangeBinance})
	d.status(model.StatusDisconnected)

	d.discard()
	assert.Empty(t, d.prices)
	assert.Empty(t, d.sets)
	assert.Len(t, d.statuses, 1)
}
