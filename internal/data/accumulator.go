package data

import (
	"sync"
	"time"

	"crypto-trigger-engine/internal/model"

	"github.com/shopspring/decimal"
)

// DefaultFlushInterval 默认聚合窗口
const DefaultFlushInterval = 500 * time.Millisecond

// VolumeAccumulator 在一个固定窗口内累计买卖成交量。
// 写入方 (行情读循环) 与读取方 (定时 flush) 通过 mu 串行化。
type VolumeAccumulator struct {
	mu       sync.Mutex
	exchange model.Exchange
	interval time.Duration

	buy         decimal.Decimal
	sell        decimal.Decimal
	lastPrice   decimal.Decimal
	windowStart time.Time
}

// NewVolumeAccumulator 创建累加器，窗口从 now 开始
func NewVolumeAccumulator(exchange model.Exchange, interval time.Duration, now time.Time) *VolumeAccumulator {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &VolumeAccumulator{
		exchange:    exchange,
		interval:    interval,
		buy:         decimal.Zero,
		sell:        decimal.Zero,
		lastPrice:   decimal.Zero,
		windowStart: now,
	}
}

// Add 将一笔成交计入对应方向，并始终更新最新价
func (a *VolumeAccumulator) Add(ev model.TradeEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !ev.Quantity.IsNegative() {
		switch ev.Side {
		case model.SideBuy:
			a.buy = a.buy.Add(ev.Quantity)
		case model.SideSell:
			a.sell = a.sell.Add(ev.Quantity)
		}
	}
	a.lastPrice = ev.Price
}

// Due 窗口是否已到期 (严格超过 interval)
func (a *VolumeAccumulator) Due(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return now.Sub(a.windowStart) > a.interval
}

// Flush 输出 [windowStart, now] 的精确累计值，然后清零并开启新窗口。
// 定时器延迟时窗口会相应变长，不会丢弃任何成交量。
func (a *VolumeAccumulator) Flush(now time.Time) model.VolumeSample {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := model.VolumeSample{
		Exchange:     a.exchange,
		BuyQuantity:  a.buy,
		SellQuantity: a.sell,
		LastPrice:    a.lastPrice,
		WindowStart:  a.windowStart,
		WindowEnd:    now,
	}
	a.buy = decimal.Zero
	a.sell = decimal.Zero
	a.windowStart = now
	return s
}

// Reset 清零累计值；keepPrice=false 时同时清除最新价 (换交易对)
func (a *VolumeAccumulator) Reset(now time.Time, keepPrice bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buy = decimal.Zero
	a.sell = decimal.Zero
	a.windowStart = now
	if !keepPrice {
		a.lastPrice = decimal.Zero
	}
}

// LastPrice 最新成交价，不受窗口限制
func (a *VolumeAccumulator) LastPrice() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastPrice
}

// Totals 当前窗口内的累计值
func (a *VolumeAccumulator) Totals() (buy, sell decimal.Decimal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buy, a.sell
}

func (a *VolumeAccumulator) Interval() time.Duration {
	return a.interval
}
