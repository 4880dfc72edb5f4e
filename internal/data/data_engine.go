package data

import (
	"context"
	"time"

	"crypto-trigger-engine/internal/model"
	"crypto-trigger-engine/internal/service"

	"go.uber.org/zap"
)

// checkDivisor 定时检查频率 = 窗口 / checkDivisor，窗口到期后最多延迟这么久 flush
const checkDivisor = 10

// DataEngine 负责接收 TradeEvent，按固定窗口聚合成交量，并把结果交给下游。
// 一个 DataEngine 只服务于一次连接会话，累加器由调用方持有 (重连时保留最新价)。
type DataEngine struct {
	acc    *VolumeAccumulator
	symbol string
	trades <-chan model.TradeEvent

	onPrice  func(model.PriceTick)
	onSample func(model.VolumeSample)

	now    func() time.Time
	logger *zap.Logger
}

// NewDataEngine 创建并初始化 DataEngine
func NewDataEngine(
	acc *VolumeAccumulator,
	symbol string,
	trades <-chan model.TradeEvent,
	onPrice func(model.PriceTick),
	onSample func(model.VolumeSample),
) *DataEngine {
	return &DataEngine{
		acc:      acc,
		symbol:   symbol,
		trades:   trades,
		onPrice:  onPrice,
		onSample: onSample,
		now:      time.Now,
		logger:   service.Logger.With(zap.String("Exchange", acc.exchange.String()), zap.String("Symbol", symbol)),
	}
}

// Run 数据处理主循环，直到 ctx 取消或 trades 关闭
func (de *DataEngine) Run(ctx context.Context) error {
	step := de.acc.Interval() / checkDivisor
	if step <= 0 {
		step = time.Millisecond
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	de.logger.Debug("Data engine started", zap.String("Interval", service.FormatInterval(de.acc.Interval())))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-de.trades:
			// select 随机选择分支，取消后缓冲区里剩余的成交不再处理
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !ok {
				return nil
			}
			de.acc.Add(ev)
			// 价格立即可见，不等窗口结束
			if de.onPrice != nil {
				de.onPrice(model.PriceTick{
					Exchange: ev.Exchange,
					Symbol:   ev.Symbol,
					Price:    ev.Price,
					Time:     ev.EventTime,
				})
			}

		case <-ticker.C:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			now := de.now()
			if !de.acc.Due(now) {
				continue
			}
			sample := de.acc.Flush(now)
			if de.onSample != nil {
				de.onSample(sample)
			}
		}
	}
}
