package executor

import (
	"context"

	"crypto-trigger-engine/internal/model"

	"go.uber.org/zap"
)

// LogExecutor 只打日志的执行器，没有桥接进程时用于观察触发效果
type LogExecutor struct {
	logger *zap.Logger
}

func NewLogExecutor(logger *zap.Logger) *LogExecutor {
	return &LogExecutor{logger: logger.With(zap.String("executor", "Log"))}
}

func (e *LogExecutor) Name() string { return "log" }

// ExecuteTriggers 有命中时 Info，空结果只在 Debug 输出
func (e *LogExecutor) ExecuteTriggers(_ context.Context, set model.TriggerSet) error {
	s := set.Sample
	if len(set.Triggers) == 0 {
		e.logger.Debug("Volume sample",
			zap.String("Exchange", set.Exchange.String()),
			zap.String("Buy", s.BuyQuantity.String()),
			zap.String("Sell", s.SellQuantity.String()),
			zap.Duration("Window", s.Window()))
		return nil
	}

	tiers := make([]string, 0, len(set.Triggers))
	for _, tr := range set.Triggers {
		tiers = append(tiers, tr.TierID)
	}
	e.logger.Info("!!! TRIGGERS FIRED !!!",
		zap.String("Exchange", set.Exchange.String()),
		zap.Strings("Tiers", tiers),
		zap.String("Buy", s.BuyQuantity.String()),
		zap.String("Sell", s.SellQuantity.String()),
		zap.String("Price", s.LastPrice.String()))
	return nil
}

func (e *LogExecutor) PublishPrice(context.Context, model.PriceTick) error {
	return nil
}

func (e *LogExecutor) PublishStatus(_ context.Context, exchange model.Exchange, status model.ConnectionStatus) error {
	e.logger.Info("Feed status", zap.String("Exchange", exchange.String()), zap.String("Status", string(status)))
	return nil
}
