package executor

import (
	"context"
	"errors"

	"crypto-trigger-engine/internal/metrics"
	"crypto-trigger-engine/internal/model"
)

// Executor 是触发结果的下游接口 (日志、Redis、桥接进程的 websocket)。
// 引擎只负责发布，不等待确认。
type Executor interface {
	// ExecuteTriggers 每个 VolumeSample 调用一次，Triggers 可以为空
	ExecuteTriggers(ctx context.Context, set model.TriggerSet) error

	// PublishPrice 最新成交价，每笔成交调用一次
	PublishPrice(ctx context.Context, tick model.PriceTick) error

	// PublishStatus 连接状态变化
	PublishStatus(ctx context.Context, exchange model.Exchange, status model.ConnectionStatus) error
}

// MultiExecutor 依次调用所有下游，单个失败不影响其他
type MultiExecutor []Executor

type namedExecutor interface {
	Name() string
}

func (m MultiExecutor) ExecuteTriggers(ctx context.Context, set model.TriggerSet) error {
	return m.each(func(e Executor) error { return e.ExecuteTriggers(ctx, set) })
}

func (m MultiExecutor) PublishPrice(ctx context.Context, tick model.PriceTick) error {
	return m.each(func(e Executor) error { return e.PublishPrice(ctx, tick) })
}

func (m MultiExecutor) PublishStatus(ctx context.Context, exchange model.Exchange, status model.ConnectionStatus) error {
	return m.each(func(e Executor) error { return e.PublishStatus(ctx, exchange, status) })
}

func (m MultiExecutor) each(fn func(Executor) error) error {
	var errs []error
	for _, e := range m {
		if err := fn(e); err != nil {
			name := "unknown"
			if n, ok := e.(namedExecutor); ok {
				name = n.Name()
			}
			metrics.SinkErrors.WithLabelValues(name).Inc()
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
