package pipeline

import (
	"context"

	"crypto-trigger-engine/internal/executor"
	"crypto-trigger-engine/internal/model"

	"go.uber.org/zap"
)

const (
	setBuffer    = 64
	statusBuffer = 16
)

// dispatcher 在独立 goroutine 中调用下游，聚合循环只做非阻塞投递。
// 价格只保留最新一笔；触发结果和状态按顺序排队，满了丢弃最旧的。
type dispatcher struct {
	sink     executor.Executor
	exchange model.Exchange
	logger   *zap.Logger

	prices   chan model.PriceTick
	sets     chan model.TriggerSet
	statuses chan model.ConnectionStatus

	stop chan struct{}
	done chan struct{}
}

func newDispatcher(sink executor.Executor, exchange model.Exchange, logger *zap.Logger) *dispatcher {
	return &dispatcher{
		sink:     sink,
		exchange: exchange,
		logger:   logger,
		prices:   make(chan model.PriceTick, 1),
		sets:     make(chan model.TriggerSet, setBuffer),
		statuses: make(chan model.ConnectionStatus, statusBuffer),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// offer 非阻塞投递，通道满时丢弃最旧的一项
func offer[T any](ch chan T, v T) bool {
	select {
	case ch <- v:
		return true
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
	return false
}

func (d *dispatcher) price(tick model.PriceTick) {
	offer(d.prices, tick)
}

func (d *dispatcher) triggers(set model.TriggerSet) {
	if !offer(d.sets, set) {
		d.logger.Warn("Sink too slow, dropped oldest trigger set")
	}
}

func (d *dispatcher) status(status model.ConnectionStatus) {
	offer(d.statuses, status)
}

// discard 丢弃尚未发布的价格和触发结果 (换交易对时旧数据作废)，状态保留
func (d *dispatcher) discard() {
	for {
		select {
		case <-d.prices:
		case <-d.sets:
		default:
			return
		}
	}
}

func (d *dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-d.stop:
			// 退出前把剩余状态发出去，保证下游看到最终的 disconnected
			for {
				select {
				case s := <-d.statuses:
					d.publishStatus(ctx, s)
				default:
					return
				}
			}
		case s := <-d.statuses:
			d.publishStatus(ctx, s)
		case set := <-d.sets:
			if err := d.sink.ExecuteTriggers(ctx, set); err != nil {
				d.logger.Warn("Execute triggers failed", zap.Error(err))
			}
		case tick := <-d.prices:
			if err := d.sink.PublishPrice(ctx, tick); err != nil {
				d.logger.Debug("Publish price failed", zap.Error(err))
			}
		}
	}
}

func (d *dispatcher) publishStatus(ctx context.Context, status model.ConnectionStatus) {
	if err := d.sink.PublishStatus(ctx, d.exchange, status); err != nil {
		d.logger.Warn("Publish status failed", zap.Error(err))
	}
}

func (d *dispatcher) close() {
	close(d.stop)
	<-d.done
}
