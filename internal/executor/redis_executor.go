package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"crypto-trigger-engine/internal/model"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	redisTimeout  = 200 * time.Millisecond
	statusHashKey = "feed:status"
)

// TriggerChannel 触发结果的 Pub/Sub 频道
func TriggerChannel(exchange model.Exchange) string {
	return fmt.Sprintf("triggers:%s", exchange)
}

// PriceKey 最新价的 key
func PriceKey(exchange model.Exchange, symbol string) string {
	return fmt.Sprintf("price:%s:%s", exchange, symbol)
}

// RedisExecutor 把触发结果发布到 Redis，供外部按键桥接进程订阅
type RedisExecutor struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
}

func NewRedisExecutor(rdb redis.UniversalClient, logger *zap.Logger) *RedisExecutor {
	return &RedisExecutor{
		rdb:    rdb,
		logger: logger.With(zap.String("executor", "Redis")),
	}
}

func (e *RedisExecutor) Name() string { return "redis" }

// ExecuteTriggers 只发布非空结果
func (e *RedisExecutor) ExecuteTriggers(ctx context.Context, set model.TriggerSet) error {
	if len(set.Triggers) == 0 {
		return nil
	}
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("marshal trigger set: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := e.rdb.Publish(ctx, TriggerChannel(set.Exchange), payload).Err(); err != nil {
		return fmt.Errorf("publish triggers: %w", err)
	}
	return nil
}

func (e *RedisExecutor) PublishPrice(ctx context.Context, tick model.PriceTick) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := e.rdb.Set(ctx, PriceKey(tick.Exchange, tick.Symbol), tick.Price.String(), 0).Err(); err != nil {
		return fmt.Errorf("set price: %w", err)
	}
	return nil
}

func (e *RedisExecutor) PublishStatus(ctx context.Context, exchange model.Exchange, status model.ConnectionStatus) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()
	if err := e.rdb.HSet(ctx, statusHashKey, exchange.String(), string(status)).Err(); err != nil {
		return fmt.Errorf("hset status: %w", err)
	}
	return nil
}
