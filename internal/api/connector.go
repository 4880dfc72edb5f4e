package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-trigger-engine/internal/metrics"
	"crypto-trigger-engine/internal/model"
	"crypto-trigger-engine/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	readTimeout  = 30 * time.Second
	pingInterval = 15 * time.Second
	writeTimeout = 5 * time.Second
)

// ErrMalformed 消息无法解析，调用方只需丢弃
var ErrMalformed = errors.New("malformed message")

// StatusFunc 连接状态回调
type StatusFunc func(model.ConnectionStatus)

// FeedAdapter 一个交易所的公开成交流。
// Stream 只建立一次连接: 拨号、握手、读取直到出错或 ctx 取消；重连由调用方负责。
type FeedAdapter interface {
	Exchange() model.Exchange
	Stream(ctx context.Context, symbol string, out chan<- model.TradeEvent, onStatus StatusFunc) error
}

// parseFunc 解析一条原始消息；ok=false 且 err=nil 表示可忽略的消息类型
type parseFunc func(raw []byte, symbol string, received time.Time) (ev model.TradeEvent, ok bool, err error)

// Connector 通用的 websocket 会话，交易所差异通过钩子注入
type Connector struct {
	exchange model.Exchange
	dialer   *websocket.Dialer

	url     func(symbol string) string
	onOpen  func(conn *websocket.Conn, symbol string) error // 订阅
	onClose func(conn *websocket.Conn, symbol string) error // 取消订阅
	parse   parseFunc
}

func (c *Connector) Exchange() model.Exchange {
	return c.exchange
}

// Stream 实现 FeedAdapter
func (c *Connector) Stream(ctx context.Context, symbol string, out chan<- model.TradeEvent, onStatus StatusFunc) error {
	report := func(s model.ConnectionStatus) {
		if onStatus != nil {
			onStatus(s)
		}
	}
	logger := service.Logger.With(zap.String("Exchange", c.exchange.String()), zap.String("Symbol", symbol))

	wsURL := c.url(symbol)
	report(model.StatusConnecting)
	logger.Info("Connecting to trade stream", zap.String("URL", wsURL))

	conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		// 拨号期间被取消不算故障
		if ctx.Err() != nil {
			report(model.StatusDisconnected)
			return ctx.Err()
		}
		report(model.StatusError)
		return fmt.Errorf("dial %s: %w", wsURL, err)
	}

	if c.onOpen != nil {
		if err := c.onOpen(conn, symbol); err != nil {
			_ = conn.Close()
			if ctx.Err() != nil {
				report(model.StatusDisconnected)
				return ctx.Err()
			}
			report(model.StatusError)
			return fmt.Errorf("subscribe %s: %w", symbol, err)
		}
	}
	report(model.StatusConnected)
	logger.Info("Trade stream connected")

	// 握手之后只有这个 goroutine 写连接: 心跳 + 取消时的拆除
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx, conn, symbol, stop, logger)
	}()

	err = c.readLoop(ctx, conn, symbol, out, logger)
	close(stop)
	wg.Wait()
	_ = conn.Close()

	report(model.StatusDisconnected)
	if ctx.Err() != nil {
		logger.Info("Trade stream closed")
		return ctx.Err()
	}
	logger.Warn("Trade stream lost", zap.Error(err))
	return fmt.Errorf("read %s: %w", c.exchange, err)
}

func (c *Connector) writeLoop(ctx context.Context, conn *websocket.Conn, symbol string, stop <-chan struct{}, logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			if ctx.Err() != nil {
				c.teardown(conn, symbol, logger)
			}
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.Debug("Ping failed", zap.Error(err))
			}
		case <-ctx.Done():
			c.teardown(conn, symbol, logger)
			return
		}
	}
}

// teardown 取消订阅后关闭连接，同时唤醒阻塞中的 ReadMessage
func (c *Connector) teardown(conn *websocket.Conn, symbol string, logger *zap.Logger) {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if c.onClose != nil {
		if err := c.onClose(conn, symbol); err != nil {
			logger.Debug("Unsubscribe failed", zap.Error(err))
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	_ = conn.Close()
}

// readLoop 持续读取 WS 消息并转换为 TradeEvent
func (c *Connector) readLoop(ctx context.Context, conn *websocket.Conn, symbol string, out chan<- model.TradeEvent, logger *zap.Logger) error {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	malformed := metrics.MalformedMessages.WithLabelValues(c.exchange.String())
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		ev, ok, err := c.parse(message, symbol, time.Now())
		if err != nil {
			// 单条坏消息不影响整个流
			malformed.Inc()
			logger.Debug("Dropping malformed message", zap.Error(err), zap.ByteString("Raw", message))
			continue
		}
		if !ok {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case out <- ev:
			metrics.TradesTotal.WithLabelValues(c.exchange.String(), ev.Side.String()).Inc()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
