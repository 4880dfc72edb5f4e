package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"crypto-trigger-engine/internal/model"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	clientBuffer = 64
	writeTimeout = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = 25 * time.Second
)

// 推送给桥接进程的消息类型
const (
	MessageTriggers = "triggers"
	MessageStatus   = "status"
)

// Message 推送到 /api/stream 的统一外壳
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// FeedState 单个交易所的最新状态
type FeedState struct {
	Exchange  model.Exchange         `json:"exchange"`
	Status    model.ConnectionStatus `json:"status"`
	Symbol    string                 `json:"symbol,omitempty"`
	LastPrice decimal.Decimal        `json:"lastPrice"`
	UpdatedAt time.Time              `json:"updatedAt"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub 把触发结果广播给所有 websocket 客户端。
// 慢客户端缓冲满时直接断开，不阻塞引擎。
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	feeds   map[model.Exchange]*FeedState

	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		feeds:   make(map[model.Exchange]*FeedState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 桥接进程在本机运行，不校验 Origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger.With(zap.String("component", "StreamHub")),
	}
}

func (h *Hub) Name() string { return "stream" }

// ExecuteTriggers 只广播非空结果
func (h *Hub) ExecuteTriggers(_ context.Context, set model.TriggerSet) error {
	if len(set.Triggers) == 0 {
		return nil
	}
	return h.broadcast(Message{Type: MessageTriggers, Data: set})
}

// PublishPrice 只记录最新价，/api/status 查询
func (h *Hub) PublishPrice(_ context.Context, tick model.PriceTick) error {
	h.mu.Lock()
	st := h.feedLocked(tick.Exchange)
	st.Symbol = tick.Symbol
	st.LastPrice = tick.Price
	st.UpdatedAt = time.Now()
	h.mu.Unlock()
	return nil
}

func (h *Hub) PublishStatus(_ context.Context, exchange model.Exchange, status model.ConnectionStatus) error {
	h.mu.Lock()
	st := h.feedLocked(exchange)
	st.Status = status
	st.UpdatedAt = time.Now()
	snapshot := *st
	h.mu.Unlock()
	return h.broadcast(Message{Type: MessageStatus, Data: snapshot})
}

// Feeds 返回所有交易所当前状态的副本
func (h *Hub) Feeds() []FeedState {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]FeedState, 0, len(h.feeds))
	for _, ex := range []model.Exchange{model.ExchangeBinance, model.ExchangeCoinbase} {
		if st, ok := h.feeds[ex]; ok {
			out = append(out, *st)
		}
	}
	return out
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) feedLocked(exchange model.Exchange) *FeedState {
	st, ok := h.feeds[exchange]
	if !ok {
		st = &FeedState{Exchange: exchange, Status: model.StatusDisconnected}
		h.feeds[exchange] = st
	}
	return st
}

func (h *Hub) broadcast(msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", msg.Type, err)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("Slow stream client dropped", zap.String("Remote", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
	return nil
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// ServeWS 升级连接，先推送当前状态，再进入广播
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.mu.Lock()
	for _, st := range h.feeds {
		if payload, err := json.Marshal(Message{Type: MessageStatus, Data: *st}); err == nil {
			c.send <- payload
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("Stream client connected", zap.String("Remote", conn.RemoteAddr().String()))

	go h.writePump(c)
	h.readPump(c)
}

// readPump 只用来感知断开，客户端发来的内容忽略
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
		h.logger.Info("Stream client disconnected", zap.String("Remote", c.conn.RemoteAddr().String()))
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close 断开所有客户端
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.removeLocked(c)
	}
}
