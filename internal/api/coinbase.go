package api

import (
	"encoding/json"
	"fmt"
	"time"

	"crypto-trigger-engine/internal/model"
	"crypto-trigger-engine/internal/service"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultCoinbaseWSURL Coinbase Exchange 公共行情地址
const DefaultCoinbaseWSURL = "wss://ws-feed.exchange.coinbase.com"

const coinbaseMatchesChannel = "matches"

// CoinbaseSubscription subscribe / unsubscribe 请求
type CoinbaseSubscription struct {
	Type       string   `json:"type"`
	ProductIDs []string `json:"product_ids"`
	Channels   []string `json:"channels"`
}

// CoinbaseMessage matches 频道的消息，只有 type=match 会被转换
type CoinbaseMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Size      string `json:"size"`
	Side      string `json:"side"` // buy 或 sell，直接使用，不取反
	Time      string `json:"time"`
	Message   string `json:"message"` // type=error 时的说明
}

// NewCoinbaseAdapter 创建 Coinbase matches 适配器，连接后必须显式订阅
func NewCoinbaseAdapter(wsURL string) *Connector {
	if wsURL == "" {
		wsURL = DefaultCoinbaseWSURL
	}
	return &Connector{
		exchange: model.ExchangeCoinbase,
		dialer:   websocket.DefaultDialer,
		url:      func(string) string { return wsURL },
		onOpen: func(conn *websocket.Conn, symbol string) error {
			return conn.WriteJSON(coinbaseSubscription("subscribe", symbol))
		},
		onClose: func(conn *websocket.Conn, symbol string) error {
			return conn.WriteJSON(coinbaseSubscription("unsubscribe", symbol))
		},
		parse: ParseCoinbaseMessage,
	}
}

func coinbaseSubscription(kind, symbol string) CoinbaseSubscription {
	return CoinbaseSubscription{
		Type:       kind,
		ProductIDs: []string{symbol},
		Channels:   []string{coinbaseMatchesChannel},
	}
}

// ParseCoinbaseMessage 订阅确认、心跳等其他类型返回 ok=false
func ParseCoinbaseMessage(raw []byte, symbol string, received time.Time) (model.TradeEvent, bool, error) {
	var msg CoinbaseMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch msg.Type {
	case "match":
	case "error":
		service.Logger.Warn("Coinbase feed reported error",
			zap.String("Symbol", symbol), zap.String("Message", msg.Message))
		return model.TradeEvent{}, false, nil
	default:
		return model.TradeEvent{}, false, nil
	}

	if msg.ProductID != "" && msg.ProductID != symbol {
		return model.TradeEvent{}, false, nil
	}

	var side model.Side
	switch msg.Side {
	case "buy":
		side = model.SideBuy
	case "sell":
		side = model.SideSell
	default:
		return model.TradeEvent{}, false, fmt.Errorf("%w: side %q", ErrMalformed, msg.Side)
	}

	price, err := service.StringToDecimal(msg.Price)
	if err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("%w: price %q: %v", ErrMalformed, msg.Price, err)
	}
	size, err := service.StringToDecimal(msg.Size)
	if err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("%w: size %q: %v", ErrMalformed, msg.Size, err)
	}

	eventTime := received
	if msg.Time != "" {
		if t, err := time.Parse(time.RFC3339Nano, msg.Time); err == nil {
			eventTime = t
		}
	}

	return model.TradeEvent{
		Exchange:  model.ExchangeCoinbase,
		Symbol:    symbol,
		Price:     price,
		Quantity:  size,
		Side:      side,
		EventTime: eventTime,
	}, true, nil
}
