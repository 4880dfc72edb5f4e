package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"crypto-trigger-engine/internal/model"
	"crypto-trigger-engine/internal/service"

	"github.com/gorilla/websocket"
)

// DefaultBinanceWSURL 公共行情域名
const DefaultBinanceWSURL = "wss://data-stream.binance.vision"

// BinanceAggTrade aggTrade 频道数据结构。
// encoding/json 匹配字段名不区分大小写，所以 "E"/"e"、"M"/"m"、"T"/"t"
// 这些大小写成对的字段都要声明，否则 "M" 会写进 m。
type BinanceAggTrade struct {
	EventType    string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker *bool  `json:"m"` // true: 买方是挂单方，即主动卖出
	Ignore       bool   `json:"M"`
}

// NewBinanceAdapter 创建 Binance aggTrade 适配器
func NewBinanceAdapter(baseURL string) *Connector {
	if baseURL == "" {
		baseURL = DefaultBinanceWSURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	return &Connector{
		exchange: model.ExchangeBinance,
		dialer:   websocket.DefaultDialer,
		url: func(symbol string) string {
			return fmt.Sprintf("%s/ws/%s@aggTrade", baseURL, strings.ToLower(symbol))
		},
		parse: ParseBinanceTrade,
	}
}

// ParseBinanceTrade 一条 aggTrade 消息对应一个 TradeEvent
func ParseBinanceTrade(raw []byte, symbol string, received time.Time) (model.TradeEvent, bool, error) {
	var msg BinanceAggTrade
	if err := json.Unmarshal(raw, &msg); err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.IsBuyerMaker == nil {
		return model.TradeEvent{}, false, fmt.Errorf("%w: missing m", ErrMalformed)
	}

	price, err := service.StringToDecimal(msg.Price)
	if err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("%w: price %q: %v", ErrMalformed, msg.Price, err)
	}
	qty, err := service.StringToDecimal(msg.Quantity)
	if err != nil {
		return model.TradeEvent{}, false, fmt.Errorf("%w: quantity %q: %v", ErrMalformed, msg.Quantity, err)
	}

	side := model.SideBuy
	if *msg.IsBuyerMaker {
		side = model.SideSell
	}

	ts := msg.TradeTime
	if ts == 0 {
		ts = msg.EventTime
	}

	sym := msg.Symbol
	if sym == "" {
		sym = symbol
	}

	return model.TradeEvent{
		Exchange:  model.ExchangeBinance,
		Symbol:    strings.ToLower(sym),
		Price:     price,
		Quantity:  qty,
		Side:      side,
		EventTime: service.MillisToTime(ts, received),
	}, true, nil
}
