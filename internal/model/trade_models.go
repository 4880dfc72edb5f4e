package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Exchange 标识行情来源
type Exchange string

const (
	ExchangeBinance  Exchange = "binance"
	ExchangeCoinbase Exchange = "coinbase"
)

func (e Exchange) String() string {
	return string(e)
}

// Side 成交方向 (主动买入 / 主动卖出)
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) String() string {
	return string(s)
}

// ConnectionStatus 行情连接状态
type ConnectionStatus string

const (
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusError        ConnectionStatus = "error"
)

// TradeEvent 归一化后的单笔成交，每条交易所成交消息对应一个
type TradeEvent struct {
	Exchange  Exchange        `json:"exchange"`
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Side      Side            `json:"side"`
	EventTime time.Time       `json:"eventTime"`
}

// VolumeSample 一个固定窗口内的买卖成交量汇总
type VolumeSample struct {
	Exchange     Exchange        `json:"exchange"`
	BuyQuantity  decimal.Decimal `json:"buyQuantity"`
	SellQuantity decimal.Decimal `json:"sellQuantity"`
	LastPrice    decimal.Decimal `json:"lastPrice"`
	WindowStart  time.Time       `json:"windowStart"`
	WindowEnd    time.Time       `json:"windowEnd"`
}

// Quantity 返回指定方向的成交量
func (s VolumeSample) Quantity(side Side) decimal.Decimal {
	if side == SideSell {
		return s.SellQuantity
	}
	return s.BuyQuantity
}

// Window 窗口实际长度 (定时器延迟时会大于配置周期)
func (s VolumeSample) Window() time.Duration {
	return s.WindowEnd.Sub(s.WindowStart)
}

// PriceTick 最新成交价，不受聚合窗口限制，立即发布
type PriceTick struct {
	Exchange Exchange        `json:"exchange"`
	Symbol   string          `json:"symbol"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
}
