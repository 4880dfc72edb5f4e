// Package metrics 触发引擎的 Prometheus 指标
package metrics

import (
	"net/http"

	"crypto-trigger-engine/internal/model"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trigger"

var (
	// Registry 独立的注册表，不污染默认注册表
	Registry = prometheus.NewRegistry()

	factory = promauto.With(Registry)

	TradesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_total",
		Help:      "归一化后的成交笔数",
	}, []string{"exchange", "side"})

	MalformedMessages = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_messages_total",
		Help:      "无法解析而被丢弃的消息数",
	}, []string{"exchange"})

	SamplesTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "samples_total",
		Help:      "输出的 VolumeSample 数",
	}, []string{"exchange"})

	FiredTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fired_total",
		Help:      "档位命中次数",
	}, []string{"exchange", "tier"})

	FeedStatus = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "feed_status",
		Help:      "连接状态: -1 error, 0 disconnected, 1 connecting, 2 connected",
	}, []string{"exchange"})

	ReconnectsTotal = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconnects_total",
		Help:      "重连次数",
	}, []string{"exchange"})

	SinkErrors = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_errors_total",
		Help:      "下游发布失败次数",
	}, []string{"sink"})
)

// SetFeedStatus 记录连接状态
func SetFeedStatus(ex model.Exchange, status model.ConnectionStatus) {
	var v float64
	switch status {
	case model.StatusError:
		v = -1
	case model.StatusConnecting:
		v = 1
	case model.StatusConnected:
		v = 2
	}
	FeedStatus.WithLabelValues(ex.String()).Set(v)
}

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
