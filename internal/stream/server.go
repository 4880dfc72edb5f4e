package stream

import (
	"net/http"
	"time"

	"crypto-trigger-engine/internal/metrics"
	"crypto-trigger-engine/internal/model"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConfigSource 提供当前生效的触发配置
type ConfigSource interface {
	Snapshot() *model.Configuration
}

// StatusResponse /api/status 的返回体
type StatusResponse struct {
	IsActive       bool        `json:"isActive"`
	Symbol         string      `json:"symbol"`
	CoinbaseSymbol string      `json:"coinbaseSymbol"`
	Tiers          int         `json:"tiers"`
	Clients        int         `json:"clients"`
	Feeds          []FeedState `json:"feeds"`
}

// NewRouter 注册所有路由
func NewRouter(hub *Hub, cfg ConfigSource, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(zapLoggerMiddleware(logger))
	router.Use(gin.Recovery())

	router.GET("/api/stream", func(c *gin.Context) {
		hub.ServeWS(c.Writer, c.Request)
	})
	router.GET("/api/status", func(c *gin.Context) {
		resp := StatusResponse{Clients: hub.Clients(), Feeds: hub.Feeds()}
		if snap := cfg.Snapshot(); snap != nil {
			resp.IsActive = snap.IsActive
			resp.Symbol = snap.Symbol
			resp.CoinbaseSymbol = snap.CoinbaseSymbol
			resp.Tiers = len(snap.Tiers)
		}
		c.JSON(http.StatusOK, resp)
	})
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	return router
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("HTTP request",
			zap.String("Method", c.Request.Method),
			zap.String("Path", c.Request.URL.Path),
			zap.Int("Status", c.Writer.Status()),
			zap.Duration("Latency", time.Since(start)),
			zap.String("ClientIP", c.ClientIP()))
	}
}
