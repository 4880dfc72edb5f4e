package service

import (
	"fmt"
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 是全局日志接口
// 在其他模块中使用：service.Logger.Info("Feed connected", zap.String("Exchange", ex))
// 未初始化前为 Nop，方便测试直接使用各模块
var Logger = zap.NewNop()

var logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// InitLogger 初始化高性能的 Zap 日志
func InitLogger(level string) {
	if err := SetLogLevel(level); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	config := zap.NewProductionConfig()
	config.Level = logLevel

	// 格式化时间
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	l, err := config.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	Logger = l
}

// SetLogLevel 运行时调整日志级别，空字符串不做修改
func SetLogLevel(level string) error {
	if level == "" {
		return nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logLevel.SetLevel(lvl)
	return nil
}
