// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"crypto-trigger-engine/internal/model"
	"crypto-trigger-engine/internal/strategy"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type Config struct {
	Log       LogConfig       `mapstructure:"Log"`
	Engine    EngineConfig    `mapstructure:"Engine"`
	Exchanges ExchangesConfig `mapstructure:"Exchanges"`
	Server    ServerConfig    `mapstructure:"Server"`
	Redis     RedisConfig     `mapstructure:"Redis"`
	Trigger   TriggerConfig   `mapstructure:"Trigger"`
}

type LogConfig struct {
	Level string
}

// EngineConfig 聚合窗口与重连退避
type EngineConfig struct {
	FlushInterval time.Duration
	MinBackoff    time.Duration
	MaxBackoff    time.Duration
}

// ExchangesConfig 定义了交易所的连接信息
type ExchangesConfig struct {
	Binance  FeedEndpoint
	Coinbase FeedEndpoint
}

type FeedEndpoint struct {
	WSURL string
}

type ServerConfig struct {
	Addr string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// TriggerConfig 是配置快照的原始形态，由 BuildConfiguration 转成 model.Configuration
type TriggerConfig struct {
	Symbol         string
	CoinbaseSymbol string
	IsActive       bool
	Tiers          []TierConfig
}

type TierConfig struct {
	ID       string
	Exchange string
	Category string
	Min      string
	Max      string
	Action   ActionConfig
}

type ActionConfig struct {
	Type         string // key | timed | command
	Key          string
	DelaySeconds float64
	LeftKey      string
	RightKey     string
	Command      string
}

// BuildConfiguration 校验并构建档位表 (十进制解析、指令解析只在加载时做一次)
func BuildConfiguration(tc TriggerConfig) (*model.Configuration, error) {
	tiers := tc.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers()
	}

	cfg := &model.Configuration{
		Symbol:         strings.TrimSpace(tc.Symbol),
		CoinbaseSymbol: strings.TrimSpace(tc.CoinbaseSymbol),
		IsActive:       tc.IsActive,
		Tiers:          make([]model.TierDefinition, 0, len(tiers)),
	}

	seen := make(map[string]struct{}, len(tiers))
	for i, t := range tiers {
		def, err := buildTier(t)
		if err != nil {
			return nil, fmt.Errorf("tier[%d] %q: %w", i, t.ID, err)
		}
		if _, dup := seen[def.ID]; dup {
			return nil, fmt.Errorf("tier[%d]: duplicate id %q", i, def.ID)
		}
		seen[def.ID] = struct{}{}
		cfg.Tiers = append(cfg.Tiers, def)
	}
	return cfg, nil
}

func buildTier(t TierConfig) (model.TierDefinition, error) {
	var def model.TierDefinition

	def.ID = strings.TrimSpace(t.ID)
	if def.ID == "" {
		return def, errors.New("id is required")
	}

	switch ex := model.Exchange(strings.ToLower(t.Exchange)); ex {
	case model.ExchangeBinance, model.ExchangeCoinbase:
		def.Exchange = ex
	default:
		return def, fmt.Errorf("unknown exchange %q", t.Exchange)
	}

	switch side := model.Side(strings.ToLower(t.Category)); side {
	case model.SideBuy, model.SideSell:
		def.Category = side
	default:
		return def, fmt.Errorf("unknown category %q", t.Category)
	}

	min, err := decimal.NewFromString(strings.TrimSpace(t.Min))
	if err != nil {
		return def, fmt.Errorf("min: %w", err)
	}
	max, err := decimal.NewFromString(strings.TrimSpace(t.Max))
	if err != nil {
		return def, fmt.Errorf("max: %w", err)
	}
	if min.IsNegative() || max.IsNegative() {
		return def, errors.New("range bounds must be >= 0")
	}
	if min.GreaterThan(max) {
		return def, fmt.Errorf("min %s > max %s", min, max)
	}
	def.Min, def.Max = min, max

	a := t.Action
	switch model.ActionKind(strings.ToLower(a.Type)) {
	case model.ActionKey:
		if a.Key == "" {
			return def, errors.New("key action requires key")
		}
		def.Action = model.SingleKey(a.Key)
	case model.ActionTimed:
		if a.Key == "" {
			return def, errors.New("timed action requires key")
		}
		if a.DelaySeconds < 0 {
			return def, errors.New("delaySeconds must be >= 0")
		}
		def.Action = model.TimedKey(a.Key, a.DelaySeconds, a.LeftKey, a.RightKey)
	case model.ActionCommand:
		// 空指令合法，但永远不会触发
		steps, err := strategy.ParseCommand(a.Command)
		if err != nil {
			return def, fmt.Errorf("command: %w", err)
		}
		def.Action = model.CommandSequence(a.Command, steps)
	default:
		return def, fmt.Errorf("unknown action type %q", a.Type)
	}
	return def, nil
}

// ConfigStore 持有最新的配置快照，配置文件变化时热更新
type ConfigStore struct {
	v        *viper.Viper
	static   *Config
	snapshot atomic.Pointer[model.Configuration]

	mu   sync.Mutex
	subs []chan *model.Configuration
}

// LoadConfig 读取并解析配置文件 (config/config.yaml)
func LoadConfig(configPath string) (*ConfigStore, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetDefault("Log.Level", "info")
	v.SetDefault("Engine.FlushInterval", "500ms")
	v.SetDefault("Engine.MinBackoff", "1s")
	v.SetDefault("Engine.MaxBackoff", "30s")
	v.SetDefault("Exchanges.Binance.WSURL", "wss://data-stream.binance.vision")
	v.SetDefault("Exchanges.Coinbase.WSURL", "wss://ws-feed.exchange.coinbase.com")
	v.SetDefault("Server.Addr", ":5000")
	v.SetDefault("Redis.Addr", "localhost:6379")
	v.SetDefault("Trigger.Symbol", "btcusdt")
	v.SetDefault("Trigger.CoinbaseSymbol", "BTC-USD")
	v.SetDefault("Trigger.IsActive", true)

	v.SetEnvPrefix("TRIGGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		Logger.Warn("Config file not found, using defaults", zap.String("Path", configPath))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Engine.FlushInterval <= 0 {
		return nil, errors.New("Engine.FlushInterval must be > 0")
	}
	if cfg.Engine.MinBackoff <= 0 || cfg.Engine.MaxBackoff < cfg.Engine.MinBackoff {
		return nil, errors.New("Engine backoff must satisfy 0 < MinBackoff <= MaxBackoff")
	}

	snap, err := BuildConfiguration(cfg.Trigger)
	if err != nil {
		return nil, fmt.Errorf("build trigger config: %w", err)
	}

	s := &ConfigStore{v: v, static: &cfg}
	s.snapshot.Store(snap)
	return s, nil
}

// NewStaticStore 使用固定快照构建 Store (无文件、不热更新)
func NewStaticStore(cfg *Config, snap *model.Configuration) *ConfigStore {
	s := &ConfigStore{static: cfg}
	s.snapshot.Store(snap)
	return s
}

// Config 返回启动时加载的静态配置 (引擎、服务端、Redis 等)
func (s *ConfigStore) Config() *Config {
	return s.static
}

// Snapshot 返回当前的触发配置快照，调用方不得修改
func (s *ConfigStore) Snapshot() *model.Configuration {
	return s.snapshot.Load()
}

// Subscribe 返回一个接收新快照的通道；消费慢时只保留最新一份
func (s *ConfigStore) Subscribe() <-chan *model.Configuration {
	ch := make(chan *model.Configuration, 1)
	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()
	return ch
}

// Update 替换快照并通知所有订阅者
func (s *ConfigStore) Update(snap *model.Configuration) {
	s.snapshot.Store(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Watch 监听配置文件变化 (fsnotify)，只有 Trigger 段会被热更新
func (s *ConfigStore) Watch() {
	if s.v == nil {
		return
	}
	s.v.OnConfigChange(func(e fsnotify.Event) {
		s.reload(e.Name)
	})
	s.v.WatchConfig()
}

func (s *ConfigStore) reload(name string) {
	var tc TriggerConfig
	if err := s.v.UnmarshalKey("Trigger", &tc); err != nil {
		Logger.Warn("Config reload decode failed, keeping previous snapshot", zap.String("File", name), zap.Error(err))
		return
	}
	snap, err := BuildConfiguration(tc)
	if err != nil {
		Logger.Warn("Config reload rejected, keeping previous snapshot", zap.String("File", name), zap.Error(err))
		return
	}
	Logger.Info("Trigger config reloaded",
		zap.String("Symbol", snap.Symbol),
		zap.String("CoinbaseSymbol", snap.CoinbaseSymbol),
		zap.Bool("IsActive", snap.IsActive),
		zap.Int("Tiers", len(snap.Tiers)))
	s.Update(snap)
}
