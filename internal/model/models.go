package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ActionKind 区间命中后的动作类型
type ActionKind string

const (
	ActionKey     ActionKind = "key"     // 单键: 轻/中/重拳脚、方向键
	ActionTimed   ActionKind = "timed"   // 带节奏的按键: 跳、蹲
	ActionCommand ActionKind = "command" // 出招指令序列
)

// StepKind 指令序列中单步的类型
type StepKind string

const (
	StepPress  StepKind = "press"  // 单键按一次
	StepRepeat StepKind = "repeat" // 同一键连按
	StepChord  StepKind = "chord"  // 多键同时按下
)

// Step 解析后的指令步骤
type Step struct {
	Kind  StepKind `json:"kind"`
	Keys  []string `json:"keys"`
	Count int      `json:"count,omitempty"` // 仅 repeat 使用
}

func (s Step) String() string {
	switch s.Kind {
	case StepRepeat:
		return fmt.Sprintf("%s x%d", s.Keys[0], s.Count)
	case StepChord:
		return fmt.Sprintf("chord%v", s.Keys)
	default:
		return s.Keys[0]
	}
}

// Action 动作的标签联合体，字段是否有效由 Kind 决定
type Action struct {
	Kind ActionKind `json:"kind"`

	// key / timed
	Key string `json:"key,omitempty"`

	// timed
	DelaySeconds float64 `json:"delaySeconds,omitempty"`
	LeftKey      string  `json:"leftKey,omitempty"`
	RightKey     string  `json:"rightKey,omitempty"`

	// command
	Raw   string `json:"raw,omitempty"`
	Steps []Step `json:"steps,omitempty"`
}

// SingleKey 构造单键动作
func SingleKey(key string) Action {
	return Action{Kind: ActionKey, Key: key}
}

// TimedKey 构造带延迟的按键动作，leftKey/rightKey 可为空
func TimedKey(key string, delaySeconds float64, leftKey, rightKey string) Action {
	return Action{Kind: ActionTimed, Key: key, DelaySeconds: delaySeconds, LeftKey: leftKey, RightKey: rightKey}
}

// CommandSequence 构造出招动作，steps 由 strategy.ParseCommand 得到
func CommandSequence(raw string, steps []Step) Action {
	return Action{Kind: ActionCommand, Raw: raw, Steps: steps}
}

// TierDefinition 一个区间档位: 某交易所某方向的成交量落在 [Min, Max] 时触发 Action
type TierDefinition struct {
	ID       string          `json:"id"`
	Exchange Exchange        `json:"exchange"`
	Category Side            `json:"category"`
	Min      decimal.Decimal `json:"min"`
	Max      decimal.Decimal `json:"max"`
	Action   Action          `json:"action"`
}

// Configuration 配置快照，一次分类过程中只读
type Configuration struct {
	Symbol         string           `json:"symbol"`
	CoinbaseSymbol string           `json:"coinbaseSymbol"`
	IsActive       bool             `json:"isActive"`
	Tiers          []TierDefinition `json:"tiers"`
}

// SymbolFor 返回某交易所订阅的交易对
func (c *Configuration) SymbolFor(exchange Exchange) string {
	if exchange == ExchangeCoinbase {
		return c.CoinbaseSymbol
	}
	return c.Symbol
}

// ActiveTrigger 一次分类命中的档位
type ActiveTrigger struct {
	TierID   string   `json:"tierId"`
	Exchange Exchange `json:"exchange"`
	Category Side     `json:"category"`
	Action   Action   `json:"action"`
}

// TriggerSet 一个 VolumeSample 对应的全部命中结果 (可以为空)
type TriggerSet struct {
	Exchange Exchange        `json:"exchange"`
	Sample   VolumeSample    `json:"sample"`
	Triggers []ActiveTrigger `json:"triggers"`
}
