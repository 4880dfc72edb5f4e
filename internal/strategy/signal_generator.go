package strategy

import (
	"crypto-trigger-engine/internal/model"

	"github.com/shopspring/decimal"
)

// Classify 根据一个 VolumeSample 和当前配置快照，返回所有命中的档位。
// 纯函数，不持有任何跨调用状态；档位独立判断，区间重叠时全部命中。
func Classify(sample model.VolumeSample, cfg *model.Configuration) []model.ActiveTrigger {
	if cfg == nil || !cfg.IsActive {
		return nil
	}

	var out []model.ActiveTrigger
	for i := range cfg.Tiers {
		tier := &cfg.Tiers[i]
		if tier.Exchange != sample.Exchange {
			continue
		}
		if !TierActive(tier, sample.Quantity(tier.Category)) {
			continue
		}
		out = append(out, model.ActiveTrigger{
			TierID:   tier.ID,
			Exchange: tier.Exchange,
			Category: tier.Category,
			Action:   tier.Action,
		})
	}
	return out
}

// TierActive 判断成交量是否落在 [Min, Max] 内 (两端包含)。
// Min > Max 的退化区间永远不命中；指令档位还要求指令非空。
func TierActive(tier *model.TierDefinition, qty decimal.Decimal) bool {
	if tier.Min.GreaterThan(tier.Max) {
		return false
	}
	if qty.LessThan(tier.Min) || qty.GreaterThan(tier.Max) {
		return false
	}
	if tier.Action.Kind == model.ActionCommand {
		return tier.Action.Raw != "" && len(tier.Action.Steps) > 0
	}
	return true
}
