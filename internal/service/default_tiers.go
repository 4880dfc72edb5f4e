package service

// DefaultTiers 未配置档位时使用的默认档位表
// 轻/中/重三档对应 weak/med/strong，出招档位 special1-3
func DefaultTiers() []TierConfig {
	tiers := make([]TierConfig, 0, 40)

	levels := []struct {
		name     string
		min, max string
	}{
		{"weak", "0.00001", "0.00009999"},
		{"med", "0.0001", "0.00099999"},
		{"strong", "0.001", "0.00999999"},
	}
	keys := map[string][2][3]string{
		// exchange -> {buy keys, sell keys}
		"binance":  {{"x", "c", "v"}, {"y", "u", "i"}},
		"coinbase": {{"a", "s", "d"}, {"b", "n", "m"}},
	}

	for _, ex := range []string{"binance", "coinbase"} {
		for ci, cat := range []string{"buy", "sell"} {
			for li, lv := range levels {
				tiers = append(tiers, TierConfig{
					ID:       ex + "-" + cat + "-" + lv.name,
					Exchange: ex,
					Category: cat,
					Min:      lv.min,
					Max:      lv.max,
					Action:   ActionConfig{Type: "key", Key: keys[ex][ci][li]},
				})
			}
		}
	}

	specials := []struct {
		id, ex, cat, min, max, cmd string
	}{
		{"binance-special-1", "binance", "buy", "0.01", "0.09999999", "g,h,x"},
		{"binance-special-2", "binance", "sell", "0.1", "0.99999999", "g,f,y"},
		{"binance-special-3", "binance", "buy", "1.0", "1000.0", "h,g,h,x"},
		{"coinbase-special-1", "coinbase", "buy", "0.01", "0.09999999", "l,k,a"},
		{"coinbase-special-2", "coinbase", "sell", "0.1", "0.99999999", "l,p,b"},
		{"coinbase-special-3", "coinbase", "buy", "1.0", "1000.0", "k,l,k,a"},
	}
	for _, s := range specials {
		tiers = append(tiers, TierConfig{
			ID:       s.id,
			Exchange: s.ex,
			Category: s.cat,
			Min:      s.min,
			Max:      s.max,
			Action:   ActionConfig{Type: "command", Command: s.cmd},
		})
	}

	// 方向与跳/蹲: 买盘推右/跳，卖盘推左/蹲
	tiers = append(tiers,
		TierConfig{ID: "binance-move-right", Exchange: "binance", Category: "buy", Min: "0.00001", Max: "0.00099999",
			Action: ActionConfig{Type: "key", Key: "right"}},
		TierConfig{ID: "binance-move-left", Exchange: "binance", Category: "sell", Min: "0.00001", Max: "0.00099999",
			Action: ActionConfig{Type: "key", Key: "left"}},
		TierConfig{ID: "binance-jump", Exchange: "binance", Category: "buy", Min: "0.001", Max: "0.00999999",
			Action: ActionConfig{Type: "timed", Key: "up", DelaySeconds: 1.5, LeftKey: "q", RightKey: "e"}},
		TierConfig{ID: "binance-crouch", Exchange: "binance", Category: "sell", Min: "0.001", Max: "0.00999999",
			Action: ActionConfig{Type: "timed", Key: "down", DelaySeconds: 1.5}},
		TierConfig{ID: "coinbase-jump", Exchange: "coinbase", Category: "buy", Min: "0.001", Max: "0.00999999",
			Action: ActionConfig{Type: "timed", Key: "w", DelaySeconds: 2}},
		TierConfig{ID: "coinbase-crouch", Exchange: "coinbase", Category: "sell", Min: "0.001", Max: "0.00999999",
			Action: ActionConfig{Type: "timed", Key: "z", DelaySeconds: 2}},
	)
	return tiers
}
