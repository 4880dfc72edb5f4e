package strategy

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"crypto-trigger-engine/internal/model"
)

// MinRepeat 连按最少重复次数 ("hhh")
const MinRepeat = 3

var ErrInvalidStep = errors.New("invalid command step")

// ParseCommand 解析出招指令，例如 "b,d,f+x"
//
//	逗号分隔的每一步按顺序执行:
//	  "x"    单键
//	  "hhh"  同一键连按 (至少 3 次)
//	  "f+x"  多键同时按下
//
// 空字符串返回 nil，表示没有动作。
func ParseCommand(raw string) ([]model.Step, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	tokens := strings.Split(raw, ",")
	steps := make([]model.Step, 0, len(tokens))
	for i, tok := range tokens {
		step, err := parseStep(strings.TrimSpace(tok))
		if err != nil {
			return nil, fmt.Errorf("step %d %q: %w", i+1, tok, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(tok string) (model.Step, error) {
	if tok == "" {
		return model.Step{}, fmt.Errorf("%w: empty", ErrInvalidStep)
	}

	if strings.Contains(tok, "+") {
		parts := strings.Split(tok, "+")
		keys := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if utf8.RuneCountInString(p) != 1 {
				return model.Step{}, fmt.Errorf("%w: chord key %q must be a single character", ErrInvalidStep, p)
			}
			keys = append(keys, p)
		}
		return model.Step{Kind: model.StepChord, Keys: keys}, nil
	}

	runes := []rune(tok)
	if len(runes) == 1 {
		return model.Step{Kind: model.StepPress, Keys: []string{tok}}, nil
	}

	for _, r := range runes[1:] {
		if r != runes[0] {
			return model.Step{}, fmt.Errorf("%w: mixed keys without separator", ErrInvalidStep)
		}
	}
	if len(runes) < MinRepeat {
		return model.Step{}, fmt.Errorf("%w: repeat needs at least %d presses", ErrInvalidStep, MinRepeat)
	}
	return model.Step{Kind: model.StepRepeat, Keys: []string{string(runes[0])}, Count: len(runes)}, nil
}
