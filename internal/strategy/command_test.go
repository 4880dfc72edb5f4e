package strategy

import (
	"testing"

	"crypto-trigger-engine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(k string) model.Step {
	return model.Step{Kind: model.StepPress, Keys: []string{k}}
}

func TestParseCommand(t *testing.T) {
	testCases := []struct {
		name string
		raw  string
		want []model.Step
	}{
		{"三步单键", "g,h,x", []model.Step{press("g"), press("h"), press("x")}},
		{"四步单键", "h,g,h,x", []model.Step{press("h"), press("g"), press("h"), press("x")}},
		{"末步同时按下", "b,d,f+x", []model.Step{
			press("b"), press("d"),
			{Kind: model.StepChord, Keys: []string{"f", "x"}},
		}},
		{"连按", "hhh", []model.Step{{Kind: model.StepRepeat, Keys: []string{"h"}, Count: 3}}},
		{"连按后接单键", "hhhh,x", []model.Step{
			{Kind: model.StepRepeat, Keys: []string{"h"}, Count: 4},
			press("x"),
		}},
		{"三键同时", "a+b+c", []model.Step{{Kind: model.StepChord, Keys: []string{"a", "b", "c"}}}},
		{"单键", "x", []model.Step{press("x")}},
		{"空格被忽略", " g , f + x ", []model.Step{
			press("g"),
			{Kind: model.StepChord, Keys: []string{"f", "x"}},
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			steps, err := ParseCommand(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, steps)
		})
	}
}

func TestParseCommandEmpty(t *testing.T) {
	steps, err := ParseCommand("")
	require.NoError(t, err)
	assert.Empty(t, steps)

	steps, err = ParseCommand("   ")
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestParseCommandInvalid(t *testing.T) {
	for _, raw := range []string{"g,,x", "ab", "hh", "f+", "+x", "f+xy", "g,"} {
		_, err := ParseCommand(raw)
		assert.ErrorIs(t, err, ErrInvalidStep, "raw=%q", raw)
	}
}
