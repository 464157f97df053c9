package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCost(t *testing.T) {
	tests := []struct {
		model string
		want  *ModelCost
	}{
		{"gpt-4o-mini", &ModelCost{0.15, 0.6}},
		{"gpt-4o-mini-2024-07-18", &ModelCost{0.15, 0.6}},
		{"claude-haiku-4-5-20251001", &ModelCost{1, 5}},
		{"google/gemini-2.5-flash", &ModelCost{0.3, 2.5}},
		{"gemini-2.5-flash-lite", &ModelCost{0.1, 0.4}},
		{"GPT-4.1", &ModelCost{2, 8}},
		{"mock", nil},
		{"", nil},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, LookupCost(tt.model))
		})
	}
}

func TestDefaultModelsArePriced(t *testing.T) {
	cfg := DefaultConfig()
	for _, id := range []string{
		resolveModel(cfg.Anthropic.Model, anthropicModels),
		cfg.OpenAI.Model,
		resolveModel(cfg.Gemini.Model, geminiModels),
		cfg.OpenRouter.Model,
	} {
		require.NotNil(t, LookupCost(id), id)
	}
}

func TestModelCost_Cost(t *testing.T) {
	c := ModelCost{InputPerMTok: 2, OutputPerMTok: 8}
	assert.InDelta(t, 0.004, c.Cost(1000, 250), 1e-12)
	assert.Zero(t, c.Cost(0, 0))
}
