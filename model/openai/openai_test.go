package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/promptmesh/model"
)

func TestBuildParams_ForwardsInferenceConfig(t *testing.T) {
	m := NewModel()

	params := m.buildParams(model.Request{
		Inference: model.InferenceConfig{
			Temperature:   0.2,
			TopP:          0.9,
			MaxTokens:     256,
			StopSequences: []string{"Observation:", "###"},
		},
	}, nil)

	assert.Equal(t, 0.2, params.Temperature.Value)
	assert.Equal(t, 0.9, params.TopP.Value)
	assert.Equal(t, int64(256), params.MaxCompletionTokens.Value)
	assert.Equal(t, []string{"Observation:", "###"}, params.Stop.OfStringArray)
}
