package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripCodeFence("```{\"a\":1}```"))
	assert.Equal(t, "plain", StripCodeFence("  plain "))
}

func TestExtractJSONObject(t *testing.T) {
	got, err := ExtractJSONObject("Sure! Here is the result:\n{\"name\":\"x\"}\nLet me know.")
	require.NoError(t, err)
	assert.Equal(t, `{"name":"x"}`, got)

	_, err = ExtractJSONObject("I could not find anything.")
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestSmartParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"standard", `{"name":"mrr","count":3}`},
		{"fenced", "```json\n{\"name\":\"mrr\",\"count\":3}\n```"},
		{"trailing comma", `{"name":"mrr","count":3,}`},
		{"single quotes", `{'name':'mrr','count':3}`},
		{"prose around", `The answer is {"name": "mrr", "count": 3} as requested.`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out sample
			_, err := SmartParse(tt.input, &out)
			require.NoError(t, err)
			assert.Equal(t, sample{Name: "mrr", Count: 3}, out)
		})
	}
}

func TestSmartParse_NoObject(t *testing.T) {
	var out sample
	_, err := SmartParse("no json here", &out)
	assert.Error(t, err)
}
