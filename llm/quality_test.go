package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAssessQuality(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     float64
	}{
		{"good sentence", longAnswer, 1.0},
		{"json object", `{"prediction":"BUY","confidence":0.8,"reasoning":"momentum and volume agree"}`, 1.0},
		{"short", "Fine.", 0.7},
		{"apology", "I am sorry but that request is outside what I can answer today, friend.", 0.6},
		{"unfinished", strings.Repeat("word ", 20), 0.8},
		{"too long", strings.Repeat("a", 10001) + ".", 0.8},
		{"everything wrong", "error", 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AssessQuality(tt.response), 1e-9)
		})
	}
}
