package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("WARN")
	require.NoError(t, err)
	assert.Equal(t, LogLevelWarn, lvl)

	lvl, err = ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, LogLevelInfo, lvl)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LogLevelDebug, Format: "json", Output: &buf, Component: "bus"})

	l.Info("published", "channel", "alerts")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "published", rec["msg"])
	assert.Equal(t, "bus", rec["component"])
	assert.Equal(t, "alerts", rec["channel"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LogLevelError, Format: "text", Output: &buf})

	l.Info("hidden")
	assert.Empty(t, buf.String())

	l.Error("shown")
	assert.Contains(t, buf.String(), "shown")
}

type recorder struct{ args [][]any }

func (r *recorder) Debug(_ string, args ...any) { r.args = append(r.args, args) }
func (r *recorder) Info(_ string, args ...any)  { r.args = append(r.args, args) }
func (r *recorder) Warn(_ string, args ...any)  { r.args = append(r.args, args) }
func (r *recorder) Error(_ string, args ...any) { r.args = append(r.args, args) }

func TestWith_PrefixesCustomLogger(t *testing.T) {
	r := &recorder{}
	l := With(r, "agent", "alpha")

	l.Warn("slow", "ms", 10)

	require.Len(t, r.args, 1)
	assert.Equal(t, []any{"agent", "alpha", "ms", 10}, r.args[0])
	assert.Equal(t, NoOpLogger{}, With(NoOpLogger{}, "k", "v"))
}

func TestLogLLMCall(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LogLevelInfo, Format: "json", Output: &buf})

	LogLLMCall(l, "gpt-4o-mini", 42, time.Second, errors.New("boom"))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "LLM call failed", rec["msg"])
	assert.Equal(t, "gpt-4o-mini", rec["model"])
	assert.Equal(t, float64(42), rec["token_count"])
}
