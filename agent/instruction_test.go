package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetaper/agentcore/core"
)

type mockProvider struct {
	text string
	err  error
}

func (m mockProvider) Instruction(context.Context, *core.Task) (string, error) { return m.text, m.err }

func TestInstruction_Static(t *testing.T) {
	inst := NewInstructionFromText("static instruction")
	assert.True(t, inst.IsStatic())
	assert.False(t, inst.IsZero())

	got, err := inst.Resolve(context.Background(), core.NewTask("analysis", nil))
	require.NoError(t, err)
	assert.Equal(t, "static instruction", got)
}

func TestInstruction_Template(t *testing.T) {
	task := core.NewTask("consensus-vote", map[string]any{
		"question": "What about BTC?",
		"context":  map[string]any{"price": 100},
	}, core.WithPriority(core.PriorityHigh))

	inst := NewInstructionFromText("{{.taskType}} [{{.priority}}] {{.question}} {{json .context}} {{upper \"x\"}}")
	got, err := inst.Resolve(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, `consensus-vote [high] What about BTC? {"price":100} X`, got)
}

func TestInstruction_TemplateError(t *testing.T) {
	_, err := NewInstructionFromText("{{.question").Resolve(context.Background(), core.NewTask("analysis", nil))
	assert.Error(t, err)
}

func TestInstruction_Provider(t *testing.T) {
	inst := NewInstructionFromProvider(mockProvider{text: "dynamic"})
	assert.False(t, inst.IsStatic())

	got, err := inst.Resolve(context.Background(), core.NewTask("analysis", nil))
	require.NoError(t, err)
	assert.Equal(t, "dynamic", got)

	boom := errors.New("boom")
	_, err = NewInstructionFromProvider(mockProvider{err: boom}).Resolve(context.Background(), core.NewTask("analysis", nil))
	assert.ErrorIs(t, err, boom)
}

func TestInstruction_Func(t *testing.T) {
	inst := NewInstructionFromFunc(func(_ context.Context, task *core.Task) (string, error) {
		return "task " + task.Type, nil
	})
	got, err := inst.Resolve(context.Background(), core.NewTask("analysis", nil))
	require.NoError(t, err)
	assert.Equal(t, "task analysis", got)
	assert.True(t, Instruction{}.IsZero())
}
