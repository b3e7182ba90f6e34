package agent

import (
	"context"

	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/internal/util"
)

// Provider supplies dynamic instruction text for a task.
type Provider interface {
	Instruction(ctx context.Context, task *core.Task) (string, error)
}

// Func is a functional adapter to allow ordinary functions to be used as Providers.
type Func func(ctx context.Context, task *core.Task) (string, error)

// Instruction implements Provider.
func (f Func) Instruction(ctx context.Context, task *core.Task) (string, error) { return f(ctx, task) }

// Instruction represents either a static template or a dynamic provider.
// Static text is rendered as a text/template with the task data.
type Instruction struct {
	text     string
	provider Provider
}

// NewInstructionFromText creates an Instruction from a static template.
func NewInstructionFromText(text string) Instruction { return Instruction{text: text} }

// NewInstructionFromProvider creates an Instruction from a dynamic provider.
func NewInstructionFromProvider(p Provider) Instruction { return Instruction{provider: p} }

// NewInstructionFromFunc creates an Instruction from a function.
func NewInstructionFromFunc(f func(ctx context.Context, task *core.Task) (string, error)) Instruction {
	return Instruction{provider: Func(f)}
}

// IsStatic returns true if the instruction is backed by a static string.
func (i Instruction) IsStatic() bool { return i.provider == nil }

// IsZero reports whether the instruction carries neither text nor provider.
func (i Instruction) IsZero() bool { return i.provider == nil && i.text == "" }

// Resolve returns the instruction text, invoking the provider if needed.
// Templates see the task data plus "taskId", "taskType" and "priority".
func (i Instruction) Resolve(ctx context.Context, task *core.Task) (string, error) {
	if i.provider != nil {
		return i.provider.Instruction(ctx, task)
	}

	state := make(map[string]any, len(task.Data)+3)
	for k, v := range task.Data {
		state[k] = v
	}
	state["taskId"] = task.ID
	state["taskType"] = task.Type
	state["priority"] = task.Priority.String()
	return util.RenderTemplate(i.text, state)
}
