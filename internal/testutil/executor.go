package testutil

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/tradetaper/agentcore/core"
)

// Vote returns an executor answering every task with a consensus vote.
func Vote(prediction any, confidence float64, reasoning string) core.Executor {
	return core.ExecutorFunc(func(context.Context, *core.Task) (*core.Response, error) {
		return &core.Response{
			Success:  true,
			Data:     map[string]any{"prediction": prediction, "reasoning": reasoning},
			Metadata: core.ResponseMetadata{Confidence: core.Float(confidence), TokensUsed: 10, Cost: 0.001},
		}, nil
	})
}

// Fail returns an executor that always fails with msg.
func Fail(msg string) core.Executor {
	return core.ExecutorFunc(func(context.Context, *core.Task) (*core.Response, error) {
		return nil, errors.New(msg)
	})
}

// Delay wraps next so that it answers after d unless ctx ends first.
func Delay(d time.Duration, next core.Executor) core.Executor {
	return core.ExecutorFunc(func(ctx context.Context, task *core.Task) (*core.Response, error) {
		select {
		case <-time.After(d):
			return next.ExecuteTask(ctx, task)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

// Gate is an executor that blocks until released or cancelled.
type Gate struct {
	release chan struct{}
	started chan struct{}
	calls   atomic.Int32
	// Cancelled counts executions that observed context cancellation.
	Cancelled atomic.Int32
}

// NewGate creates a closed Gate.
func NewGate() *Gate {
	return &Gate{release: make(chan struct{}), started: make(chan struct{}, 64)}
}

// ExecuteTask implements core.Executor.
func (g *Gate) ExecuteTask(ctx context.Context, _ *core.Task) (*core.Response, error) {
	g.calls.Add(1)
	g.started <- struct{}{}
	select {
	case <-g.release:
		return &core.Response{Success: true, Data: "released"}, nil
	case <-ctx.Done():
		g.Cancelled.Add(1)
		return nil, ctx.Err()
	}
}

// Started blocks until an execution has begun or the timeout elapses.
func (g *Gate) Started(timeout time.Duration) bool {
	select {
	case <-g.started:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Release lets every blocked and future execution finish.
func (g *Gate) Release() { close(g.release) }

// Calls returns the number of executions started.
func (g *Gate) Calls() int { return int(g.calls.Load()) }
