package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tradetaper/agentcore/core"
)

// DefaultRequestTimeout applies when Request is called without a timeout.
const DefaultRequestTimeout = 30 * time.Second

// Request publishes a request to agent to on channel and waits for the
// matching Respond. The response listener is registered before publishing
// and always removed. A response carrying an error, or a map with a non-empty
// "error" string, fails the request.
func (b *Bus) Request(ctx context.Context, channel, from, to string, data any, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	correlationID := uuid.NewString()

	replies := make(chan core.Message, 1)
	unsubscribe := b.Subscribe(ResponseChannel(correlationID), func(_ context.Context, msg core.Message) error {
		select {
		case replies <- msg:
		default: // only the first response counts
		}
		return nil
	})
	defer unsubscribe()

	if _, err := b.Publish(ctx, channel, from, data,
		To(to), WithType(core.MessageTypeRequest), WithCorrelationID(correlationID)); err != nil {
		return nil, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-replies:
		if err := responseError(msg.Data); err != nil {
			return nil, err
		}
		return msg.Data, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", core.ErrRequestTimeout, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func responseError(data any) error {
	switch d := data.(type) {
	case error:
		return d
	case map[string]any:
		if msg, ok := d["error"].(string); ok && msg != "" {
			return errors.New(msg)
		}
	}
	return nil
}

// Respond answers a request message on its response channel.
func (b *Bus) Respond(ctx context.Context, original core.Message, from string, data any) error {
	if original.CorrelationID == "" {
		return core.ErrMissingCorrelation
	}
	_, err := b.Publish(ctx, ResponseChannel(original.CorrelationID), from, data,
		To(original.From), WithType(core.MessageTypeResponse), WithCorrelationID(original.CorrelationID))
	return err
}
