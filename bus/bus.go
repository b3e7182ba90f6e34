// Package bus is the in-process pub/sub channel between agents. It keeps a
// bounded history per channel, persists urgent messages and supports
// request/response exchanges correlated by id.
//
// Handlers run synchronously on the publishing goroutine, outside the bus
// lock, so a handler may publish or subscribe itself. Long-running work
// should be handed off to another goroutine.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/kv"
	"github.com/tradetaper/agentcore/logging"
)

// Handler processes a delivered message. Returned errors and panics are
// logged and never reach the publisher or other subscribers.
type Handler func(ctx context.Context, msg core.Message) error

// Options configures a Bus.
type Options struct {
	Logger logging.Logger
	// Store persists messages with priority >= PersistPriority. Nil disables persistence.
	Store           kv.Store
	PersistPriority core.Priority
	PersistTTL      time.Duration
	// MaxHistory bounds the history of each channel. All "response:<id>"
	// channels share one history of this size.
	MaxHistory int
}

// PublishOptions controls a single Publish call.
type PublishOptions struct {
	To            []string
	Type          core.MessageType
	CorrelationID string
	Priority      core.Priority
}

// To addresses the message to the named agents.
func To(names ...string) func(o *PublishOptions) {
	return func(o *PublishOptions) { o.To = names }
}

// WithType sets the message type.
func WithType(t core.MessageType) func(o *PublishOptions) {
	return func(o *PublishOptions) { o.Type = t }
}

// WithCorrelationID links the message to a request.
func WithCorrelationID(id string) func(o *PublishOptions) {
	return func(o *PublishOptions) { o.CorrelationID = id }
}

// WithPriority sets the message priority.
func WithPriority(p core.Priority) func(o *PublishOptions) {
	return func(o *PublishOptions) { o.Priority = p }
}

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is safe for concurrent use.
type Bus struct {
	logger logging.Logger
	opts   Options

	mu      sync.Mutex
	subs    map[string][]subscription
	history map[string]*ring
	nextID  uint64
	seq     uint64
	closed  bool
}

// New creates a Bus.
func New(optFns ...func(o *Options)) *Bus {
	opts := Options{
		Logger:          logging.NoOpLogger{},
		PersistPriority: core.PriorityHigh,
		PersistTTL:      time.Hour,
		MaxHistory:      1000,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 1000
	}

	opts.Logger.Info("Message bus initialized")
	return &Bus{
		logger:  opts.Logger,
		opts:    opts,
		subs:    make(map[string][]subscription),
		history: make(map[string]*ring),
	}
}

// Publish records and delivers a message on channel and returns its id.
// Without options the message is a MEDIUM priority broadcast to "*".
// A message for exactly one agent is also delivered on "agent:<name>".
func (b *Bus) Publish(ctx context.Context, channel, from string, data any, optFns ...func(o *PublishOptions)) (string, error) {
	opts := PublishOptions{
		To:       []string{core.Broadcast},
		Type:     core.MessageTypeBroadcast,
		Priority: core.PriorityMedium,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if len(opts.To) == 0 {
		opts.To = []string{core.Broadcast}
	}

	msg := core.Message{
		ID:            uuid.NewString(),
		From:          from,
		To:            append([]string(nil), opts.To...),
		Type:          opts.Type,
		Channel:       channel,
		Data:          data,
		Timestamp:     time.Now(),
		CorrelationID: opts.CorrelationID,
		Priority:      opts.Priority,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return "", core.ErrBusClosed
	}
	key := historyKey(channel)
	h, ok := b.history[key]
	if !ok {
		h = newRing(b.opts.MaxHistory)
		b.history[key] = h
	}
	b.seq++
	h.push(entry{seq: b.seq, msg: msg})
	targets := b.snapshotLocked(channel)
	recipient, direct := msg.Recipient()
	if direct {
		targets = append(targets, b.snapshotLocked(AgentChannel(recipient))...)
	}
	b.mu.Unlock()

	if msg.Priority >= b.opts.PersistPriority && b.opts.Store != nil {
		if err := kv.SetJSON(ctx, b.opts.Store, "message:"+msg.ID, msg, b.opts.PersistTTL); err != nil {
			b.logger.Error("Failed to persist message", "message_id", msg.ID, "error", err)
		}
	}

	for _, s := range targets {
		b.deliver(ctx, s, msg)
	}

	b.logger.Debug("Published message", "message_id", msg.ID, "channel", channel, "from", from, "to", msg.To)
	return msg.ID, nil
}

func (b *Bus) snapshotLocked(channel string) []subscription {
	return append([]subscription(nil), b.subs[channel]...)
}

func (b *Bus) deliver(ctx context.Context, s subscription, msg core.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic in message handler", "channel", msg.Channel, "message_id", msg.ID, "panic", fmt.Sprint(r))
		}
	}()
	if err := s.handler(ctx, msg); err != nil {
		b.logger.Error("Error in message handler", "channel", msg.Channel, "message_id", msg.ID, "error", err)
	}
}

// AgentChannel returns the point-to-point channel of an agent.
func AgentChannel(name string) string { return "agent:" + name }

// ResponseChannel returns the channel carrying the response to a request.
func ResponseChannel(correlationID string) string { return responsePrefix + correlationID }

const responsePrefix = "response:"

// Subscribe registers handler on channel. The returned function removes the
// subscription and is safe to call more than once.
func (b *Bus) Subscribe(channel string, handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[channel] = append(b.subs[channel], subscription{id: id, handler: handler})
	b.mu.Unlock()
	b.logger.Debug("Subscribed to channel", "channel", channel)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			subs := b.subs[channel]
			for i, s := range subs {
				if s.id == id {
					subs = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(subs) == 0 {
				delete(b.subs, channel)
			} else {
				b.subs[channel] = subs
			}
			b.logger.Debug("Unsubscribed from channel", "channel", channel)
		})
	}
}

// SubscribeToAgent registers handler for messages addressed to one agent.
func (b *Bus) SubscribeToAgent(name string, handler Handler) (unsubscribe func()) {
	return b.Subscribe(AgentChannel(name), handler)
}

// Broadcast publishes data to every subscriber of channel.
func (b *Bus) Broadcast(ctx context.Context, channel, from string, data any, priority core.Priority) (string, error) {
	return b.Publish(ctx, channel, from, data, WithType(core.MessageTypeBroadcast), WithPriority(priority))
}

// History returns up to the last limit messages of channel, oldest first.
// A limit <= 0 means 50.
func (b *Bus) History(channel string, limit int) []core.Message {
	if limit <= 0 {
		limit = 50
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	key := historyKey(channel)
	h, ok := b.history[key]
	if !ok {
		return nil
	}
	if key == channel {
		return messages(h.last(limit))
	}
	var es []entry
	for _, e := range h.all() {
		if e.msg.Channel == channel {
			es = append(es, e)
		}
	}
	return messages(es[max(0, len(es)-limit):])
}

// ByCorrelation returns every recorded message with the correlation id,
// ordered by timestamp.
func (b *Bus) ByCorrelation(correlationID string) []core.Message {
	b.mu.Lock()
	var found []entry
	for _, h := range b.history {
		for _, e := range h.all() {
			if e.msg.CorrelationID == correlationID {
				found = append(found, e)
			}
		}
	}
	b.mu.Unlock()

	sortEntries(found)
	return messages(found)
}

// Stats summarizes the bus.
type Stats struct {
	TotalMessages int            `json:"totalMessages"`
	TotalChannels int            `json:"totalChannels"`
	ChannelStats  map[string]int `json:"channelStats"`
	// ListenerCount is the number of channels with at least one subscriber.
	ListenerCount int `json:"listenerCount"`
}

// Stats returns history and subscription counts.
func (b *Bus) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Stats{
		TotalChannels: len(b.history),
		ChannelStats:  make(map[string]int, len(b.history)),
		ListenerCount: len(b.subs),
	}
	for channel, h := range b.history {
		s.ChannelStats[channel] = h.len()
		s.TotalMessages += h.len()
	}
	return s
}

// ClearHistory drops the history of the given channels, or of all channels
// when none are given.
func (b *Bus) ClearHistory(channels ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(channels) == 0 {
		b.history = make(map[string]*ring)
		b.logger.Info("Cleared all message history")
		return
	}
	for _, c := range channels {
		key := historyKey(c)
		if h, ok := b.history[key]; ok && key != c {
			if h.drop(func(e entry) bool { return e.msg.Channel == c }) == 0 {
				delete(b.history, key)
			}
		} else {
			delete(b.history, c)
		}
		b.logger.Info("Cleared history for channel", "channel", c)
	}
}

// Close removes all subscribers and history. Publishing afterwards fails
// with core.ErrBusClosed.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]subscription)
	b.history = make(map[string]*ring)
	b.logger.Info("Message bus shut down")
	return nil
}
