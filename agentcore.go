// Package agentcore provides a high-level façade that wires the runtime
// services together: a key-value store, the cost manager and semantic cache,
// the multi-model LLM orchestrator, the agent registry, the message bus and
// the consensus orchestrator. Most applications interact with this package by:
//  1. Creating a Runtime via New() or NewFromConfig()
//  2. Registering agents (RegisterAgent for custom executors, RegisterModelAgent
//     for LLM-backed voters)
//  3. Running consensus rounds (Reach, TradingConsensus) or talking to agents
//     over the bus
//
// All defaults are in-memory and safe for local development and testing.
package agentcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tradetaper/agentcore/agent"
	"github.com/tradetaper/agentcore/bus"
	"github.com/tradetaper/agentcore/cache"
	"github.com/tradetaper/agentcore/consensus"
	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/cost"
	"github.com/tradetaper/agentcore/kv"
	"github.com/tradetaper/agentcore/kv/memory"
	"github.com/tradetaper/agentcore/llm"
	"github.com/tradetaper/agentcore/logging"
	"github.com/tradetaper/agentcore/model"
	"github.com/tradetaper/agentcore/model/anthropic"
	"github.com/tradetaper/agentcore/model/openai"
	"github.com/tradetaper/agentcore/registry"
	"github.com/tradetaper/agentcore/secrets"
)

// Options configures the Runtime.
type Options struct {
	// Store backs the semantic cache and persisted bus messages. Defaults to
	// an in-memory LRU store.
	Store kv.Store
	// CostStore holds user tiers and usage accumulators. It must not evict
	// keys. Defaults to an in-memory store without eviction.
	CostStore kv.Store
	// Ledger records every model call. Defaults to an in-memory ledger.
	Ledger cost.Ledger
	// Budgets overrides the monthly budget per tier.
	Budgets map[cost.Tier]float64

	// Models is the LLM routing table. Defaults to llm.DefaultModels.
	Models []llm.ModelConfig
	// Generators are keyed by provider name. When nil and Secrets is set,
	// OpenAI and Anthropic generators are created for providers with a key.
	Generators map[string]model.Generator
	// Secrets, when set, disables models whose provider has no API key.
	Secrets secrets.Provider

	CacheTTL time.Duration

	BusMaxHistory      int
	BusPersistTTL      time.Duration
	BusPersistPriority core.Priority

	// AgentShutdownGrace bounds how long each agent drains on Shutdown.
	AgentShutdownGrace time.Duration

	ConsensusTimeout time.Duration
	// ConsensusStrategy is used by Reach when a request names none.
	ConsensusStrategy consensus.Strategy
	// RequiredConfidence is used by Reach when a request sets none.
	RequiredConfidence float64
	// DefaultConfidence is assumed for votes that report no confidence.
	DefaultConfidence float64

	// Closers are released on Shutdown after the agents have drained.
	Closers []io.Closer

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Runtime aggregates the services of a running system.
type Runtime struct {
	opts Options

	Store     kv.Store
	Costs     *cost.Manager
	Cache     *cache.SemanticCache
	LLM       *llm.Orchestrator
	Registry  *registry.Registry
	Bus       *bus.Bus
	Consensus *consensus.Orchestrator
}

// New creates a Runtime. Any unset service is initialized in memory.
func New(optFns ...func(o *Options)) (*Runtime, error) {
	opts := Options{
		Models:             llm.DefaultModels,
		CacheTTL:           cache.DefaultTTL,
		BusMaxHistory:      1000,
		BusPersistTTL:      time.Hour,
		BusPersistPriority: core.PriorityHigh,
		AgentShutdownGrace: 30 * time.Second,
		ConsensusTimeout:   30 * time.Second,
		ConsensusStrategy:  consensus.StrategyWeighted,
		RequiredConfidence: 0.75,
		DefaultConfidence:  0.7,
		Logger:             logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Store == nil {
		s, err := memory.New()
		if err != nil {
			return nil, err
		}
		opts.Store = s
	}
	if opts.CostStore == nil {
		s, err := memory.New(func(o *memory.Options) { o.MaxEntries = 0 })
		if err != nil {
			return nil, err
		}
		opts.CostStore = s
	}
	if opts.Ledger == nil {
		opts.Ledger = cost.NewMemoryLedger(0)
	}
	if opts.Generators == nil && opts.Secrets != nil {
		opts.Generators = generatorsFromSecrets(opts.Secrets)
	}

	costs := cost.New(opts.CostStore, func(o *cost.Options) {
		o.Logger = logging.With(opts.Logger, "component", "cost")
		o.Ledger = opts.Ledger
		if opts.Budgets != nil {
			o.Budgets = opts.Budgets
		}
	})
	semantic := cache.New(opts.Store, func(o *cache.Options) {
		o.Logger = logging.With(opts.Logger, "component", "cache")
		o.DefaultTTL = opts.CacheTTL
	})
	router := llm.New(costs, semantic, func(o *llm.Options) {
		o.Logger = logging.With(opts.Logger, "component", "llm")
		o.Models = opts.Models
		o.Generators = opts.Generators
		o.Secrets = opts.Secrets
	})
	reg := registry.New(func(o *registry.Options) {
		o.Logger = logging.With(opts.Logger, "component", "registry")
	})
	b := bus.New(func(o *bus.Options) {
		o.Logger = logging.With(opts.Logger, "component", "bus")
		o.Store = opts.Store
		o.MaxHistory = opts.BusMaxHistory
		o.PersistTTL = opts.BusPersistTTL
		o.PersistPriority = opts.BusPersistPriority
	})
	cons := consensus.New(reg, func(o *consensus.Options) {
		o.Logger = logging.With(opts.Logger, "component", "consensus")
		o.Publisher = b
		o.DefaultTimeout = opts.ConsensusTimeout
		o.DefaultConfidence = opts.DefaultConfidence
	})

	return &Runtime{
		opts:      opts,
		Store:     opts.Store,
		Costs:     costs,
		Cache:     semantic,
		LLM:       router,
		Registry:  reg,
		Bus:       b,
		Consensus: cons,
	}, nil
}

func generatorsFromSecrets(p secrets.Provider) map[string]model.Generator {
	gens := make(map[string]model.Generator)
	if key := p.APIKey(openai.Provider); key != "" {
		gens[openai.Provider] = openai.NewGenerator(func(o *openai.Options) { o.APIKey = key })
	}
	if key := p.APIKey(anthropic.Provider); key != "" {
		gens[anthropic.Provider] = anthropic.NewGenerator(func(o *anthropic.Options) { o.APIKey = key })
	}
	return gens
}

// RegisterAgent wraps exec with the agent lifecycle and registers it.
func (r *Runtime) RegisterAgent(cfg core.AgentConfig, exec core.Executor) (*agent.Agent, error) {
	a := agent.New(cfg, exec, func(o *agent.Options) {
		o.Logger = r.opts.Logger
		o.ShutdownGrace = r.opts.AgentShutdownGrace
	})
	if err := r.Registry.Register(a); err != nil {
		return nil, err
	}
	return a, nil
}

// RegisterModelAgent registers an agent whose executor asks the LLM
// orchestrator for its opinion. cfg.Model becomes the model preference.
func (r *Runtime) RegisterModelAgent(cfg core.AgentConfig, optFns ...func(o *agent.ModelAgentOptions)) (*agent.Agent, error) {
	exec := agent.NewModelAgent(cfg.Name, r.LLM, append([]func(o *agent.ModelAgentOptions){
		func(o *agent.ModelAgentOptions) {
			o.ModelPreference = cfg.Model
			o.Logger = r.opts.Logger
		},
	}, optFns...)...)
	return r.RegisterAgent(cfg, exec)
}

// Reach runs a consensus round. Strategy and RequiredConfidence fall back to
// the runtime defaults.
func (r *Runtime) Reach(ctx context.Context, req consensus.Request) (*consensus.Response, error) {
	if req.Strategy == "" {
		req.Strategy = r.opts.ConsensusStrategy
	}
	if req.RequiredConfidence == 0 {
		req.RequiredConfidence = r.opts.RequiredConfidence
	}
	return r.Consensus.Reach(ctx, req)
}

// TradingConsensus asks every trade-prediction agent about symbol.
func (r *Runtime) TradingConsensus(ctx context.Context, symbol string, marketContext any) (*consensus.TradePrediction, *consensus.Response, error) {
	return r.Consensus.TradingConsensus(ctx, symbol, marketContext, func(o *consensus.TradingOptions) {
		o.RequiredConfidence = r.opts.RequiredConfidence
		o.Timeout = r.opts.ConsensusTimeout
	})
}

// Health is a snapshot of every subsystem.
type Health struct {
	LLM      llm.Health             `json:"llm"`
	Agents   []registry.AgentHealth `json:"agents"`
	Registry registry.Stats         `json:"registry"`
	Bus      bus.Stats              `json:"bus"`
}

// Health probes the LLM layer and every agent.
func (r *Runtime) Health(ctx context.Context) Health {
	return Health{
		LLM:      r.LLM.Health(ctx),
		Agents:   r.Registry.HealthStatus(ctx),
		Registry: r.Registry.SystemStats(),
		Bus:      r.Bus.Stats(),
	}
}

// Shutdown drains every agent, closes the bus and releases the closers.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.Registry.Shutdown(ctx)

	var errs []error
	if err := r.Bus.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close bus: %w", err))
	}
	for _, c := range r.opts.Closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.opts.Logger.Info("Runtime shut down")
	return errors.Join(errs...)
}
