package agentcore

import (
	"context"
	"fmt"
	"io"

	"github.com/tradetaper/agentcore/agent"
	"github.com/tradetaper/agentcore/config"
	"github.com/tradetaper/agentcore/consensus"
	"github.com/tradetaper/agentcore/cost"
	"github.com/tradetaper/agentcore/cost/pgledger"
	"github.com/tradetaper/agentcore/kv"
	"github.com/tradetaper/agentcore/kv/memory"
	"github.com/tradetaper/agentcore/kv/sqlite"
	"github.com/tradetaper/agentcore/llm"
	"github.com/tradetaper/agentcore/logging"
	"github.com/tradetaper/agentcore/secrets"
)

// NewFromConfig builds a Runtime from file configuration and registers the
// configured model agents. API keys are read from the environment. optFns
// run after the configuration is applied.
func NewFromConfig(ctx context.Context, cfg *config.Config, optFns ...func(o *Options)) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var closers []io.Closer
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	store, closer, err := openStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	ledger, closer, err := openLedger(ctx, cfg.Ledger)
	if err != nil {
		closeAll()
		return nil, err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	base := func(o *Options) {
		o.Store = store
		if cfg.Store.Backend == "sqlite" {
			o.CostStore = store
		}
		o.Ledger = ledger
		o.Budgets = cfg.TierBudgets()
		o.Models = cfg.LLMModels()
		o.Secrets = secrets.Env{}
		o.CacheTTL = cfg.Cache.DefaultTTL.Std()
		o.BusMaxHistory = cfg.Bus.MaxHistory
		o.BusPersistTTL = cfg.Bus.PersistTTL.Std()
		o.BusPersistPriority = cfg.Bus.PersistPriority
		o.AgentShutdownGrace = cfg.Agent.ShutdownGrace.Std()
		o.ConsensusTimeout = cfg.Consensus.Timeout.Std()
		o.RequiredConfidence = cfg.Consensus.RequiredConfidence
		o.DefaultConfidence = cfg.Consensus.DefaultConfidence
		if cfg.Consensus.Strategy != "" {
			o.ConsensusStrategy = consensus.Strategy(cfg.Consensus.Strategy)
		}
		o.Closers = closers
		o.Logger = logging.New(cfg.LoggingConfig())
	}

	rt, err := New(append([]func(o *Options){base}, optFns...)...)
	if err != nil {
		closeAll()
		return nil, err
	}

	for _, ac := range cfg.Agents {
		if _, err := rt.RegisterModelAgent(cfg.CoreAgentConfig(ac), modelAgentOptions(ac)); err != nil {
			closeAll()
			return nil, fmt.Errorf("register agent %s: %w", ac.Name, err)
		}
	}
	return rt, nil
}

func modelAgentOptions(ac config.AgentConfig) func(o *agent.ModelAgentOptions) {
	return func(o *agent.ModelAgentOptions) {
		if ac.Instruction != "" {
			o.Instruction = agent.NewInstructionFromText(ac.Instruction)
		}
		if ac.OptimizeFor != "" {
			o.OptimizeFor = llm.Optimization(ac.OptimizeFor)
		}
		if ac.Complexity != "" {
			o.TaskComplexity = cost.Complexity(ac.Complexity)
		}
		if ac.Temperature > 0 {
			o.Temperature = ac.Temperature
		}
		o.MaxTokens = ac.MaxTokens
		o.UserID = ac.UserID
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig) (kv.Store, io.Closer, error) {
	if cfg.Backend == "sqlite" {
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
	s, err := memory.New(func(o *memory.Options) {
		if cfg.MaxEntries > 0 {
			o.MaxEntries = cfg.MaxEntries
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return s, nil, nil
}

func openLedger(ctx context.Context, cfg config.LedgerConfig) (cost.Ledger, io.Closer, error) {
	if cfg.Backend != "postgres" {
		return cost.NewMemoryLedger(cfg.MaxRecords), nil, nil
	}
	l, err := pgledger.Open(cfg.DSN, nil)
	if err != nil {
		return nil, nil, err
	}
	if err := l.Migrate(ctx); err != nil {
		_ = l.Close()
		return nil, nil, err
	}
	return l, l, nil
}
