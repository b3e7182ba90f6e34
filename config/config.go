// Package config loads runtime configuration from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tradetaper/agentcore/core"
	"github.com/tradetaper/agentcore/cost"
	"github.com/tradetaper/agentcore/llm"
	"github.com/tradetaper/agentcore/logging"
)

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", b, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Log       LogConfig          `toml:"log" yaml:"log"`
	Store     StoreConfig        `toml:"store" yaml:"store"`
	Ledger    LedgerConfig       `toml:"ledger" yaml:"ledger"`
	Cache     CacheConfig        `toml:"cache" yaml:"cache"`
	Bus       BusConfig          `toml:"bus" yaml:"bus"`
	Agent     AgentDefaults      `toml:"agent" yaml:"agent"`
	Models    []ModelConfig      `toml:"models" yaml:"models"`
	Budgets   map[string]float64 `toml:"budgets" yaml:"budgets"`
	Consensus ConsensusConfig    `toml:"consensus" yaml:"consensus"`
	Agents    []AgentConfig      `toml:"agents" yaml:"agents"`
	Profiling ProfilingConfig    `toml:"profiling" yaml:"profiling"`

	// Path is the file the configuration was read from.
	Path string `toml:"-" yaml:"-"`
}

type LogConfig struct {
	Level     string `toml:"level" yaml:"level"`   // debug, info, warn, error
	Format    string `toml:"format" yaml:"format"` // json or text
	AddSource bool   `toml:"add_source" yaml:"add_source"`
}

// StoreConfig selects the key-value backend.
type StoreConfig struct {
	Backend    string `toml:"backend" yaml:"backend"` // memory or sqlite
	Path       string `toml:"path" yaml:"path"`
	MaxEntries int    `toml:"max_entries" yaml:"max_entries"`
}

// LedgerConfig selects where per-call token usage is recorded.
type LedgerConfig struct {
	Backend    string `toml:"backend" yaml:"backend"` // memory or postgres
	DSN        string `toml:"dsn" yaml:"dsn"`
	MaxRecords int    `toml:"max_records" yaml:"max_records"`
}

type CacheConfig struct {
	DefaultTTL Duration `toml:"default_ttl" yaml:"default_ttl"`
}

type BusConfig struct {
	MaxHistory      int           `toml:"max_history" yaml:"max_history"`
	PersistTTL      Duration      `toml:"persist_ttl" yaml:"persist_ttl"`
	PersistPriority core.Priority `toml:"persist_priority" yaml:"persist_priority"`
}

// AgentDefaults apply to configured agents that leave a field unset.
type AgentDefaults struct {
	Timeout       Duration `toml:"timeout" yaml:"timeout"`
	MaxConcurrent int      `toml:"max_concurrent" yaml:"max_concurrent"`
	ShutdownGrace Duration `toml:"shutdown_grace" yaml:"shutdown_grace"`
}

// ModelConfig is a routable model. Models are enabled unless Disabled is set.
type ModelConfig struct {
	Name       string `toml:"name" yaml:"name"`
	Provider   string `toml:"provider" yaml:"provider"`
	Priority   int    `toml:"priority" yaml:"priority"`
	Tier       string `toml:"tier" yaml:"tier"`
	Disabled   bool   `toml:"disabled" yaml:"disabled"`
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"`
}

type ConsensusConfig struct {
	Timeout            Duration `toml:"timeout" yaml:"timeout"`
	RequiredConfidence float64  `toml:"required_confidence" yaml:"required_confidence"`
	DefaultConfidence  float64  `toml:"default_confidence" yaml:"default_confidence"`
	Strategy           string   `toml:"strategy" yaml:"strategy"`
}

// AgentConfig declares a model-backed agent.
type AgentConfig struct {
	Name          string             `toml:"name" yaml:"name"`
	Type          string             `toml:"type" yaml:"type"`
	Capabilities  []CapabilityConfig `toml:"capabilities" yaml:"capabilities"`
	MaxConcurrent int                `toml:"max_concurrent" yaml:"max_concurrent"`
	Timeout       Duration           `toml:"timeout" yaml:"timeout"`
	Instruction   string             `toml:"instruction" yaml:"instruction"`
	Model         string             `toml:"model" yaml:"model"`
	OptimizeFor   string             `toml:"optimize_for" yaml:"optimize_for"`
	Complexity    string             `toml:"complexity" yaml:"complexity"`
	Temperature   float64            `toml:"temperature" yaml:"temperature"`
	MaxTokens     int                `toml:"max_tokens" yaml:"max_tokens"`
	UserID        string             `toml:"user_id" yaml:"user_id"`
}

type CapabilityConfig struct {
	Name        string  `toml:"name" yaml:"name"`
	Proficiency float64 `toml:"proficiency" yaml:"proficiency"`
	Cost        float64 `toml:"cost" yaml:"cost"`
}

// ProfilingConfig enables continuous profiling of the binary.
type ProfilingConfig struct {
	Enabled         bool   `toml:"enabled" yaml:"enabled"`
	ServerAddress   string `toml:"server_address" yaml:"server_address"`
	ApplicationName string `toml:"application_name" yaml:"application_name"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Format: "json"},
		Store:  StoreConfig{Backend: "memory", MaxEntries: 10000},
		Ledger: LedgerConfig{Backend: "memory", MaxRecords: 10000},
		Cache:  CacheConfig{DefaultTTL: Duration(time.Hour)},
		Bus: BusConfig{
			MaxHistory:      1000,
			PersistTTL:      Duration(time.Hour),
			PersistPriority: core.PriorityHigh,
		},
		Agent: AgentDefaults{
			Timeout:       Duration(60 * time.Second),
			MaxConcurrent: 1,
			ShutdownGrace: Duration(30 * time.Second),
		},
		Models: defaultModels(),
		Consensus: ConsensusConfig{
			Timeout:            Duration(30 * time.Second),
			RequiredConfidence: 0.75,
			DefaultConfidence:  0.7,
			Strategy:           "weighted",
		},
		Profiling: ProfilingConfig{ApplicationName: "agentcore"},
	}
}

func defaultModels() []ModelConfig {
	models := make([]ModelConfig, 0, len(llm.DefaultModels))
	for _, m := range llm.DefaultModels {
		models = append(models, ModelConfig{
			Name:       m.Name,
			Provider:   m.Provider,
			Priority:   m.Priority,
			Tier:       string(m.Tier),
			Disabled:   !m.Enabled,
			MaxRetries: m.MaxRetries,
		})
	}
	return models
}

// Load reads path on top of Default. The format follows the extension:
// .toml, .yaml or .yml. A leading ~ expands to the home directory.
func Load(path string) (*Config, error) {
	resolved, err := expandHome(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", resolved, err)
	}

	cfg := Default()
	// A models table in the file replaces the defaults instead of merging
	// into them element by element.
	cfg.Models = nil
	switch ext := strings.ToLower(filepath.Ext(resolved)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if len(cfg.Models) == 0 {
		cfg.Models = defaultModels()
	}
	cfg.Path = resolved

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return filepath.Clean(path), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	trimmed := strings.TrimLeft(strings.TrimPrefix(path, "~"), `/\`)
	return filepath.Join(home, trimmed), nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %w", err)
	}
	if f := c.Log.Format; f != "" && f != "json" && f != "text" {
		add("log.format: unknown format %q", f)
	}

	switch c.Store.Backend {
	case "", "memory":
	case "sqlite":
		if c.Store.Path == "" {
			add("store.path: required for the sqlite backend")
		}
	default:
		add("store.backend: unknown backend %q", c.Store.Backend)
	}

	switch c.Ledger.Backend {
	case "", "memory":
	case "postgres":
		if c.Ledger.DSN == "" {
			add("ledger.dsn: required for the postgres backend")
		}
	default:
		add("ledger.backend: unknown backend %q", c.Ledger.Backend)
	}

	seen := make(map[string]bool)
	for i, m := range c.Models {
		switch {
		case m.Name == "":
			add("models[%d].name: required", i)
		case seen[m.Name]:
			add("models[%d].name: duplicate model %q", i, m.Name)
		}
		seen[m.Name] = true
		if m.Provider == "" {
			add("models[%d].provider: required", i)
		}
		if t := llm.Tier(m.Tier); t != llm.TierFast && t != llm.TierPremium {
			add("models[%d].tier: unknown tier %q", i, m.Tier)
		}
	}

	for tier, budget := range c.Budgets {
		if _, ok := cost.DefaultBudgets[cost.Tier(tier)]; !ok {
			add("budgets: unknown tier %q", tier)
		}
		if budget < 0 {
			add("budgets.%s: must not be negative", tier)
		}
	}

	switch c.Consensus.Strategy {
	case "", "majority", "weighted", "unanimous":
	default:
		add("consensus.strategy: unknown strategy %q", c.Consensus.Strategy)
	}
	if v := c.Consensus.RequiredConfidence; v < 0 || v > 1 {
		add("consensus.required_confidence: %v not in [0,1]", v)
	}
	if v := c.Consensus.DefaultConfidence; v < 0 || v > 1 {
		add("consensus.default_confidence: %v not in [0,1]", v)
	}

	names := make(map[string]bool)
	for i, a := range c.Agents {
		switch {
		case a.Name == "":
			add("agents[%d].name: required", i)
		case names[a.Name]:
			add("agents[%d].name: duplicate agent %q", i, a.Name)
		}
		names[a.Name] = true
		for j, cp := range a.Capabilities {
			if cp.Name == "" {
				add("agents[%d].capabilities[%d].name: required", i, j)
			}
			if cp.Proficiency < 0 || cp.Proficiency > 1 {
				add("agents[%d].capabilities[%d].proficiency: %v not in [0,1]", i, j, cp.Proficiency)
			}
		}
		switch llm.Optimization(a.OptimizeFor) {
		case "", llm.OptimizeCost, llm.OptimizeQuality, llm.OptimizeSpeed:
		default:
			add("agents[%d].optimize_for: unknown goal %q", i, a.OptimizeFor)
		}
		switch cost.Complexity(a.Complexity) {
		case "", cost.ComplexitySimple, cost.ComplexityMedium, cost.ComplexityComplex:
		default:
			add("agents[%d].complexity: unknown complexity %q", i, a.Complexity)
		}
	}

	if c.Profiling.Enabled && c.Profiling.ServerAddress == "" {
		add("profiling.server_address: required when profiling is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LLMModels converts the model table for the llm orchestrator.
func (c *Config) LLMModels() []llm.ModelConfig {
	out := make([]llm.ModelConfig, 0, len(c.Models))
	for _, m := range c.Models {
		out = append(out, llm.ModelConfig{
			Name:       m.Name,
			Provider:   m.Provider,
			Priority:   m.Priority,
			Tier:       llm.Tier(m.Tier),
			Enabled:    !m.Disabled,
			MaxRetries: m.MaxRetries,
		})
	}
	return out
}

// TierBudgets merges the configured budgets over cost.DefaultBudgets.
func (c *Config) TierBudgets() map[cost.Tier]float64 {
	out := make(map[cost.Tier]float64, len(cost.DefaultBudgets))
	for t, b := range cost.DefaultBudgets {
		out[t] = b
	}
	for t, b := range c.Budgets {
		out[cost.Tier(t)] = b
	}
	return out
}

// LoggingConfig converts the log section for logging.New.
func (c *Config) LoggingConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Log.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	if c.Log.Format != "" {
		cfg.Format = c.Log.Format
	}
	cfg.AddSource = c.Log.AddSource
	return cfg
}

// CoreAgentConfig returns the core configuration of a with defaults applied.
func (c *Config) CoreAgentConfig(a AgentConfig) core.AgentConfig {
	cfg := core.AgentConfig{
		Name:               a.Name,
		Type:               a.Type,
		MaxConcurrentTasks: a.MaxConcurrent,
		Timeout:            a.Timeout.Std(),
		Model:              a.Model,
	}
	if cfg.Type == "" {
		cfg.Type = "model"
	}
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = c.Agent.MaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = c.Agent.Timeout.Std()
	}
	for _, cp := range a.Capabilities {
		cfg.Capabilities = append(cfg.Capabilities, core.Capability{Name: cp.Name, Proficiency: cp.Proficiency, Cost: cp.Cost})
	}
	return cfg
}
