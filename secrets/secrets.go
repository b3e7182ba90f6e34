// Package secrets resolves provider API credentials.
package secrets

import (
	"os"
	"strings"
)

// Provider returns the API key of an LLM provider, or "" when none is configured.
type Provider interface {
	APIKey(provider string) string
}

// DefaultEnvVars maps provider names to the environment variables read by Env.
var DefaultEnvVars = map[string]string{
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"google":    "GEMINI_API_KEY",
}

// Env reads keys from environment variables.
type Env struct {
	// Vars overrides DefaultEnvVars when set.
	Vars map[string]string
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// APIKey implements Provider.
func (e Env) APIKey(provider string) string {
	vars := e.Vars
	if vars == nil {
		vars = DefaultEnvVars
	}
	name, ok := vars[provider]
	if !ok {
		name = strings.ToUpper(provider) + "_API_KEY"
	}
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(name)
	return strings.TrimSpace(v)
}

// Static serves keys from a fixed map.
type Static map[string]string

// APIKey implements Provider.
func (s Static) APIKey(provider string) string { return s[provider] }

// Chain returns the first non-empty key of its providers.
type Chain []Provider

// APIKey implements Provider.
func (c Chain) APIKey(provider string) string {
	for _, p := range c {
		if p == nil {
			continue
		}
		if k := p.APIKey(provider); k != "" {
			return k
		}
	}
	return ""
}
