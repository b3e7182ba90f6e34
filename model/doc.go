// Package model defines the provider-agnostic abstraction for text
// generation used by the LLM orchestrator.
//
// Core goals:
//   - One blocking Generate call per completion, cancelled through ctx
//   - Normalized token accounting across vendors (Completion)
//   - Lightweight mocking for tests (MockGenerator)
//
// Providers (OpenAI, Anthropic) live in sub-packages so higher layers stay
// decoupled from vendor SDKs.
package model
