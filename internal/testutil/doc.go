// Package testutil contains helper builders and stub executors used across
// tests to reduce boilerplate when constructing agent configurations and
// deterministic agent behavior. They are not intended for production usage.
package testutil
