package llm

import (
	"errors"
	"fmt"
)

// ErrAllModelsFailed matches every *AllModelsFailedError via errors.Is.
var ErrAllModelsFailed = errors.New("all LLM models failed")

// ErrNoGenerator is reported for a model whose provider has no generator.
var ErrNoGenerator = errors.New("no generator for provider")

// AllModelsFailedError is returned when every candidate model failed.
type AllModelsFailedError struct {
	Last error
}

func (e *AllModelsFailedError) Error() string {
	last := "Unknown"
	if e.Last != nil {
		last = e.Last.Error()
	}
	return fmt.Sprintf("All LLM models failed. Last error: %s", last)
}

// Is reports whether target is ErrAllModelsFailed.
func (e *AllModelsFailedError) Is(target error) bool { return target == ErrAllModelsFailed }

// Unwrap returns the last model error.
func (e *AllModelsFailedError) Unwrap() error { return e.Last }
