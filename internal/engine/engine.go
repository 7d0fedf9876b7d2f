// Package engine talks to the local Ollama inference backend. The generator
// depends on the Engine interface rather than the concrete client so tests
// can substitute a fake model.
package engine

import (
	"context"
	"fmt"
)

// Message is a chat message in the backend API format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Engine abstracts the language-model backend: it receives prompt messages
// and returns a free-text completion.
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's
	// response. Connectivity failures and timeouts surface as
	// *ModelUnavailableError.
	Chat(ctx context.Context, model string, messages []Message) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of all locally available models.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available locally.
	HasModel(ctx context.Context, name string) bool
}

// ModelUnavailableError reports that the backend was unreachable or the
// generation call timed out. It is fatal for the round that hit it; the
// caller may retry the whole round.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
	}
	return fmt.Sprintf("model backend unavailable: %v", e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }
