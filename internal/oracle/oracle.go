// Package oracle implements the language-model call contract, the
// OpenAI-compatible HTTP backend, deterministic agent routing and the
// advisory connectivity probe.
package oracle

import (
	"context"
)

// Response is what a backend call yields. The protocol layer derives
// completion markers, agreement and extracted plans purely from Text;
// transport details never leak past this package.
type Response struct {
	Text string
	// TokenEstimate is ceil((len(prompt)+len(text))/4), the accounting
	// unit the experiment metrics aggregate.
	TokenEstimate int
}

// Oracle is the call-and-get-text contract with a language model
// backend.
type Oracle interface {
	// Call sends a prompt and blocks until a response or error.
	Call(ctx context.Context, prompt string) (*Response, error)
	// Name identifies the backend in logs and traces.
	Name() string
}

// EstimateTokens is the fixed length-based token accounting used for
// experiment metrics.
func EstimateTokens(prompt, response string) int {
	return (len(prompt) + len(response) + 3) / 4
}
