// File: internal/services/ai/interface.go
package ai

import (
	"context"
	"fmt"
)

// Shape is the wire format of a completion-style request.
type Shape int

const (
	// ShapeStructured: {model, prompt, max_tokens, temperature}
	ShapeStructured Shape = iota
	// ShapeAlternate: {model, input, max_new_tokens, temperature}
	ShapeAlternate
	// ShapeMinimal: {model, prompt}
	ShapeMinimal
)

func (s Shape) String() string {
	switch s {
	case ShapeStructured:
		return "completion"
	case ShapeAlternate:
		return "completion_alt"
	case ShapeMinimal:
		return "completion_minimal"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

type ChatRequest struct {
	Model        string
	SystemPrompt string
	Message      string
	MaxTokens    int
	Temperature  float64
}

type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Reply is what any request shape produces.
type Reply struct {
	Text       string
	Model      string
	TokensUsed int
}

// Backend is the inference server. Each method is a single HTTP call;
// retries are the caller's business.
type Backend interface {
	ListModels(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Chat(ctx context.Context, req ChatRequest) (*Reply, error)
	Complete(ctx context.Context, shape Shape, req CompletionRequest) (*Reply, error)
}

// RawPreferenceChecker tells the cascade which models never get a chat request.
type RawPreferenceChecker interface {
	IsRawPreferred(model string) bool
}

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Warn(string, ...interface{})  {}
