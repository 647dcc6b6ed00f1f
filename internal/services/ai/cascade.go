// File: internal/services/ai/cascade.go
package ai

import (
	"context"
	"fmt"
	"strings"
)

// Stage is a state of the completion cascade. Transitions only move forward:
//
//	chat --400--> completion --any--> completion_alt --any--> completion_minimal --any--> failed
//
// Raw-preferred models start at completion.
type Stage string

const (
	StageChat              Stage = "chat"
	StageCompletion        Stage = "completion"
	StageCompletionAlt     Stage = "completion_alt"
	StageCompletionMinimal Stage = "completion_minimal"
	StageFailed            Stage = "failed"
)

func (s Stage) shape() Shape {
	switch s {
	case StageCompletionAlt:
		return ShapeAlternate
	case StageCompletionMinimal:
		return ShapeMinimal
	default:
		return ShapeStructured
	}
}

// next is the state entered after a failure in s that is allowed to degrade.
func (s Stage) next() Stage {
	switch s {
	case StageChat:
		return StageCompletion
	case StageCompletion:
		return StageCompletionAlt
	case StageCompletionAlt:
		return StageCompletionMinimal
	default:
		return StageFailed
	}
}

// degrades reports whether err in stage s moves the cascade forward
// instead of ending it. Only a 400 leaves chat; completion stages always move on.
func (s Stage) degrades(err error) bool {
	if s == StageChat {
		return IsRejected(err)
	}
	return true
}

type CascadeRequest struct {
	Model       string
	Message     string
	MaxTokens   int
	Temperature float64
}

type CascadeResult struct {
	Text       string
	Model      string
	TokensUsed int
	Stage      Stage
}

type stageFailure struct {
	stage Stage
	err   error
}

type Cascade struct {
	backend      Backend
	raw          RawPreferenceChecker
	retry        *RetryConfig
	systemPrompt string
	logger       Logger
}

func NewCascade(backend Backend, raw RawPreferenceChecker, retry *RetryConfig, systemPrompt string, logger Logger) *Cascade {
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Cascade{
		backend:      backend,
		raw:          raw,
		retry:        retry,
		systemPrompt: systemPrompt,
		logger:       logger,
	}
}

// FlattenPrompt renders persona and message as one completion prompt.
func FlattenPrompt(systemPrompt, message string) string {
	return systemPrompt + "\n\nUser: " + message + "\nAssistant:"
}

func (c *Cascade) Run(ctx context.Context, req CascadeRequest) (*CascadeResult, error) {
	stage := StageChat
	if c.raw != nil && c.raw.IsRawPreferred(req.Model) {
		c.logger.Debug("skipping chat stage for raw-preferred model", "model", req.Model)
		stage = StageCompletion
	}

	prompt := FlattenPrompt(c.systemPrompt, req.Message)
	var failures []stageFailure

	for stage != StageFailed {
		reply, err := c.attempt(ctx, stage, req, prompt)
		if err == nil {
			c.logger.Info("backend replied",
				"stage", string(stage),
				"model", reply.Model,
				"tokens", reply.TokensUsed)
			return &CascadeResult{
				Text:       reply.Text,
				Model:      reply.Model,
				TokensUsed: reply.TokensUsed,
				Stage:      stage,
			}, nil
		}

		if !stage.degrades(err) {
			return nil, NewBackendError(string(stage), req.Model, err)
		}
		if stage != StageChat {
			failures = append(failures, stageFailure{stage: stage, err: err})
		}

		next := stage.next()
		c.logger.Warn("cascade stage failed",
			"stage", string(stage),
			"next", string(next),
			"model", req.Model,
			"error", Detail(err))
		stage = next
	}

	return nil, exhausted(req.Model, failures)
}

func (c *Cascade) attempt(ctx context.Context, stage Stage, req CascadeRequest, prompt string) (*Reply, error) {
	var reply *Reply
	err := RetryWithBackoff(ctx, c.retry, string(stage), c.logger, func(ctx context.Context) error {
		var err error
		if stage == StageChat {
			reply, err = c.backend.Chat(ctx, ChatRequest{
				Model:        req.Model,
				SystemPrompt: c.systemPrompt,
				Message:      req.Message,
				MaxTokens:    req.MaxTokens,
				Temperature:  req.Temperature,
			})
		} else {
			reply, err = c.backend.Complete(ctx, stage.shape(), CompletionRequest{
				Model:       req.Model,
				Prompt:      prompt,
				MaxTokens:   req.MaxTokens,
				Temperature: req.Temperature,
			})
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// exhausted builds the terminal error. It is a rejection only when every
// completion stage was rejected; otherwise the last failure decides the type.
func exhausted(model string, failures []stageFailure) *AIError {
	parts := make([]string, 0, len(failures))
	allRejected := len(failures) > 0
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.stage, Detail(f.err)))
		if Classify(f.err) != ErrTypeRejected {
			allRejected = false
		}
	}

	aiErr := &AIError{
		Type:      ErrTypeRejected,
		Code:      400,
		Operation: "cascade",
		Model:     model,
		Message:   "all completion fallbacks failed. " + strings.Join(parts, " | "),
	}
	if len(failures) > 0 {
		last := failures[len(failures)-1].err
		aiErr.Cause = last
		if !allRejected {
			aiErr.Type = Classify(last)
			aiErr.Code = StatusCode(last)
		}
	}
	return aiErr
}
