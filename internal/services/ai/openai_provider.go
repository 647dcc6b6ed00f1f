// File: internal/services/ai/openai_provider.go
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// EmptyReply stands in for a reply with no text.
const EmptyReply = "(empty response)"

// OpenAIProvider talks to an OpenAI-compatible server such as LM Studio.
// Chat, model listing and the structured completion go through go-openai;
// the alternate and minimal completion shapes are posted as raw JSON since
// their field names are outside the OpenAI schema.
type OpenAIProvider struct {
	config *Config
	client *openai.Client
	http   *http.Client
	logger Logger
}

func NewOpenAIProvider(config *Config, httpClient *http.Client, logger Logger) *OpenAIProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = noopLogger{}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	clientConfig.BaseURL = config.BaseURL + "/v1"
	clientConfig.HTTPClient = httpClient

	return &OpenAIProvider{
		config: config,
		client: openai.NewClientWithConfig(clientConfig),
		http:   httpClient,
		logger: logger,
	}
}

func (p *OpenAIProvider) ListModels(ctx context.Context) ([]string, error) {
	list, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, NewBackendError("models", "", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// Ping lists models under the health timeout.
func (p *OpenAIProvider) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.healthTimeout())
	defer cancel()

	if _, err := p.client.ListModels(ctx); err != nil {
		return NewBackendError("ping", "", err)
	}
	return nil
}

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*Reply, error) {
	request := openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.Message},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: wireTemperature(req.Temperature),
	}
	if p.config.Verbose {
		p.logger.Debug("chat payload",
			"model", request.Model,
			"messages", len(request.Messages),
			"max_tokens", request.MaxTokens,
			"temperature", request.Temperature)
	}

	resp, err := p.client.CreateChatCompletion(ctx, request)
	if isLocalRejection(err) {
		// Refused by go-openai before sending; degrade like a backend 400.
		return nil, &AIError{Type: ErrTypeRejected, Code: 400, Operation: "chat", Model: req.Model, Message: err.Error(), Cause: err}
	}
	if err != nil {
		return nil, err
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	return newReply(text, resp.Model, req.Model, resp.Usage.TotalTokens, resp.Usage.CompletionTokens), nil
}

func (p *OpenAIProvider) Complete(ctx context.Context, shape Shape, req CompletionRequest) (*Reply, error) {
	switch shape {
	case ShapeStructured:
		return p.completeStructured(ctx, req)
	case ShapeAlternate:
		return p.postCompletion(ctx, req.Model, map[string]interface{}{
			"model":          req.Model,
			"input":          req.Prompt,
			"max_new_tokens": req.MaxTokens,
			"temperature":    req.Temperature,
		})
	case ShapeMinimal:
		return p.postCompletion(ctx, req.Model, map[string]interface{}{
			"model":  req.Model,
			"prompt": req.Prompt,
		})
	default:
		return nil, NewConfigError(fmt.Sprintf("unknown completion shape %s", shape))
	}
}

func (p *OpenAIProvider) completeStructured(ctx context.Context, req CompletionRequest) (*Reply, error) {
	request := openai.CompletionRequest{
		Model:       req.Model,
		Prompt:      req.Prompt,
		MaxTokens:   req.MaxTokens,
		Temperature: wireTemperature(req.Temperature),
	}
	if p.config.Verbose {
		p.logger.Debug("completion payload",
			"model", request.Model,
			"prompt_len", len(req.Prompt),
			"max_tokens", request.MaxTokens,
			"temperature", request.Temperature)
	}

	resp, err := p.client.CreateCompletion(ctx, request)
	if errors.Is(err, openai.ErrCompletionUnsupportedModel) {
		// go-openai refuses some hosted model names locally; a local server may still serve them.
		return p.postCompletion(ctx, req.Model, map[string]interface{}{
			"model":       req.Model,
			"prompt":      req.Prompt,
			"max_tokens":  req.MaxTokens,
			"temperature": req.Temperature,
		})
	}
	if err != nil {
		return nil, err
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Text
	}
	total, completion := 0, 0
	if resp.Usage != nil {
		total, completion = resp.Usage.TotalTokens, resp.Usage.CompletionTokens
	}
	return newReply(text, resp.Model, req.Model, total, completion), nil
}

// completionResponse accepts both plain-text and message-shaped choices.
type completionResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Text    string `json:"text"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		TotalTokens      int `json:"total_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (p *OpenAIProvider) postCompletion(ctx context.Context, model string, payload map[string]interface{}) (*Reply, error) {
	if p.config.Verbose {
		keys := make([]string, 0, len(payload))
		for k := range payload {
			keys = append(keys, k)
		}
		p.logger.Debug("raw completion payload", "model", model, "fields", strings.Join(keys, ","))
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewProviderError("completion", "invalid payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return nil, NewProviderError("completion", "failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{StatusCode: resp.StatusCode, Body: respBody}
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, NewProviderError("completion", "failed to decode response", err)
	}

	text := ""
	if len(parsed.Choices) > 0 {
		text = parsed.Choices[0].Text
		if text == "" {
			text = parsed.Choices[0].Message.Content
		}
	}
	total, completion := 0, 0
	if parsed.Usage != nil {
		total, completion = parsed.Usage.TotalTokens, parsed.Usage.CompletionTokens
	}
	return newReply(text, parsed.Model, model, total, completion), nil
}

// Warmup sends one tiny completion so the server loads the model.
func (p *OpenAIProvider) Warmup(ctx context.Context, model string) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	_, err := p.Complete(ctx, ShapeStructured, CompletionRequest{Model: model, Prompt: "Hello", MaxTokens: 5})
	if err != nil {
		return NewBackendError("warmup", model, err)
	}
	return nil
}

// wireTemperature keeps a requested 0 on the wire. go-openai omits a zero
// float32, which would leave the backend at its own default.
func wireTemperature(t float64) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func isLocalRejection(err error) bool {
	return errors.Is(err, openai.ErrChatCompletionInvalidModel) ||
		errors.Is(err, openai.ErrReasoningModelMaxTokensDeprecated) ||
		errors.Is(err, openai.ErrReasoningModelLimitationsLogprobs) ||
		errors.Is(err, openai.ErrReasoningModelLimitationsOther)
}

func newReply(text, reportedModel, requestedModel string, totalTokens, completionTokens int) *Reply {
	if text == "" {
		text = EmptyReply
	}
	model := reportedModel
	if model == "" {
		model = requestedModel
	}
	tokens := totalTokens
	if tokens == 0 {
		tokens = completionTokens
	}
	return &Reply{Text: text, Model: model, TokensUsed: tokens}
}
