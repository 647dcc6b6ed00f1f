package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rawModels map[string]bool

func (r rawModels) IsRawPreferred(model string) bool { return r[model] }

func newTestCascade(t *testing.T, raw RawPreferenceChecker, maxRetries int) (*Cascade, *fakeLMStudio, *sleepRecorder) {
	t.Helper()
	fake, srv := newFakeLMStudio(t, "local-model")
	cfg := testConfig(srv.URL)
	sleeps := &sleepRecorder{}
	provider := NewOpenAIProvider(cfg, srv.Client(), nil)
	return NewCascade(provider, raw, sleeps.retryConfig(maxRetries), cfg.SystemPrompt, nil), fake, sleeps
}

func request(message string) CascadeRequest {
	return CascadeRequest{Model: "local-model", Message: message, MaxTokens: 64, Temperature: 0.7}
}

func TestCascade_ChatSucceeds(t *testing.T) {
	cascade, fake, _ := newTestCascade(t, nil, 1)
	fake.on(StageChat, http.StatusOK, chatBody("Hi there"))

	res, err := cascade.Run(context.Background(), request("Hello"))
	require.NoError(t, err)
	assert.Equal(t, "Hi there", res.Text)
	assert.Equal(t, 15, res.TokensUsed)
	assert.Equal(t, "local-model", res.Model)
	assert.Equal(t, StageChat, res.Stage)

	requireStages(t, fake, StageChat)
	body := fake.call(0).Body
	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "Hello", messages[1].(map[string]interface{})["content"])
}

func TestCascade_RawPreferredSkipsChat(t *testing.T) {
	cascade, fake, _ := newTestCascade(t, rawModels{"local-model": true}, 1)
	fake.on(StageCompletion, http.StatusOK, textBody("raw reply"))

	res, err := cascade.Run(context.Background(), request("Hello"))
	require.NoError(t, err)
	assert.Equal(t, "raw reply", res.Text)
	assert.Equal(t, 7, res.TokensUsed, "completion_tokens is used when total_tokens is absent")
	assert.Equal(t, StageCompletion, res.Stage)

	requireStages(t, fake, StageCompletion)
	body := fake.call(0).Body
	assert.Equal(t, "/v1/completions", fake.call(0).Path)
	assert.Equal(t, FlattenPrompt("You are a test assistant.", "Hello"), body["prompt"])
	assert.EqualValues(t, 64, body["max_tokens"])
}

func TestCascade_SingleFallbackOnChatRejection(t *testing.T) {
	cascade, fake, _ := newTestCascade(t, nil, 1)
	fake.on(StageChat, http.StatusBadRequest, `{"error":"chat template not supported"}`)
	fake.on(StageCompletion, http.StatusOK, textBody("fallback reply"))

	res, err := cascade.Run(context.Background(), request("Hello"))
	require.NoError(t, err)
	assert.Equal(t, "fallback reply", res.Text)
	assert.Equal(t, StageCompletion, res.Stage)
	requireStages(t, fake, StageChat, StageCompletion)
}

func TestCascade_AlternateAndMinimalShapes(t *testing.T) {
	cascade, fake, _ := newTestCascade(t, rawModels{"local-model": true}, 0)
	fake.on(StageCompletion, http.StatusUnprocessableEntity, `{"error":"unknown field"}`)
	fake.on(StageCompletionAlt, http.StatusUnprocessableEntity, `{"error":"unknown field input"}`)
	fake.on(StageCompletionMinimal, http.StatusOK, chatBody("minimal reply"))

	res, err := cascade.Run(context.Background(), request("Hello"))
	require.NoError(t, err)
	assert.Equal(t, "minimal reply", res.Text, "message content is read when text is empty")
	assert.Equal(t, StageCompletionMinimal, res.Stage)
	requireStages(t, fake, StageCompletion, StageCompletionAlt, StageCompletionMinimal)

	alt := fake.call(1).Body
	assert.Contains(t, alt, "input")
	assert.EqualValues(t, 64, alt["max_new_tokens"])
	assert.NotContains(t, alt, "prompt")

	minimal := fake.call(2).Body
	assert.Len(t, minimal, 2)
	assert.Contains(t, minimal, "model")
	assert.Contains(t, minimal, "prompt")
}

func TestCascade_AllShapesRejected(t *testing.T) {
	cascade, fake, _ := newTestCascade(t, nil, 1)
	fake.on(StageChat, http.StatusBadRequest, `{"error":"no chat"}`)
	fake.on(StageCompletion, http.StatusBadRequest, `{"error":"bad prompt field"}`)
	fake.on(StageCompletionAlt, http.StatusBadRequest, `{"error":"bad input field"}`)
	fake.on(StageCompletionMinimal, http.StatusBadRequest, `{"error":{"message":"still no"}}`)

	_, err := cascade.Run(context.Background(), request("Hello"))
	require.Error(t, err)

	var aiErr *AIError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, ErrTypeRejected, aiErr.Type)
	assert.Equal(t, 400, aiErr.Code)
	assert.Contains(t, aiErr.Message, "bad prompt field")
	assert.Contains(t, aiErr.Message, "bad input field")
	assert.Contains(t, aiErr.Message, "still no")
	requireStages(t, fake, StageChat, StageCompletion, StageCompletionAlt, StageCompletionMinimal)
}

func TestCascade_TerminalFailureKeepsLastClassification(t *testing.T) {
	cascade, fake, _ := newTestCascade(t, rawModels{"local-model": true}, 0)
	fake.on(StageCompletion, http.StatusBadRequest, `{"error":"bad prompt field"}`)
	fake.on(StageCompletionAlt, http.StatusBadRequest, `{"error":"bad input field"}`)
	fake.on(StageCompletionMinimal, http.StatusServiceUnavailable, `{"error":"model loading"}`)

	_, err := cascade.Run(context.Background(), request("Hello"))
	var aiErr *AIError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, ErrTypeTransient, aiErr.Type)
	assert.Equal(t, 503, aiErr.Code)
	assert.Contains(t, aiErr.Message, "model loading")
}

func TestCascade_TransientChatErrorsAreRetriedWithBackoff(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusTooManyRequests} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			cascade, fake, sleeps := newTestCascade(t, nil, 2)
			fake.on(StageChat, status, `{"error":"busy"}`)

			_, err := cascade.Run(context.Background(), request("Hello"))
			require.Error(t, err)

			requireStages(t, fake, StageChat, StageChat, StageChat)
			assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, sleeps.delays)

			var aiErr *AIError
			require.True(t, errors.As(err, &aiErr))
			assert.Equal(t, ErrTypeTransient, aiErr.Type)
			assert.Equal(t, status, aiErr.Code)
		})
	}
}

func TestCascade_TransientThenSuccess(t *testing.T) {
	cascade, fake, sleeps := newTestCascade(t, nil, 1)
	fake.on(StageChat, http.StatusServiceUnavailable, `{"error":"loading"}`)
	fake.on(StageChat, http.StatusOK, chatBody("ready"))

	res, err := cascade.Run(context.Background(), request("Hello"))
	require.NoError(t, err)
	assert.Equal(t, "ready", res.Text)
	assert.Len(t, sleeps.delays, 1)
}

func TestCascade_NotFoundIsNeitherRetriedNorDegraded(t *testing.T) {
	cascade, fake, sleeps := newTestCascade(t, nil, 3)
	fake.on(StageChat, http.StatusNotFound, `{"error":"model not loaded"}`)

	_, err := cascade.Run(context.Background(), request("Hello"))
	require.Error(t, err)
	requireStages(t, fake, StageChat)
	assert.Empty(t, sleeps.delays)

	var aiErr *AIError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, ErrTypeProvider, aiErr.Type)
	assert.Equal(t, 404, aiErr.Code)
	assert.Equal(t, "model not loaded", aiErr.Message)
}

func TestCascade_EmptyReplyGetsPlaceholder(t *testing.T) {
	cascade, fake, _ := newTestCascade(t, nil, 0)
	fake.on(StageChat, http.StatusOK, chatBody(""))

	res, err := cascade.Run(context.Background(), request("Hello"))
	require.NoError(t, err)
	assert.Equal(t, EmptyReply, res.Text)
}

func TestCascade_ConnectionRefusedIsUnavailable(t *testing.T) {
	_, srv := newFakeLMStudio(t)
	cfg := testConfig(srv.URL)
	srv.Close()

	sleeps := &sleepRecorder{}
	cascade := NewCascade(NewOpenAIProvider(cfg, nil, nil), nil, sleeps.retryConfig(1), cfg.SystemPrompt, nil)

	_, err := cascade.Run(context.Background(), request("Hello"))
	var aiErr *AIError
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, ErrTypeUnavailable, aiErr.Type)
	assert.Equal(t, string(StageChat), aiErr.Operation)
	assert.Empty(t, sleeps.delays)
}
