package ai

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"syscall"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorType
	}{
		{"refused", &url.Error{Op: "Post", URL: "http://x", Err: syscall.ECONNREFUSED}, ErrTypeUnavailable},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), ErrTypeTimeout},
		{"408", &HTTPStatusError{StatusCode: 408}, ErrTypeTimeout},
		{"reset", &url.Error{Op: "Post", URL: "http://x", Err: syscall.ECONNRESET}, ErrTypeTransient},
		{"eof", &url.Error{Op: "Post", URL: "http://x", Err: io.EOF}, ErrTypeTransient},
		{"502 api error", &openai.APIError{HTTPStatusCode: 502, Message: "bad gateway"}, ErrTypeTransient},
		{"400 request error", &openai.RequestError{HTTPStatusCode: 400, Err: &openai.APIError{}}, ErrTypeRejected},
		{"404", &HTTPStatusError{StatusCode: 404}, ErrTypeProvider},
		{"wrapped ai error", fmt.Errorf("x: %w", &AIError{Type: ErrTypeConfig}), ErrTypeConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestIsTransient(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransient(&HTTPStatusError{StatusCode: code}), code)
	}
	for _, code := range []int{400, 401, 404, 422} {
		assert.False(t, IsTransient(&HTTPStatusError{StatusCode: code}), code)
	}
	assert.True(t, IsTransient(syscall.ECONNABORTED))
	assert.False(t, IsTransient(nil))
}

func TestDetail(t *testing.T) {
	// LM Studio reports errors as a bare string, which go-openai cannot parse.
	reqErr := &openai.RequestError{HTTPStatusCode: 400, Err: &openai.APIError{}, Body: []byte(`{"error":"Model does not support chat"}`)}
	assert.Equal(t, "Model does not support chat", Detail(reqErr))
	assert.Equal(t, 400, StatusCode(reqErr))

	assert.Equal(t, "nested", Detail(&HTTPStatusError{StatusCode: 500, Body: []byte(`{"error":{"message":"nested"}}`)}))
	assert.Equal(t, "plain text", Detail(&HTTPStatusError{StatusCode: 500, Body: []byte("plain text\n")}))
	assert.Equal(t, "quota", Detail(&openai.APIError{HTTPStatusCode: 429, Message: "quota"}))
}
