// File: internal/services/ai/errors.go
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	openai "github.com/sashabaranov/go-openai"
)

type ErrorType string

const (
	ErrTypeConfig      ErrorType = "CONFIG"
	ErrTypeUnavailable ErrorType = "UNAVAILABLE"
	ErrTypeRejected    ErrorType = "REJECTED"
	ErrTypeTransient   ErrorType = "TRANSIENT"
	ErrTypeTimeout     ErrorType = "TIMEOUT"
	ErrTypeProvider    ErrorType = "PROVIDER"
)

type AIError struct {
	Type      ErrorType
	Code      int
	Message   string
	Model     string
	Operation string
	Cause     error
}

func (e *AIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("AI %s error in %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("AI %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *AIError) Unwrap() error {
	return e.Cause
}

func NewConfigError(msg string) *AIError {
	return &AIError{Type: ErrTypeConfig, Message: msg, Operation: "config"}
}

func NewProviderError(operation, msg string, cause error) *AIError {
	return &AIError{Type: ErrTypeProvider, Operation: operation, Message: msg, Cause: cause}
}

// NewBackendError classifies cause and wraps it.
func NewBackendError(operation, model string, cause error) *AIError {
	return &AIError{
		Type:      Classify(cause),
		Code:      StatusCode(cause),
		Operation: operation,
		Model:     model,
		Message:   Detail(cause),
		Cause:     cause,
	}
}

// HTTPStatusError is a non-2xx reply on the raw JSON path.
type HTTPStatusError struct {
	StatusCode int
	Body       []byte
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, strings.TrimSpace(string(e.Body)))
}

// StatusCode extracts the backend HTTP status from err, or 0 when the
// request never got a reply.
func StatusCode(err error) int {
	// RequestError first: it may wrap an empty APIError.
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	var aiErr *AIError
	if errors.As(err, &aiErr) && aiErr.Code != 0 {
		return aiErr.Code
	}
	return 0
}

var transientStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// IsTransient reports whether a retry of the same request may succeed:
// connection reset or aborted, timeout, or one of 408/429/500/502/503/504.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if transientStatus[StatusCode(err)] {
		return true
	}
	if isTimeout(err) {
		return true
	}
	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF)
}

// IsRejected reports a 400: the backend refused this request shape.
func IsRejected(err error) bool {
	return StatusCode(err) == 400
}

func IsConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Classify maps err onto the error taxonomy. An AIError keeps its own type.
func Classify(err error) ErrorType {
	var aiErr *AIError
	if errors.As(err, &aiErr) {
		return aiErr.Type
	}
	switch {
	case IsConnectionRefused(err):
		return ErrTypeUnavailable
	case isTimeout(err) || StatusCode(err) == 408:
		return ErrTypeTimeout
	case IsTransient(err):
		return ErrTypeTransient
	case IsRejected(err):
		return ErrTypeRejected
	default:
		return ErrTypeProvider
	}
}

// Detail returns the backend's own error text when there is one.
func Detail(err error) string {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if msg := bodyMessage(reqErr.Body); msg != "" {
			return msg
		}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		if msg := bodyMessage(statusErr.Body); msg != "" {
			return msg
		}
	}
	var aiErr *AIError
	if errors.As(err, &aiErr) && aiErr.Message != "" {
		return aiErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// bodyMessage understands {"error":"..."} and {"error":{"message":"..."}}.
func bodyMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Error) > 0 {
		var text string
		if json.Unmarshal(envelope.Error, &text) == nil && text != "" {
			return text
		}
		var obj struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(envelope.Error, &obj) == nil && obj.Message != "" {
			return obj.Message
		}
	}
	return strings.TrimSpace(string(body))
}
