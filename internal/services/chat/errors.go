// File: internal/services/chat/errors.go
package chat

import (
	"errors"
	"fmt"
)

type ErrorType string

const (
	ErrTypeConfig     ErrorType = "CONFIG"
	ErrTypeValidation ErrorType = "VALIDATION"
	ErrTypeModel      ErrorType = "MODEL"
	ErrTypeNotFound   ErrorType = "NOT_FOUND"
	ErrTypeStorage    ErrorType = "STORAGE"
)

type ChatError struct {
	Type      ErrorType
	Operation string
	Message   string
	ChatID    string
	// Details is echoed to API clients, e.g. the list of available models.
	Details interface{}
	Cause   error
}

func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("Chat %s error in %s: %s (caused by: %v)",
			e.Type, e.Operation, e.Message, e.Cause)
	}
	return fmt.Sprintf("Chat %s error in %s: %s", e.Type, e.Operation, e.Message)
}

func (e *ChatError) Unwrap() error {
	return e.Cause
}

func NewValidationError(operation, msg string) *ChatError {
	return &ChatError{Type: ErrTypeValidation, Operation: operation, Message: msg}
}

func NewModelError(operation, msg string, details interface{}) *ChatError {
	return &ChatError{Type: ErrTypeModel, Operation: operation, Message: msg, Details: details}
}

func NewNotFoundError(operation, chatID string, cause error) *ChatError {
	return &ChatError{
		Type:      ErrTypeNotFound,
		Operation: operation,
		Message:   "chat not found",
		ChatID:    chatID,
		Cause:     cause,
	}
}

func NewStorageError(operation, chatID string, cause error) *ChatError {
	return &ChatError{
		Type:      ErrTypeStorage,
		Operation: operation,
		Message:   fmt.Sprintf("storage failure for chat %s", chatID),
		ChatID:    chatID,
		Cause:     cause,
	}
}

// TypeOf returns the ChatError type in err's chain, or "".
func TypeOf(err error) ErrorType {
	var chatErr *ChatError
	if errors.As(err, &chatErr) {
		return chatErr.Type
	}
	return ""
}
