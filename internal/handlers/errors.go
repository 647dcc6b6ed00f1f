// File: internal/handlers/errors.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/iyunix/go-lmproxy/internal/services/ai"
	chatservice "github.com/iyunix/go-lmproxy/internal/services/chat"
)

// errorResponse maps a service error onto status, message and details.
func errorResponse(err error, backendURL string) (int, string, interface{}) {
	var chatErr *chatservice.ChatError
	if errors.As(err, &chatErr) {
		switch chatErr.Type {
		case chatservice.ErrTypeValidation:
			return http.StatusBadRequest, chatErr.Message, nil
		case chatservice.ErrTypeModel:
			return http.StatusBadRequest, chatErr.Message, chatErr.Details
		case chatservice.ErrTypeNotFound:
			return http.StatusNotFound, "Chat not found", causeText(chatErr.Cause)
		case chatservice.ErrTypeStorage:
			return http.StatusInternalServerError, chatErr.Message, causeText(chatErr.Cause)
		default:
			return http.StatusInternalServerError, "Internal server error", chatErr.Message
		}
	}

	var aiErr *ai.AIError
	if errors.As(err, &aiErr) {
		switch aiErr.Type {
		case ai.ErrTypeUnavailable:
			return http.StatusServiceUnavailable,
				"LM Studio is not available. Make sure it is running at " + backendURL,
				"Connection refused to " + backendURL
		case ai.ErrTypeRejected:
			if aiErr.Operation == "cascade" {
				return http.StatusBadRequest, "The selected model rejected the chat format and every fallback failed", aiErr.Message
			}
			return http.StatusBadRequest, "Invalid request to LM Studio (400)", aiErr.Message
		case ai.ErrTypeTimeout:
			return http.StatusRequestTimeout, "Timeout: the model took too long to respond", aiErr.Message
		default:
			return http.StatusInternalServerError, "Internal server error", aiErr.Message
		}
	}

	return http.StatusInternalServerError, "Internal server error", causeText(err)
}

func causeText(err error) interface{} {
	if err == nil {
		return nil
	}
	return err.Error()
}
