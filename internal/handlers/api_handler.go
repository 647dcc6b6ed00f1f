// File: internal/handlers/api_handler.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/iyunix/go-lmproxy/internal/services"
	chatservice "github.com/iyunix/go-lmproxy/internal/services/chat"
)

type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
}

type APIHandler struct {
	ChatService *services.ChatService
	BackendURL  string
	logger      Logger
}

func NewAPIHandler(cs *services.ChatService, backendURL string, logger Logger) (*APIHandler, error) {
	if cs == nil {
		return nil, fmt.Errorf("chat service is required")
	}
	if logger == nil {
		logger = &services.NoOpLogger{}
	}
	return &APIHandler{ChatService: cs, BackendURL: backendURL, logger: logger}, nil
}

func (h *APIHandler) fail(rs *responder, err error) {
	status, message, details := errorResponse(err, h.BackendURL)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "path", rs.r.URL.Path, "status", status, "error", err)
	} else {
		h.logger.Warn("request rejected", "path", rs.r.URL.Path, "status", status, "error", err)
	}
	rs.Error(status, message, details)
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// Status handles GET /api/status.
func (h *APIHandler) Status(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	rs.JSON(http.StatusOK, map[string]interface{}{
		"server":             "online",
		"lmstudio_connected": h.ChatService.BackendConnected(r.Context()),
		"lmstudio_url":       h.BackendURL,
		"timestamp":          timestamp(),
	})
}

// Models handles GET /api/models.
func (h *APIHandler) Models(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	models, err := h.ChatService.ListModels(r.Context())
	if err != nil {
		h.logger.Error("could not list models", "error", err)
		rs.Error(http.StatusInternalServerError, "Could not connect to LM Studio. Is it running?", err.Error())
		return
	}
	rs.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"models":  models,
		"count":   len(models),
	})
}

type chatRequest struct {
	Message     string   `json:"message"`
	Model       string   `json:"model"`
	MaxTokens   *int     `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	ChatID      string   `json:"chatId"`
}

// Chat handles POST /api/chat.
func (h *APIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rs.Error(http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}

	res, err := h.ChatService.SendMessage(r.Context(), services.SendMessageRequest{
		Message:     req.Message,
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		ChatID:      req.ChatID,
	})
	if err != nil {
		h.fail(rs, err)
		return
	}

	rs.JSON(http.StatusOK, map[string]interface{}{
		"success":     true,
		"response":    res.Response,
		"model":       res.Model,
		"tokens_used": res.TokensUsed,
		"chatId":      res.ChatID,
		"timestamp":   timestamp(),
	})
}

// ListChats handles GET /api/chats.
func (h *APIHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	chats, err := h.ChatService.ListChats(r.Context())
	if err != nil {
		h.fail(rs, err)
		return
	}
	rs.JSON(http.StatusOK, map[string]interface{}{"success": true, "chats": chats})
}

// GetChat handles GET /api/chats/{id}.
func (h *APIHandler) GetChat(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	c, err := h.ChatService.GetChat(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.fail(rs, err)
		return
	}
	rs.JSON(http.StatusOK, map[string]interface{}{"success": true, "chat": c})
}

type titleRequest struct {
	Title string `json:"title"`
}

// decodeTitle tolerates an empty body.
func decodeTitle(r *http.Request) (string, error) {
	var req titleRequest
	if r.ContentLength == 0 {
		return "", nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", err
	}
	return req.Title, nil
}

// CreateChat handles POST /api/chats.
func (h *APIHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	title, err := decodeTitle(r)
	if err != nil {
		rs.Error(http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}
	c, err := h.ChatService.CreateChat(r.Context(), title)
	if err != nil {
		h.fail(rs, err)
		return
	}
	rs.JSON(http.StatusOK, map[string]interface{}{"success": true, "chat": c})
}

// RenameChat handles PUT /api/chats/{id}.
func (h *APIHandler) RenameChat(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	title, err := decodeTitle(r)
	if err != nil {
		rs.Error(http.StatusBadRequest, "Invalid JSON body", err.Error())
		return
	}
	c, err := h.ChatService.RenameChat(r.Context(), mux.Vars(r)["id"], title)
	if err != nil {
		h.fail(rs, err)
		return
	}
	rs.JSON(http.StatusOK, map[string]interface{}{"success": true, "chat": c})
}

// DeleteChat handles DELETE /api/chats/{id}.
func (h *APIHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	if err := h.ChatService.DeleteChat(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.fail(rs, err)
		return
	}
	rs.JSON(http.StatusOK, map[string]interface{}{"success": true, "message": "Chat deleted"})
}

// DeleteAllChats handles DELETE /api/chats.
func (h *APIHandler) DeleteAllChats(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	n, err := h.ChatService.DeleteAllChats(r.Context())
	if err != nil {
		h.fail(rs, err)
		return
	}
	rs.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("%d chats deleted", n),
	})
}

// ExportChat handles GET /api/chats/{id}/export?format=markdown|html.
func (h *APIHandler) ExportChat(w http.ResponseWriter, r *http.Request) {
	rs := newResponder(w, r, h.logger)
	format, err := chatservice.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.fail(rs, err)
		return
	}
	body, err := h.ChatService.ExportChat(r.Context(), mux.Vars(r)["id"], format)
	if err != nil {
		h.fail(rs, err)
		return
	}
	rs.Raw(http.StatusOK, format.ContentType(), body)
}
