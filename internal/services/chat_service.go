// File: internal/services/chat_service.go
package services

import (
	"context"
	"strings"
	"sync"

	"github.com/iyunix/go-lmproxy/internal/domain"
	"github.com/iyunix/go-lmproxy/internal/repository/chat"
	"github.com/iyunix/go-lmproxy/internal/services/ai"
	chatservice "github.com/iyunix/go-lmproxy/internal/services/chat"
	"golang.org/x/sync/errgroup"
)

// HealthChecker is the backend pre-flight.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ModelCatalog is the model registry as seen by the chat flow.
type ModelCatalog interface {
	Refresh(ctx context.Context, force bool) []string
	Fetch(ctx context.Context) ([]string, error)
	IsAvailable(id string) bool
}

// Completer turns one user message into one assistant reply.
type Completer interface {
	Run(ctx context.Context, req ai.CascadeRequest) (*ai.CascadeResult, error)
}

type SendMessageRequest struct {
	Message     string
	Model       string
	MaxTokens   *int
	Temperature *float64
	ChatID      string
}

type SendMessageResult struct {
	Response   string
	Model      string
	TokensUsed int
	ChatID     string
	// Recovered is set when ChatID names a replacement for a vanished chat.
	Recovered bool
}

type ChatService struct {
	config   *chatservice.Config
	chatRepo chat.ChatRepository
	health   HealthChecker
	models   ModelCatalog
	cascade  Completer
	exporter *chatservice.Exporter
	logger   Logger
}

func NewChatService(
	config *chatservice.Config,
	chatRepo chat.ChatRepository,
	health HealthChecker,
	models ModelCatalog,
	cascade Completer,
	logger Logger,
) (*ChatService, error) {
	// Validate dependencies
	if chatRepo == nil {
		return nil, chatservice.NewValidationError("constructor", "chat repository is required")
	}
	if health == nil {
		return nil, chatservice.NewValidationError("constructor", "health checker is required")
	}
	if models == nil {
		return nil, chatservice.NewValidationError("constructor", "model catalog is required")
	}
	if cascade == nil {
		return nil, chatservice.NewValidationError("constructor", "completion cascade is required")
	}

	if config == nil {
		config = chatservice.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, &chatservice.ChatError{Type: chatservice.ErrTypeConfig, Operation: "config", Message: err.Error()}
	}
	if logger == nil {
		logger = &NoOpLogger{}
	}

	return &ChatService{
		config:   config,
		chatRepo: chatRepo,
		health:   health,
		models:   models,
		cascade:  cascade,
		exporter: chatservice.NewExporter(),
		logger:   logger,
	}, nil
}

// SendMessage runs one turn: pre-flight, model resolution, cascade, persistence.
// Backend calls are detached from ctx cancellation so a client hanging up
// does not abort them; each call still has its own timeout.
func (s *ChatService) SendMessage(ctx context.Context, req SendMessageRequest) (*SendMessageResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, chatservice.NewValidationError("send_message", "message is required")
	}
	backendCtx := context.WithoutCancel(ctx)

	if err := s.health.Ping(backendCtx); err != nil {
		return nil, &ai.AIError{
			Type:      ai.ErrTypeUnavailable,
			Operation: "ping",
			Message:   "backend is not reachable",
			Cause:     err,
		}
	}

	s.models.Refresh(backendCtx, false)

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.config.DefaultModel
	}
	if model == "" {
		return nil, chatservice.NewModelError("send_message", "no model given and no default model configured", nil)
	}
	if !s.models.IsAvailable(model) {
		return nil, chatservice.NewModelError("send_message", "model not available: "+model,
			map[string]interface{}{"available": s.models.Refresh(backendCtx, false)})
	}

	maxTokens := s.config.DefaultMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	temperature := s.config.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	s.logger.Info("processing message",
		"chat_id", req.ChatID,
		"model", model,
		"message_len", len(req.Message))

	res, err := s.cascade.Run(backendCtx, ai.CascadeRequest{
		Model:       model,
		Message:     req.Message,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		s.logger.Error("completion failed", "model", model, "error", err)
		return nil, err
	}

	chatID, recovered, err := s.persistTurn(backendCtx, req.ChatID, req.Message, res.Text)
	if err != nil {
		return nil, err
	}

	return &SendMessageResult{
		Response:   res.Text,
		Model:      res.Model,
		TokensUsed: res.TokensUsed,
		ChatID:     chatID,
		Recovered:  recovered,
	}, nil
}

// persistTurn stores the user message and the reply. Without a chat ID a
// new chat is started. If the chat vanished, both messages go into a fresh
// "recovered" chat whose ID replaces the stale one.
func (s *ChatService) persistTurn(ctx context.Context, chatID, message, reply string) (string, bool, error) {
	if chatID == "" {
		created, err := s.chatRepo.Create(ctx, "")
		if err != nil {
			return "", false, chatservice.NewStorageError("persist_turn", "", err)
		}
		chatID = created.ID
	}

	err := s.appendTurn(ctx, chatID, message, reply)
	if err == nil {
		s.logger.Debug("turn persisted", "chat_id", chatID)
		return chatID, false, nil
	}
	if !chat.IsNotFound(err) {
		s.logger.Error("could not persist turn", "chat_id", chatID, "error", err)
		return "", false, chatservice.NewStorageError("persist_turn", chatID, err)
	}

	s.logger.Warn("chat vanished before persisting, recreating", "chat_id", chatID)
	recovered, err := s.chatRepo.Create(ctx, s.config.RecoveredTitle)
	if err != nil {
		return "", false, chatservice.NewStorageError("recover_chat", chatID, err)
	}
	if err := s.appendTurn(ctx, recovered.ID, message, reply); err != nil {
		return "", false, chatservice.NewStorageError("recover_chat", recovered.ID, err)
	}
	s.logger.Info("chat recovered", "stale_id", chatID, "chat_id", recovered.ID)
	return recovered.ID, true, nil
}

func (s *ChatService) appendTurn(ctx context.Context, chatID, message, reply string) error {
	if _, err := s.chatRepo.AppendMessage(ctx, chatID, message, true); err != nil {
		return err
	}
	_, err := s.chatRepo.AppendMessage(ctx, chatID, reply, false)
	return err
}

func (s *ChatService) ListChats(ctx context.Context) ([]domain.ChatSummary, error) {
	summaries, err := s.chatRepo.List(ctx)
	if err != nil {
		return nil, chatservice.NewStorageError("list_chats", "", err)
	}
	return summaries, nil
}

func (s *ChatService) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	c, err := s.chatRepo.FindByID(ctx, chatID)
	if err != nil {
		return nil, s.storeError("get_chat", chatID, err)
	}
	return c, nil
}

func (s *ChatService) CreateChat(ctx context.Context, title string) (*domain.Chat, error) {
	c, err := s.chatRepo.Create(ctx, strings.TrimSpace(title))
	if err != nil {
		return nil, chatservice.NewStorageError("create_chat", "", err)
	}
	s.logger.Info("chat created", "chat_id", c.ID)
	return c, nil
}

func (s *ChatService) RenameChat(ctx context.Context, chatID, title string) (*domain.Chat, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, chatservice.NewValidationError("rename_chat", "title is required")
	}
	c, err := s.chatRepo.Rename(ctx, chatID, title)
	if err != nil {
		return nil, s.storeError("rename_chat", chatID, err)
	}
	return c, nil
}

func (s *ChatService) DeleteChat(ctx context.Context, chatID string) error {
	if err := s.chatRepo.Delete(ctx, chatID); err != nil {
		return s.storeError("delete_chat", chatID, err)
	}
	s.logger.Info("chat deleted", "chat_id", chatID)
	return nil
}

// DeleteAllChats removes every chat concurrently. Chats whose delete failed
// get one more sequential attempt; records already gone count as deleted.
func (s *ChatService) DeleteAllChats(ctx context.Context) (int, error) {
	summaries, err := s.chatRepo.List(ctx)
	if err != nil {
		return 0, chatservice.NewStorageError("delete_all_chats", "", err)
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	g := new(errgroup.Group)
	g.SetLimit(s.config.PurgeWorkers)
	for _, summary := range summaries {
		id := summary.ID
		g.Go(func() error {
			err := s.chatRepo.Delete(ctx, id)
			if err == nil || chat.IsNotFound(err) {
				return nil
			}
			mu.Lock()
			failed = append(failed, id)
			mu.Unlock()
			return err
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.Warn("bulk delete had failures, retrying sequentially",
			"failed", len(failed),
			"error", err)

		var lastErr error
		remaining := 0
		for _, id := range failed {
			if err := s.chatRepo.Delete(ctx, id); err != nil && !chat.IsNotFound(err) {
				s.logger.Error("could not delete chat", "chat_id", id, "error", err)
				lastErr = err
				remaining++
			}
		}
		if lastErr != nil {
			return len(summaries) - remaining, chatservice.NewStorageError("delete_all_chats", "", lastErr)
		}
	}

	s.logger.Info("all chats deleted", "count", len(summaries))
	return len(summaries), nil
}

// ListModels asks the backend directly and refreshes the registry on success.
func (s *ChatService) ListModels(ctx context.Context) ([]string, error) {
	return s.models.Fetch(context.WithoutCancel(ctx))
}

func (s *ChatService) BackendConnected(ctx context.Context) bool {
	return s.health.Ping(context.WithoutCancel(ctx)) == nil
}

func (s *ChatService) ExportChat(ctx context.Context, chatID string, format chatservice.ExportFormat) ([]byte, error) {
	c, err := s.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return s.exporter.Render(c, format)
}

func (s *ChatService) storeError(op, chatID string, err error) error {
	if chat.IsNotFound(err) {
		return chatservice.NewNotFoundError(op, chatID, err)
	}
	return chatservice.NewStorageError(op, chatID, err)
}
