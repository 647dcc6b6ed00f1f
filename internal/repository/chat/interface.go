// File: internal/repository/chat/interface.go
package chat

import (
	"context"

	"github.com/iyunix/go-lmproxy/internal/domain"
)

// ChatRepository is the durable mapping from chat ID to transcript.
type ChatRepository interface {
	// List returns summaries sorted by UpdatedAt, newest first. Unreadable
	// records are logged and skipped.
	List(ctx context.Context) ([]domain.ChatSummary, error)
	// FindByID returns ErrChatNotFound when no record matches.
	FindByID(ctx context.Context, chatID string) (*domain.Chat, error)
	// Create allocates a new empty chat. An empty title becomes a date title.
	Create(ctx context.Context, title string) (*domain.Chat, error)
	// AppendMessage returns ErrChatNotFound when the chat does not exist.
	// Recovery is the caller's job.
	AppendMessage(ctx context.Context, chatID, content string, isUser bool) (*domain.Chat, error)
	Rename(ctx context.Context, chatID, title string) (*domain.Chat, error)
	Delete(ctx context.Context, chatID string) error
}

// Logger defines the logging interface used by the repositories.
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
