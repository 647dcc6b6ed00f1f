package chat

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/iyunix/go-lmproxy/internal/domain"
)

const (
	maxTitleLength  = 50
	titleCutLength  = 47
	titleEllipsis   = "..."
	defaultTitleFmt = "1/2/2006"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// newID returns a time-ordered UUIDv7, so IDs sort by creation.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// checkID rejects IDs that cannot name a record, e.g. path fragments.
func checkID(chatID string) error {
	if !validID.MatchString(chatID) {
		return errors.Wrapf(ErrChatNotFound, "invalid chat id %q", chatID)
	}
	return nil
}

func defaultTitle(now time.Time) string {
	return "Chat " + now.Local().Format(defaultTitleFmt)
}

// TitleFromMessage shortens a first user message to a chat title.
func TitleFromMessage(content string) string {
	runes := []rune(content)
	if len(runes) <= maxTitleLength {
		return content
	}
	return string(runes[:titleCutLength]) + titleEllipsis
}

func newChat(title string, now time.Time) *domain.Chat {
	if title == "" {
		title = defaultTitle(now)
	}
	return &domain.Chat{
		ID:        newID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  []domain.Message{},
	}
}

// touch bumps UpdatedAt, never moving it before CreatedAt or backwards.
func touch(c *domain.Chat, now time.Time) {
	if now.Before(c.UpdatedAt) {
		now = c.UpdatedAt
	}
	if now.Before(c.CreatedAt) {
		now = c.CreatedAt
	}
	c.UpdatedAt = now
}

// appendTo applies the append rules to c and returns the new message.
func appendTo(c *domain.Chat, content string, isUser bool, now time.Time) domain.Message {
	msg := domain.Message{
		ID:        newID(),
		Content:   content,
		IsUser:    isUser,
		Timestamp: now,
	}
	c.Messages = append(c.Messages, msg)
	touch(c, now)
	if isUser && c.UserMessageCount() == 1 {
		c.Title = TitleFromMessage(content)
	}
	return msg
}
