// File: internal/repository/chat/chat_repository.go

package chat

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/iyunix/go-lmproxy/internal/domain"
)

// chatRecord and messageRecord are the SQL shapes of domain.Chat and domain.Message.
type chatRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Title     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `gorm:"autoUpdateTime:false;index"`
}

func (chatRecord) TableName() string { return "chats" }

type messageRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	ChatID    string    `gorm:"not null;size:64;index:idx_chat_seq,priority:1"`
	Seq       int       `gorm:"not null;index:idx_chat_seq,priority:2"`
	Content   string    `gorm:"not null"`
	IsUser    bool      `gorm:"not null"`
	Timestamp time.Time `gorm:"not null"`
}

func (messageRecord) TableName() string { return "messages" }

type gormChatRepository struct {
	db     *gorm.DB
	now    func() time.Time
	logger Logger
}

// NewChatRepository returns a ChatRepository backed by gorm. It migrates its
// own tables.
func NewChatRepository(db *gorm.DB, logger Logger) (ChatRepository, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if err := db.AutoMigrate(&chatRecord{}, &messageRecord{}); err != nil {
		return nil, newStorageError("migrate", "", err)
	}
	return &gormChatRepository{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}, nil
}

// List - one aggregate query for the counts instead of loading transcripts
func (r *gormChatRepository) List(ctx context.Context) ([]domain.ChatSummary, error) {
	type row struct {
		chatRecord
		MessageCount int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Table("chats").
		Select("chats.*, (SELECT COUNT(*) FROM messages WHERE messages.chat_id = chats.id) AS message_count").
		Order("updated_at DESC, id DESC").
		Scan(&rows).Error
	if err != nil {
		r.logger.Error("database error listing chats", "error", err)
		return nil, newStorageError("list", "", err)
	}

	summaries := make([]domain.ChatSummary, 0, len(rows))
	for _, rw := range rows {
		summaries = append(summaries, domain.ChatSummary{
			ID:           rw.ID,
			Title:        rw.Title,
			CreatedAt:    rw.CreatedAt,
			UpdatedAt:    rw.UpdatedAt,
			MessageCount: rw.MessageCount,
		})
	}
	// SQLite compares timestamps as text; re-sort on the parsed values.
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (r *gormChatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	if err := checkID(chatID); err != nil {
		return nil, err
	}
	return r.load(r.db.WithContext(ctx), chatID)
}

func (r *gormChatRepository) Create(ctx context.Context, title string) (*domain.Chat, error) {
	chat := newChat(title, r.now())
	rec := chatRecord{ID: chat.ID, Title: chat.Title, CreatedAt: chat.CreatedAt, UpdatedAt: chat.UpdatedAt}
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		r.logger.Error("database error during chat creation", "error", err)
		return nil, newStorageError("create", chat.ID, err)
	}
	r.logger.Debug("chat created", "chat_id", chat.ID)
	return chat, nil
}

func (r *gormChatRepository) AppendMessage(ctx context.Context, chatID, content string, isUser bool) (*domain.Chat, error) {
	if err := checkID(chatID); err != nil {
		return nil, err
	}
	var result *domain.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat, err := r.load(tx, chatID)
		if err != nil {
			return err
		}
		msg := appendTo(chat, content, isUser, r.now())
		rec := messageRecord{
			ID:        msg.ID,
			ChatID:    chatID,
			Seq:       len(chat.Messages) - 1,
			Content:   msg.Content,
			IsUser:    msg.IsUser,
			Timestamp: msg.Timestamp,
		}
		if err := tx.Create(&rec).Error; err != nil {
			return newStorageError("append", chatID, err)
		}
		if err := r.saveHeader(tx, chat); err != nil {
			return err
		}
		result = chat
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *gormChatRepository) Rename(ctx context.Context, chatID, title string) (*domain.Chat, error) {
	if err := checkID(chatID); err != nil {
		return nil, err
	}
	var result *domain.Chat
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		chat, err := r.load(tx, chatID)
		if err != nil {
			return err
		}
		chat.Title = title
		touch(chat, r.now())
		if err := r.saveHeader(tx, chat); err != nil {
			return err
		}
		result = chat
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *gormChatRepository) Delete(ctx context.Context, chatID string) error {
	if err := checkID(chatID); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&messageRecord{}).Error; err != nil {
			return newStorageError("delete", chatID, err)
		}
		result := tx.Where("id = ?", chatID).Delete(&chatRecord{})
		if result.Error != nil {
			r.logger.Error("database error deleting chat", "chat_id", chatID, "error", result.Error)
			return newStorageError("delete", chatID, result.Error)
		}
		if result.RowsAffected == 0 {
			return newStorageError("delete", chatID, ErrChatNotFound)
		}
		r.logger.Debug("chat deleted", "chat_id", chatID)
		return nil
	})
}

func (r *gormChatRepository) load(db *gorm.DB, chatID string) (*domain.Chat, error) {
	var rec chatRecord
	if err := db.First(&rec, "id = ?", chatID).Error; err != nil {
		return nil, r.handleFindError(err, chatID)
	}
	var msgs []messageRecord
	if err := db.Where("chat_id = ?", chatID).Order("seq ASC").Find(&msgs).Error; err != nil {
		return nil, newStorageError("read", chatID, err)
	}

	chat := &domain.Chat{
		ID:        rec.ID,
		Title:     rec.Title,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
		Messages:  make([]domain.Message, 0, len(msgs)),
	}
	for _, m := range msgs {
		chat.Messages = append(chat.Messages, domain.Message{
			ID:        m.ID,
			Content:   m.Content,
			IsUser:    m.IsUser,
			Timestamp: m.Timestamp,
		})
	}
	return chat, nil
}

func (r *gormChatRepository) saveHeader(tx *gorm.DB, chat *domain.Chat) error {
	err := tx.Model(&chatRecord{}).
		Where("id = ?", chat.ID).
		Updates(map[string]interface{}{"title": chat.Title, "updated_at": chat.UpdatedAt}).Error
	if err != nil {
		return newStorageError("update", chat.ID, err)
	}
	return nil
}

// handleFindError maps gorm's not-found onto the repository sentinel.
func (r *gormChatRepository) handleFindError(err error, chatID string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(ErrChatNotFound, "chat %s", chatID)
	}
	r.logger.Error("database error loading chat", "chat_id", chatID, "error", err)
	return newStorageError("read", chatID, err)
}
