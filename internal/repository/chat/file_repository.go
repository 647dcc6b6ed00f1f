// File: internal/repository/chat/file_repository.go
package chat

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/iyunix/go-lmproxy/internal/domain"
)

const chatFileExt = ".json"

// fileChatRepository keeps one JSON document per chat in a directory.
// Every call is a read-modify-write of a single file; writes to the same
// chat are serialized inside this process only.
type fileChatRepository struct {
	dir    string
	locks  sync.Map // chat ID -> *sync.Mutex
	now    func() time.Time
	logger Logger
}

// NewFileChatRepository stores chats under dir, creating it on first use.
func NewFileChatRepository(dir string, logger Logger) ChatRepository {
	if logger == nil {
		logger = noopLogger{}
	}
	return &fileChatRepository{
		dir:    dir,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func (r *fileChatRepository) ensureDir() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return newStorageError("ensure_dir", "", errors.Wrap(err, "creating chats directory"))
	}
	return nil
}

func (r *fileChatRepository) path(chatID string) string {
	return filepath.Join(r.dir, chatID+chatFileExt)
}

func (r *fileChatRepository) lock(chatID string) func() {
	v, _ := r.locks.LoadOrStore(chatID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (r *fileChatRepository) List(ctx context.Context) ([]domain.ChatSummary, error) {
	if err := r.ensureDir(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, newStorageError("list", "", errors.Wrap(err, "reading chats directory"))
	}

	summaries := make([]domain.ChatSummary, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, chatFileExt) {
			continue
		}
		chat, err := r.read(strings.TrimSuffix(name, chatFileExt))
		if err != nil {
			r.logger.Warn("skipping unreadable chat record", "file", name, "error", err)
			continue
		}
		summaries = append(summaries, chat.Summary())
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

func (r *fileChatRepository) FindByID(ctx context.Context, chatID string) (*domain.Chat, error) {
	if err := checkID(chatID); err != nil {
		return nil, err
	}
	if err := r.ensureDir(); err != nil {
		return nil, err
	}
	return r.read(chatID)
}

func (r *fileChatRepository) Create(ctx context.Context, title string) (*domain.Chat, error) {
	if err := r.ensureDir(); err != nil {
		return nil, err
	}
	chat := newChat(title, r.now())
	if err := r.write(chat); err != nil {
		return nil, err
	}
	r.logger.Debug("chat created", "chat_id", chat.ID)
	return chat, nil
}

func (r *fileChatRepository) AppendMessage(ctx context.Context, chatID, content string, isUser bool) (*domain.Chat, error) {
	return r.update(chatID, func(chat *domain.Chat) {
		appendTo(chat, content, isUser, r.now())
	})
}

func (r *fileChatRepository) Rename(ctx context.Context, chatID, title string) (*domain.Chat, error) {
	return r.update(chatID, func(chat *domain.Chat) {
		chat.Title = title
		touch(chat, r.now())
	})
}

func (r *fileChatRepository) Delete(ctx context.Context, chatID string) error {
	if err := checkID(chatID); err != nil {
		return err
	}
	if err := r.ensureDir(); err != nil {
		return err
	}
	unlock := r.lock(chatID)
	defer unlock()

	if err := os.Remove(r.path(chatID)); err != nil {
		return newStorageError("delete", chatID, err)
	}
	r.locks.Delete(chatID)
	r.logger.Debug("chat deleted", "chat_id", chatID)
	return nil
}

func (r *fileChatRepository) update(chatID string, mutate func(*domain.Chat)) (*domain.Chat, error) {
	if err := checkID(chatID); err != nil {
		return nil, err
	}
	if err := r.ensureDir(); err != nil {
		return nil, err
	}
	unlock := r.lock(chatID)
	defer unlock()

	chat, err := r.read(chatID)
	if err != nil {
		return nil, err
	}
	mutate(chat)
	if err := r.write(chat); err != nil {
		return nil, err
	}
	return chat, nil
}

func (r *fileChatRepository) read(chatID string) (*domain.Chat, error) {
	bytes, err := os.ReadFile(r.path(chatID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrChatNotFound, "chat %s", chatID)
		}
		return nil, newStorageError("read", chatID, errors.Wrap(err, "reading chat file"))
	}
	chat := &domain.Chat{}
	if err := json.Unmarshal(bytes, chat); err != nil {
		return nil, newStorageError("read", chatID, errors.Wrap(err, "unmarshaling chat"))
	}
	if chat.Messages == nil {
		chat.Messages = []domain.Message{}
	}
	return chat, nil
}

// write replaces the record atomically via a temp file and rename.
func (r *fileChatRepository) write(chat *domain.Chat) error {
	bytes, err := json.MarshalIndent(chat, "", "  ")
	if err != nil {
		return newStorageError("write", chat.ID, errors.Wrap(err, "marshaling chat to JSON"))
	}

	tmp, err := os.CreateTemp(r.dir, "."+chat.ID+"-*.tmp")
	if err != nil {
		return newStorageError("write", chat.ID, errors.Wrap(err, "creating temp file"))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(bytes); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return newStorageError("write", chat.ID, errors.Wrap(err, "writing chat to file"))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return newStorageError("write", chat.ID, errors.Wrap(err, "closing chat file"))
	}
	if err := os.Rename(tmpName, r.path(chat.ID)); err != nil {
		os.Remove(tmpName)
		return newStorageError("write", chat.ID, errors.Wrap(err, "replacing chat file"))
	}
	return nil
}
