package chat

import (
	"fmt"
	"io/fs"

	"github.com/pkg/errors"
)

var ErrChatNotFound = errors.New("chat not found")

// StorageError carries the failing chat ID and the underlying I/O cause.
type StorageError struct {
	Op     string
	ChatID string
	Err    error
}

func (e *StorageError) Error() string {
	if e.ChatID == "" {
		return fmt.Sprintf("storage error in %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage error in %s for chat %s: %v", e.Op, e.ChatID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func newStorageError(op, chatID string, err error) *StorageError {
	return &StorageError{Op: op, ChatID: chatID, Err: err}
}

// IsNotFound reports whether err means the chat record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrChatNotFound) || errors.Is(err, fs.ErrNotExist)
}
