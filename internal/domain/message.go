// File: internal/domain/message.go
package domain

import "time"

// Message represents a single message within a chat.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	IsUser    bool      `json:"isUser"` // false means assistant
	Timestamp time.Time `json:"timestamp"`
}
