package domain

import "time"

// NotificationLevel classifies a user-visible message.
type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelInfo    NotificationLevel = "info"
	LevelError   NotificationLevel = "error"
)

// Notification is a user-visible message produced by a wishlist mutation.
type Notification struct {
	AccountID string            `json:"account_id"`
	Operation string            `json:"operation"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	At        time.Time         `json:"at"`
}
