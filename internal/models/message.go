package models

import "time"

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// MessageStatus tracks an optimistic user message through its submission.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusConfirmed MessageStatus = "confirmed"
	StatusFailed    MessageStatus = "failed"
)

// ConversationMessage is one entry of a workspace conversation. Insertion order is display order.
type ConversationMessage struct {
	ID             string         `json:"id"`
	Role           Role           `json:"role"`
	Text           string         `json:"text"`
	Files          []UploadedFile `json:"files,omitempty"`
	ConsultationID string         `json:"consultation_id,omitempty"`
	Status         MessageStatus  `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
}
