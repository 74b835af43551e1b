package repository

import (
	convdomain "mailmatch-backend/internal/conversation/domain"
)

// MessageRepository defines persistence operations for messages
type MessageRepository interface {
	// FindByNaturalKey locates a message by its (topic, provider message id)
	// natural key; returns nil without error when absent.
	FindByNaturalKey(topicID, providerMessageID string) (*convdomain.Message, error)
	FindByID(id string) (*convdomain.Message, error)
	Create(message *convdomain.Message) error
	UpdateFields(id string, fields map[string]interface{}) error
	ListByTopic(topicID string) ([]*convdomain.Message, error)
	CountByTopic(topicID string) (int64, error)
}

// AttachmentRepository defines persistence operations for attachments.
// There is deliberately no per-attachment upsert: provider attachment ids
// rotate on every re-fetch, so the only safe write is wholesale replacement.
type AttachmentRepository interface {
	ReplaceForMessage(messageID string, attachments []*convdomain.Attachment) error
	ListByMessage(messageID string) ([]*convdomain.Attachment, error)
}
