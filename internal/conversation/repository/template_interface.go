package repository

import (
	convdomain "mailmatch-backend/internal/conversation/domain"
)

// TemplateRepository defines persistence operations for reply templates
type TemplateRepository interface {
	Create(template *convdomain.Template) error
	FindByID(id string) (*convdomain.Template, error)
	ListByScope(scopeID string) ([]*convdomain.Template, error)
	Delete(id string) error
}

// EmbeddingRecordRepository tracks which messages already have a stored
// vector, making embedding generation idempotent under retries.
type EmbeddingRecordRepository interface {
	// EnsureEmbedded records the message as embedded if it was not already.
	// Returns true when a record already existed.
	EnsureEmbedded(messageID string, dimension int) (bool, error)
	Delete(messageID string) error
}
