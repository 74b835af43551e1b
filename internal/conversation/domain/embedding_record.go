package domain

import "time"

// EmbeddingRecord tracks which messages already have a vector stored in the
// embedding index. Embeddings are produced once, lazily, after a message is
// durably stored with a body; the unique index on message_id makes retries
// idempotent.
type EmbeddingRecord struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	MessageID  string    `json:"message_id" gorm:"uniqueIndex;not null"`
	Dimension  int       `json:"dimension"`
	EmbeddedAt time.Time `json:"embedded_at"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (EmbeddingRecord) TableName() string {
	return "embedding_records"
}
