package domain

import "time"

// Attachment belongs to exactly one message. Provider attachment ids are not
// stable across re-fetches of the same thread, so attachments are never
// upserted by id: a message's whole attachment set is replaced on resync.
type Attachment struct {
	ID                   string    `json:"id" gorm:"primaryKey"`
	MessageID            string    `json:"message_id" gorm:"index;not null"`
	ProviderAttachmentID string    `json:"provider_attachment_id"`
	ContentID            string    `json:"content_id"`
	Filename             string    `json:"filename"`
	MimeType             string    `json:"mime_type"`
	SizeKB               int64     `json:"size_kb"`
	Inline               bool      `json:"inline"`
	CreatedAt            time.Time `json:"created_at"`
}

func (Attachment) TableName() string {
	return "attachments"
}
