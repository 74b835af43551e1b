package repository

import (
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// attachmentRepository implements AttachmentRepository interface
type attachmentRepository struct {
	db *gorm.DB
}

// NewAttachmentRepository creates a new instance of attachmentRepository
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{
		db: db,
	}
}

// ReplaceForMessage deletes every attachment of the message and recreates
// the freshly extracted set, unconditionally and atomically. Diffing by
// provider id would silently duplicate or orphan rows because those ids
// change whenever the thread mutates.
func (r *attachmentRepository) ReplaceForMessage(messageID string, attachments []*convdomain.Attachment) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("message_id = ?", messageID).Delete(&convdomain.Attachment{}).Error; err != nil {
			return err
		}
		for _, att := range attachments {
			if att.ID == "" {
				att.ID = uuid.New().String()
			}
			att.MessageID = messageID
			att.CreatedAt = time.Now()
			if err := tx.Create(att).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *attachmentRepository) ListByMessage(messageID string) ([]*convdomain.Attachment, error) {
	var attachments []*convdomain.Attachment
	err := r.db.Where("message_id = ?", messageID).Order("created_at ASC").Find(&attachments).Error
	return attachments, err
}
