package repository

import (
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// embeddingRecordRepository implements EmbeddingRecordRepository interface
type embeddingRecordRepository struct {
	db *gorm.DB
}

// NewEmbeddingRecordRepository creates a new instance of embeddingRecordRepository
func NewEmbeddingRecordRepository(db *gorm.DB) EmbeddingRecordRepository {
	return &embeddingRecordRepository{
		db: db,
	}
}

// EnsureEmbedded checks and records in one query via FirstOrCreate; the
// unique index on message_id settles concurrent attempts.
func (r *embeddingRecordRepository) EnsureEmbedded(messageID string, dimension int) (bool, error) {
	var record convdomain.EmbeddingRecord

	now := time.Now()
	result := r.db.Where("message_id = ?", messageID).FirstOrCreate(&record, convdomain.EmbeddingRecord{
		ID:         uuid.New().String(),
		MessageID:  messageID,
		Dimension:  dimension,
		EmbeddedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if result.Error != nil {
		// A duplicated-key error means a concurrent worker created the
		// record between our check and create; that counts as existing.
		if result.Error == gorm.ErrDuplicatedKey {
			return true, nil
		}
		return false, result.Error
	}

	// RowsAffected == 0 means the record already existed.
	return result.RowsAffected == 0, nil
}

func (r *embeddingRecordRepository) Delete(messageID string) error {
	return r.db.Where("message_id = ?", messageID).Delete(&convdomain.EmbeddingRecord{}).Error
}
