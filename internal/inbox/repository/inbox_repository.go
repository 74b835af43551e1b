package repository

import (
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"
	inboxdomain "mailmatch-backend/internal/inbox/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// inboxRepository implements InboxRepository interface
type inboxRepository struct {
	db *gorm.DB
}

// NewInboxRepository creates a new instance of inboxRepository
func NewInboxRepository(db *gorm.DB) InboxRepository {
	return &inboxRepository{
		db: db,
	}
}

func (r *inboxRepository) Create(inbox *inboxdomain.Inbox) error {
	if inbox.ID == "" {
		inbox.ID = uuid.New().String()
	}
	inbox.CreatedAt = time.Now()
	inbox.UpdatedAt = time.Now()
	return r.db.Create(inbox).Error
}

func (r *inboxRepository) FindByID(id string) (*inboxdomain.Inbox, error) {
	var inbox inboxdomain.Inbox
	err := r.db.Where("id = ?", id).First(&inbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &inbox, nil
}

func (r *inboxRepository) FindByOwnerAddress(address string) (*inboxdomain.Inbox, error) {
	var inbox inboxdomain.Inbox
	err := r.db.Where("owner_address = ?", address).First(&inbox).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &inbox, nil
}

func (r *inboxRepository) List() ([]*inboxdomain.Inbox, error) {
	var inboxes []*inboxdomain.Inbox
	err := r.db.Order("created_at ASC").Find(&inboxes).Error
	return inboxes, err
}

func (r *inboxRepository) AdvanceChangeCursor(id string, cursor uint64) error {
	// Conditional update: the WHERE clause makes the advance monotonic even
	// when two syncs finish out of order.
	return r.db.Model(&inboxdomain.Inbox{}).
		Where("id = ? AND change_cursor < ?", id, cursor).
		Updates(map[string]interface{}{
			"change_cursor": cursor,
			"updated_at":    time.Now(),
		}).Error
}

func (r *inboxRepository) UpdateCredentialRef(id, credentialRef string) error {
	return r.db.Model(&inboxdomain.Inbox{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"credential_ref": credentialRef,
			"updated_at":     time.Now(),
		}).Error
}

func (r *inboxRepository) SetPendingImports(id string, count int) error {
	return r.db.Model(&inboxdomain.Inbox{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"pending_imports": count,
			"updated_at":      time.Now(),
		}).Error
}

func (r *inboxRepository) DecrementPendingImports(id string) error {
	return r.db.Model(&inboxdomain.Inbox{}).
		Where("id = ? AND pending_imports > 0", id).
		Update("pending_imports", gorm.Expr("pending_imports - 1")).Error
}

func (r *inboxRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		topicIDs := func() *gorm.DB {
			return tx.Model(&convdomain.Topic{}).Select("id").Where("inbox_id = ?", id)
		}
		messageIDs := func() *gorm.DB {
			return tx.Model(&convdomain.Message{}).Select("id").Where("topic_id IN (?)", topicIDs())
		}

		if err := tx.Where("message_id IN (?)", messageIDs()).Delete(&convdomain.Attachment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("message_id IN (?)", messageIDs()).Delete(&convdomain.EmbeddingRecord{}).Error; err != nil {
			return err
		}
		if err := tx.Where("topic_id IN (?)", topicIDs()).Delete(&convdomain.Message{}).Error; err != nil {
			return err
		}
		if err := tx.Where("inbox_id = ?", id).Delete(&convdomain.Topic{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&inboxdomain.Inbox{}).Error
	})
}
