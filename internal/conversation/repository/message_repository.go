package repository

import (
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// messageRepository implements MessageRepository interface
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a new instance of messageRepository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

func (r *messageRepository) FindByNaturalKey(topicID, providerMessageID string) (*convdomain.Message, error) {
	var message convdomain.Message
	err := r.db.Where("topic_id = ? AND provider_message_id = ?", topicID, providerMessageID).First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) FindByID(id string) (*convdomain.Message, error) {
	var message convdomain.Message
	err := r.db.Where("id = ?", id).First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

func (r *messageRepository) Create(message *convdomain.Message) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	if message.Labels == nil {
		message.Labels = convdomain.StringArray{}
	}
	message.CreatedAt = time.Now()
	message.UpdatedAt = time.Now()
	return r.db.Create(message).Error
}

func (r *messageRepository) UpdateFields(id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now()
	return r.db.Model(&convdomain.Message{}).Where("id = ?", id).Updates(fields).Error
}

func (r *messageRepository) ListByTopic(topicID string) ([]*convdomain.Message, error) {
	var messages []*convdomain.Message
	err := r.db.Where("topic_id = ?", topicID).Order("internal_date ASC").Find(&messages).Error
	return messages, err
}

func (r *messageRepository) CountByTopic(topicID string) (int64, error) {
	var count int64
	err := r.db.Model(&convdomain.Message{}).Where("topic_id = ?", topicID).Count(&count).Error
	return count, err
}
