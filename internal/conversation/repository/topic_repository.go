package repository

import (
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// topicRepository implements TopicRepository interface
type topicRepository struct {
	db *gorm.DB
}

// NewTopicRepository creates a new instance of topicRepository
func NewTopicRepository(db *gorm.DB) TopicRepository {
	return &topicRepository{
		db: db,
	}
}

func (r *topicRepository) FindByNaturalKey(inboxID, providerThreadID string) (*convdomain.Topic, error) {
	var topic convdomain.Topic
	err := r.db.Where("inbox_id = ? AND provider_thread_id = ?", inboxID, providerThreadID).First(&topic).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &topic, nil
}

func (r *topicRepository) FindByID(id string) (*convdomain.Topic, error) {
	var topic convdomain.Topic
	err := r.db.Where("id = ?", id).First(&topic).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &topic, nil
}

func (r *topicRepository) Create(topic *convdomain.Topic) error {
	if topic.ID == "" {
		topic.ID = uuid.New().String()
	}
	topic.CreatedAt = time.Now()
	topic.UpdatedAt = time.Now()
	return r.db.Create(topic).Error
}

func (r *topicRepository) UpdateFields(id string, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	fields["updated_at"] = time.Now()
	return r.db.Model(&convdomain.Topic{}).Where("id = ?", id).Updates(fields).Error
}

func (r *topicRepository) ListByInbox(inboxID string, limit, offset int) ([]*convdomain.Topic, error) {
	var topics []*convdomain.Topic
	err := r.db.Where("inbox_id = ?", inboxID).
		Order("last_message_at DESC").
		Limit(limit).Offset(offset).Find(&topics).Error
	return topics, err
}

func (r *topicRepository) MarkTemplateRemoved(templateID string) error {
	return r.db.Model(&convdomain.Topic{}).
		Where("template_id = ? AND reply_state = ?", templateID, convdomain.ReplyStateAwaitingTemplate).
		Updates(map[string]interface{}{
			"reply_state": convdomain.ReplyStateTemplateRemoved,
			"updated_at":  time.Now(),
		}).Error
}
