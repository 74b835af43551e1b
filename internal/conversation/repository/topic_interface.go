package repository

import (
	convdomain "mailmatch-backend/internal/conversation/domain"
)

// TopicRepository defines persistence operations for conversation threads
type TopicRepository interface {
	// FindByNaturalKey locates a topic by its (inbox, provider thread id)
	// natural key; returns nil without error when absent.
	FindByNaturalKey(inboxID, providerThreadID string) (*convdomain.Topic, error)
	FindByID(id string) (*convdomain.Topic, error)
	Create(topic *convdomain.Topic) error
	// UpdateFields writes only the given columns; callers pass just the
	// fields that actually changed.
	UpdateFields(id string, fields map[string]interface{}) error
	ListByInbox(inboxID string, limit, offset int) ([]*convdomain.Topic, error)
	// MarkTemplateRemoved flips topics referencing the template from
	// awaiting_template to template_removed.
	MarkTemplateRemoved(templateID string) error
}
