package domain

import "time"

// ReplyState is the reply-handling state machine for a topic. A topic enters
// needs_reply on creation unless the last message in the thread was sent by
// the inbox owner, in which case it starts at no_reply_needed.
type ReplyState string

const (
	ReplyStateNeedsReply       ReplyState = "needs_reply"
	ReplyStateNoReplyNeeded    ReplyState = "no_reply_needed"
	ReplyStateAwaitingTemplate ReplyState = "awaiting_template"
	ReplyStateTemplateRemoved  ReplyState = "template_removed"
)

// Classification marks whether a topic needs attention.
type Classification string

const (
	ClassificationNormal   Classification = "normal"
	ClassificationSpam     Classification = "spam"
	ClassificationNoAction Classification = "no_action"
)

// Topic represents one conversation thread. Exactly one topic exists per
// (inbox, provider thread id) pair; the composite unique index is the
// concurrency control of last resort when batched fetches race.
type Topic struct {
	ID               string `json:"id" gorm:"primaryKey"`
	InboxID          string `json:"inbox_id" gorm:"uniqueIndex:idx_inbox_thread;not null"`
	ProviderThreadID string `json:"provider_thread_id" gorm:"uniqueIndex:idx_inbox_thread;not null"`

	// Subject comes from the first message of the thread; From/To track the
	// last message, since the most recent participant is what matters for
	// reply routing.
	Subject     string `json:"subject"`
	Snippet     string `json:"snippet"`
	FromName    string `json:"from_name"`
	FromAddress string `json:"from_address"`
	ToName      string `json:"to_name"`
	ToAddress   string `json:"to_address"`

	LastMessageAt time.Time `json:"last_message_at"`
	LastSyncedAt  time.Time `json:"last_synced_at"`
	MessageCount  int       `json:"message_count"`

	Classification Classification `json:"classification" gorm:"default:normal"`
	ReplyState     ReplyState     `json:"reply_state" gorm:"default:needs_reply"`
	// TemplateID and ReplyDraft hold the matched template and the generated
	// reply text once a template has been applied.
	TemplateID string `json:"template_id,omitempty"`
	ReplyDraft string `json:"reply_draft,omitempty" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Topic) TableName() string {
	return "topics"
}
