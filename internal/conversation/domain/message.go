package domain

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// StringArray is a custom type to handle JSON array in GORM
type StringArray []string

// Value implements driver.Valuer
func (a StringArray) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = []string{}
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return nil
	}
	if len(bytes) == 0 {
		*a = []string{}
		return nil
	}
	return json.Unmarshal(bytes, a)
}

// Message represents one email within a topic. The provider message id is
// unique per topic but intentionally not globally unique: the same physical
// email can be delivered into more than one inbox (shared distribution lists)
// and is stored once per owning topic.
type Message struct {
	ID                string `json:"id" gorm:"primaryKey"`
	TopicID           string `json:"topic_id" gorm:"uniqueIndex:idx_topic_message;not null"`
	ProviderMessageID string `json:"provider_message_id" gorm:"uniqueIndex:idx_topic_message;not null"`

	Subject     string `json:"subject"`
	FromName    string `json:"from_name"`
	FromAddress string `json:"from_address"`
	ToName      string `json:"to_name"`
	ToAddress   string `json:"to_address"`

	// HeaderDate is what the sender's Date header claims; InternalDate is
	// when the provider actually accepted delivery. They can differ and both
	// are retained.
	HeaderDate   time.Time `json:"header_date"`
	InternalDate time.Time `json:"internal_date"`

	BodyText string      `json:"body_text" gorm:"type:text"`
	BodyHTML string      `json:"body_html" gorm:"type:text"`
	Snippet  string      `json:"snippet"`
	Labels   StringArray `json:"labels" gorm:"type:text"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// HasLabel reports whether the message carries the given provider label.
func (m *Message) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}
