package domain

import "time"

// Template is a canned reply body belonging to a scope (an inbox or account).
// Messages registered as examples of a template contribute their embeddings
// to the nearest-neighbor search that selects it.
type Template struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	ScopeID   string    `json:"scope_id" gorm:"index;not null"`
	Name      string    `json:"name"`
	Body      string    `json:"body" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}
