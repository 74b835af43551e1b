package repository

import (
	"time"

	convdomain "mailmatch-backend/internal/conversation/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// templateRepository implements TemplateRepository interface
type templateRepository struct {
	db *gorm.DB
}

// NewTemplateRepository creates a new instance of templateRepository
func NewTemplateRepository(db *gorm.DB) TemplateRepository {
	return &templateRepository{
		db: db,
	}
}

func (r *templateRepository) Create(template *convdomain.Template) error {
	if template.ID == "" {
		template.ID = uuid.New().String()
	}
	template.CreatedAt = time.Now()
	template.UpdatedAt = time.Now()
	return r.db.Create(template).Error
}

func (r *templateRepository) FindByID(id string) (*convdomain.Template, error) {
	var template convdomain.Template
	err := r.db.Where("id = ?", id).First(&template).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &template, nil
}

func (r *templateRepository) ListByScope(scopeID string) ([]*convdomain.Template, error) {
	var templates []*convdomain.Template
	err := r.db.Where("scope_id = ?", scopeID).Order("created_at ASC").Find(&templates).Error
	return templates, err
}

func (r *templateRepository) Delete(id string) error {
	return r.db.Where("id = ?", id).Delete(&convdomain.Template{}).Error
}
