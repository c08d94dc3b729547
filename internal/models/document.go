package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProjectDocument stores an ingested project document and its extracted
// text, the read-only input to plan-geometry extraction.
type ProjectDocument struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ProjectID   uuid.UUID      `gorm:"type:uuid;index;not null" json:"project_id" validate:"required"`
	Name        string         `gorm:"not null" json:"name" validate:"required"`
	DocType     string         `gorm:"type:varchar(32);index" json:"doc_type"`
	TextContent string         `gorm:"type:text" json:"text_content"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}
