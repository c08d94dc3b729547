package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// DocumentRepository reads project documents for extraction. Ingestion
// itself lives in a separate service; this side only consumes.
type DocumentRepository interface {
	BaseRepository[models.ProjectDocument]
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectDocument, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProjectDocument, error)
}

type documentRepository struct {
	BaseRepository[models.ProjectDocument]
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{BaseRepository: NewBaseRepository[models.ProjectDocument](db), db: db}
}

func (r *documentRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.ProjectDocument, error) {
	var out []models.ProjectDocument
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at ASC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list documents failed")
	}
	return out, nil
}

func (r *documentRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]models.ProjectDocument, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []models.ProjectDocument
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "get documents failed")
	}
	return out, nil
}
