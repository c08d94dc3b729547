package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// GeometryRepository stores immutable plan geometry snapshots. Rows are
// never updated; the latest per project is authoritative.
type GeometryRepository interface {
	BaseRepository[models.PlanGeometryModel]
	GetLatestByProject(ctx context.Context, projectID uuid.UUID, dest *models.PlanGeometryModel) error
	GetByProjectAndDocument(ctx context.Context, projectID, documentID uuid.UUID, dest *models.PlanGeometryModel) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.PlanGeometryModel, error)
}

type geometryRepository struct {
	BaseRepository[models.PlanGeometryModel]
	db *gorm.DB
}

func NewGeometryRepository(db *gorm.DB) GeometryRepository {
	return &geometryRepository{BaseRepository: NewBaseRepository[models.PlanGeometryModel](db), db: db}
}

func (r *geometryRepository) GetLatestByProject(ctx context.Context, projectID uuid.UUID, dest *models.PlanGeometryModel) error {
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC").First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no plan geometry found for project")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get latest plan geometry failed")
	}
	return nil
}

func (r *geometryRepository) GetByProjectAndDocument(ctx context.Context, projectID, documentID uuid.UUID, dest *models.PlanGeometryModel) error {
	if err := r.db.WithContext(ctx).Where("project_id = ? AND document_id = ?", projectID, documentID).Order("created_at DESC").First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no plan geometry found for document")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get plan geometry by document failed")
	}
	return nil
}

func (r *geometryRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.PlanGeometryModel, error) {
	var out []models.PlanGeometryModel
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list plan geometries failed")
	}
	return out, nil
}
