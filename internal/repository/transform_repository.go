package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// TransformRepository manages layout transforms and the single-active
// invariant.
type TransformRepository interface {
	BaseRepository[models.LayoutTransform]
	GetActiveByProject(ctx context.Context, projectID uuid.UUID, dest *models.LayoutTransform) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.LayoutTransform, error)
	CreateActive(ctx context.Context, t *models.LayoutTransform) error
}

type transformRepository struct {
	BaseRepository[models.LayoutTransform]
	db *gorm.DB
}

func NewTransformRepository(db *gorm.DB) TransformRepository {
	return &transformRepository{BaseRepository: NewBaseRepository[models.LayoutTransform](db), db: db}
}

func (r *transformRepository) GetActiveByProject(ctx context.Context, projectID uuid.UUID, dest *models.LayoutTransform) error {
	if err := r.db.WithContext(ctx).Where("project_id = ? AND is_active = true", projectID).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no active transform for project")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get active transform failed")
	}
	return nil
}

func (r *transformRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]models.LayoutTransform, error) {
	var out []models.LayoutTransform
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list transforms failed")
	}
	return out, nil
}

// CreateActive deactivates every currently active transform for the
// project and inserts t as the active one, in a single transaction. There
// is no window with zero or two active transforms.
func (r *transformRepository) CreateActive(ctx context.Context, t *models.LayoutTransform) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.LayoutTransform{}).
			Where("project_id = ? AND is_active = true", t.ProjectID).
			Update("is_active", false).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "deactivate prior transforms failed")
		}
		t.IsActive = true
		if err := tx.Create(t).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "create transform failed")
		}
		return nil
	})
}
