package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// LayoutRepository manages the single panel-layout row per project.
// UpdateVersioned is the only write path operation executors may use; it
// refuses stale writes so concurrent executions cannot silently drop a
// mutation.
type LayoutRepository interface {
	BaseRepository[models.PanelLayout]
	GetByProject(ctx context.Context, projectID uuid.UUID, dest *models.PanelLayout) error
	UpdateVersioned(ctx context.Context, layout *models.PanelLayout, expectedVersion int) error
	Upsert(ctx context.Context, layout *models.PanelLayout) error
}

type layoutRepository struct {
	BaseRepository[models.PanelLayout]
	db *gorm.DB
}

func NewLayoutRepository(db *gorm.DB) LayoutRepository {
	return &layoutRepository{BaseRepository: NewBaseRepository[models.PanelLayout](db), db: db}
}

func (r *layoutRepository) GetByProject(ctx context.Context, projectID uuid.UUID, dest *models.PanelLayout) error {
	if err := r.db.WithContext(ctx).Where("project_id = ?", projectID).First(dest).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "no panel layout for project")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get panel layout failed")
	}
	return nil
}

// UpdateVersioned writes the layout only when the stored version still
// matches expectedVersion, bumping the version on success. A zero
// RowsAffected means another writer got there first.
func (r *layoutRepository) UpdateVersioned(ctx context.Context, layout *models.PanelLayout, expectedVersion int) error {
	res := r.db.WithContext(ctx).Model(&models.PanelLayout{}).
		Where("id = ? AND version = ?", layout.ID, expectedVersion).
		Updates(map[string]any{
			"panels":            layout.Panels,
			"patches":           layout.Patches,
			"destructive_tests": layout.DestructiveTests,
			"version":           expectedVersion + 1,
		})
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update panel layout failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeConflict, "panel layout was modified concurrently")
	}
	layout.Version = expectedVersion + 1
	return nil
}

func (r *layoutRepository) Upsert(ctx context.Context, layout *models.PanelLayout) error {
	var existing models.PanelLayout
	err := r.GetByProject(ctx, layout.ProjectID, &existing)
	if err == nil {
		layout.ID = existing.ID
		return r.UpdateVersioned(ctx, layout, existing.Version)
	}
	if !appErr.IsCode(err, appErr.CodeNotFound) {
		return err
	}
	layout.Version = 1
	return r.Create(ctx, layout)
}
