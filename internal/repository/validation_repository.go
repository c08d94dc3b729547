package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// ValidationRepository is an append-only audit log of validator runs.
// There are deliberately no update or delete operations.
type ValidationRepository interface {
	Append(ctx context.Context, v *models.ComplianceValidation) error
	ListByProject(ctx context.Context, projectID uuid.UUID, validationType string) ([]models.ComplianceValidation, error)
	GetByID(ctx context.Context, id uuid.UUID, dest *models.ComplianceValidation) error
}

type validationRepository struct {
	db *gorm.DB
}

func NewValidationRepository(db *gorm.DB) ValidationRepository {
	return &validationRepository{db: db}
}

func (r *validationRepository) Append(ctx context.Context, v *models.ComplianceValidation) error {
	if err := r.db.WithContext(ctx).Create(v).Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "append validation failed")
	}
	return nil
}

func (r *validationRepository) ListByProject(ctx context.Context, projectID uuid.UUID, validationType string) ([]models.ComplianceValidation, error) {
	q := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if validationType != "" {
		q = q.Where("validation_type = ?", validationType)
	}
	var out []models.ComplianceValidation
	if err := q.Order("validated_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list validations failed")
	}
	return out, nil
}

func (r *validationRepository) GetByID(ctx context.Context, id uuid.UUID, dest *models.ComplianceValidation) error {
	if err := r.db.WithContext(ctx).First(dest, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return appErr.New(appErr.CodeNotFound, "validation not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get validation failed")
	}
	return nil
}
