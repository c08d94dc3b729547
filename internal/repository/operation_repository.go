package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// OperationRepository manages compliance operations and their guarded
// status transitions.
type OperationRepository interface {
	BaseRepository[models.ComplianceOperation]
	ListByProject(ctx context.Context, projectID uuid.UUID, status string) ([]models.ComplianceOperation, error)
	// TransitionStatus moves the operation from one status to another
	// atomically. A zero-row update means the operation was not in the
	// expected state, which surfaces as CodeAlreadyResolved.
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string, updates map[string]any) error
	// MarkApplied transitions from the given status: approved for
	// operations that went through review, pending for ones whose risk
	// level did not require it.
	MarkApplied(ctx context.Context, id uuid.UUID, from string, afterSnapshot datatypes.JSON, result datatypes.JSON) error
	RecordExecutionFailure(ctx context.Context, id uuid.UUID, result datatypes.JSON) error
}

type operationRepository struct {
	BaseRepository[models.ComplianceOperation]
	db *gorm.DB
}

func NewOperationRepository(db *gorm.DB) OperationRepository {
	return &operationRepository{BaseRepository: NewBaseRepository[models.ComplianceOperation](db), db: db}
}

func (r *operationRepository) ListByProject(ctx context.Context, projectID uuid.UUID, status string) ([]models.ComplianceOperation, error) {
	q := r.db.WithContext(ctx).Where("project_id = ?", projectID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.ComplianceOperation
	if err := q.Order("proposed_at DESC").Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list operations failed")
	}
	return out, nil
}

func (r *operationRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to string, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	res := r.db.WithContext(ctx).Model(&models.ComplianceOperation{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "transition operation status failed")
	}
	if res.RowsAffected == 0 {
		// Distinguish missing from already-resolved for the caller.
		var op models.ComplianceOperation
		if err := r.GetByID(ctx, id, &op); err != nil {
			return err
		}
		return appErr.New(appErr.CodeAlreadyResolved, "operation is not in state "+from).
			WithMeta("status", op.Status)
	}
	return nil
}

func (r *operationRepository) MarkApplied(ctx context.Context, id uuid.UUID, from string, afterSnapshot datatypes.JSON, result datatypes.JSON) error {
	return r.TransitionStatus(ctx, id, from, models.OperationStatusApplied, map[string]any{
		"after_snapshot":   afterSnapshot,
		"execution_result": result,
		"updated_at":       time.Now(),
	})
}

func (r *operationRepository) RecordExecutionFailure(ctx context.Context, id uuid.UUID, result datatypes.JSON) error {
	res := r.db.WithContext(ctx).Model(&models.ComplianceOperation{}).
		Where("id = ?", id).
		Update("execution_result", result)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "record execution failure failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "operation not found")
	}
	return nil
}
