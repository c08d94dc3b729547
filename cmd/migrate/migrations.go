package main

import (
	"gorm.io/gorm"

	"github.com/panelproof/engine/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []interface{} {
	return []interface{}{
		// Projects & Documents
		&models.Project{},
		&models.ProjectDocument{},

		// Geometry & Registration
		&models.PlanGeometryModel{},
		&models.LayoutTransform{},
		&models.PanelLayout{},

		// Compliance
		&models.ComplianceValidation{},
		&models.ComplianceOperation{},
	}
}

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	models := registerModels()

	// Run AutoMigrate for all models
	if err := db.AutoMigrate(models...); err != nil {
		return err
	}

	// Run custom migrations
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		enableUUIDExtension,
		addActiveTransformIndex,
		addValidationLookupIndex,
		addOperationStatusIndex,
	}

	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}

	return nil
}

// enableUUIDExtension ensures UUID generation is available
func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addActiveTransformIndex enforces at most one active transform per project
// at the database level, backing the transactional swap in the repository.
func addActiveTransformIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_layout_transforms_active
		ON layout_transforms(project_id)
		WHERE is_active
	`).Error
}

// addValidationLookupIndex speeds up the per-project validation history listing
func addValidationLookupIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_compliance_validations_project_type
		ON compliance_validations(project_id, validation_type, created_at DESC)
	`).Error
}

// addOperationStatusIndex supports the pending-operations review queue
func addOperationStatusIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_compliance_operations_project_status
		ON compliance_operations(project_id, status)
	`).Error
}
