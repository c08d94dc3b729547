package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/panelproof/engine/internal/models"
	appErr "github.com/panelproof/engine/pkg/errors"
)

// setupTestDB starts a throwaway Postgres container and migrates the
// schema, including the partial unique index that backs the
// single-active-transform invariant. Skipped in -short mode and when no
// container runtime is available.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed tests in short mode")
	}

	ctx := context.Background()
	pgc, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("panelproof_test"),
		tcpostgres.WithUsername("panelproof"),
		tcpostgres.WithPassword("panelproof"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = pgc.Terminate(context.Background()) })

	dsn, err := pgc.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.Project{},
		&models.ProjectDocument{},
		&models.PlanGeometryModel{},
		&models.LayoutTransform{},
		&models.PanelLayout{},
		&models.ComplianceValidation{},
		&models.ComplianceOperation{},
	))
	require.NoError(t, db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_layout_transforms_active
		ON layout_transforms(project_id)
		WHERE is_active
	`).Error)

	return db
}

func newTransform(projectID, pgmID uuid.UUID, scale float64) *models.LayoutTransform {
	return &models.LayoutTransform{
		ProjectID:           projectID,
		PlanGeometryModelID: pgmID,
		ScaleX:              scale,
		ScaleY:              scale,
		Method:              models.RegistrationMethodManual,
		ConfidenceScore:     0.8,
		IsUniformScale:      true,
	}
}

func TestCreateActiveSwapsActiveTransform(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransformRepository(db)
	ctx := context.Background()

	projectID := uuid.New()
	pgmID := uuid.New()

	first := newTransform(projectID, pgmID, 1.0)
	require.NoError(t, repo.CreateActive(ctx, first))

	var active models.LayoutTransform
	require.NoError(t, repo.GetActiveByProject(ctx, projectID, &active))
	require.Equal(t, first.ID, active.ID)

	second := newTransform(projectID, pgmID, 1.5)
	require.NoError(t, repo.CreateActive(ctx, second))

	require.NoError(t, repo.GetActiveByProject(ctx, projectID, &active))
	require.Equal(t, second.ID, active.ID)

	all, err := repo.ListByProject(ctx, projectID)
	require.NoError(t, err)
	require.Len(t, all, 2)

	var activeCount int64
	require.NoError(t, db.Model(&models.LayoutTransform{}).
		Where("project_id = ? AND is_active = true", projectID).
		Count(&activeCount).Error)
	require.EqualValues(t, 1, activeCount)
}

func TestCreateActiveIsScopedToProject(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransformRepository(db)
	ctx := context.Background()

	projectA := uuid.New()
	projectB := uuid.New()
	pgmID := uuid.New()

	forA := newTransform(projectA, pgmID, 1.0)
	require.NoError(t, repo.CreateActive(ctx, forA))
	forB := newTransform(projectB, pgmID, 2.0)
	require.NoError(t, repo.CreateActive(ctx, forB))

	var active models.LayoutTransform
	require.NoError(t, repo.GetActiveByProject(ctx, projectA, &active))
	require.Equal(t, forA.ID, active.ID)
	require.NoError(t, repo.GetActiveByProject(ctx, projectB, &active))
	require.Equal(t, forB.ID, active.ID)
}

func TestGetActiveByProjectNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransformRepository(db)

	var dest models.LayoutTransform
	err := repo.GetActiveByProject(context.Background(), uuid.New(), &dest)
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeNotFound))
}

func TestUpdateVersionedRejectsStaleWriter(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLayoutRepository(db)
	ctx := context.Background()

	layout := &models.PanelLayout{
		ProjectID: uuid.New(),
		Panels:    []byte(`[{"id":"p1","x":0,"y":0,"width":50,"height":100,"shape":"rectangle"}]`),
	}
	require.NoError(t, repo.Upsert(ctx, layout))
	require.Equal(t, 1, layout.Version)

	// Two writers read version 1; only the first write lands.
	winner := *layout
	winner.Panels = []byte(`[{"id":"p1","x":10,"y":0,"width":50,"height":100,"shape":"rectangle"}]`)
	require.NoError(t, repo.UpdateVersioned(ctx, &winner, 1))
	require.Equal(t, 2, winner.Version)

	loser := *layout
	loser.Panels = []byte(`[{"id":"p1","x":99,"y":0,"width":50,"height":100,"shape":"rectangle"}]`)
	err := repo.UpdateVersioned(ctx, &loser, 1)
	require.Error(t, err)
	require.True(t, appErr.IsCode(err, appErr.CodeConflict))

	var stored models.PanelLayout
	require.NoError(t, repo.GetByProject(ctx, layout.ProjectID, &stored))
	require.Equal(t, 2, stored.Version)
	require.JSONEq(t, string(winner.Panels), string(stored.Panels))
}

func TestValidationHistoryIsAppendOnly(t *testing.T) {
	db := setupTestDB(t)
	repo := NewValidationRepository(db)
	ctx := context.Background()

	projectID := uuid.New()
	pgmID := uuid.New()

	for _, run := range []struct {
		vType  string
		score  float64
		passed bool
	}{
		{models.ValidationTypeScale, 0.6, false},
		{models.ValidationTypeScale, 1.0, true},
		{models.ValidationTypeBoundary, 1.0, true},
	} {
		v := &models.ComplianceValidation{
			ProjectID:           projectID,
			PlanGeometryModelID: pgmID,
			ValidationType:      run.vType,
			Passed:              run.passed,
			ComplianceScore:     run.score,
			Issues:              []byte(`[]`),
			ValidatedAt:         time.Now(),
		}
		require.NoError(t, repo.Append(ctx, v))
	}

	scaleRuns, err := repo.ListByProject(ctx, projectID, models.ValidationTypeScale)
	require.NoError(t, err)
	require.Len(t, scaleRuns, 2)

	allRuns, err := repo.ListByProject(ctx, projectID, "")
	require.NoError(t, err)
	require.Len(t, allRuns, 3)
}
