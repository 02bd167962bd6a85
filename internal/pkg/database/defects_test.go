package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

// newUnconstrainedStore opens a store without foreign key enforcement so that rows can be
// removed underneath their children
func newUnconstrainedStore(t *testing.T) *myDB {
	t.Helper()

	connect := func() (*gorm.DB, error) {
		dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=0", uuid.NewString())
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	}

	store, err := NewDatabaseConnection(connect, nil)
	if err != nil {
		t.Fatalf("Failed to create datastore: %s", err.Error())
	}
	return store.(*myDB)
}

func createOrphanedDefect(t *testing.T, store *myDB) *persistence.Defect {
	t.Helper()
	ctx := context.Background()

	segment, err := store.CreateSegment(ctx, persistence.Segment{Code: "E14:1", Name: "E14"})
	if err != nil {
		t.Fatalf("Failed to create segment: %s", err.Error())
	}

	inspection, err := store.CreateInspection(ctx, persistence.Inspection{SegmentID: segment.ID, InspectedAt: time.Now()})
	if err != nil {
		t.Fatalf("Failed to create inspection: %s", err.Error())
	}

	depth := 12.0
	defect, err := store.CreateDefect(ctx, persistence.Defect{InspectionID: inspection.ID, DefectType: "pothole", Severity: 4, DepthCM: &depth})
	if err != nil {
		t.Fatalf("Failed to create defect: %s", err.Error())
	}

	if err := store.impl.Exec("DELETE FROM inspections WHERE id = ?", inspection.ID).Error; err != nil {
		t.Fatalf("Failed to remove inspection: %s", err.Error())
	}

	return defect
}

func TestUpdatingDefectOfVanishedInspectionIsAnIntegrityViolation(t *testing.T) {
	store := newUnconstrainedStore(t)
	defect := createOrphanedDefect(t, store)
	ctx := context.Background()

	notified := 0
	store.RegisterScoreListener(func(ScoreChange) { notified++ })

	_, err := store.UpdateDefect(ctx, defect.ID, persistence.Defect{DefectType: "crack", Severity: 1})

	var ierr *IntegrityViolationError
	if !errors.As(err, &ierr) || ierr.InspectionID != defect.InspectionID {
		t.Fatalf("Expected an integrity violation for inspection %d, got %v", defect.InspectionID, err)
	}

	stored, err := store.GetDefectByID(ctx, defect.ID)
	if err != nil {
		t.Fatalf("Failed to load defect: %s", err.Error())
	}
	if stored.DefectType != "pothole" || stored.Severity != 4 {
		t.Errorf("Expected the failed update to be rolled back, got %s with severity %d", stored.DefectType, stored.Severity)
	}
	if notified != 0 {
		t.Errorf("Unexpected score notifications for a rolled back update. %d != 0", notified)
	}
}

func TestDeletingDefectOfVanishedInspectionSucceeds(t *testing.T) {
	store := newUnconstrainedStore(t)
	defect := createOrphanedDefect(t, store)
	ctx := context.Background()

	notified := 0
	store.RegisterScoreListener(func(ScoreChange) { notified++ })

	if err := store.DeleteDefect(ctx, defect.ID); err != nil {
		t.Fatalf("Expected the delete to succeed, got %s", err.Error())
	}

	if _, err := store.GetDefectByID(ctx, defect.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected the defect to be gone, got %v", err)
	}
	if notified != 0 {
		t.Errorf("Unexpected score notifications without an inspection. %d != 0", notified)
	}
}

func TestStorageFailuresAreNotReportedAsMissingRows(t *testing.T) {
	store := newUnconstrainedStore(t)
	ctx := context.Background()

	sqlDB, err := store.impl.DB()
	if err != nil {
		t.Fatalf("Failed to access connection pool: %s", err.Error())
	}
	sqlDB.Close()

	if _, err := store.ListDefects(ctx, 1); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Expected a storage error when listing defects, got %v", err)
	}

	_, err = store.CreateInspection(ctx, persistence.Inspection{SegmentID: 1})
	var verr *ValidationError
	if err == nil || errors.As(err, &verr) {
		t.Errorf("Expected a storage error when creating an inspection, got %v", err)
	}
}
