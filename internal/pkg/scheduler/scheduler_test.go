package scheduler_test

import (
	"context"
	"os"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/database"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/scheduler"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

func TestRefreshRebuildsSnapshot(t *testing.T) {
	db, err := database.NewDatabaseConnection(database.NewSQLiteConnector(), nil)
	if err != nil {
		t.Fatalf("Failed to create datastore: %s", err.Error())
	}

	ctx := context.Background()
	segment, _ := db.CreateSegment(ctx, persistence.Segment{Code: "E14:7", Name: "E14"})
	inspection, _ := db.CreateInspection(ctx, persistence.Inspection{SegmentID: segment.ID, InspectedAt: time.Now().UTC()})
	db.CreateDefect(ctx, persistence.Defect{InspectionID: inspection.ID, DefectType: "rutting", Severity: 5})
	db.CreateDefect(ctx, persistence.Defect{InspectionID: inspection.ID, DefectType: "rutting", Severity: 5})
	db.CreateDefect(ctx, persistence.Defect{InspectionID: inspection.ID, DefectType: "rutting", Severity: 5})

	counts := []int{}
	refresher, err := scheduler.NewUrgentSegmentRefresher(db, "@every 1h", func(count int) {
		counts = append(counts, count)
	})
	if err != nil {
		t.Fatalf("Failed to create refresher: %s", err.Error())
	}

	refresher.Refresh()

	if len(counts) != 1 || counts[0] != 1 {
		t.Errorf("Expected one refresh reporting one urgent segment, got %v", counts)
	}

	urgent, _ := db.ListUrgentSegments(ctx)
	if len(urgent) != 1 || urgent[0].Code != "E14:7" {
		t.Errorf("Unexpected urgent segments %+v", urgent)
	}
}

func TestInvalidScheduleIsRejected(t *testing.T) {
	_, err := scheduler.NewUrgentSegmentRefresher(nil, "every now and then", nil)
	if err == nil {
		t.Error("Expected an invalid schedule to be rejected")
	}
}
