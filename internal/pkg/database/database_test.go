package database_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"

	db "github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/database"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

func TestMain(m *testing.M) {
	log.SetFormatter(&log.JSONFormatter{})
	os.Exit(m.Run())
}

const seedData = "21277:153930;Norra vägen;62.389109;17.310863;62.389084;17.310852\n" +
	"21277:153931;Södra vägen;62.389084;17.310852;62.389052;17.310940;12.5\n"

func newDatastore(t *testing.T, seed string) db.Datastore {
	t.Helper()

	datastore, err := db.NewDatabaseConnection(db.NewSQLiteConnector(), strings.NewReader(seed))
	if err != nil {
		t.Fatalf("Failed to create datastore: %s", err.Error())
	}
	return datastore
}

func f(v float64) *float64 {
	return &v
}

func newInspection(t *testing.T, datastore db.Datastore, segmentCode string, inspectedAt time.Time) *persistence.Inspection {
	t.Helper()
	ctx := context.Background()

	segment, err := datastore.GetSegmentByCode(ctx, segmentCode)
	if err != nil {
		segment, err = datastore.CreateSegment(ctx, persistence.Segment{Code: segmentCode, Name: segmentCode})
		if err != nil {
			t.Fatalf("Failed to create segment %s: %s", segmentCode, err.Error())
		}
	}

	inspection, err := datastore.CreateInspection(ctx, persistence.Inspection{SegmentID: segment.ID, InspectedAt: inspectedAt})
	if err != nil {
		t.Fatalf("Failed to create inspection: %s", err.Error())
	}
	return inspection
}

func addDefect(t *testing.T, datastore db.Datastore, inspectionID uint, defect persistence.Defect) *persistence.Defect {
	t.Helper()

	defect.InspectionID = inspectionID
	created, err := datastore.CreateDefect(context.Background(), defect)
	if err != nil {
		t.Fatalf("Failed to create defect: %s", err.Error())
	}
	return created
}

func storedRCI(t *testing.T, datastore db.Datastore, inspectionID uint) *float64 {
	t.Helper()

	inspection, err := datastore.GetInspectionByID(context.Background(), inspectionID)
	if err != nil {
		t.Fatalf("Failed to load inspection %d: %s", inspectionID, err.Error())
	}
	return inspection.RCI
}

func expectRCI(t *testing.T, datastore db.Datastore, inspectionID uint, expected float64) {
	t.Helper()

	score := storedRCI(t, datastore, inspectionID)
	if score == nil || *score != expected {
		t.Errorf("Unexpected stored rci of inspection %d. %v != %.1f", inspectionID, score, expected)
	}
}

func TestSeedDatabase(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()

	count, _ := datastore.GetSegmentCount(ctx)
	if count != 2 {
		t.Error("Unexpected number of segments in datastore after seeding.", 2, "!=", count)
	}

	segment, err := datastore.GetSegmentByCode(ctx, "21277:153931")
	if err != nil {
		t.Fatal("Unable to find expected segment from code:", err.Error())
	}
	if segment.Name != "Södra vägen" || segment.Length != 12.5 {
		t.Errorf("Seeded segment did not match expectations: %+v", segment)
	}

	segment, _ = datastore.GetSegmentByCode(ctx, "21277:153930")
	if segment.Length <= 0 {
		t.Error("Expected segment length to be calculated from its coordinates when not given")
	}
}

func TestSeedingSkipsBadRecords(t *testing.T) {
	datastore := newDatastore(t, "bad;record;x;17.3;62.3;17.4\nshort;record\n"+seedData)

	count, _ := datastore.GetSegmentCount(context.Background())
	if count != 2 {
		t.Errorf("Unexpected number of segments after seeding with bad records. %d != 2", count)
	}
}

func TestGetRoadSegmentNearPoint(t *testing.T) {
	datastore := newDatastore(t, seedData)

	segments, _ := datastore.GetSegmentsNearPoint(context.Background(), 62.389077, 17.310243, 75)
	if len(segments) == 0 {
		t.Error("Unable to find segments near a point. None returned.")
	}
}

func TestGetRoadSegmentsWithinRect(t *testing.T) {
	datastore := newDatastore(t, seedData)

	segments, _ := datastore.GetSegmentsWithinRect(context.Background(), 62.389077, 17.310243, 62.4, 17.4)
	if len(segments) == 0 {
		t.Error("Unable to find segments within a rect. None returned.")
	}
}

func TestSegmentsOutsideRectAreExcluded(t *testing.T) {
	datastore := newDatastore(t, seedData)

	segments, _ := datastore.GetSegmentsWithinRect(context.Background(), 62.0, 17.0, 62.1, 17.1)
	if len(segments) != 0 {
		t.Errorf("Unexpected number of segments within a distant rect. %d != 0", len(segments))
	}
}

func TestRectCornersMayBeGivenInAnyOrder(t *testing.T) {
	datastore := newDatastore(t, seedData)

	//The rect ends exactly where Norra vägen starts
	segments, _ := datastore.GetSegmentsWithinRect(context.Background(), 62.4, 17.310863, 62.389109, 17.4)
	if len(segments) != 1 || segments[0].Code != "21277:153930" {
		t.Errorf("Expected only the segment touching the rect edge to be found, got %v", segments)
	}
}

func TestSegmentsFarFromPointAreExcluded(t *testing.T) {
	datastore := newDatastore(t, seedData)

	segments, _ := datastore.GetSegmentsNearPoint(context.Background(), 62.389077, 17.310243, 20)
	if len(segments) != 0 {
		t.Errorf("Unexpected number of segments within 20 meters. %d != 0", len(segments))
	}
}

func TestSegmentCodeMustBeUnique(t *testing.T) {
	datastore := newDatastore(t, seedData)

	_, err := datastore.CreateSegment(context.Background(), persistence.Segment{Code: "21277:153930", Name: "dup"})

	var verr *db.ValidationError
	if !errors.As(err, &verr) || verr.Field != "code" {
		t.Errorf("Expected a validation error on code, got %v", err)
	}
}

func TestInspectionRequiresExistingSegment(t *testing.T) {
	datastore := newDatastore(t, "")

	_, err := datastore.CreateInspection(context.Background(), persistence.Inspection{SegmentID: 4711})

	var verr *db.ValidationError
	if !errors.As(err, &verr) || verr.Field != "segment_id" {
		t.Errorf("Expected a validation error on segment_id, got %v", err)
	}
}

func TestNewInspectionHasNoScore(t *testing.T) {
	datastore := newDatastore(t, seedData)
	inspection := newInspection(t, datastore, "21277:153930", time.Now().UTC())

	if storedRCI(t, datastore, inspection.ID) != nil {
		t.Error("Expected rci to be null before it has been computed")
	}
}

func TestRecomputeWithoutDefectsGivesMaxScore(t *testing.T) {
	datastore := newDatastore(t, seedData)
	inspection := newInspection(t, datastore, "21277:153930", time.Now().UTC())

	score, err := datastore.RecomputeRCI(context.Background(), inspection.ID)
	if err != nil || score != 10.0 {
		t.Errorf("Unexpected result of recompute. %f (%v) != 10.0", score, err)
	}

	expectRCI(t, datastore, inspection.ID, 10.0)
}

func TestRecomputeIsIdempotent(t *testing.T) {
	datastore := newDatastore(t, seedData)
	inspection := newInspection(t, datastore, "21277:153930", time.Now().UTC())
	addDefect(t, datastore, inspection.ID, persistence.Defect{DefectType: "pothole", Severity: 4, DepthCM: f(12)})

	first, _ := datastore.RecomputeRCI(context.Background(), inspection.ID)
	second, _ := datastore.RecomputeRCI(context.Background(), inspection.ID)

	if first != second || first != 6.2 {
		t.Errorf("Recompute was not idempotent: %f, %f", first, second)
	}
}

func TestRecomputeOfUnknownInspection(t *testing.T) {
	datastore := newDatastore(t, "")

	_, err := datastore.RecomputeRCI(context.Background(), 4711)
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestDefectMutationsMaintainScore(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()
	inspection := newInspection(t, datastore, "21277:153930", time.Now().UTC())

	pothole := addDefect(t, datastore, inspection.ID, persistence.Defect{DefectType: "pothole", Severity: 4, DepthCM: f(12)})
	expectRCI(t, datastore, inspection.ID, 6.2)

	crack := addDefect(t, datastore, inspection.ID, persistence.Defect{DefectType: "crack", Severity: 3, LengthM: f(5.0)})
	expectRCI(t, datastore, inspection.ID, 5.4)

	_, err := datastore.UpdateDefect(ctx, pothole.ID, persistence.Defect{DefectType: "pothole", Severity: 4, DepthCM: f(13)})
	if err != nil {
		t.Fatalf("Failed to update defect: %s", err.Error())
	}
	expectRCI(t, datastore, inspection.ID, 5.1)

	if err = datastore.DeleteDefect(ctx, crack.ID); err != nil {
		t.Fatalf("Failed to delete defect: %s", err.Error())
	}
	expectRCI(t, datastore, inspection.ID, 5.8)

	if err = datastore.DeleteDefect(ctx, pothole.ID); err != nil {
		t.Fatalf("Failed to delete defect: %s", err.Error())
	}
	expectRCI(t, datastore, inspection.ID, 10.0)
}

func TestInvalidDefectIsRejectedWithoutSideEffects(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()
	inspection := newInspection(t, datastore, "21277:153930", time.Now().UTC())

	for _, severity := range []int{0, 6, -1} {
		_, err := datastore.CreateDefect(ctx, persistence.Defect{InspectionID: inspection.ID, DefectType: "crack", Severity: severity})

		var verr *db.ValidationError
		if !errors.As(err, &verr) || verr.Field != "severity" {
			t.Errorf("Expected severity %d to be rejected, got %v", severity, err)
		}
	}

	defects, _ := datastore.ListDefects(ctx, inspection.ID)
	if len(defects) != 0 {
		t.Errorf("Rejected defects were persisted: %d", len(defects))
	}
	if storedRCI(t, datastore, inspection.ID) != nil {
		t.Error("A rejected defect must not update the score")
	}
}

func TestDefectRequiresExistingInspection(t *testing.T) {
	datastore := newDatastore(t, seedData)

	_, err := datastore.CreateDefect(context.Background(), persistence.Defect{InspectionID: 4711, DefectType: "crack", Severity: 2})

	var verr *db.ValidationError
	if !errors.As(err, &verr) || verr.Field != "inspection_id" {
		t.Errorf("Expected a validation error on inspection_id, got %v", err)
	}
}

func TestDefectCanNotMoveBetweenInspections(t *testing.T) {
	datastore := newDatastore(t, seedData)
	first := newInspection(t, datastore, "21277:153930", time.Now().UTC())
	second := newInspection(t, datastore, "21277:153931", time.Now().UTC())
	defect := addDefect(t, datastore, first.ID, persistence.Defect{DefectType: "crack", Severity: 2})

	_, err := datastore.UpdateDefect(context.Background(), defect.ID, persistence.Defect{InspectionID: second.ID, DefectType: "crack", Severity: 2})

	var verr *db.ValidationError
	if !errors.As(err, &verr) || verr.Field != "inspection_id" {
		t.Errorf("Expected a validation error on inspection_id, got %v", err)
	}
}

func TestUpdateAndDeleteOfUnknownDefect(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()

	_, err := datastore.UpdateDefect(ctx, 4711, persistence.Defect{DefectType: "crack", Severity: 2})
	if !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected not found on update, got %v", err)
	}

	if err = datastore.DeleteDefect(ctx, 4711); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected not found on delete, got %v", err)
	}
}

func TestScoreListenersAreNotifiedAfterCommit(t *testing.T) {
	datastore := newDatastore(t, seedData)
	inspection := newInspection(t, datastore, "21277:153930", time.Now().UTC())

	changes := []db.ScoreChange{}
	datastore.RegisterScoreListener(func(change db.ScoreChange) {
		changes = append(changes, change)
	})

	addDefect(t, datastore, inspection.ID, persistence.Defect{DefectType: "fading_markings", Severity: 2})
	datastore.CreateDefect(context.Background(), persistence.Defect{InspectionID: inspection.ID, DefectType: "crack", Severity: 9})

	if len(changes) != 1 {
		t.Fatalf("Expected exactly one score change, got %d", len(changes))
	}
	if changes[0].RCI != 9.6 || changes[0].SegmentCode != "21277:153930" || changes[0].InspectionID != inspection.ID {
		t.Errorf("Unexpected score change %+v", changes[0])
	}
}

func TestDeletingInspectionCascades(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()
	inspection := newInspection(t, datastore, "21277:153930", time.Now().UTC())
	defect := addDefect(t, datastore, inspection.ID, persistence.Defect{DefectType: "pothole", Severity: 3})

	image, err := datastore.AddDefectImage(ctx, persistence.DefectImage{DefectID: defect.ID, ImageURL: "https://example.com/pothole.jpg"})
	if err != nil {
		t.Fatalf("Failed to add image: %s", err.Error())
	}

	if err = datastore.DeleteInspection(ctx, inspection.ID); err != nil {
		t.Fatalf("Failed to delete inspection: %s", err.Error())
	}

	if _, err = datastore.GetDefectByID(ctx, defect.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected defect to be deleted with its inspection, got %v", err)
	}
	if _, err = datastore.ListDefectImages(ctx, defect.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected images to be gone with their defect, got %v", err)
	}
	if err = datastore.DeleteDefectImage(ctx, image.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected image %d to be deleted with its defect, got %v", image.ID, err)
	}
	if err = datastore.DeleteDefect(ctx, defect.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Deleting a cascaded defect should report not found, got %v", err)
	}
}

func TestDeletingSegmentCascades(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()
	inspection := newInspection(t, datastore, "21277:153930", time.Now().UTC())
	defect := addDefect(t, datastore, inspection.ID, persistence.Defect{DefectType: "rutting", Severity: 3})

	segment, _ := datastore.GetSegmentByCode(ctx, "21277:153930")
	datastore.CreateMaintenanceAction(ctx, persistence.MaintenanceAction{SegmentID: segment.ID, ActionType: "patching"})

	if err := datastore.DeleteSegment(ctx, segment.ID); err != nil {
		t.Fatalf("Failed to delete segment: %s", err.Error())
	}

	if _, err := datastore.GetInspectionByID(ctx, inspection.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected inspection to be deleted with its segment, got %v", err)
	}
	if _, err := datastore.GetDefectByID(ctx, defect.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected defect to be deleted with its segment, got %v", err)
	}
	if err := datastore.DeleteSegment(ctx, segment.ID); !errors.Is(err, db.ErrNotFound) {
		t.Errorf("Expected second delete to report not found, got %v", err)
	}
}

func TestDeletingInspectorKeepsInspections(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()

	inspector, err := datastore.CreateInspector(ctx, persistence.Inspector{Name: "Kim", Email: "kim@example.com"})
	if err != nil {
		t.Fatalf("Failed to create inspector: %s", err.Error())
	}

	segment, _ := datastore.GetSegmentByCode(ctx, "21277:153930")
	inspection, err := datastore.CreateInspection(ctx, persistence.Inspection{SegmentID: segment.ID, InspectorID: &inspector.ID})
	if err != nil {
		t.Fatalf("Failed to create inspection: %s", err.Error())
	}

	if err = datastore.DeleteInspector(ctx, inspector.ID); err != nil {
		t.Fatalf("Failed to delete inspector: %s", err.Error())
	}

	kept, err := datastore.GetInspectionByID(ctx, inspection.ID)
	if err != nil || kept.InspectorID != nil {
		t.Errorf("Expected inspection to be kept without inspector, got %+v (%v)", kept, err)
	}
}

func TestMaintenanceActions(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()
	segment, _ := datastore.GetSegmentByCode(ctx, "21277:153931")

	action, err := datastore.CreateMaintenanceAction(ctx, persistence.MaintenanceAction{SegmentID: segment.ID, ActionType: "resurfacing", Cost: f(12000)})
	if err != nil {
		t.Fatalf("Failed to create maintenance action: %s", err.Error())
	}
	if action.Status != persistence.MaintenancePlanned {
		t.Errorf("Expected new actions to be planned, got %s", action.Status)
	}

	_, err = datastore.CreateMaintenanceAction(ctx, persistence.MaintenanceAction{SegmentID: segment.ID, Status: "DONE"})
	var verr *db.ValidationError
	if !errors.As(err, &verr) || verr.Field != "status" {
		t.Errorf("Expected unknown status to be rejected, got %v", err)
	}

	performed := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)
	updated, err := datastore.UpdateMaintenanceStatus(ctx, action.ID, persistence.MaintenanceCompleted, &performed)
	if err != nil || updated.Status != persistence.MaintenanceCompleted || updated.PerformedDate == nil {
		t.Errorf("Failed to complete maintenance action: %+v (%v)", updated, err)
	}

	actions, _ := datastore.ListMaintenanceActions(ctx, segment.ID)
	if len(actions) != 1 || actions[0].Status != persistence.MaintenanceCompleted {
		t.Errorf("Unexpected maintenance actions %+v", actions)
	}
}

func TestLatestInspectionPerSegment(t *testing.T) {
	datastore := newDatastore(t, seedData)
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	newInspection(t, datastore, "21277:153930", now.Add(-48*time.Hour))
	newest := newInspection(t, datastore, "21277:153930", now)
	newInspection(t, datastore, "21277:153930", now.Add(-24*time.Hour))

	latest, err := datastore.ListLatestInspectionPerSegment(ctx)
	if err != nil {
		t.Fatalf("Failed to list latest inspections: %s", err.Error())
	}

	if len(latest) != 2 {
		t.Fatalf("Expected every segment to be listed, got %d", len(latest))
	}
	if latest[0].Latest == nil || latest[0].Latest.ID != newest.ID {
		t.Errorf("Expected inspection %d to be the latest, got %+v", newest.ID, latest[0].Latest)
	}
	if latest[1].Latest != nil {
		t.Errorf("Expected segment without inspections to have no latest inspection, got %+v", latest[1].Latest)
	}
}

func TestLatestInspectionTieBreakIsDeterministic(t *testing.T) {
	datastore := newDatastore(t, seedData)
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	newInspection(t, datastore, "21277:153931", now)
	second := newInspection(t, datastore, "21277:153931", now)

	latest, _ := datastore.ListLatestInspectionPerSegment(context.Background())
	if latest[1].Latest == nil || latest[1].Latest.ID != second.ID {
		t.Errorf("Expected the inspection with the highest id to win a timestamp tie")
	}
}

func TestLatestInspectionAcrossTimezoneOffsets(t *testing.T) {
	datastore := newDatastore(t, seedData)
	cest := time.FixedZone("CEST", 2*60*60)

	//13:00 in CEST is 11:00 UTC and therefore older than 12:00 UTC
	newInspection(t, datastore, "21277:153930", time.Date(2026, 10, 1, 13, 0, 0, 0, cest))
	newer := newInspection(t, datastore, "21277:153930", time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC))

	latest, _ := datastore.ListLatestInspectionPerSegment(context.Background())
	if latest[0].Latest == nil || latest[0].Latest.ID != newer.ID {
		t.Errorf("Expected inspection %d to be the latest, got %+v", newer.ID, latest[0].Latest)
	}

	inspections, _ := datastore.ListInspectionsForSegment(context.Background(), latest[0].Segment.ID)
	if len(inspections) != 2 || inspections[0].ID != newer.ID {
		t.Errorf("Expected inspections to be listed newest first, got %+v", inspections)
	}
}

func urgentCodes(t *testing.T, datastore db.Datastore) []string {
	t.Helper()

	urgent, err := datastore.ListUrgentSegments(context.Background())
	if err != nil {
		t.Fatalf("Failed to list urgent segments: %s", err.Error())
	}

	codes := []string{}
	for _, u := range urgent {
		codes = append(codes, u.Code)
	}
	return codes
}

func TestUrgentSegmentsSnapshot(t *testing.T) {
	datastore := newDatastore(t, "")
	ctx := context.Background()
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	// 2.8
	deep := newInspection(t, datastore, "deep", now)
	addDefect(t, datastore, deep.ID, persistence.Defect{DefectType: "pothole", Severity: 5, DepthCM: f(18)})

	// exactly 3.5
	boundary := newInspection(t, datastore, "boundary", now)
	addDefect(t, datastore, boundary.ID, persistence.Defect{DefectType: "pothole", Severity: 5, DepthCM: f(16.25)})
	expectRCI(t, datastore, boundary.ID, 3.5)

	// 3.6
	above := newInspection(t, datastore, "above", now)
	addDefect(t, datastore, above.ID, persistence.Defect{DefectType: "pothole", Severity: 4, DepthCM: f(20)})
	expectRCI(t, datastore, above.ID, 3.6)

	// 0.0, inspected earlier than the others
	ruined := newInspection(t, datastore, "ruined", now.Add(-time.Hour))
	addDefect(t, datastore, ruined.ID, persistence.Defect{DefectType: "pothole", Severity: 5, DepthCM: f(25)})

	// 2.8 as well, but inspected earlier than deep
	older := newInspection(t, datastore, "older", now.Add(-time.Hour))
	addDefect(t, datastore, older.ID, persistence.Defect{DefectType: "pothole", Severity: 5, DepthCM: f(18)})

	// urgent once, but the latest inspection is fine
	repaired := newInspection(t, datastore, "repaired", now.Add(-time.Hour))
	addDefect(t, datastore, repaired.ID, persistence.Defect{DefectType: "pothole", Severity: 5, DepthCM: f(25)})
	latest := newInspection(t, datastore, "repaired", now)
	datastore.RecomputeRCI(ctx, latest.ID)

	// never scored
	newInspection(t, datastore, "unscored", now)

	count, err := datastore.RefreshUrgentSegments(ctx)
	if err != nil {
		t.Fatalf("Failed to refresh urgent segments: %s", err.Error())
	}
	if count != 4 {
		t.Errorf("Unexpected number of urgent segments. %d != 4", count)
	}

	expected := []string{"ruined", "deep", "older", "boundary"}
	if diff := cmp.Diff(expected, urgentCodes(t, datastore)); diff != "" {
		t.Errorf("Urgent segments mismatch (-want +got):\n%s", diff)
	}
}

func TestUrgentSegmentsSnapshotIsOnlyUpdatedOnRefresh(t *testing.T) {
	datastore := newDatastore(t, "")
	ctx := context.Background()

	inspection := newInspection(t, datastore, "stale", time.Now().UTC())
	datastore.RefreshUrgentSegments(ctx)

	addDefect(t, datastore, inspection.ID, persistence.Defect{DefectType: "pothole", Severity: 5, DepthCM: f(18)})

	if codes := urgentCodes(t, datastore); len(codes) != 0 {
		t.Errorf("Expected snapshot to be unchanged until refreshed, got %v", codes)
	}

	datastore.RefreshUrgentSegments(ctx)

	if diff := cmp.Diff([]string{"stale"}, urgentCodes(t, datastore)); diff != "" {
		t.Errorf("Urgent segments mismatch (-want +got):\n%s", diff)
	}

	datastore.DeleteDefect(ctx, 1)
	datastore.RefreshUrgentSegments(ctx)

	if codes := urgentCodes(t, datastore); len(codes) != 0 {
		t.Errorf("Expected the previous snapshot to be replaced, got %v", codes)
	}
}
