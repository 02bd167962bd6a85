package database

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/rci"
)

// SegmentInspection pairs a segment with its most recent inspection, if it has any
type SegmentInspection struct {
	Segment persistence.Segment     `json:"segment"`
	Latest  *persistence.Inspection `json:"latestInspection"`
}

// when several inspections share the latest timestamp the one with the highest id wins
const latestInspectionQuery = `id = (
	SELECT i2.id FROM inspections i2
	WHERE i2.segment_id = inspections.segment_id
	ORDER BY i2.inspected_at DESC, i2.id DESC
	LIMIT 1)`

func (db *myDB) ListLatestInspectionPerSegment(ctx context.Context) ([]SegmentInspection, error) {
	return latestInspectionPerSegment(db.impl.WithContext(ctx))
}

func latestInspectionPerSegment(tx *gorm.DB) ([]SegmentInspection, error) {
	segments := []persistence.Segment{}
	if err := tx.Order("id").Find(&segments).Error; err != nil {
		return nil, err
	}

	inspections := []persistence.Inspection{}
	if err := tx.Where(latestInspectionQuery).Find(&inspections).Error; err != nil {
		return nil, err
	}

	latest := map[uint]persistence.Inspection{}
	for _, inspection := range inspections {
		latest[inspection.SegmentID] = inspection
	}

	result := make([]SegmentInspection, 0, len(segments))
	for _, segment := range segments {
		si := SegmentInspection{Segment: segment}
		if inspection, ok := latest[segment.ID]; ok {
			si.Latest = &inspection
		}
		result = append(result, si)
	}

	return result, nil
}

// RefreshUrgentSegments rebuilds the snapshot of segments whose latest inspection scored at
// or below the urgency threshold and returns the number of urgent segments
func (db *myDB) RefreshUrgentSegments(ctx context.Context) (int, error) {
	db.refreshMutex.Lock()
	defer db.refreshMutex.Unlock()

	var snapshot []persistence.UrgentSegment
	refreshedAt := time.Now().UTC()

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if db.supportsLocking() {
			// readers are let through, other refreshes wait
			if err := tx.Exec("LOCK TABLE urgent_segments IN SHARE ROW EXCLUSIVE MODE").Error; err != nil {
				return err
			}
		}

		latest, err := latestInspectionPerSegment(tx)
		if err != nil {
			return err
		}

		snapshot = buildUrgentSnapshot(latest, refreshedAt)

		err = tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&persistence.UrgentSegment{}).Error
		if err != nil {
			return err
		}

		if len(snapshot) == 0 {
			return nil
		}

		return tx.CreateInBatches(snapshot, 100).Error
	})
	if err != nil {
		return 0, err
	}

	log.Infof("Urgent segment snapshot refreshed with %d segments.", len(snapshot))
	return len(snapshot), nil
}

func buildUrgentSnapshot(latest []SegmentInspection, refreshedAt time.Time) []persistence.UrgentSegment {
	urgent := []SegmentInspection{}
	for _, si := range latest {
		if si.Latest != nil && si.Latest.RCI != nil && rci.IsUrgent(*si.Latest.RCI) {
			urgent = append(urgent, si)
		}
	}

	sort.SliceStable(urgent, func(i, j int) bool {
		a, b := urgent[i].Latest, urgent[j].Latest
		if *a.RCI != *b.RCI {
			return *a.RCI < *b.RCI
		}
		if !a.InspectedAt.Equal(b.InspectedAt) {
			return a.InspectedAt.After(b.InspectedAt)
		}
		return urgent[i].Segment.ID < urgent[j].Segment.ID
	})

	snapshot := make([]persistence.UrgentSegment, 0, len(urgent))
	for idx, si := range urgent {
		snapshot = append(snapshot, persistence.UrgentSegment{
			Priority:     idx + 1,
			SegmentID:    si.Segment.ID,
			Code:         si.Segment.Code,
			Name:         si.Segment.Name,
			InspectionID: si.Latest.ID,
			InspectedAt:  si.Latest.InspectedAt,
			RCI:          *si.Latest.RCI,
			RefreshedAt:  refreshedAt,
		})
	}

	return snapshot
}

// ListUrgentSegments returns the snapshot built by the last refresh. It may lag behind the
// inspections by as much as the time since that refresh.
func (db *myDB) ListUrgentSegments(ctx context.Context) ([]persistence.UrgentSegment, error) {
	urgent := []persistence.UrgentSegment{}
	err := db.impl.WithContext(ctx).Order("priority").Find(&urgent).Error
	return urgent, err
}
