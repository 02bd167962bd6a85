package database

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

func (db *myDB) CreateInspection(ctx context.Context, inspection persistence.Inspection) (*persistence.Inspection, error) {
	inspection.ID = 0
	inspection.RCI = nil

	if inspection.InspectedAt.IsZero() {
		inspection.InspectedAt = time.Now()
	}
	//sqlite compares timestamps as text, which only orders them correctly within a single offset
	inspection.InspectedAt = inspection.InspectedAt.UTC()

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if found, err := exists(tx, &persistence.Segment{}, inspection.SegmentID); err != nil {
			return err
		} else if !found {
			return invalid("segment_id", "segment %d does not exist", inspection.SegmentID)
		}
		if inspection.InspectorID != nil {
			if found, err := exists(tx, &persistence.Inspector{}, *inspection.InspectorID); err != nil {
				return err
			} else if !found {
				return invalid("inspector_id", "inspector %d does not exist", *inspection.InspectorID)
			}
		}

		return tx.Create(&inspection).Error
	})
	if err != nil {
		return nil, err
	}

	return &inspection, nil
}

// DeleteInspection removes an inspection along with its defects and their images
func (db *myDB) DeleteInspection(ctx context.Context, id uint) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteInspections(tx, tx.Model(&persistence.Inspection{}).Select("id").Where("id = ?", id), "inspection", id)
	})
}

// deleteInspections removes the inspections selected by a subquery together with their defects
// and images. Children are removed explicitly so that no recomputation is triggered for them.
func deleteInspections(tx *gorm.DB, inspectionIDs *gorm.DB, entity string, id uint) error {
	defectIDs := tx.Model(&persistence.Defect{}).Select("id").Where("inspection_id IN (?)", inspectionIDs)

	if err := tx.Where("defect_id IN (?)", defectIDs).Delete(&persistence.DefectImage{}).Error; err != nil {
		return err
	}
	if err := tx.Where("inspection_id IN (?)", inspectionIDs).Delete(&persistence.Defect{}).Error; err != nil {
		return err
	}

	result := tx.Where("id IN (?)", inspectionIDs).Delete(&persistence.Inspection{})
	if result.Error != nil {
		return result.Error
	}
	if entity == "inspection" && result.RowsAffected == 0 {
		return notFound(entity, id)
	}
	return nil
}

func (db *myDB) GetInspectionByID(ctx context.Context, id uint) (*persistence.Inspection, error) {
	inspection := &persistence.Inspection{}
	if err := db.impl.WithContext(ctx).First(inspection, id).Error; err != nil {
		return nil, lookupError(err, "inspection", id)
	}
	return inspection, nil
}

func (db *myDB) ListInspectionsForSegment(ctx context.Context, segmentID uint) ([]persistence.Inspection, error) {
	if found, err := exists(db.impl.WithContext(ctx), &persistence.Segment{}, segmentID); err != nil {
		return nil, err
	} else if !found {
		return nil, notFound("segment", segmentID)
	}

	inspections := []persistence.Inspection{}
	err := db.impl.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Order("inspected_at desc, id desc").
		Find(&inspections).Error

	return inspections, err
}

// RecomputeRCI recalculates the road condition index of an inspection from its current
// defects and stores it. Calling it repeatedly without defect changes in between is a no-op.
func (db *myDB) RecomputeRCI(ctx context.Context, inspectionID uint) (float64, error) {
	var change ScoreChange

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		change, err = db.recompute(tx, inspectionID)
		return err
	})
	if err != nil {
		return 0, err
	}

	db.notify(change)
	return change.RCI, nil
}

// recompute is the only writer of the rci column. It must be called with the transaction
// of whatever mutation made the recomputation necessary.
func (db *myDB) recompute(tx *gorm.DB, inspectionID uint) (ScoreChange, error) {
	inspection, err := db.lockInspection(tx, inspectionID)
	if err != nil {
		return ScoreChange{}, err
	}

	defects := []persistence.Defect{}
	if err = tx.Where("inspection_id = ?", inspectionID).Find(&defects).Error; err != nil {
		return ScoreChange{}, err
	}

	score := db.calculator.Score(defects)

	err = tx.Model(&persistence.Inspection{}).Where("id = ?", inspectionID).Update("rci", score).Error
	if err != nil {
		return ScoreChange{}, err
	}

	change := ScoreChange{
		InspectionID: inspectionID,
		SegmentID:    inspection.SegmentID,
		RCI:          score,
		Timestamp:    time.Now().UTC(),
	}

	err = tx.Model(&persistence.Segment{}).Select("code").Where("id = ?", inspection.SegmentID).Scan(&change.SegmentCode).Error
	return change, err
}

// lockInspection loads an inspection and, where the dialect allows it, holds a row lock on it
// until the transaction ends so that concurrent defect writes to the same inspection serialize
func (db *myDB) lockInspection(tx *gorm.DB, inspectionID uint) (*persistence.Inspection, error) {
	query := tx
	if db.supportsLocking() {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	inspection := &persistence.Inspection{}
	if err := query.First(inspection, inspectionID).Error; err != nil {
		return nil, lookupError(err, "inspection", inspectionID)
	}

	return inspection, nil
}

func exists(tx *gorm.DB, model interface{}, id uint) (bool, error) {
	var count int64
	if err := tx.Model(model).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
