package database

import (
	"context"
	"strings"

	"github.com/paulmach/orb"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

func (db *myDB) CreateSegment(ctx context.Context, segment persistence.Segment) (*persistence.Segment, error) {
	segment.ID = 0
	segment.Code = strings.TrimSpace(segment.Code)

	if segment.Code == "" {
		return nil, invalid("code", "a segment code is required")
	}
	if segment.Length < 0 {
		return nil, invalid("length", "must not be negative")
	}

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&persistence.Segment{}).Where("code = ?", segment.Code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return invalid("code", "segment %s is already registered", segment.Code)
		}

		return tx.Create(&segment).Error
	})
	if err != nil {
		return nil, err
	}

	return &segment, nil
}

// DeleteSegment removes a segment together with its inspections, defects, images and
// maintenance actions
func (db *myDB) DeleteSegment(ctx context.Context, id uint) error {
	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := deleteInspections(tx, tx.Model(&persistence.Inspection{}).Select("id").Where("segment_id = ?", id), "segment", id)
		if err != nil {
			return err
		}

		if err = tx.Where("segment_id = ?", id).Delete(&persistence.MaintenanceAction{}).Error; err != nil {
			return err
		}

		result := tx.Delete(&persistence.Segment{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return notFound("segment", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.Infof("Deleted segment %d and everything recorded against it.", id)
	return nil
}

func (db *myDB) GetSegmentByID(ctx context.Context, id uint) (*persistence.Segment, error) {
	segment := &persistence.Segment{}
	if err := db.impl.WithContext(ctx).First(segment, id).Error; err != nil {
		return nil, lookupError(err, "segment", id)
	}
	return segment, nil
}

func (db *myDB) GetSegmentByCode(ctx context.Context, code string) (*persistence.Segment, error) {
	segment := &persistence.Segment{}
	if err := db.impl.WithContext(ctx).Where("code = ?", code).First(segment).Error; err != nil {
		return nil, lookupError(err, "segment", code)
	}
	return segment, nil
}

func (db *myDB) GetSegmentCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.impl.WithContext(ctx).Model(&persistence.Segment{}).Count(&count).Error
	return count, err
}

func (db *myDB) ListSegments(ctx context.Context) ([]persistence.Segment, error) {
	segments := []persistence.Segment{}
	err := db.impl.WithContext(ctx).Order("id").Find(&segments).Error
	return segments, err
}

func (db *myDB) GetSegmentsNearPoint(ctx context.Context, lat, lon float64, maxDistance uint64) ([]persistence.Segment, error) {
	all, err := db.ListSegments(ctx)
	if err != nil {
		return nil, err
	}

	pt := orb.Point{lon, lat}
	segments := []persistence.Segment{}

	for _, segment := range all {
		if distanceFromBound(lineOf(segment).Bound(), pt) < float64(maxDistance) {
			segments = append(segments, segment)
		}
	}

	return segments, nil
}

// GetSegmentsWithinRect returns the segments whose bounding box touches the rectangle spanned
// by two opposite corners
func (db *myDB) GetSegmentsWithinRect(ctx context.Context, lat0, lon0, lat1, lon1 float64) ([]persistence.Segment, error) {
	all, err := db.ListSegments(ctx)
	if err != nil {
		return nil, err
	}

	rect := boundFromCorners(lat0, lon0, lat1, lon1)
	segments := []persistence.Segment{}

	for _, segment := range all {
		if rect.Intersects(lineOf(segment).Bound()) {
			segments = append(segments, segment)
		}
	}

	log.Debugf("Found %d segments within rect (%f,%f)(%f,%f).", len(segments), rect.Top(), rect.Left(), rect.Bottom(), rect.Right())

	return segments, nil
}

func (db *myDB) CreateInspector(ctx context.Context, inspector persistence.Inspector) (*persistence.Inspector, error) {
	inspector.ID = 0
	if strings.TrimSpace(inspector.Name) == "" {
		return nil, invalid("name", "an inspector name is required")
	}

	if err := db.impl.WithContext(ctx).Create(&inspector).Error; err != nil {
		return nil, err
	}
	return &inspector, nil
}

// DeleteInspector removes an inspector. Inspections performed by the inspector are kept
// with their inspector reference cleared.
func (db *myDB) DeleteInspector(ctx context.Context, id uint) error {
	return db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&persistence.Inspection{}).Where("inspector_id = ?", id).Update("inspector_id", nil).Error
		if err != nil {
			return err
		}

		result := tx.Delete(&persistence.Inspector{}, id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return notFound("inspector", id)
		}
		return nil
	})
}

func (db *myDB) GetInspectorByID(ctx context.Context, id uint) (*persistence.Inspector, error) {
	inspector := &persistence.Inspector{}
	if err := db.impl.WithContext(ctx).First(inspector, id).Error; err != nil {
		return nil, lookupError(err, "inspector", id)
	}
	return inspector, nil
}
