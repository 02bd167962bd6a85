package database

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

func (db *myDB) CreateMaintenanceAction(ctx context.Context, action persistence.MaintenanceAction) (*persistence.MaintenanceAction, error) {
	action.ID = 0

	if action.Status == "" {
		action.Status = persistence.MaintenancePlanned
	}
	if !action.Status.IsValid() {
		return nil, invalid("status", "unknown maintenance status %q", action.Status)
	}
	if action.Cost != nil && *action.Cost < 0 {
		return nil, invalid("cost", "must not be negative")
	}

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if found, err := exists(tx, &persistence.Segment{}, action.SegmentID); err != nil {
			return err
		} else if !found {
			return invalid("segment_id", "segment %d does not exist", action.SegmentID)
		}
		return tx.Create(&action).Error
	})
	if err != nil {
		return nil, err
	}

	return &action, nil
}

func (db *myDB) ListMaintenanceActions(ctx context.Context, segmentID uint) ([]persistence.MaintenanceAction, error) {
	if found, err := exists(db.impl.WithContext(ctx), &persistence.Segment{}, segmentID); err != nil {
		return nil, err
	} else if !found {
		return nil, notFound("segment", segmentID)
	}

	actions := []persistence.MaintenanceAction{}
	err := db.impl.WithContext(ctx).Where("segment_id = ?", segmentID).Order("id").Find(&actions).Error
	return actions, err
}

// UpdateMaintenanceStatus stores a new status, and the date it was performed when given
func (db *myDB) UpdateMaintenanceStatus(ctx context.Context, id uint, status persistence.MaintenanceStatus, performed *time.Time) (*persistence.MaintenanceAction, error) {
	if !status.IsValid() {
		return nil, invalid("status", "unknown maintenance status %q", status)
	}

	action := persistence.MaintenanceAction{}

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&action, id).Error; err != nil {
			return lookupError(err, "maintenance action", id)
		}

		action.Status = status
		if performed != nil {
			action.PerformedDate = performed
		}

		return tx.Save(&action).Error
	})
	if err != nil {
		return nil, err
	}

	return &action, nil
}
