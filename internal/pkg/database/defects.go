package database

import (
	"context"
	"errors"
	"strings"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/iot-for-tillgenglighet/api-roadcondition/internal/pkg/persistence"
)

const (
	minSeverity = 1
	maxSeverity = 5
)

func validateDefect(defect persistence.Defect) error {
	if strings.TrimSpace(defect.DefectType) == "" {
		return invalid("defect_type", "a defect type is required")
	}
	if defect.Severity < minSeverity || defect.Severity > maxSeverity {
		return invalid("severity", "must be between %d and %d, got %d", minSeverity, maxSeverity, defect.Severity)
	}

	for field, value := range map[string]*float64{"length_m": defect.LengthM, "width_m": defect.WidthM, "depth_cm": defect.DepthCM} {
		if value != nil && *value < 0 {
			return invalid(field, "must not be negative")
		}
	}

	if (defect.LocationLat == nil) != (defect.LocationLon == nil) {
		return invalid("location", "both latitude and longitude must be given")
	}

	return nil
}

// CreateDefect records a defect and recomputes the score of its inspection in the same
// transaction
func (db *myDB) CreateDefect(ctx context.Context, defect persistence.Defect) (*persistence.Defect, error) {
	defect.ID = 0
	defect.Images = nil

	if err := validateDefect(defect); err != nil {
		return nil, err
	}

	var change ScoreChange

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := db.lockInspection(tx, defect.InspectionID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return invalid("inspection_id", "inspection %d does not exist", defect.InspectionID)
			}
			return err
		}

		if err := tx.Create(&defect).Error; err != nil {
			return err
		}

		var err error
		change, err = db.recompute(tx, defect.InspectionID)
		return surfaced(defect.InspectionID, err)
	})
	if err != nil {
		return nil, err
	}

	db.notify(change)
	return &defect, nil
}

// UpdateDefect replaces the observed attributes of a defect. The inspection a defect
// belongs to can not be changed.
func (db *myDB) UpdateDefect(ctx context.Context, id uint, update persistence.Defect) (*persistence.Defect, error) {
	if err := validateDefect(update); err != nil {
		return nil, err
	}

	var change ScoreChange
	defect := persistence.Defect{}

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&defect, id).Error; err != nil {
			return lookupError(err, "defect", id)
		}

		if update.InspectionID != 0 && update.InspectionID != defect.InspectionID {
			return invalid("inspection_id", "a defect can not be moved to another inspection")
		}

		if _, err := db.lockInspection(tx, defect.InspectionID); err != nil {
			return surfaced(defect.InspectionID, err)
		}

		defect.DefectType = update.DefectType
		defect.Severity = update.Severity
		defect.LengthM = update.LengthM
		defect.WidthM = update.WidthM
		defect.DepthCM = update.DepthCM
		defect.LocationLat = update.LocationLat
		defect.LocationLon = update.LocationLon
		defect.Comments = update.Comments

		if err := tx.Save(&defect).Error; err != nil {
			return err
		}

		var err error
		change, err = db.recompute(tx, defect.InspectionID)
		return surfaced(defect.InspectionID, err)
	})
	if err != nil {
		return nil, err
	}

	db.notify(change)
	return &defect, nil
}

// DeleteDefect removes a defect and its images and recomputes the score of the inspection
// the defect belonged to. If that inspection is gone as well there is nothing to maintain.
func (db *myDB) DeleteDefect(ctx context.Context, id uint) error {
	var change *ScoreChange

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		defect := persistence.Defect{}
		if err := tx.First(&defect, id).Error; err != nil {
			return lookupError(err, "defect", id)
		}

		inspectionID := defect.InspectionID

		if err := tx.Where("defect_id = ?", id).Delete(&persistence.DefectImage{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&defect).Error; err != nil {
			return err
		}

		c, err := db.recompute(tx, inspectionID)
		if errors.Is(err, ErrNotFound) {
			log.Debugf("Inspection %d vanished together with defect %d. No score to maintain.", inspectionID, id)
			return nil
		} else if err != nil {
			return err
		}

		change = &c
		return nil
	})
	if err != nil {
		return err
	}

	if change != nil {
		db.notify(*change)
	}
	return nil
}

func (db *myDB) GetDefectByID(ctx context.Context, id uint) (*persistence.Defect, error) {
	defect := &persistence.Defect{}
	if err := db.impl.WithContext(ctx).First(defect, id).Error; err != nil {
		return nil, lookupError(err, "defect", id)
	}
	return defect, nil
}

func (db *myDB) ListDefects(ctx context.Context, inspectionID uint) ([]persistence.Defect, error) {
	if found, err := exists(db.impl.WithContext(ctx), &persistence.Inspection{}, inspectionID); err != nil {
		return nil, err
	} else if !found {
		return nil, notFound("inspection", inspectionID)
	}

	defects := []persistence.Defect{}
	err := db.impl.WithContext(ctx).Where("inspection_id = ?", inspectionID).Order("id").Find(&defects).Error
	return defects, err
}

// a create or update must never leave a defect behind without a maintained score
func surfaced(inspectionID uint, err error) error {
	if errors.Is(err, ErrNotFound) {
		return &IntegrityViolationError{InspectionID: inspectionID, Err: err}
	}
	return err
}

func (db *myDB) AddDefectImage(ctx context.Context, image persistence.DefectImage) (*persistence.DefectImage, error) {
	image.ID = 0
	image.ImageURL = strings.TrimSpace(image.ImageURL)

	if image.ImageURL == "" {
		return nil, invalid("image_url", "an image url is required")
	}

	err := db.impl.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if found, err := exists(tx, &persistence.Defect{}, image.DefectID); err != nil {
			return err
		} else if !found {
			return invalid("defect_id", "defect %d does not exist", image.DefectID)
		}
		return tx.Create(&image).Error
	})
	if err != nil {
		return nil, err
	}

	return &image, nil
}

func (db *myDB) DeleteDefectImage(ctx context.Context, id uint) error {
	result := db.impl.WithContext(ctx).Delete(&persistence.DefectImage{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return notFound("defect image", id)
	}
	return nil
}

func (db *myDB) ListDefectImages(ctx context.Context, defectID uint) ([]persistence.DefectImage, error) {
	if found, err := exists(db.impl.WithContext(ctx), &persistence.Defect{}, defectID); err != nil {
		return nil, err
	} else if !found {
		return nil, notFound("defect", defectID)
	}

	images := []persistence.DefectImage{}
	err := db.impl.WithContext(ctx).Where("defect_id = ?", defectID).Order("id").Find(&images).Error
	return images, err
}
