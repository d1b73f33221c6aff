package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"gorm.io/gorm"
)

// Facility is a health facility known to this server. Rows are owned by the
// FC feed: the natural key is Code, the internal id never changes once
// assigned, and deactivation is a flag, never a delete.
type Facility struct {
	ID                  int       `gorm:"primary_key" json:"id"`
	Code                string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name                string    `gorm:"size:200;not null" json:"name"`
	Description         string    `gorm:"type:text" json:"description"`
	DistrictCode        string    `gorm:"size:50;index" json:"district_code"`
	FacilityTypeCode    string    `gorm:"size:50;index" json:"facility_type_code"`
	SupervisoryNodeCode string    `gorm:"size:50;index" json:"supervisory_node_code"`
	IsActive            *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindFacilityByCode returns (nil, nil) when no row matches.
func FindFacilityByCode(ctx context.Context, code string) (*Facility, error) {
	var facility Facility
	err := config.GetDB().WithContext(ctx).Where("code = ?", code).Take(&facility).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &facility, nil
}

func SaveFacility(ctx context.Context, facility *Facility) error {
	return config.GetDB().WithContext(ctx).Save(facility).Error
}

// ListSiblingFacilities returns the active facilities that share a
// supervisory node with the given facility, excluding the facility itself.
func ListSiblingFacilities(ctx context.Context, facility *Facility) ([]*Facility, error) {
	if facility.SupervisoryNodeCode == "" {
		return nil, nil
	}
	var results []*Facility
	err := config.GetDB().WithContext(ctx).
		Where("supervisory_node_code = ? AND code <> ? AND is_active = ?",
			facility.SupervisoryNodeCode, facility.Code, true).
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
