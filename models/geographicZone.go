package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"gorm.io/gorm"
)

const (
	ZoneLevelProvince = "PROVINCE"
	ZoneLevelDistrict = "DISTRICT"
)

// GeographicZone models the province/district hierarchy. Districts reference
// their province through ParentId, resolved by code at reconcile time.
type GeographicZone struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Level     string    `gorm:"size:20;not null" json:"level"`
	ParentId  int       `gorm:"index" json:"parent_id"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func FindGeographicZoneByCode(ctx context.Context, code string) (*GeographicZone, error) {
	var zone GeographicZone
	err := config.GetDB().WithContext(ctx).Where("code = ?", code).Take(&zone).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &zone, nil
}

func SaveGeographicZone(ctx context.Context, zone *GeographicZone) error {
	return config.GetDB().WithContext(ctx).Save(zone).Error
}
