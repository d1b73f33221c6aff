package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"gorm.io/gorm"
)

type FacilityType struct {
	ID          int       `gorm:"primary_key" json:"id"`
	Code        string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name        string    `gorm:"size:200;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func FindFacilityTypeByCode(ctx context.Context, code string) (*FacilityType, error) {
	var ft FacilityType
	err := config.GetDB().WithContext(ctx).Where("code = ?", code).Take(&ft).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ft, nil
}

func SaveFacilityType(ctx context.Context, ft *FacilityType) error {
	return config.GetDB().WithContext(ctx).Save(ft).Error
}
