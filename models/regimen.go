package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"gorm.io/gorm"
)

// Regimen belongs to a program; the FC feed declares the owning program by
// its "real program" area code, resolved at reconcile time.
type Regimen struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Code      string    `gorm:"size:50;uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	ProgramId int       `gorm:"index;not null" json:"program_id"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func FindRegimenByCode(ctx context.Context, code string) (*Regimen, error) {
	var regimen Regimen
	err := config.GetDB().WithContext(ctx).Where("code = ?", code).Take(&regimen).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &regimen, nil
}

func SaveRegimen(ctx context.Context, regimen *Regimen) error {
	return config.GetDB().WithContext(ctx).Save(regimen).Error
}
