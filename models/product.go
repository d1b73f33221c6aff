package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"gorm.io/gorm"
)

// Product is identified by the national formulary (FNM) code.
type Product struct {
	ID              int       `gorm:"primary_key" json:"id"`
	FnmCode         string    `gorm:"size:50;uniqueIndex;not null" json:"fnm_code"`
	FullDescription string    `gorm:"size:500;not null" json:"full_description"`
	IsActive        *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func FindProductByFnmCode(ctx context.Context, fnmCode string) (*Product, error) {
	var product Product
	err := config.GetDB().WithContext(ctx).Where("fnm_code = ?", fnmCode).Take(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func SaveProduct(ctx context.Context, product *Product) error {
	return config.GetDB().WithContext(ctx).Save(product).Error
}
