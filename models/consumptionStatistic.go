package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type StatisticSource string

const (
	// StatisticSourceCMM is the average monthly consumption estimate for a
	// product at one facility.
	StatisticSourceCMM StatisticSource = "CMM"
	// StatisticSourceCP is the consumption projection used for facilities
	// whose orders aggregate downstream distribution points.
	StatisticSourceCP StatisticSource = "CP"
)

// ConsumptionStatistic is keyed by (facility, product, period, year, source).
type ConsumptionStatistic struct {
	ID               int             `gorm:"primary_key" json:"id"`
	FacilityCode     string          `gorm:"size:50;not null;uniqueIndex:idx_stat_key" json:"facility_code"`
	ProductCode      string          `gorm:"size:50;not null;uniqueIndex:idx_stat_key" json:"product_code"`
	Source           StatisticSource `gorm:"size:10;not null;uniqueIndex:idx_stat_key" json:"source"`
	Period           int             `gorm:"not null;uniqueIndex:idx_stat_key" json:"period"`
	Year             int             `gorm:"not null;uniqueIndex:idx_stat_key" json:"year"`
	Value            decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"value"`
	MaxMonthsOfStock decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"max_months_of_stock"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func FindConsumptionStatistic(ctx context.Context, facilityCode, productCode string, source StatisticSource, period, year int) (*ConsumptionStatistic, error) {
	var stat ConsumptionStatistic
	err := config.GetDB().WithContext(ctx).
		Where("facility_code = ? AND product_code = ? AND source = ? AND period = ? AND year = ?",
			facilityCode, productCode, source, period, year).
		Take(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stat, nil
}

// FindAnyConsumptionStatistic looks the key up across sources, preferring CMM.
func FindAnyConsumptionStatistic(ctx context.Context, facilityCode, productCode string, period, year int) (*ConsumptionStatistic, error) {
	var stat ConsumptionStatistic
	err := config.GetDB().WithContext(ctx).
		Where("facility_code = ? AND product_code = ? AND period = ? AND year = ?",
			facilityCode, productCode, period, year).
		Order("source"). // CMM before CP
		Take(&stat).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stat, nil
}

func SaveConsumptionStatistic(ctx context.Context, stat *ConsumptionStatistic) error {
	return config.GetDB().WithContext(ctx).Save(stat).Error
}
