package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type RequisitionStatus string

const (
	RequisitionStatusInitiated RequisitionStatus = "INITIATED"
	RequisitionStatusSubmitted RequisitionStatus = "SUBMITTED"
	RequisitionStatusApproved  RequisitionStatus = "APPROVED"
	RequisitionStatusReleased  RequisitionStatus = "RELEASED"
)

type Requisition struct {
	ID                int               `gorm:"primary_key" json:"id"`
	RequisitionNumber string            `gorm:"size:50;uniqueIndex;not null" json:"requisition_number"`
	FacilityId        int               `gorm:"index;not null" json:"facility_id"`
	ProgramId         int               `gorm:"index;not null" json:"program_id"`
	Status            RequisitionStatus `gorm:"size:20;not null" json:"status"`
	PeriodStartDate   time.Time         `json:"period_start_date"`
	PeriodEndDate     time.Time         `json:"period_end_date"`
	Lines             []RequisitionLine `json:"lines"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type RequisitionLine struct {
	ID                int                 `gorm:"primary_key" json:"id"`
	RequisitionId     int                 `gorm:"index;not null" json:"requisition_id"`
	ProductCode       string              `gorm:"size:50;not null" json:"product_code"`
	StockOnHand       decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"stock_on_hand"`
	SuggestedQuantity decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"suggested_quantity"`
	ApprovedQuantity  decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"approved_quantity"`
}

// RequisitionLineExtension records which consumption statistic fed a line's
// suggested quantity, for audit.
type RequisitionLineExtension struct {
	ID                int             `gorm:"primary_key" json:"id"`
	RequisitionLineId int             `gorm:"uniqueIndex;not null" json:"requisition_line_id"`
	StatisticSource   StatisticSource `gorm:"size:10;not null" json:"statistic_source"`
	StatisticValue    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"statistic_value"`
	MaxMonthsOfStock  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"max_months_of_stock"`
	SuggestedQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"suggested_quantity"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func FindRequisitionByNumber(ctx context.Context, number string) (*Requisition, error) {
	var requisition Requisition
	err := config.GetDB().WithContext(ctx).
		Preload("Lines").
		Where("requisition_number = ?", number).
		Take(&requisition).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &requisition, nil
}

func SaveRequisitionLine(ctx context.Context, line *RequisitionLine) error {
	return config.GetDB().WithContext(ctx).Save(line).Error
}

func SaveRequisitionLineExtension(ctx context.Context, ext *RequisitionLineExtension) error {
	return config.GetDB().WithContext(ctx).Save(ext).Error
}

// RecentApprovedStockOnHand returns the stock-on-hand of the given product
// from each listed facility's most recent approved requisition in the program
// since the cutoff. One value per facility at most.
func RecentApprovedStockOnHand(ctx context.Context, facilityIds []int, programId int, productCode string, since time.Time) ([]decimal.Decimal, error) {
	if len(facilityIds) == 0 {
		return nil, nil
	}
	db := config.GetDB().WithContext(ctx)

	var values []decimal.Decimal
	for _, facilityId := range facilityIds {
		var requisition Requisition
		err := db.Preload("Lines").
			Where("facility_id = ? AND program_id = ? AND status = ? AND period_end_date >= ?",
				facilityId, programId, RequisitionStatusApproved, since).
			Order("period_end_date DESC").
			Take(&requisition).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, err
		}
		for _, line := range requisition.Lines {
			if line.ProductCode == productCode {
				values = append(values, line.StockOnHand)
				break
			}
		}
	}
	return values, nil
}
