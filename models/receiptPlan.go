package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReceiptPlan struct {
	ID                int               `gorm:"primary_key" json:"id"`
	ReceiptPlanNumber string            `gorm:"size:50;uniqueIndex;not null" json:"receipt_plan_number"`
	FacilityCode      string            `gorm:"size:50;index;not null" json:"facility_code"`
	PlanDate          time.Time         `json:"plan_date"`
	IsActive          *bool             `gorm:"not null;default:true" json:"is_active"`
	Lines             []ReceiptPlanLine `json:"lines"`
	CreatedAt         time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type ReceiptPlanLine struct {
	ID               int             `gorm:"primary_key" json:"id"`
	ReceiptPlanId    int             `gorm:"index;not null" json:"receipt_plan_id"`
	ProductCode      string          `gorm:"size:50;not null" json:"product_code"`
	Quantity         decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"quantity"`
	ApprovedQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"approved_quantity"`
}

func FindReceiptPlanByNumber(ctx context.Context, number string) (*ReceiptPlan, error) {
	var plan ReceiptPlan
	err := config.GetDB().WithContext(ctx).
		Preload("Lines").
		Where("receipt_plan_number = ?", number).
		Take(&plan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &plan, nil
}

// SaveReceiptPlan replaces the plan's lines wholesale; the FC feed resends
// complete plans, not deltas.
func SaveReceiptPlan(ctx context.Context, plan *ReceiptPlan) error {
	db := config.GetDB().WithContext(ctx)
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Lines").Save(plan).Error; err != nil {
			return err
		}
		if err := tx.Where("receipt_plan_id = ?", plan.ID).
			Delete(&ReceiptPlanLine{}).Error; err != nil {
			return err
		}
		for i := range plan.Lines {
			plan.Lines[i].ID = 0
			plan.Lines[i].ReceiptPlanId = plan.ID
		}
		if len(plan.Lines) == 0 {
			return nil
		}
		return tx.Create(&plan.Lines).Error
	})
}
