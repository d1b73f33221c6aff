package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"bitbucket.org/hisdatafocus/lmis_backend/utils"
	"gorm.io/gorm"
)

// Order is the fulfillment side of a requisition. A requisition converts to
// an order at most once; later fulfillments append sub-orders that point at
// the same external lineage.
type Order struct {
	ID              int       `gorm:"primary_key" json:"id"`
	OrderNumber     string    `gorm:"size:50;uniqueIndex;not null" json:"order_number"`
	RequisitionId   int       `gorm:"index;not null" json:"requisition_id"`
	IsSubOrder      *bool     `gorm:"not null;default:false" json:"is_sub_order"`
	ExternalLineage string    `gorm:"size:100;index" json:"external_lineage"`
	CreatedById     int       `json:"created_by_id"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func CountOrdersForRequisition(ctx context.Context, requisitionId int) (int64, error) {
	var count int64
	err := config.GetDB().WithContext(ctx).
		Model(&Order{}).
		Where("requisition_id = ?", requisitionId).
		Count(&count).Error
	return count, err
}

// ConvertRequisitionToOrder creates the first order for a requisition and
// marks the requisition released, in one transaction.
func ConvertRequisitionToOrder(ctx context.Context, requisition *Requisition, lineage string) (*Order, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	order := Order{
		OrderNumber:     fmt.Sprintf("ORD-%s", requisition.RequisitionNumber),
		RequisitionId:   requisition.ID,
		IsSubOrder:      utils.NewFalse(),
		ExternalLineage: lineage,
		CreatedById:     userId,
	}

	db := config.GetDB().WithContext(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		return tx.Model(&Requisition{}).
			Where("id = ?", requisition.ID).
			Update("status", RequisitionStatusReleased).Error
	})
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CreateSubOrder appends a partial order against an already-converted
// requisition.
func CreateSubOrder(ctx context.Context, requisition *Requisition, lineage string) (*Order, error) {
	count, err := CountOrdersForRequisition(ctx, requisition.ID)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.New("requisition has no order to sub-order against")
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	order := Order{
		OrderNumber:     fmt.Sprintf("ORD-%s-%d", requisition.RequisitionNumber, count+1),
		RequisitionId:   requisition.ID,
		IsSubOrder:      utils.NewTrue(),
		ExternalLineage: lineage,
		CreatedById:     userId,
	}
	if err := config.GetDB().WithContext(ctx).Create(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}
