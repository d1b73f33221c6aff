package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
	"bitbucket.org/hisdatafocus/lmis_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrDuplicateIssueVoucher means another writer inserted the extension row
// first; the voucher is already fulfilled elsewhere.
var ErrDuplicateIssueVoucher = errors.New("issue voucher already fulfilled")

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

type Lot struct {
	ID          int       `gorm:"primary_key" json:"id"`
	BatchCode   string    `gorm:"size:50;not null;uniqueIndex:idx_lot_key" json:"batch_code"`
	ProductCode string    `gorm:"size:50;not null;uniqueIndex:idx_lot_key" json:"product_code"`
	ExpiryDate  time.Time `gorm:"uniqueIndex:idx_lot_key" json:"expiry_date"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

type Shipment struct {
	ID          int            `gorm:"primary_key" json:"id"`
	OrderId     int            `gorm:"index;not null" json:"order_id"`
	ShippedDate time.Time      `json:"shipped_date"`
	CreatedById int            `json:"created_by_id"`
	Lines       []ShipmentLine `json:"lines"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

type ShipmentLine struct {
	ID              int             `gorm:"primary_key" json:"id"`
	ShipmentId      int             `gorm:"index;not null" json:"shipment_id"`
	ProductCode     string          `gorm:"size:50;not null" json:"product_code"`
	LotId           int             `gorm:"index;not null" json:"lot_id"`
	ShippedQuantity decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"shipped_quantity"`
}

// ShipmentExtension is the idempotence fence for issue-voucher processing:
// at most one shipment ever exists per (client code, issue voucher number).
type ShipmentExtension struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	ClientCode         string    `gorm:"size:50;not null;uniqueIndex:idx_shipment_ext_key" json:"client_code"`
	IssueVoucherNumber string    `gorm:"size:50;not null;uniqueIndex:idx_shipment_ext_key" json:"issue_voucher_number"`
	ShipmentId         int       `gorm:"index;not null" json:"shipment_id"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ResolveLot finds or creates the lot for (batchCode, productCode, expiryDate).
func ResolveLot(ctx context.Context, batchCode, productCode string, expiryDate time.Time) (*Lot, error) {
	db := config.GetDB().WithContext(ctx)

	var lot Lot
	err := db.Where("batch_code = ? AND product_code = ? AND expiry_date = ?",
		batchCode, productCode, expiryDate).Take(&lot).Error
	if err == nil {
		return &lot, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	lot = Lot{BatchCode: batchCode, ProductCode: productCode, ExpiryDate: expiryDate}
	if err := db.Create(&lot).Error; err != nil {
		if isDuplicateKeyErr(err) {
			// Lost the insert race; the winner's row is the lot.
			err = db.Where("batch_code = ? AND product_code = ? AND expiry_date = ?",
				batchCode, productCode, expiryDate).Take(&lot).Error
			if err == nil {
				return &lot, nil
			}
		}
		return nil, err
	}
	return &lot, nil
}

func CreateShipment(ctx context.Context, shipment *Shipment) (*Shipment, error) {
	userId, _ := utils.GetUserIdFromContext(ctx)
	shipment.CreatedById = userId

	db := config.GetDB().WithContext(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Lines").Create(shipment).Error; err != nil {
			return err
		}
		for i := range shipment.Lines {
			shipment.Lines[i].ShipmentId = shipment.ID
		}
		if len(shipment.Lines) == 0 {
			return nil
		}
		return tx.Create(&shipment.Lines).Error
	})
	if err != nil {
		return nil, err
	}
	return shipment, nil
}

func FindShipmentExtension(ctx context.Context, clientCode, issueVoucherNumber string) (*ShipmentExtension, error) {
	var ext ShipmentExtension
	err := config.GetDB().WithContext(ctx).
		Where("client_code = ? AND issue_voucher_number = ?", clientCode, issueVoucherNumber).
		Take(&ext).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &ext, nil
}

func CreateShipmentExtension(ctx context.Context, ext *ShipmentExtension) error {
	err := config.GetDB().WithContext(ctx).Create(ext).Error
	if isDuplicateKeyErr(err) {
		return ErrDuplicateIssueVoucher
	}
	return err
}
