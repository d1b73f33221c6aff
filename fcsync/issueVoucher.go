package fcsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/models"
	"bitbucket.org/hisdatafocus/lmis_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ShipmentDraft is what the orchestrator hands the fulfillment service once a
// voucher's lines have been matched and its lots resolved.
type ShipmentDraft struct {
	OrderId     int
	ShippedDate time.Time
	Lines       []ShipmentDraftLine
}

type ShipmentDraftLine struct {
	ProductCode string
	LotId       int
	Quantity    decimal.Decimal
}

// FulfillmentService is the order/shipment collaborator. CreateShipment is
// safe to call at most once per voucher because the orchestrator fences on
// the shipment extension first.
type FulfillmentService interface {
	FindRequisitionByNumber(ctx context.Context, number string) (*models.Requisition, error)
	CountOrdersForRequisition(ctx context.Context, requisitionId int) (int64, error)
	ConvertToOrder(ctx context.Context, requisition *models.Requisition, lineage string) (*models.Order, error)
	CreateSubOrder(ctx context.Context, requisition *models.Requisition, lineage string) (*models.Order, error)
	CreateShipment(ctx context.Context, draft *ShipmentDraft) (*models.Shipment, error)
}

type ShipmentExtensionStore interface {
	Find(ctx context.Context, clientCode, issueVoucherNumber string) (*models.ShipmentExtension, error)
	Create(ctx context.Context, ext *models.ShipmentExtension) error
}

type LotResolver interface {
	ResolveLot(ctx context.Context, batchCode, productCode string, expiryDate time.Time) (*models.Lot, error)
}

// ReplicationBus carries fulfillment facts toward possibly-offline facility
// nodes. Emission is fire-and-forget for the orchestrator.
type ReplicationBus interface {
	Emit(ctx context.Context, event ReplicationEvent) error
}

// IssueVoucherOrchestrator turns external fulfillment records into internal
// orders and shipments. Per voucher: validate, fence on the extension record,
// resolve the approved requisition, convert-or-sub-order, draft and create
// the shipment, persist the extension, emit replication. A failing voucher
// never stops its siblings.
type IssueVoucherOrchestrator struct {
	Facilities  FacilityStore
	Products    ProductStore
	Lots        LotResolver
	Extensions  ShipmentExtensionStore
	Fulfillment FulfillmentService
	Bus         ReplicationBus
	Logger      *logrus.Logger
}

func (o *IssueVoucherOrchestrator) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	result := &Result{FinalSuccess: true}
	for _, raw := range items {
		var voucher FcIssueVoucher
		if err := json.Unmarshal(raw, &voucher); err != nil {
			result.FinalSuccess = false
			result.addError(ItemError{Code: "invalid_payload", Message: err.Error(), Retryable: true, Payload: raw})
			continue
		}

		if err := o.processVoucher(ctx, voucher); err != nil {
			result.FinalSuccess = false
			result.addError(ItemError{
				ExternalId: voucher.ClientCode + "/" + voucher.IssueVoucherNumber,
				Code:       "voucher_failed",
				Message:    err.Error(),
				Retryable:  true,
				Payload:    raw,
			})
			continue
		}

		// Only a fulfilled voucher may advance the aggregate timestamp; a
		// failed one must stay inside the next query window.
		if t, ok := utils.ParseFcTime(voucher.LastUpdatedAt); ok {
			result.observeTimestamp(t)
		}
		result.Processed++
	}
	return result, nil
}

func (o *IssueVoucherOrchestrator) processVoucher(ctx context.Context, voucher FcIssueVoucher) error {
	requisitionNumber := strings.TrimSpace(voucher.RequisitionNumber)
	warehouseCode := strings.TrimSpace(voucher.WarehouseCode)
	clientCode := strings.TrimSpace(voucher.ClientCode)
	voucherNumber := strings.TrimSpace(voucher.IssueVoucherNumber)

	if requisitionNumber == "" || warehouseCode == "" {
		return errors.New("requisition number or warehouse code is blank")
	}
	if clientCode == "" || voucherNumber == "" {
		return errors.New("client code or issue voucher number is blank")
	}

	// Idempotence fence: a prior run already shipped this voucher.
	existing, err := o.Extensions.Find(ctx, clientCode, voucherNumber)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	requisition, err := o.Fulfillment.FindRequisitionByNumber(ctx, requisitionNumber)
	if err != nil {
		return err
	}
	if requisition == nil {
		return fmt.Errorf("requisition %s not found", requisitionNumber)
	}
	if requisition.Status != models.RequisitionStatusApproved &&
		requisition.Status != models.RequisitionStatusReleased {
		return fmt.Errorf("requisition %s is %s, not approved", requisitionNumber, requisition.Status)
	}

	facility, err := o.Facilities.FindByCode(ctx, clientCode)
	if err != nil {
		return err
	}
	if facility == nil {
		return fmt.Errorf("destination facility %s not found", clientCode)
	}

	// Writes below run under an actor context scoped to this voucher only;
	// it dies with vctx, so the next voucher starts clean.
	vctx := utils.WithActingFacility(ctx, facility.ID, facility.Code)
	vctx = utils.SetUserNameInContext(vctx, "fc-integration")

	lineage := clientCode + "/" + voucherNumber
	orderCount, err := o.Fulfillment.CountOrdersForRequisition(vctx, requisition.ID)
	if err != nil {
		return err
	}

	var order *models.Order
	if orderCount == 0 {
		order, err = o.Fulfillment.ConvertToOrder(vctx, requisition, lineage)
	} else {
		order, err = o.Fulfillment.CreateSubOrder(vctx, requisition, lineage)
	}
	if err != nil {
		return err
	}

	draft, err := o.buildDraft(vctx, order, requisition, voucher)
	if err != nil {
		return err
	}

	shipment, err := o.Fulfillment.CreateShipment(vctx, draft)
	if err != nil {
		return err
	}

	// The extension must exist before the voucher counts as done, so a
	// retried run sees it and no-ops. Losing the insert race means another
	// writer fulfilled the voucher between the fence check and here; that is
	// the fence firing late, not a failure.
	if err := o.Extensions.Create(vctx, &models.ShipmentExtension{
		ClientCode:         clientCode,
		IssueVoucherNumber: voucherNumber,
		ShipmentId:         shipment.ID,
	}); err != nil {
		if errors.Is(err, models.ErrDuplicateIssueVoucher) {
			return nil
		}
		return err
	}

	if o.Bus != nil {
		event := ReplicationEvent{
			IssueVoucherNumber: voucherNumber,
			ClientCode:         clientCode,
			RequisitionNumber:  requisitionNumber,
			FacilityId:         facility.ID,
			ShippedDate:        draft.ShippedDate,
		}
		if cid, ok := utils.GetCorrelationIdFromContext(ctx); ok {
			event.CorrelationId = cid
		}
		if err := o.Bus.Emit(vctx, event); err != nil && o.Logger != nil {
			o.Logger.WithFields(logrus.Fields{
				"module":  "fcsync",
				"voucher": lineage,
			}).Warn("replication emit failed: " + err.Error())
		}
	}
	return nil
}

func (o *IssueVoucherOrchestrator) buildDraft(ctx context.Context, order *models.Order, requisition *models.Requisition, voucher FcIssueVoucher) (*ShipmentDraft, error) {
	shippedDate := time.Now()
	if t, ok := utils.ParseFcTime(voucher.ShippingDate); ok {
		shippedDate = t
	}

	approved := make(map[string]bool, len(requisition.Lines))
	for _, line := range requisition.Lines {
		approved[line.ProductCode] = true
	}

	draft := &ShipmentDraft{OrderId: order.ID, ShippedDate: shippedDate}
	for _, line := range voucher.Products {
		fnmCode := strings.TrimSpace(line.FnmCode)
		if fnmCode == "" {
			return nil, errors.New("voucher line product code missing")
		}
		if !approved[fnmCode] {
			return nil, fmt.Errorf("product %s is not on the approved list of requisition %s",
				fnmCode, requisition.RequisitionNumber)
		}
		product, err := o.Products.FindByFnmCode(ctx, fnmCode)
		if err != nil {
			return nil, err
		}
		if product == nil {
			return nil, fmt.Errorf("product %s not found", fnmCode)
		}

		expiry, ok := utils.ParseFcTime(line.ExpiryDate)
		if !ok {
			return nil, fmt.Errorf("voucher line for %s has no parsable expiry date", fnmCode)
		}
		lot, err := o.Lots.ResolveLot(ctx, strings.TrimSpace(line.BatchCode), fnmCode, expiry)
		if err != nil {
			return nil, err
		}

		draft.Lines = append(draft.Lines, ShipmentDraftLine{
			ProductCode: fnmCode,
			LotId:       lot.ID,
			Quantity:    utils.DecimalFromString(line.ShippedQuantity.String()),
		})
	}
	if len(draft.Lines) == 0 {
		return nil, errors.New("voucher has no shippable lines")
	}
	return draft, nil
}
