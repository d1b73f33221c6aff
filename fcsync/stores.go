package fcsync

import (
	"context"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/models"
)

// Gorm-backed implementations of the per-kind stores and collaborator
// services. Each is a thin adapter over the model layer so the reconcilers
// only ever see findByNaturalKey + save.

type gormFacilityStore struct{}

func (gormFacilityStore) FindByCode(ctx context.Context, code string) (*models.Facility, error) {
	return models.FindFacilityByCode(ctx, code)
}

func (gormFacilityStore) Save(ctx context.Context, facility *models.Facility) error {
	return models.SaveFacility(ctx, facility)
}

type gormFacilityTypeStore struct{}

func (gormFacilityTypeStore) FindByCode(ctx context.Context, code string) (*models.FacilityType, error) {
	return models.FindFacilityTypeByCode(ctx, code)
}

func (gormFacilityTypeStore) Save(ctx context.Context, ft *models.FacilityType) error {
	return models.SaveFacilityType(ctx, ft)
}

type gormZoneStore struct{}

func (gormZoneStore) FindByCode(ctx context.Context, code string) (*models.GeographicZone, error) {
	return models.FindGeographicZoneByCode(ctx, code)
}

func (gormZoneStore) Save(ctx context.Context, zone *models.GeographicZone) error {
	return models.SaveGeographicZone(ctx, zone)
}

type gormProgramStore struct{}

func (gormProgramStore) FindByCode(ctx context.Context, code string) (*models.Program, error) {
	return models.FindProgramByCode(ctx, code)
}

func (gormProgramStore) Save(ctx context.Context, program *models.Program) error {
	return models.SaveProgram(ctx, program)
}

type gormRegimenStore struct{}

func (gormRegimenStore) FindByCode(ctx context.Context, code string) (*models.Regimen, error) {
	return models.FindRegimenByCode(ctx, code)
}

func (gormRegimenStore) Save(ctx context.Context, regimen *models.Regimen) error {
	return models.SaveRegimen(ctx, regimen)
}

type gormProductStore struct{}

func (gormProductStore) FindByFnmCode(ctx context.Context, fnmCode string) (*models.Product, error) {
	return models.FindProductByFnmCode(ctx, fnmCode)
}

func (gormProductStore) Save(ctx context.Context, product *models.Product) error {
	return models.SaveProduct(ctx, product)
}

type gormStatisticStore struct{}

func (gormStatisticStore) FindByKey(ctx context.Context, facilityCode, productCode string, source models.StatisticSource, period, year int) (*models.ConsumptionStatistic, error) {
	return models.FindConsumptionStatistic(ctx, facilityCode, productCode, source, period, year)
}

func (gormStatisticStore) Save(ctx context.Context, stat *models.ConsumptionStatistic) error {
	return models.SaveConsumptionStatistic(ctx, stat)
}

type gormReceiptPlanStore struct{}

func (gormReceiptPlanStore) FindByNumber(ctx context.Context, number string) (*models.ReceiptPlan, error) {
	return models.FindReceiptPlanByNumber(ctx, number)
}

func (gormReceiptPlanStore) Save(ctx context.Context, plan *models.ReceiptPlan) error {
	return models.SaveReceiptPlan(ctx, plan)
}

type gormExtensionStore struct{}

func (gormExtensionStore) Find(ctx context.Context, clientCode, issueVoucherNumber string) (*models.ShipmentExtension, error) {
	return models.FindShipmentExtension(ctx, clientCode, issueVoucherNumber)
}

func (gormExtensionStore) Create(ctx context.Context, ext *models.ShipmentExtension) error {
	return models.CreateShipmentExtension(ctx, ext)
}

type gormLotResolver struct{}

func (gormLotResolver) ResolveLot(ctx context.Context, batchCode, productCode string, expiryDate time.Time) (*models.Lot, error) {
	return models.ResolveLot(ctx, batchCode, productCode, expiryDate)
}

type gormFulfillmentService struct{}

func (gormFulfillmentService) FindRequisitionByNumber(ctx context.Context, number string) (*models.Requisition, error) {
	return models.FindRequisitionByNumber(ctx, number)
}

func (gormFulfillmentService) CountOrdersForRequisition(ctx context.Context, requisitionId int) (int64, error) {
	return models.CountOrdersForRequisition(ctx, requisitionId)
}

func (gormFulfillmentService) ConvertToOrder(ctx context.Context, requisition *models.Requisition, lineage string) (*models.Order, error) {
	return models.ConvertRequisitionToOrder(ctx, requisition, lineage)
}

func (gormFulfillmentService) CreateSubOrder(ctx context.Context, requisition *models.Requisition, lineage string) (*models.Order, error) {
	return models.CreateSubOrder(ctx, requisition, lineage)
}

func (gormFulfillmentService) CreateShipment(ctx context.Context, draft *ShipmentDraft) (*models.Shipment, error) {
	shipment := &models.Shipment{
		OrderId:     draft.OrderId,
		ShippedDate: draft.ShippedDate,
	}
	for _, line := range draft.Lines {
		shipment.Lines = append(shipment.Lines, models.ShipmentLine{
			ProductCode:     line.ProductCode,
			LotId:           line.LotId,
			ShippedQuantity: line.Quantity,
		})
	}
	return models.CreateShipment(ctx, shipment)
}

type gormWatermarkStore struct{}

func (gormWatermarkStore) Get(ctx context.Context, kind EntityKind) (*models.FcWatermark, error) {
	return models.FindFcWatermark(ctx, string(kind))
}

func (gormWatermarkStore) Save(ctx context.Context, wm *models.FcWatermark) error {
	return models.SaveFcWatermark(ctx, wm)
}

type gormRunStore struct{}

func (gormRunStore) CreateRun(ctx context.Context, run *models.FcSyncRun) error {
	return models.CreateFcSyncRun(ctx, run)
}

func (gormRunStore) FinishRun(ctx context.Context, run *models.FcSyncRun, updates map[string]interface{}) error {
	return models.UpdateFcSyncRun(ctx, run, updates)
}

func (gormRunStore) CreateError(ctx context.Context, errRec *models.FcSyncError) error {
	return models.CreateFcSyncError(ctx, errRec)
}
