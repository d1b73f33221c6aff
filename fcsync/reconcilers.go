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
)

// Reconciler applies one fetched batch to local state. An empty batch returns
// (nil, nil): no result, and the caller must not touch the watermark.
type Reconciler interface {
	Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error)
}

// errSkipRecord marks a record that is intentionally not applied (e.g. its
// declared parent is inactive). Skips are recorded but do not fail the batch.
var errSkipRecord = errors.New("record skipped")

// Per-kind stores: the one findByNaturalKey + save pair each reconciler needs.
// Narrow on purpose so reconciliation semantics stay testable without a DB.

type FacilityStore interface {
	FindByCode(ctx context.Context, code string) (*models.Facility, error)
	Save(ctx context.Context, facility *models.Facility) error
}

type FacilityTypeStore interface {
	FindByCode(ctx context.Context, code string) (*models.FacilityType, error)
	Save(ctx context.Context, ft *models.FacilityType) error
}

type ZoneStore interface {
	FindByCode(ctx context.Context, code string) (*models.GeographicZone, error)
	Save(ctx context.Context, zone *models.GeographicZone) error
}

type ProgramStore interface {
	FindByCode(ctx context.Context, code string) (*models.Program, error)
	Save(ctx context.Context, program *models.Program) error
}

type RegimenStore interface {
	FindByCode(ctx context.Context, code string) (*models.Regimen, error)
	Save(ctx context.Context, regimen *models.Regimen) error
}

type ProductStore interface {
	FindByFnmCode(ctx context.Context, fnmCode string) (*models.Product, error)
	Save(ctx context.Context, product *models.Product) error
}

type StatisticStore interface {
	FindByKey(ctx context.Context, facilityCode, productCode string, source models.StatisticSource, period, year int) (*models.ConsumptionStatistic, error)
	Save(ctx context.Context, stat *models.ConsumptionStatistic) error
}

type ReceiptPlanStore interface {
	FindByNumber(ctx context.Context, number string) (*models.ReceiptPlan, error)
	Save(ctx context.Context, plan *models.ReceiptPlan) error
}

// recordHandler describes one kind's record shape to the shared batch loop.
type recordHandler[T any] struct {
	externalId func(T) string
	updatedAt  func(T) string
	apply      func(ctx context.Context, rec T) error
}

// reconcileBatch runs the shared per-record loop: decode, note the record's
// own timestamp, apply. A failing record is recorded and the loop continues;
// the timestamp still counts once read, so already-succeeded progress within
// the batch is never lost to a later failure.
func reconcileBatch[T any](ctx context.Context, items []json.RawMessage, h recordHandler[T]) (*Result, error) {
	if len(items) == 0 {
		return nil, nil
	}

	result := &Result{FinalSuccess: true}
	for _, raw := range items {
		var rec T
		if err := json.Unmarshal(raw, &rec); err != nil {
			result.FinalSuccess = false
			result.addError(ItemError{
				Code:      "invalid_payload",
				Message:   err.Error(),
				Retryable: true,
				Payload:   raw,
			})
			continue
		}

		if t, ok := utils.ParseFcTime(h.updatedAt(rec)); ok {
			result.observeTimestamp(t)
		}

		if err := h.apply(ctx, rec); err != nil {
			if errors.Is(err, errSkipRecord) {
				result.addError(ItemError{
					ExternalId: h.externalId(rec),
					Code:       "skipped",
					Message:    err.Error(),
					Retryable:  false,
					Payload:    raw,
				})
				continue
			}
			result.FinalSuccess = false
			result.addError(ItemError{
				ExternalId: h.externalId(rec),
				Code:       "sync_failed",
				Message:    err.Error(),
				Retryable:  true,
				Payload:    raw,
			})
			continue
		}
		result.Processed++
	}
	return result, nil
}

type FacilityReconciler struct {
	Store FacilityStore
}

func (r *FacilityReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	return reconcileBatch(ctx, items, recordHandler[FcFacility]{
		externalId: func(rec FcFacility) string { return rec.Code },
		updatedAt:  func(rec FcFacility) string { return rec.LastUpdatedAt },
		apply: func(ctx context.Context, rec FcFacility) error {
			code := strings.TrimSpace(rec.Code)
			if code == "" {
				return errors.New("facility code missing")
			}
			facility, err := r.Store.FindByCode(ctx, code)
			if err != nil {
				return err
			}
			if facility == nil {
				facility = &models.Facility{Code: code}
			}
			facility.Name = strings.TrimSpace(rec.Name)
			facility.Description = strings.TrimSpace(rec.Description)
			facility.DistrictCode = strings.TrimSpace(rec.DistrictCode)
			facility.FacilityTypeCode = strings.TrimSpace(rec.FacilityTypeCode)
			facility.SupervisoryNodeCode = strings.TrimSpace(rec.SupervisoryNodeCode)
			facility.IsActive = activeFlag(rec.Status)
			return r.Store.Save(ctx, facility)
		},
	})
}

type FacilityTypeReconciler struct {
	Store FacilityTypeStore
}

func (r *FacilityTypeReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	return reconcileBatch(ctx, items, recordHandler[FcFacilityType]{
		externalId: func(rec FcFacilityType) string { return rec.Code },
		updatedAt:  func(rec FcFacilityType) string { return rec.LastUpdatedAt },
		apply: func(ctx context.Context, rec FcFacilityType) error {
			code := strings.TrimSpace(rec.Code)
			if code == "" {
				return errors.New("facility type code missing")
			}
			ft, err := r.Store.FindByCode(ctx, code)
			if err != nil {
				return err
			}
			if ft == nil {
				ft = &models.FacilityType{Code: code}
			}
			ft.Name = strings.TrimSpace(rec.Name)
			ft.Description = strings.TrimSpace(rec.Description)
			ft.IsActive = activeFlag(rec.Status)
			return r.Store.Save(ctx, ft)
		},
	})
}

// GeographicZoneReconciler resolves the province parent for districts. A new
// district whose province is inactive is skipped, never created.
type GeographicZoneReconciler struct {
	Store ZoneStore
}

func (r *GeographicZoneReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	return reconcileBatch(ctx, items, recordHandler[FcGeographicZone]{
		externalId: func(rec FcGeographicZone) string { return rec.Code },
		updatedAt:  func(rec FcGeographicZone) string { return rec.LastUpdatedAt },
		apply: func(ctx context.Context, rec FcGeographicZone) error {
			code := strings.TrimSpace(rec.Code)
			if code == "" {
				return errors.New("zone code missing")
			}
			zone, err := r.Store.FindByCode(ctx, code)
			if err != nil {
				return err
			}

			parentId := 0
			if strings.EqualFold(strings.TrimSpace(rec.Level), models.ZoneLevelDistrict) {
				parentCode := strings.TrimSpace(rec.ParentCode)
				if parentCode == "" {
					return errors.New("district parent code missing")
				}
				parent, err := r.Store.FindByCode(ctx, parentCode)
				if err != nil {
					return err
				}
				if parent == nil {
					return fmt.Errorf("province %s not found", parentCode)
				}
				if zone == nil && (parent.IsActive == nil || !*parent.IsActive) {
					return fmt.Errorf("%w: province %s is inactive", errSkipRecord, parentCode)
				}
				parentId = parent.ID
			}

			if zone == nil {
				zone = &models.GeographicZone{Code: code}
			}
			zone.Name = strings.TrimSpace(rec.Name)
			zone.Level = strings.ToUpper(strings.TrimSpace(rec.Level))
			zone.ParentId = parentId
			zone.IsActive = activeFlag(rec.Status)
			return r.Store.Save(ctx, zone)
		},
	})
}

type ProgramReconciler struct {
	Store ProgramStore
}

func (r *ProgramReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	return reconcileBatch(ctx, items, recordHandler[FcProgram]{
		externalId: func(rec FcProgram) string { return rec.Code },
		updatedAt:  func(rec FcProgram) string { return rec.LastUpdatedAt },
		apply: func(ctx context.Context, rec FcProgram) error {
			code := strings.TrimSpace(rec.Code)
			if code == "" {
				return errors.New("program code missing")
			}
			program, err := r.Store.FindByCode(ctx, code)
			if err != nil {
				return err
			}
			if program == nil {
				program = &models.Program{Code: code}
			}
			program.Name = strings.TrimSpace(rec.Name)
			program.Description = strings.TrimSpace(rec.Description)
			program.IsActive = activeFlag(rec.Status)
			return r.Store.Save(ctx, program)
		},
	})
}

// RegimenReconciler maps the FC "real program" area code onto a local program
// before upsert. A new regimen under an inactive program is skipped.
type RegimenReconciler struct {
	Regimens RegimenStore
	Programs ProgramStore
}

func (r *RegimenReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	return reconcileBatch(ctx, items, recordHandler[FcRegimen]{
		externalId: func(rec FcRegimen) string { return rec.Code },
		updatedAt:  func(rec FcRegimen) string { return rec.LastUpdatedAt },
		apply: func(ctx context.Context, rec FcRegimen) error {
			code := strings.TrimSpace(rec.Code)
			if code == "" {
				return errors.New("regimen code missing")
			}
			areaCode := strings.TrimSpace(rec.AreaCode)
			if areaCode == "" {
				return errors.New("regimen area code missing")
			}
			program, err := r.Programs.FindByCode(ctx, areaCode)
			if err != nil {
				return err
			}
			if program == nil {
				return fmt.Errorf("program %s not found", areaCode)
			}

			regimen, err := r.Regimens.FindByCode(ctx, code)
			if err != nil {
				return err
			}
			if regimen == nil {
				if program.IsActive == nil || !*program.IsActive {
					return fmt.Errorf("%w: program %s is inactive", errSkipRecord, areaCode)
				}
				regimen = &models.Regimen{Code: code}
			}
			regimen.Name = strings.TrimSpace(rec.Description)
			regimen.ProgramId = program.ID
			regimen.IsActive = activeFlag(rec.Status)
			return r.Regimens.Save(ctx, regimen)
		},
	})
}

type ProductReconciler struct {
	Store ProductStore
}

func (r *ProductReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	return reconcileBatch(ctx, items, recordHandler[FcProduct]{
		externalId: func(rec FcProduct) string { return rec.FnmCode },
		updatedAt:  func(rec FcProduct) string { return rec.LastUpdatedAt },
		apply: func(ctx context.Context, rec FcProduct) error {
			fnmCode := strings.TrimSpace(rec.FnmCode)
			if fnmCode == "" {
				return errors.New("product fnm code missing")
			}
			product, err := r.Store.FindByFnmCode(ctx, fnmCode)
			if err != nil {
				return err
			}
			if product == nil {
				product = &models.Product{FnmCode: fnmCode}
			}
			product.FullDescription = strings.TrimSpace(rec.FullDescription)
			product.IsActive = activeFlag(rec.Status)
			return r.Store.Save(ctx, product)
		},
	})
}

// StatisticReconciler handles both CMM and CP feeds; Source picks the key.
type StatisticReconciler struct {
	Store  StatisticStore
	Source models.StatisticSource
}

func (r *StatisticReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	return reconcileBatch(ctx, items, recordHandler[FcConsumptionStat]{
		externalId: func(rec FcConsumptionStat) string {
			return fmt.Sprintf("%s/%s/%02d-%d", rec.ClientCode, rec.ProductCode, rec.Period, rec.Year)
		},
		updatedAt: func(rec FcConsumptionStat) string { return rec.LastUpdatedAt },
		apply: func(ctx context.Context, rec FcConsumptionStat) error {
			facilityCode := strings.TrimSpace(rec.ClientCode)
			productCode := strings.TrimSpace(rec.ProductCode)
			if facilityCode == "" || productCode == "" {
				return errors.New("statistic client or product code missing")
			}
			if rec.Period < 1 || rec.Period > 12 || rec.Year == 0 {
				return fmt.Errorf("statistic period %d/%d out of range", rec.Period, rec.Year)
			}
			stat, err := r.Store.FindByKey(ctx, facilityCode, productCode, r.Source, rec.Period, rec.Year)
			if err != nil {
				return err
			}
			if stat == nil {
				stat = &models.ConsumptionStatistic{
					FacilityCode: facilityCode,
					ProductCode:  productCode,
					Source:       r.Source,
					Period:       rec.Period,
					Year:         rec.Year,
				}
			}
			stat.Value = utils.DecimalFromString(rec.Value.String())
			stat.MaxMonthsOfStock = utils.DecimalFromString(rec.MaxMonthsOfStock.String())
			return r.Store.Save(ctx, stat)
		},
	})
}

type ReceiptPlanReconciler struct {
	Store ReceiptPlanStore
}

func (r *ReceiptPlanReconciler) Reconcile(ctx context.Context, items []json.RawMessage, windowStart time.Time) (*Result, error) {
	return reconcileBatch(ctx, items, recordHandler[FcReceiptPlan]{
		externalId: func(rec FcReceiptPlan) string { return rec.ReceiptPlanNumber },
		updatedAt:  func(rec FcReceiptPlan) string { return rec.LastUpdatedAt },
		apply: func(ctx context.Context, rec FcReceiptPlan) error {
			number := strings.TrimSpace(rec.ReceiptPlanNumber)
			if number == "" {
				return errors.New("receipt plan number missing")
			}
			plan, err := r.Store.FindByNumber(ctx, number)
			if err != nil {
				return err
			}
			if plan == nil {
				plan = &models.ReceiptPlan{ReceiptPlanNumber: number}
			}
			plan.FacilityCode = strings.TrimSpace(rec.ClientCode)
			if t, ok := utils.ParseFcTime(rec.Date); ok {
				plan.PlanDate = t
			}
			plan.IsActive = activeFlag(rec.Status)

			lines := make([]models.ReceiptPlanLine, 0, len(rec.Products))
			for _, p := range rec.Products {
				lines = append(lines, models.ReceiptPlanLine{
					ProductCode:      strings.TrimSpace(p.FnmCode),
					Quantity:         utils.DecimalFromString(p.Quantity.String()),
					ApprovedQuantity: utils.DecimalFromString(p.ApprovedQuantity.String()),
				})
			}
			plan.Lines = lines
			return r.Store.Save(ctx, plan)
		},
	})
}

func activeFlag(status string) *bool {
	if utils.IsActiveStatus(status) {
		return utils.NewTrue()
	}
	return utils.NewFalse()
}
