package fcsync

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/models"
)

type fakeFacilityStore struct {
	byCode map[string]*models.Facility
	saves  int
}

func newFakeFacilityStore() *fakeFacilityStore {
	return &fakeFacilityStore{byCode: map[string]*models.Facility{}}
}

func (s *fakeFacilityStore) FindByCode(ctx context.Context, code string) (*models.Facility, error) {
	if f, ok := s.byCode[code]; ok {
		copied := *f
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeFacilityStore) Save(ctx context.Context, facility *models.Facility) error {
	s.saves++
	if existing, ok := s.byCode[facility.Code]; ok {
		facility.ID = existing.ID
	} else if facility.ID == 0 {
		facility.ID = len(s.byCode) + 1
	}
	copied := *facility
	s.byCode[facility.Code] = &copied
	return nil
}

type fakeZoneStore struct {
	byCode map[string]*models.GeographicZone
}

func newFakeZoneStore() *fakeZoneStore {
	return &fakeZoneStore{byCode: map[string]*models.GeographicZone{}}
}

func (s *fakeZoneStore) FindByCode(ctx context.Context, code string) (*models.GeographicZone, error) {
	if z, ok := s.byCode[code]; ok {
		copied := *z
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeZoneStore) Save(ctx context.Context, zone *models.GeographicZone) error {
	if existing, ok := s.byCode[zone.Code]; ok {
		zone.ID = existing.ID
	} else if zone.ID == 0 {
		zone.ID = len(s.byCode) + 1
	}
	copied := *zone
	s.byCode[zone.Code] = &copied
	return nil
}

type fakeStatStore struct {
	byKey map[string]*models.ConsumptionStatistic
}

func newFakeStatStore() *fakeStatStore {
	return &fakeStatStore{byKey: map[string]*models.ConsumptionStatistic{}}
}

func statKey(facilityCode, productCode string, source models.StatisticSource, period, year int) string {
	return fmt.Sprintf("%s|%s|%s|%02d-%d", facilityCode, productCode, source, period, year)
}

func (s *fakeStatStore) FindByKey(ctx context.Context, facilityCode, productCode string, source models.StatisticSource, period, year int) (*models.ConsumptionStatistic, error) {
	if st, ok := s.byKey[statKey(facilityCode, productCode, source, period, year)]; ok {
		copied := *st
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeStatStore) Save(ctx context.Context, stat *models.ConsumptionStatistic) error {
	copied := *stat
	s.byKey[statKey(stat.FacilityCode, stat.ProductCode, stat.Source, stat.Period, stat.Year)] = &copied
	return nil
}

func rawBatch(t *testing.T, records ...interface{}) []json.RawMessage {
	t.Helper()
	items := make([]json.RawMessage, 0, len(records))
	for _, rec := range records {
		b, err := json.Marshal(rec)
		if err != nil {
			t.Fatalf("marshal test record: %v", err)
		}
		items = append(items, b)
	}
	return items
}

func TestReconcileEmptyBatchReturnsNilResult(t *testing.T) {
	r := &FacilityReconciler{Store: newFakeFacilityStore()}
	result, err := r.Reconcile(context.Background(), nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Fatalf("expected nil result for an empty batch, got %+v", result)
	}
}

func TestFacilityReconcileIsIdempotent(t *testing.T) {
	store := newFakeFacilityStore()
	r := &FacilityReconciler{Store: store}
	batch := rawBatch(t, FcFacility{
		Code:          "F001",
		Name:          "Maputo Central",
		DistrictCode:  "D01",
		Status:        "ACTIVE",
		LastUpdatedAt: "2026-08-30 10:00:00",
	})

	first, err := r.Reconcile(context.Background(), batch, time.Now())
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := r.Reconcile(context.Background(), batch, time.Now())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if first.Processed != 1 || second.Processed != 1 {
		t.Fatalf("expected both passes to process the record, got %d and %d", first.Processed, second.Processed)
	}
	if len(store.byCode) != 1 {
		t.Fatalf("expected exactly one facility, got %d", len(store.byCode))
	}
	firstId := store.byCode["F001"].ID
	if firstId == 0 {
		t.Fatal("facility never got an id")
	}

	// A replay must update in place, never mint a new row.
	_, _ = r.Reconcile(context.Background(), batch, time.Now())
	if store.byCode["F001"].ID != firstId {
		t.Fatalf("replay changed the facility id from %d to %d", firstId, store.byCode["F001"].ID)
	}
}

func TestFacilityReconcileDeactivatesInPlace(t *testing.T) {
	store := newFakeFacilityStore()
	r := &FacilityReconciler{Store: store}

	active := rawBatch(t, FcFacility{Code: "F001", Name: "Maputo Central", Status: "ACTIVE"})
	if _, err := r.Reconcile(context.Background(), active, time.Now()); err != nil {
		t.Fatalf("activate: %v", err)
	}
	inactive := rawBatch(t, FcFacility{Code: "F001", Name: "Maputo Central", Status: "INACTIVE"})
	if _, err := r.Reconcile(context.Background(), inactive, time.Now()); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	f := store.byCode["F001"]
	if f == nil {
		t.Fatal("facility disappeared")
	}
	if f.IsActive == nil || *f.IsActive {
		t.Fatal("expected the facility to be flagged inactive, not deleted")
	}
}

func TestReconcileContinuesPastBadRecords(t *testing.T) {
	store := newFakeFacilityStore()
	r := &FacilityReconciler{Store: store}

	items := []json.RawMessage{
		json.RawMessage(`{"code":"F001","name":"One","status":"ACTIVE","lastUpdatedAt":"2026-08-30 08:00:00"}`),
		json.RawMessage(`not json at all`),
		json.RawMessage(`{"code":"","name":"Nameless","status":"ACTIVE"}`),
		json.RawMessage(`{"code":"F002","name":"Two","status":"ACTIVE","lastUpdatedAt":"2026-08-30 11:00:00"}`),
	}

	result, err := r.Reconcile(context.Background(), items, time.Now())
	if err != nil {
		t.Fatalf("unexpected batch error: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("expected 2 processed, got %d", result.Processed)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 item errors, got %d", len(result.Errors))
	}
	if result.FinalSuccess {
		t.Fatal("a batch with failing records must not report final success")
	}
	if result.LastUpdatedAt == nil {
		t.Fatal("the surviving records' timestamps must still be observed")
	}
	want := time.Date(2026, 8, 30, 11, 0, 0, 0, time.UTC)
	if !result.LastUpdatedAt.Equal(want) {
		t.Fatalf("expected last updated %v, got %v", want, *result.LastUpdatedAt)
	}
}

func TestStatisticLastWriteWinsWithinBatch(t *testing.T) {
	store := newFakeStatStore()
	r := &StatisticReconciler{Store: store, Source: models.StatisticSourceCMM}

	batch := rawBatch(t,
		FcConsumptionStat{ClientCode: "F001", ProductCode: "08A01", Value: "10", MaxMonthsOfStock: "3", Period: 8, Year: 2026},
		FcConsumptionStat{ClientCode: "F001", ProductCode: "08A01", Value: "12", MaxMonthsOfStock: "3", Period: 8, Year: 2026},
	)

	result, err := r.Reconcile(context.Background(), batch, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("expected both records applied, got %d", result.Processed)
	}
	stat, _ := store.FindByKey(context.Background(), "F001", "08A01", models.StatisticSourceCMM, 8, 2026)
	if stat == nil {
		t.Fatal("statistic not stored")
	}
	if stat.Value.String() != "12" {
		t.Fatalf("expected the later record to win, got value %s", stat.Value.String())
	}
}

func TestStatisticRejectsOutOfRangePeriod(t *testing.T) {
	r := &StatisticReconciler{Store: newFakeStatStore(), Source: models.StatisticSourceCP}
	batch := rawBatch(t, FcConsumptionStat{ClientCode: "F001", ProductCode: "08A01", Value: "10", MaxMonthsOfStock: "3", Period: 13, Year: 2026})

	result, err := r.Reconcile(context.Background(), batch, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 0 || len(result.Errors) != 1 {
		t.Fatalf("expected 1 rejected record, got processed=%d errors=%d", result.Processed, len(result.Errors))
	}
}

func TestDistrictUnderInactiveProvinceIsSkipped(t *testing.T) {
	store := newFakeZoneStore()
	inactive := false
	store.byCode["P01"] = &models.GeographicZone{ID: 1, Code: "P01", Level: models.ZoneLevelProvince, IsActive: &inactive}
	r := &GeographicZoneReconciler{Store: store}

	batch := rawBatch(t, FcGeographicZone{
		Code:       "D01",
		Name:       "Matola",
		Level:      "DISTRICT",
		ParentCode: "P01",
		Status:     "ACTIVE",
	})

	result, err := r.Reconcile(context.Background(), batch, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 0 {
		t.Fatalf("skipped record must not count as processed, got %d", result.Processed)
	}
	if len(result.Errors) != 1 || result.Errors[0].Code != "skipped" {
		t.Fatalf("expected one skipped item error, got %+v", result.Errors)
	}
	if !result.FinalSuccess {
		t.Fatal("a skip is not a failure")
	}
	if _, ok := store.byCode["D01"]; ok {
		t.Fatal("district must not be created under an inactive province")
	}
}

func TestExistingDistrictStillUpdatesUnderInactiveProvince(t *testing.T) {
	store := newFakeZoneStore()
	inactive := false
	active := true
	store.byCode["P01"] = &models.GeographicZone{ID: 1, Code: "P01", Level: models.ZoneLevelProvince, IsActive: &inactive}
	store.byCode["D01"] = &models.GeographicZone{ID: 2, Code: "D01", Name: "Old Name", Level: models.ZoneLevelDistrict, ParentId: 1, IsActive: &active}
	r := &GeographicZoneReconciler{Store: store}

	batch := rawBatch(t, FcGeographicZone{
		Code:       "D01",
		Name:       "Matola",
		Level:      "DISTRICT",
		ParentCode: "P01",
		Status:     "ACTIVE",
	})

	result, err := r.Reconcile(context.Background(), batch, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Processed != 1 {
		t.Fatalf("an already-known district must still update, got processed=%d errors=%+v", result.Processed, result.Errors)
	}
	if store.byCode["D01"].Name != "Matola" {
		t.Fatalf("district not updated, name is %q", store.byCode["D01"].Name)
	}
}
