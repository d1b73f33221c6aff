package workflow

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/models"
	"github.com/shopspring/decimal"
)

type fakeSuggestedQuantityStore struct {
	stat         *models.ConsumptionStatistic
	siblingStock []decimal.Decimal
	sinceSeen    *time.Time

	savedLines      []*models.RequisitionLine
	savedExtensions []*models.RequisitionLineExtension
}

func (s *fakeSuggestedQuantityStore) FindStatistic(ctx context.Context, facilityCode, productCode string, period, year int) (*models.ConsumptionStatistic, error) {
	return s.stat, nil
}

func (s *fakeSuggestedQuantityStore) SiblingStockOnHand(ctx context.Context, facility *models.Facility, programId int, productCode string, since time.Time) ([]decimal.Decimal, error) {
	s.sinceSeen = &since
	return s.siblingStock, nil
}

func (s *fakeSuggestedQuantityStore) SaveLine(ctx context.Context, line *models.RequisitionLine) error {
	s.savedLines = append(s.savedLines, line)
	return nil
}

func (s *fakeSuggestedQuantityStore) SaveExtension(ctx context.Context, ext *models.RequisitionLineExtension) error {
	s.savedExtensions = append(s.savedExtensions, ext)
	return nil
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestSuggestedQuantityFromCmm(t *testing.T) {
	store := &fakeSuggestedQuantityStore{
		stat: &models.ConsumptionStatistic{
			Source:           models.StatisticSourceCMM,
			Value:            dec("10"),
			MaxMonthsOfStock: dec("3"),
		},
	}
	calc := &SuggestedQuantityCalculator{Store: store, LookbackMonths: defaultCpLookbackMonths}

	line := &models.RequisitionLine{ID: 7, ProductCode: "08A01", StockOnHand: dec("14")}
	facility := &models.Facility{ID: 1, Code: "F001"}
	periodEnd := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	if err := calc.ComputeSuggestedQuantity(context.Background(), line, facility, 2, periodEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !line.SuggestedQuantity.Valid {
		t.Fatal("suggested quantity not set")
	}
	if got := line.SuggestedQuantity.Decimal.String(); got != "16" {
		t.Fatalf("expected 10*3-14 = 16, got %s", got)
	}
	if store.sinceSeen != nil {
		t.Fatal("a CMM facility must not pull sibling stock")
	}
	if len(store.savedLines) != 1 || len(store.savedExtensions) != 1 {
		t.Fatalf("expected the line and its audit row saved, got %d/%d",
			len(store.savedLines), len(store.savedExtensions))
	}
	ext := store.savedExtensions[0]
	if ext.RequisitionLineId != 7 || ext.StatisticSource != models.StatisticSourceCMM {
		t.Fatalf("audit row wrong: %+v", ext)
	}
	if ext.SuggestedQuantity.String() != "16" {
		t.Fatalf("audit row suggested quantity wrong: %s", ext.SuggestedQuantity.String())
	}
}

func TestSuggestedQuantityFromCpIncludesSiblingStock(t *testing.T) {
	store := &fakeSuggestedQuantityStore{
		stat: &models.ConsumptionStatistic{
			Source:           models.StatisticSourceCP,
			Value:            dec("10"),
			MaxMonthsOfStock: dec("3"),
		},
		siblingStock: []decimal.Decimal{dec("8"), dec("5")},
	}
	calc := &SuggestedQuantityCalculator{Store: store, LookbackMonths: defaultCpLookbackMonths}

	line := &models.RequisitionLine{ID: 3, ProductCode: "08A01", StockOnHand: dec("14")}
	facility := &models.Facility{ID: 1, Code: "F001", SupervisoryNodeCode: "SN1"}
	periodEnd := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	if err := calc.ComputeSuggestedQuantity(context.Background(), line, facility, 2, periodEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := line.SuggestedQuantity.Decimal.String(); got != "3" {
		t.Fatalf("expected 10*3-(14+8+5) = 3, got %s", got)
	}
	if store.sinceSeen == nil {
		t.Fatal("a CP facility must pull sibling stock")
	}
	wantSince := periodEnd.AddDate(0, -defaultCpLookbackMonths, 0)
	if !store.sinceSeen.Equal(wantSince) {
		t.Fatalf("expected the lookback to start %v, got %v", wantSince, *store.sinceSeen)
	}
}

func TestNoStatisticLeavesSuggestionUnset(t *testing.T) {
	store := &fakeSuggestedQuantityStore{}
	calc := &SuggestedQuantityCalculator{Store: store, LookbackMonths: defaultCpLookbackMonths}

	line := &models.RequisitionLine{ID: 1, ProductCode: "08A01", StockOnHand: dec("14")}
	facility := &models.Facility{ID: 1, Code: "F001"}

	if err := calc.ComputeSuggestedQuantity(context.Background(), line, facility, 2, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if line.SuggestedQuantity.Valid {
		t.Fatal("no statistic means no suggestion, not zero")
	}
	if len(store.savedLines) != 0 || len(store.savedExtensions) != 0 {
		t.Fatal("nothing may be written when no statistic exists")
	}
}

func TestNegativeSuggestionIsKept(t *testing.T) {
	store := &fakeSuggestedQuantityStore{
		stat: &models.ConsumptionStatistic{
			Source:           models.StatisticSourceCMM,
			Value:            dec("10"),
			MaxMonthsOfStock: dec("2"),
		},
	}
	calc := &SuggestedQuantityCalculator{Store: store, LookbackMonths: defaultCpLookbackMonths}

	line := &models.RequisitionLine{ID: 1, ProductCode: "08A01", StockOnHand: dec("50")}
	facility := &models.Facility{ID: 1, Code: "F001"}

	if err := calc.ComputeSuggestedQuantity(context.Background(), line, facility, 2, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := line.SuggestedQuantity.Decimal.String(); got != "-30" {
		t.Fatalf("an overstocked facility keeps the negative hint, got %s", got)
	}
}
