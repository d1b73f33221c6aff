package workflow

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/hisdatafocus/lmis_backend/models"
	"github.com/shopspring/decimal"
)

const defaultCpLookbackMonths = 3

// SuggestedQuantityStore is what the calculator needs from persistence:
// the applicable statistic, sibling stock for CP facilities, and a place to
// write the line plus its audit row.
type SuggestedQuantityStore interface {
	FindStatistic(ctx context.Context, facilityCode, productCode string, period, year int) (*models.ConsumptionStatistic, error)
	SiblingStockOnHand(ctx context.Context, facility *models.Facility, programId int, productCode string, since time.Time) ([]decimal.Decimal, error)
	SaveLine(ctx context.Context, line *models.RequisitionLine) error
	SaveExtension(ctx context.Context, ext *models.RequisitionLineExtension) error
}

// SuggestedQuantityCalculator derives the order-quantity hint for one
// requisition line at initiation time.
//
// CMM: suggested = cmm * maxMonths - stockOnHand.
// CP: the subtracted stock also includes each sibling facility's most
// recent approved stock-on-hand for the product, because a CP facility
// orders on behalf of the distribution points beneath it.
type SuggestedQuantityCalculator struct {
	Store          SuggestedQuantityStore
	LookbackMonths int
}

func NewSuggestedQuantityCalculator() *SuggestedQuantityCalculator {
	lookback := defaultCpLookbackMonths
	if v := strings.TrimSpace(os.Getenv("FC_CP_LOOKBACK_MONTHS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lookback = n
		}
	}
	return &SuggestedQuantityCalculator{
		Store:          gormSuggestedQuantityStore{},
		LookbackMonths: lookback,
	}
}

// ComputeSuggestedQuantity writes the suggestion onto the line and records
// which statistic fed it. No statistic for the product means the suggestion
// stays unset; that is not an error.
func (c *SuggestedQuantityCalculator) ComputeSuggestedQuantity(ctx context.Context, line *models.RequisitionLine, facility *models.Facility, programId int, periodEnd time.Time) error {
	period := int(periodEnd.Month())
	year := periodEnd.Year()

	stat, err := c.Store.FindStatistic(ctx, facility.Code, line.ProductCode, period, year)
	if err != nil {
		return err
	}
	if stat == nil {
		return nil
	}

	stockOnHand := line.StockOnHand
	if stat.Source == models.StatisticSourceCP {
		since := periodEnd.AddDate(0, -c.LookbackMonths, 0)
		siblingStock, err := c.Store.SiblingStockOnHand(ctx, facility, programId, line.ProductCode, since)
		if err != nil {
			return err
		}
		for _, s := range siblingStock {
			stockOnHand = stockOnHand.Add(s)
		}
	}

	maxStockQuantity := stat.Value.Mul(stat.MaxMonthsOfStock)
	suggested := maxStockQuantity.Sub(stockOnHand)

	line.SuggestedQuantity = decimal.NewNullDecimal(suggested)
	if err := c.Store.SaveLine(ctx, line); err != nil {
		return err
	}

	return c.Store.SaveExtension(ctx, &models.RequisitionLineExtension{
		RequisitionLineId: line.ID,
		StatisticSource:   stat.Source,
		StatisticValue:    stat.Value,
		MaxMonthsOfStock:  stat.MaxMonthsOfStock,
		SuggestedQuantity: suggested,
	})
}

type gormSuggestedQuantityStore struct{}

func (gormSuggestedQuantityStore) FindStatistic(ctx context.Context, facilityCode, productCode string, period, year int) (*models.ConsumptionStatistic, error) {
	return models.FindAnyConsumptionStatistic(ctx, facilityCode, productCode, period, year)
}

func (gormSuggestedQuantityStore) SiblingStockOnHand(ctx context.Context, facility *models.Facility, programId int, productCode string, since time.Time) ([]decimal.Decimal, error) {
	siblings, err := models.ListSiblingFacilities(ctx, facility)
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(siblings))
	for _, s := range siblings {
		ids = append(ids, s.ID)
	}
	return models.RecentApprovedStockOnHand(ctx, ids, programId, productCode, since)
}

func (gormSuggestedQuantityStore) SaveLine(ctx context.Context, line *models.RequisitionLine) error {
	return models.SaveRequisitionLine(ctx, line)
}

func (gormSuggestedQuantityStore) SaveExtension(ctx context.Context, ext *models.RequisitionLineExtension) error {
	return models.SaveRequisitionLineExtension(ctx, ext)
}
