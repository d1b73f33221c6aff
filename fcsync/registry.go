package fcsync

import (
	"errors"
	"fmt"

	"bitbucket.org/hisdatafocus/lmis_backend/models"
	"github.com/sirupsen/logrus"
)

// ErrUnknownKind marks a caller-supplied entity kind with no registration.
var ErrUnknownKind = errors.New("unknown entity kind")

type windowRule int

const (
	// windowDaily kinds sync incrementally with a yyyyMMdd date parameter.
	windowDaily windowRule = iota
	// windowMonthly kinds (consumption statistics) query one MM-yyyy period.
	windowMonthly
)

// registryEntry binds one entity kind to its endpoint, query-window rule and
// reconciler. The registry replaces dispatch on kind string constants.
type registryEntry struct {
	Kind       EntityKind
	Path       string
	Window     windowRule
	Reconciler Reconciler
}

type Registry struct {
	entries map[EntityKind]registryEntry
	order   []EntityKind
}

func NewRegistry() *Registry {
	return &Registry{entries: map[EntityKind]registryEntry{}}
}

func (r *Registry) Register(entry registryEntry) {
	if _, exists := r.entries[entry.Kind]; !exists {
		r.order = append(r.order, entry.Kind)
	}
	r.entries[entry.Kind] = entry
}

func (r *Registry) Lookup(kind EntityKind) (registryEntry, error) {
	entry, ok := r.entries[kind]
	if !ok {
		return registryEntry{}, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	return entry, nil
}

// Kinds returns every registered kind in registration order.
func (r *Registry) Kinds() []EntityKind {
	out := make([]EntityKind, len(r.order))
	copy(out, r.order)
	return out
}

// NewDefaultRegistry wires every FC entity kind to its gorm-backed
// reconciler. Reference kinds are registered before the kinds that depend on
// them so a full cycle resolves parents within itself.
func NewDefaultRegistry(bus ReplicationBus, logger *logrus.Logger) *Registry {
	r := NewRegistry()

	r.Register(registryEntry{
		Kind: KindGeographicZone, Path: "/geographicZones", Window: windowDaily,
		Reconciler: &GeographicZoneReconciler{Store: gormZoneStore{}},
	})
	r.Register(registryEntry{
		Kind: KindFacilityType, Path: "/facilityTypes", Window: windowDaily,
		Reconciler: &FacilityTypeReconciler{Store: gormFacilityTypeStore{}},
	})
	r.Register(registryEntry{
		Kind: KindFacility, Path: "/facilities", Window: windowDaily,
		Reconciler: &FacilityReconciler{Store: gormFacilityStore{}},
	})
	r.Register(registryEntry{
		Kind: KindProgram, Path: "/programs", Window: windowDaily,
		Reconciler: &ProgramReconciler{Store: gormProgramStore{}},
	})
	r.Register(registryEntry{
		Kind: KindRegimen, Path: "/regimens", Window: windowDaily,
		Reconciler: &RegimenReconciler{Regimens: gormRegimenStore{}, Programs: gormProgramStore{}},
	})
	r.Register(registryEntry{
		Kind: KindProduct, Path: "/products", Window: windowDaily,
		Reconciler: &ProductReconciler{Store: gormProductStore{}},
	})
	r.Register(registryEntry{
		Kind: KindCMM, Path: "/cmms", Window: windowMonthly,
		Reconciler: &StatisticReconciler{Store: gormStatisticStore{}, Source: models.StatisticSourceCMM},
	})
	r.Register(registryEntry{
		Kind: KindCP, Path: "/cps", Window: windowMonthly,
		Reconciler: &StatisticReconciler{Store: gormStatisticStore{}, Source: models.StatisticSourceCP},
	})
	r.Register(registryEntry{
		Kind: KindReceiptPlan, Path: "/receiptPlans", Window: windowDaily,
		Reconciler: &ReceiptPlanReconciler{Store: gormReceiptPlanStore{}},
	})
	r.Register(registryEntry{
		Kind: KindIssueVoucher, Path: "/issueVouchers", Window: windowDaily,
		Reconciler: &IssueVoucherOrchestrator{
			Facilities:  gormFacilityStore{},
			Products:    gormProductStore{},
			Lots:        gormLotResolver{},
			Extensions:  gormExtensionStore{},
			Fulfillment: gormFulfillmentService{},
			Bus:         bus,
			Logger:      logger,
		},
	})

	return r
}
