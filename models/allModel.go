package models

import (
	"log"

	"bitbucket.org/hisdatafocus/lmis_backend/config"
)

// MigrateTable runs AutoMigrate for every model this service owns.
func MigrateTable() {
	db := config.GetDB()
	err := db.AutoMigrate(
		&Facility{},
		&FacilityType{},
		&GeographicZone{},
		&Program{},
		&Regimen{},
		&Product{},
		&ConsumptionStatistic{},
		&ReceiptPlan{},
		&ReceiptPlanLine{},
		&Requisition{},
		&RequisitionLine{},
		&RequisitionLineExtension{},
		&Order{},
		&Lot{},
		&Shipment{},
		&ShipmentLine{},
		&ShipmentExtension{},
		&FcWatermark{},
		&FcSyncRun{},
		&FcSyncError{},
	)
	if err != nil {
		log.Printf("auto migrate failed: %v", err)
	}
}
