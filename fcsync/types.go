package fcsync

import (
	"encoding/json"
	"time"
)

// EntityKind names one FC feed. Each kind has its own endpoint, query window
// rule, reconciler and watermark row.
type EntityKind string

const (
	KindFacility       EntityKind = "facility"
	KindFacilityType   EntityKind = "facility_type"
	KindGeographicZone EntityKind = "geographic_zone"
	KindProgram        EntityKind = "program"
	KindRegimen        EntityKind = "regimen"
	KindProduct        EntityKind = "product"
	KindCMM            EntityKind = "cmm"
	KindCP             EntityKind = "cp"
	KindReceiptPlan    EntityKind = "receipt_plan"
	KindIssueVoucher   EntityKind = "issue_voucher"
)

// Page is one fetched page of raw records plus the FC pagination headers.
// Pages are explicit values; nothing is accumulated in shared state.
type Page struct {
	Kind         EntityKind
	Items        []json.RawMessage
	PageNumber   int
	TotalPages   int
	TotalObjects int
	PageSize     int
}

// ItemError is one record's failure inside an otherwise-continuing batch.
type ItemError struct {
	ExternalId string `json:"external_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
	Payload    []byte `json:"-"`
}

// Result is the aggregate outcome of reconciling one batch. A nil *Result
// means the batch was empty and the caller must leave the watermark alone.
type Result struct {
	FinalSuccess  bool
	LastUpdatedAt *time.Time
	Processed     int
	Errors        []ItemError
}

func (r *Result) observeTimestamp(t time.Time) {
	if t.IsZero() {
		return
	}
	if r.LastUpdatedAt == nil || t.After(*r.LastUpdatedAt) {
		r.LastUpdatedAt = &t
	}
}

func (r *Result) addError(e ItemError) {
	r.Errors = append(r.Errors, e)
}

// External record shapes, one per entity kind. Quantities stay json.Number
// until converted to decimals at the edge.

type FcFacility struct {
	Code                string `json:"code"`
	Name                string `json:"name"`
	Description         string `json:"description"`
	DistrictCode        string `json:"districtCode"`
	FacilityTypeCode    string `json:"facilityTypeCode"`
	SupervisoryNodeCode string `json:"supervisoryNodeCode"`
	Status              string `json:"status"`
	LastUpdatedAt       string `json:"lastUpdatedAt"`
}

type FcFacilityType struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

type FcGeographicZone struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Level         string `json:"level"`
	ParentCode    string `json:"parentCode"`
	Status        string `json:"status"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

type FcProgram struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Status        string `json:"status"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

type FcRegimen struct {
	Code          string `json:"code"`
	Description   string `json:"description"`
	AreaCode      string `json:"areaCode"`
	Status        string `json:"status"`
	LastUpdatedAt string `json:"lastUpdatedAt"`
}

type FcProduct struct {
	FnmCode         string `json:"fnmCode"`
	FullDescription string `json:"fullDescription"`
	Status          string `json:"status"`
	LastUpdatedAt   string `json:"lastUpdatedAt"`
}

type FcConsumptionStat struct {
	ClientCode       string      `json:"clientCode"`
	ProductCode      string      `json:"productCode"`
	Value            json.Number `json:"value"`
	MaxMonthsOfStock json.Number `json:"max"`
	Period           int         `json:"period"`
	Year             int         `json:"year"`
	LastUpdatedAt    string      `json:"lastUpdatedAt"`
}

type FcReceiptPlanLine struct {
	FnmCode          string      `json:"fnmCode"`
	Quantity         json.Number `json:"quantity"`
	ApprovedQuantity json.Number `json:"approvedQuantity"`
}

type FcReceiptPlan struct {
	ReceiptPlanNumber string              `json:"receiptPlanNumber"`
	ClientCode        string              `json:"clientCode"`
	Date              string              `json:"date"`
	Status            string              `json:"status"`
	Products          []FcReceiptPlanLine `json:"products"`
	LastUpdatedAt     string              `json:"lastUpdatedAt"`
}

type FcIssueVoucherLine struct {
	FnmCode         string      `json:"fnmCode"`
	BatchCode       string      `json:"batch"`
	ExpiryDate      string      `json:"expiryDate"`
	ShippedQuantity json.Number `json:"shippedQuantity"`
}

type FcIssueVoucher struct {
	IssueVoucherNumber string               `json:"issueVoucherNumber"`
	ClientCode         string               `json:"clientCode"`
	WarehouseCode      string               `json:"warehouseCode"`
	RequisitionNumber  string               `json:"requisitionNumber"`
	ShippingDate       string               `json:"shippingDate"`
	Status             string               `json:"status"`
	Products           []FcIssueVoucherLine `json:"products"`
	LastUpdatedAt      string               `json:"lastUpdatedAt"`
}

// ReplicationEvent tells a possibly-offline facility node about a fulfillment
// fact. Delivery guarantees belong to the bus, not this package.
type ReplicationEvent struct {
	IssueVoucherNumber string    `json:"issue_voucher_number"`
	ClientCode         string    `json:"client_code"`
	RequisitionNumber  string    `json:"requisition_number"`
	FacilityId         int       `json:"facility_id"`
	ShippedDate        time.Time `json:"shipped_date"`
	CorrelationId      string    `json:"correlation_id"`
}

// FcSyncPubSubPayload is the push-trigger body for one kind's run.
type FcSyncPubSubPayload struct {
	Kind        string `json:"kind"`
	Date        string `json:"date"`
	TriggeredBy string `json:"triggered_by"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}
