package model

import "time"

// TableRawPurchaseOrders names the raw purchase order input in errors and logs.
const TableRawPurchaseOrders = "purchase_orders_raw"

// Column names of the raw purchase order table.
const (
	ColPOID            = "po_id"
	ColItemDescription = "item_description"
	ColUnitPrice       = "unit_price"
	ColQuantity        = "quantity"
	ColUnit            = "unit"
	ColPODate          = "po_date"
	ColRegion          = "region"
	ColDepartment      = "department"
	ColSupplier        = "supplier"
)

// RawPurchaseOrderColumns is the required schema of the raw purchase order input.
var RawPurchaseOrderColumns = []string{
	ColPOID,
	ColItemDescription,
	ColUnitPrice,
	ColQuantity,
	ColUnit,
	ColPODate,
	ColRegion,
	ColDepartment,
	ColSupplier,
}

// RawPurchaseOrder is a purchase order row exactly as ingested. Numeric and
// date fields stay as text until the clean stage coerces them.
type RawPurchaseOrder struct {
	POID            string `json:"po_id"`
	ItemDescription string `json:"item_description"`
	UnitPrice       string `json:"unit_price"`
	Quantity        string `json:"quantity"`
	Unit            string `json:"unit"`
	PODate          string `json:"po_date"`
	Region          string `json:"region"`
	Department      string `json:"department"`
	Supplier        string `json:"supplier"`
}

// CleanRecord is a purchase order joined with its standardized item after
// coercion and filtering. Both aggregation and anomaly detection consume it.
type CleanRecord struct {
	POID              string    `json:"po_id"`
	ItemDescription   string    `json:"item_description"`
	ItemCode          string    `json:"item_code"`
	CanonicalItemName string    `json:"canonical_item_name"`
	Category          string    `json:"category"`
	ConfidenceScore   float64   `json:"confidence_score"`
	UnitPrice         float64   `json:"unit_price"`
	Quantity          float64   `json:"quantity"`
	Unit              string    `json:"unit"`
	PODate            time.Time `json:"po_date"`
	Region            string    `json:"region"`
	Department        string    `json:"department"`
	Supplier          string    `json:"supplier"`
}
