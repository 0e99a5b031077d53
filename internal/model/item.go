package model

// TableStandardizedItems names the standardized item table.
const TableStandardizedItems = "standardized_items"

// Column names of the standardized item table.
const (
	ColItemCode          = "item_code"
	ColCanonicalItemName = "canonical_item_name"
	ColCategory          = "category"
	ColConfidenceScore   = "confidence_score"
)

// DefaultCategory is assigned when an externally supplied standardized item
// table carries no category column.
const DefaultCategory = "UNKNOWN"

// StandardizedItemInputColumns is the required schema of an externally
// supplied standardized item table. Category is optional.
var StandardizedItemInputColumns = []string{
	ColPOID,
	ColItemCode,
	ColCanonicalItemName,
	ColConfidenceScore,
}

// StandardizedItemColumns is the fixed output column order.
var StandardizedItemColumns = []string{
	ColPOID,
	ColItemDescription,
	ColCanonicalItemName,
	ColItemCode,
	ColCategory,
	ColConfidenceScore,
}

// Attributes are structured hints pulled from a normalized description.
type Attributes struct {
	DiameterMM *float64 `json:"diameter_mm,omitempty"`
	LengthM    *float64 `json:"length_m,omitempty"`
	Material   string   `json:"material,omitempty"`
}

// StandardizedItem maps one purchase order to its canonical item.
type StandardizedItem struct {
	POID              string     `json:"po_id"`
	ItemDescription   string     `json:"item_description"`
	CanonicalItemName string     `json:"canonical_item_name"`
	ItemCode          string     `json:"item_code"`
	Category          string     `json:"category"`
	ConfidenceScore   float64    `json:"confidence_score"`
	Attributes        Attributes `json:"attributes"`
}
