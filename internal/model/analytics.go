package model

// Output table names.
const (
	TableCostAnalytics = "cost_analytics"
	TableAnomalies     = "anomalies"
)

// Column names of the analytics outputs.
const (
	ColAvgPrice       = "avg_price"
	ColMedianPrice    = "median_price"
	ColMinPrice       = "min_price"
	ColMaxPrice       = "max_price"
	ColPriceStd       = "price_std"
	ColTrendDirection = "trend_direction"
	ColExpectedPrice  = "expected_price"
	ColAnomalyFlag    = "anomaly_flag"
	ColAnomalyReason  = "anomaly_reason"
)

// CostAnalyticsColumns is the fixed output column order of the cost table.
var CostAnalyticsColumns = []string{
	ColItemCode,
	ColCanonicalItemName,
	ColRegion,
	ColSupplier,
	ColAvgPrice,
	ColMedianPrice,
	ColMinPrice,
	ColMaxPrice,
	ColPriceStd,
	ColTrendDirection,
}

// AnomalyColumns is the fixed output column order of the anomaly table.
var AnomalyColumns = []string{
	ColPOID,
	ColItemCode,
	ColUnitPrice,
	ColExpectedPrice,
	ColAnomalyFlag,
	ColAnomalyReason,
}

// TrendDirection classifies an item's price stability.
//
// The legacy value "UP" means volatile pricing, not rising prices.
type TrendDirection string

const (
	TrendStable   TrendDirection = "STABLE"
	TrendVolatile TrendDirection = "UP"
	// TrendVolatileExplicit is emitted instead of TrendVolatile when the
	// volatility label set is configured.
	TrendVolatileExplicit TrendDirection = "VOLATILE"
)

// CostAggregate holds price statistics for one (item, region, supplier) group.
type CostAggregate struct {
	ItemCode          string         `json:"item_code"`
	CanonicalItemName string         `json:"canonical_item_name"`
	Region            string         `json:"region"`
	Supplier          string         `json:"supplier"`
	AvgPrice          float64        `json:"avg_price"`
	MedianPrice       float64        `json:"median_price"`
	MinPrice          float64        `json:"min_price"`
	MaxPrice          float64        `json:"max_price"`
	PriceStd          float64        `json:"price_std"`
	TrendDirection    TrendDirection `json:"trend_direction"`
}

// AnomalyRecord flags a purchase order whose price deviates from its item's median.
type AnomalyRecord struct {
	POID          string  `json:"po_id"`
	ItemCode      string  `json:"item_code"`
	UnitPrice     float64 `json:"unit_price"`
	ExpectedPrice float64 `json:"expected_price"`
	AnomalyFlag   bool    `json:"anomaly_flag"`
	AnomalyReason string  `json:"anomaly_reason"`
}

// Outputs bundles the three tables regenerated by every run.
type Outputs struct {
	StandardizedItems []StandardizedItem `json:"standardized_items"`
	CostAnalytics     []CostAggregate    `json:"cost_analytics"`
	Anomalies         []AnomalyRecord    `json:"anomalies"`
}
