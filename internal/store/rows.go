package store

import (
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/costdb/internal/model"
)

var itemTableColumns = []string{
	"seq", "run_id", "po_id", "item_description", "canonical_item_name",
	"item_code", "category", "confidence_score", "attributes",
}

var costTableColumns = []string{
	"seq", "run_id", "item_code", "canonical_item_name", "region", "supplier",
	"avg_price", "median_price", "min_price", "max_price", "price_std", "trend_direction",
}

var anomalyTableColumns = []string{
	"seq", "run_id", "po_id", "item_code", "unit_price", "expected_price",
	"anomaly_flag", "anomaly_reason",
}

// outputRows flattens the output tables into insert rows. seq preserves the
// row order of the written files.
func outputRows(runID string, out *model.Outputs) (items, costs, anomalies [][]any) {
	items = make([][]any, 0, len(out.StandardizedItems))
	for i, it := range out.StandardizedItems {
		attrs, _ := json.Marshal(it.Attributes) //nolint:errcheck // plain struct
		items = append(items, []any{
			i, runID, it.POID, it.ItemDescription, it.CanonicalItemName,
			it.ItemCode, it.Category, it.ConfidenceScore, string(attrs),
		})
	}

	costs = make([][]any, 0, len(out.CostAnalytics))
	for i, c := range out.CostAnalytics {
		costs = append(costs, []any{
			i, runID, c.ItemCode, c.CanonicalItemName, c.Region, c.Supplier,
			c.AvgPrice, c.MedianPrice, c.MinPrice, c.MaxPrice, c.PriceStd, string(c.TrendDirection),
		})
	}

	anomalies = make([][]any, 0, len(out.Anomalies))
	for i, a := range out.Anomalies {
		anomalies = append(anomalies, []any{
			i, runID, a.POID, a.ItemCode, a.UnitPrice, a.ExpectedPrice, a.AnomalyFlag, a.AnomalyReason,
		})
	}
	return items, costs, anomalies
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRun reads id, input, status, summary, error, created_at, updated_at.
// It returns the driver's no-rows error unwrapped so callers can map it.
func scanRun(row scannable) (*model.Run, error) {
	var (
		r           model.Run
		status      string
		inputJSON   []byte
		summaryJSON []byte
		reason      sql.NullString
	)
	if err := row.Scan(&r.ID, &inputJSON, &status, &summaryJSON, &reason, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.Error = reason.String

	if err := json.Unmarshal(inputJSON, &r.Input); err != nil {
		return nil, eris.Wrap(err, "unmarshal run input")
	}
	if len(summaryJSON) > 0 {
		r.Summary = &model.RunSummary{}
		if err := json.Unmarshal(summaryJSON, r.Summary); err != nil {
			return nil, eris.Wrap(err, "unmarshal run summary")
		}
	}
	return &r, nil
}

func scanItem(row scannable) (*model.StandardizedItem, error) {
	var (
		it    model.StandardizedItem
		attrs []byte
	)
	if err := row.Scan(&it.POID, &it.ItemDescription, &it.CanonicalItemName, &it.ItemCode,
		&it.Category, &it.ConfidenceScore, &attrs); err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &it.Attributes); err != nil {
			return nil, eris.Wrap(err, "unmarshal attributes")
		}
	}
	return &it, nil
}

func scanCost(row scannable) (*model.CostAggregate, error) {
	var (
		c     model.CostAggregate
		trend string
	)
	if err := row.Scan(&c.ItemCode, &c.CanonicalItemName, &c.Region, &c.Supplier, &c.AvgPrice,
		&c.MedianPrice, &c.MinPrice, &c.MaxPrice, &c.PriceStd, &trend); err != nil {
		return nil, err
	}
	c.TrendDirection = model.TrendDirection(trend)
	return &c, nil
}
