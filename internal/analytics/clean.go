// Package analytics turns standardized purchase orders into cost statistics,
// price anomalies and volatility labels.
package analytics

import (
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/model"
)

// DefaultDateLayouts are tried in order when no layouts are configured.
// Slash dates are month-first.
var DefaultDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// Rejection explains why a purchase order was dropped during cleaning.
type Rejection struct {
	POID   string `json:"po_id"`
	Reason string `json:"reason"`
}

type parsedOrder struct {
	price    float64
	quantity float64
	date     time.Time
}

// parseOrder coerces the numeric and date fields of o. The returned reason
// is empty when the row is valid.
func parseOrder(o model.RawPurchaseOrder, layouts []string) (parsedOrder, string) {
	var p parsedOrder

	price, ok := parseNumber(o.UnitPrice)
	if !ok {
		return p, "non-numeric unit_price"
	}
	if price <= 0 {
		return p, "non-positive unit_price"
	}
	p.price = price

	qty, ok := parseNumber(o.Quantity)
	if !ok {
		return p, "non-numeric quantity"
	}
	p.quantity = qty

	date, ok := parseDate(o.PODate, layouts)
	if !ok {
		return p, "unparseable po_date"
	}
	p.date = date

	return p, ""
}

// parseNumber accepts finite decimal text. Blank cells are missing values.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := cast.ToFloat64E(s)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseDate(s string, layouts []string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FilterValid drops orders whose price, quantity or date cannot be coerced.
// Valid orders keep their input order.
func FilterValid(orders []model.RawPurchaseOrder, layouts []string) ([]model.RawPurchaseOrder, []Rejection) {
	valid := make([]model.RawPurchaseOrder, 0, len(orders))
	var rejected []Rejection
	for _, o := range orders {
		if _, reason := parseOrder(o, layouts); reason != "" {
			rejected = append(rejected, Rejection{POID: strings.TrimSpace(o.POID), Reason: reason})
			continue
		}
		valid = append(valid, o)
	}
	return valid, rejected
}

// CheckUniqueOrders fails with a ValidationError when two raw orders share a
// trimmed po_id. It runs on the full table, before invalid rows are dropped.
func CheckUniqueOrders(orders []model.RawPurchaseOrder) error {
	return checkUnique(model.TableRawPurchaseOrders, len(orders), func(i int) string { return orders[i].POID })
}

// CleanAndMerge inner-joins raw orders with their standardized items on the
// trimmed po_id, coerces prices, quantities and dates, and drops rows that
// fail coercion. Duplicate po_ids on either side fail the whole merge.
func CleanAndMerge(raw []model.RawPurchaseOrder, items []model.StandardizedItem, layouts []string) ([]model.CleanRecord, error) {
	if err := CheckUniqueOrders(raw); err != nil {
		return nil, err
	}
	if err := checkUnique(model.TableStandardizedItems, len(items), func(i int) string { return items[i].POID }); err != nil {
		return nil, err
	}

	byPO := make(map[string]model.StandardizedItem, len(items))
	for _, it := range items {
		byPO[strings.TrimSpace(it.POID)] = it
	}

	out := make([]model.CleanRecord, 0, len(raw))
	dropped := 0
	for _, o := range raw {
		poID := strings.TrimSpace(o.POID)
		it, ok := byPO[poID]
		if !ok {
			continue
		}
		p, reason := parseOrder(o, layouts)
		if reason != "" {
			dropped++
			zap.L().Debug("analytics: dropping row", zap.String("po_id", poID), zap.String("reason", reason))
			continue
		}

		category := strings.TrimSpace(it.Category)
		if category == "" {
			category = model.DefaultCategory
		}
		out = append(out, model.CleanRecord{
			POID:              poID,
			ItemDescription:   o.ItemDescription,
			ItemCode:          strings.TrimSpace(it.ItemCode),
			CanonicalItemName: strings.TrimSpace(it.CanonicalItemName),
			Category:          category,
			ConfidenceScore:   it.ConfidenceScore,
			UnitPrice:         p.price,
			Quantity:          p.quantity,
			Unit:              strings.TrimSpace(o.Unit),
			PODate:            p.date,
			Region:            strings.TrimSpace(o.Region),
			Department:        strings.TrimSpace(o.Department),
			Supplier:          strings.TrimSpace(o.Supplier),
		})
	}

	if dropped > 0 {
		zap.L().Info("analytics: dropped invalid rows", zap.Int("dropped", dropped), zap.Int("kept", len(out)))
	}
	return out, nil
}

func checkUnique(table string, n int, key func(int) string) error {
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		k := strings.TrimSpace(key(i))
		if _, ok := seen[k]; ok {
			return &model.ValidationError{Table: table, Key: k, Reason: "duplicate po_id violates one-to-one join"}
		}
		seen[k] = struct{}{}
	}
	return nil
}
