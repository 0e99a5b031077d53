package analytics

import (
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/model"
)

// DetectAnomalies flags orders whose price deviates too far from their
// item's median price. Items are processed in item_code order and orders
// keep input order within an item. Only flagged orders are returned.
//
// The rule is chosen per item: when the item's prices vary, an order is an
// anomaly if its deviation exceeds StdMultiplier standard deviations;
// otherwise it is an anomaly if its deviation exceeds AbsoluteRatio of the
// median.
func DetectAnomalies(records []model.CleanRecord, th config.Thresholds) []model.AnomalyRecord {
	groups := make(map[string][]model.CleanRecord)
	for _, r := range records {
		groups[r.ItemCode] = append(groups[r.ItemCode], r)
	}
	codes := make([]string, 0, len(groups))
	for c := range groups {
		codes = append(codes, c)
	}
	sort.Strings(codes)

	stdReason := fmt.Sprintf("Deviation exceeds %s× standard deviation",
		strconv.FormatFloat(th.StdMultiplier, 'f', -1, 64))
	ratioReason := fmt.Sprintf("Deviation exceeds %d%% of median price",
		int(math.Round(th.AbsoluteRatio*100)))

	out := make([]model.AnomalyRecord, 0)
	for _, code := range codes {
		group := groups[code]
		prices := make([]float64, len(group))
		for i, r := range group {
			prices[i] = r.UnitPrice
		}

		median := Median(prices)
		if math.IsNaN(median) {
			continue
		}

		std := math.NaN()
		if len(prices) > 1 {
			std = stat.StdDev(prices, nil)
		}

		threshold, reason := th.AbsoluteRatio*median, ratioReason
		if !math.IsNaN(std) && std > 0 {
			threshold, reason = th.StdMultiplier*std, stdReason
		}

		for _, r := range group {
			if math.Abs(r.UnitPrice-median) > threshold {
				out = append(out, model.AnomalyRecord{
					POID:          r.POID,
					ItemCode:      code,
					UnitPrice:     r.UnitPrice,
					ExpectedPrice: median,
					AnomalyFlag:   true,
					AnomalyReason: reason,
				})
			}
		}
	}
	return out
}
