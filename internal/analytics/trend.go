package analytics

import (
	"math"

	"github.com/sells-group/costdb/internal/model"
)

// VolatileLabel returns the label written for volatile items under the
// configured label set ("legacy" or "volatility").
func VolatileLabel(labelSet string) model.TrendDirection {
	if labelSet == "volatility" {
		return model.TrendVolatileExplicit
	}
	return model.TrendVolatile
}

// LabelTrends sets TrendDirection on every aggregate in place. An item is
// volatile when mean(price_std) / mean(avg_price) across all of its rows
// exceeds threshold; every row of the item gets the same label. Items with
// a zero or undefined mean price are stable.
func LabelTrends(aggs []model.CostAggregate, threshold float64, volatile model.TrendDirection) []model.CostAggregate {
	type sums struct {
		avg, std float64
		n        int
	}
	byItem := make(map[string]*sums)
	for _, a := range aggs {
		s, ok := byItem[a.ItemCode]
		if !ok {
			s = &sums{}
			byItem[a.ItemCode] = s
		}
		s.avg += a.AvgPrice
		s.std += a.PriceStd
		s.n++
	}

	labels := make(map[string]model.TrendDirection, len(byItem))
	for code, s := range byItem {
		meanPrice := s.avg / float64(s.n)
		meanStd := s.std / float64(s.n)
		if meanPrice == 0 || math.IsNaN(meanPrice) || math.IsNaN(meanStd) {
			labels[code] = model.TrendStable
			continue
		}
		if meanStd/meanPrice > threshold {
			labels[code] = volatile
		} else {
			labels[code] = model.TrendStable
		}
	}

	for i := range aggs {
		aggs[i].TrendDirection = labels[aggs[i].ItemCode]
	}
	return aggs
}
