package analytics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/sells-group/costdb/internal/model"
)

type groupKey struct {
	itemCode, canonical, region, supplier string
}

func (a groupKey) less(b groupKey) bool {
	if a.itemCode != b.itemCode {
		return a.itemCode < b.itemCode
	}
	if a.canonical != b.canonical {
		return a.canonical < b.canonical
	}
	if a.region != b.region {
		return a.region < b.region
	}
	return a.supplier < b.supplier
}

// Aggregate computes price statistics per (item_code, canonical_item_name,
// region, supplier), sorted by that key. Trend labels are left empty for
// LabelTrends. Single-observation groups get a price_std of 0.
func Aggregate(records []model.CleanRecord) []model.CostAggregate {
	groups := make(map[groupKey][]float64)
	for _, r := range records {
		k := groupKey{r.ItemCode, r.CanonicalItemName, r.Region, r.Supplier}
		groups[k] = append(groups[k], r.UnitPrice)
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	out := make([]model.CostAggregate, 0, len(keys))
	for _, k := range keys {
		prices := groups[k]
		out = append(out, model.CostAggregate{
			ItemCode:          k.itemCode,
			CanonicalItemName: k.canonical,
			Region:            k.region,
			Supplier:          k.supplier,
			AvgPrice:          stat.Mean(prices, nil),
			MedianPrice:       Median(prices),
			MinPrice:          floats.Min(prices),
			MaxPrice:          floats.Max(prices),
			PriceStd:          sampleStd(prices),
		})
	}
	return out
}

// Median returns the middle value of xs, or the mean of the two middle
// values for an even count. xs is not modified. Median of nothing is NaN.
func Median(xs []float64) float64 {
	n := len(xs)
	if n == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// sampleStd is the n-1 standard deviation, defined as 0 for fewer than two
// observations.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}
