// Package insight pulls quick procurement hints out of free text such as
// buyer notes, e-mails or a batch of item descriptions.
package insight

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/costdb/internal/model"
	"github.com/sells-group/costdb/internal/taxonomy"
)

// DefaultItemKeywords are the item families recognized in free text.
var DefaultItemKeywords = []string{
	"pipe", "valve", "flange", "gasket", "pump",
	"bearing", "cable", "oil", "filter",
}

var (
	whitespace = regexp.MustCompile(`\s+`)
	sizeRe     = regexp.MustCompile(`\b(\d+(?:\.\d+)?)\s*(mm|inch|in)\b`)
	oilGradeRe = regexp.MustCompile(`iso\s*\d+`)
	priceRe    = regexp.MustCompile(`\b\d{3,6}\b`)
)

// Insights is the structured result of Analyze.
type Insights struct {
	Items     []string `json:"items,omitempty"`
	Materials []string `json:"materials,omitempty"`
	Sizes     []string `json:"sizes,omitempty"`
	OilGrades []string `json:"oil_grades,omitempty"`
	// Prices are the distinct 3-6 digit numbers mentioned, ascending.
	Prices  []int    `json:"prices,omitempty"`
	Context []string `json:"context,omitempty"`
}

// Analyzer extracts Insights using fixed vocabularies.
type Analyzer struct {
	items     []string
	materials []string
}

// New creates an Analyzer. Materials come from tax; a nil tax selects the
// default taxonomy.
func New(tax *taxonomy.Taxonomy) *Analyzer {
	if tax == nil {
		tax = taxonomy.Default()
	}
	return &Analyzer{
		items:     DefaultItemKeywords,
		materials: tax.Materials,
	}
}

// Normalize flattens line breaks and runs of whitespace.
func Normalize(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

// Analyze extracts insights from text. Matching is case-insensitive and
// every list is sorted and de-duplicated.
func (a *Analyzer) Analyze(text string) Insights {
	lowered := strings.ToLower(Normalize(text))
	title := cases.Title(language.English)
	var in Insights

	for _, kw := range a.items {
		if strings.Contains(lowered, kw) {
			in.Items = append(in.Items, title.String(kw))
		}
	}
	in.Items = sortedSet(in.Items)

	for _, m := range a.materials {
		if strings.Contains(lowered, m) {
			in.Materials = append(in.Materials, title.String(m))
		}
	}
	in.Materials = sortedSet(in.Materials)

	for _, m := range sizeRe.FindAllStringSubmatch(lowered, -1) {
		in.Sizes = append(in.Sizes, m[1]+" "+m[2])
	}
	in.Sizes = sortedSet(in.Sizes)

	in.OilGrades = sortedSet(oilGradeRe.FindAllString(lowered, -1))

	seen := make(map[int]struct{})
	for _, s := range priceRe.FindAllString(lowered, -1) {
		n, err := strconv.Atoi(s)
		if err != nil {
			continue
		}
		if _, ok := seen[n]; !ok {
			seen[n] = struct{}{}
			in.Prices = append(in.Prices, n)
		}
	}
	sort.Ints(in.Prices)

	if strings.Contains(lowered, "maintenance") {
		in.Context = append(in.Context, "Maintenance")
	}
	if strings.Contains(lowered, "operation") {
		in.Context = append(in.Context, "Operations")
	}

	return in
}

// AnalyzeOrders analyzes the item descriptions of orders as one text.
func (a *Analyzer) AnalyzeOrders(orders []model.RawPurchaseOrder) Insights {
	parts := make([]string, 0, len(orders))
	for _, o := range orders {
		parts = append(parts, o.ItemDescription)
	}
	return a.Analyze(strings.Join(parts, "\n"))
}

// Bullets renders insights as short human-readable lines, in a fixed order.
func (in Insights) Bullets() []string {
	var out []string
	if len(in.Items) > 0 {
		out = append(out, "Items detected: "+strings.Join(in.Items, ", "))
	}
	if len(in.Materials) > 0 {
		out = append(out, "Materials: "+strings.Join(in.Materials, ", "))
	}
	if len(in.Sizes) > 0 {
		out = append(out, "Sizes: "+strings.Join(in.Sizes, ", "))
	}
	if len(in.OilGrades) > 0 {
		out = append(out, "Oil grade: "+strings.Join(in.OilGrades, ", "))
	}
	switch len(in.Prices) {
	case 0:
	case 1:
		out = append(out, fmt.Sprintf("Price mentioned: %d", in.Prices[0]))
	default:
		out = append(out, fmt.Sprintf("Price range mentioned: %d to %d", in.Prices[0], in.Prices[len(in.Prices)-1]))
	}
	if len(in.Context) > 0 {
		out = append(out, "Usage context: "+strings.Join(in.Context, ", "))
	}
	return out
}

func sortedSet(xs []string) []string {
	if len(xs) == 0 {
		return nil
	}
	sort.Strings(xs)
	out := xs[:1]
	for _, x := range xs[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}
