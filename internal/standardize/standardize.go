// Package standardize maps free-text purchase order descriptions onto
// canonical items: normalize, embed, cluster, then name each cluster after
// its first member.
package standardize

import (
	"context"
	"crypto/md5" //nolint:gosec // item codes are identifiers, not security hashes
	"encoding/hex"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/costdb/internal/cluster"
	"github.com/sells-group/costdb/internal/config"
	"github.com/sells-group/costdb/internal/embed"
	"github.com/sells-group/costdb/internal/model"
	"github.com/sells-group/costdb/internal/taxonomy"
)

// ItemCode derives the stable code of a canonical name: the uppercased name
// with spaces replaced by underscores, then "_" and the first four hex
// characters of the name's MD5 digest.
func ItemCode(canonicalName string) string {
	sum := md5.Sum([]byte(canonicalName)) //nolint:gosec
	prefix := strings.ReplaceAll(strings.ToUpper(canonicalName), " ", "_")
	return prefix + "_" + hex.EncodeToString(sum[:])[:4]
}

// Confidence maps a cluster size to a confidence score using the configured
// step function. The score never decreases as size grows.
func Confidence(size int, steps config.ConfidenceConfig) float64 {
	switch {
	case size <= 1:
		return steps.Singleton
	case size <= steps.SmallMax:
		return steps.Small
	default:
		return steps.Large
	}
}

// Result is the output of one standardization pass.
type Result struct {
	// Items holds one entry per input order, in input order.
	Items            []model.StandardizedItem
	CanonicalItems   int
	ReductionPercent float64
	Clusters         *cluster.Result
}

// Standardizer assigns canonical items to purchase orders.
type Standardizer struct {
	tax        *taxonomy.Taxonomy
	normalizer *taxonomy.Normalizer
	provider   embed.Provider
	clusterer  cluster.Clusterer
	thresholds config.Thresholds
	confidence config.ConfidenceConfig
}

// New creates a Standardizer. A nil clusterer selects DBSCAN.
func New(
	tax *taxonomy.Taxonomy,
	provider embed.Provider,
	clusterer cluster.Clusterer,
	thresholds config.Thresholds,
	confidence config.ConfidenceConfig,
) *Standardizer {
	if clusterer == nil {
		clusterer = cluster.NewDBSCAN()
	}
	return &Standardizer{
		tax:        tax,
		normalizer: taxonomy.NewNormalizer(tax),
		provider:   provider,
		clusterer:  clusterer,
		thresholds: thresholds,
		confidence: confidence,
	}
}

// Standardize normalizes, embeds and clusters the descriptions of orders and
// returns one standardized item per order.
func (s *Standardizer) Standardize(ctx context.Context, orders []model.RawPurchaseOrder) (*Result, error) {
	if len(orders) == 0 {
		return &Result{Clusters: &cluster.Result{Diagnostics: map[int]cluster.Diagnostic{}}}, nil
	}

	texts := make([]string, len(orders))
	for i, o := range orders {
		texts[i] = s.normalizer.Normalize(o.ItemDescription)
	}

	vectors, err := s.embedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}

	clusters, err := s.clusterer.Cluster(vectors, s.thresholds.Epsilon)
	if err != nil {
		return nil, eris.Wrap(err, "standardize: cluster")
	}
	if len(clusters.Labels) != len(orders) {
		return nil, eris.Errorf("standardize: clusterer returned %d labels for %d items", len(clusters.Labels), len(orders))
	}

	// The first member in input order names the cluster.
	type canonical struct {
		name, code, category string
		confidence           float64
	}
	sizes := make(map[int]int)
	for _, label := range clusters.Labels {
		sizes[label]++
	}
	byLabel := make(map[int]canonical, len(sizes))
	for i, label := range clusters.Labels {
		if _, ok := byLabel[label]; ok {
			continue
		}
		size := sizes[label]
		name := texts[i]
		byLabel[label] = canonical{
			name:       name,
			code:       ItemCode(name),
			category:   s.tax.Category(name),
			confidence: Confidence(size, s.confidence),
		}
	}

	items := make([]model.StandardizedItem, len(orders))
	for i, o := range orders {
		c := byLabel[clusters.Labels[i]]
		items[i] = model.StandardizedItem{
			POID:              strings.TrimSpace(o.POID),
			ItemDescription:   o.ItemDescription,
			CanonicalItemName: c.name,
			ItemCode:          c.code,
			Category:          c.category,
			ConfidenceScore:   c.confidence,
			Attributes:        s.tax.ExtractAttributes(texts[i]),
		}
	}

	canonicalCount := CountCanonical(items)
	res := &Result{
		Items:            items,
		CanonicalItems:   canonicalCount,
		ReductionPercent: ReductionPercent(len(items), canonicalCount),
		Clusters:         clusters,
	}
	logSummary(res)
	return res, nil
}

// embedTexts embeds each distinct text once and expands the vectors back to
// input order.
func (s *Standardizer) embedTexts(ctx context.Context, texts []string) ([][]float64, error) {
	index := make(map[string]int, len(texts))
	var unique []string
	for _, t := range texts {
		if _, ok := index[t]; !ok {
			index[t] = len(unique)
			unique = append(unique, t)
		}
	}

	vecs, err := s.provider.Embed(ctx, unique)
	if err != nil {
		return nil, eris.Wrap(err, "standardize: embed")
	}
	if len(vecs) != len(unique) {
		return nil, eris.Errorf("standardize: provider returned %d vectors for %d texts", len(vecs), len(unique))
	}

	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = vecs[index[t]]
	}
	return out, nil
}

// ReductionPercent is 100 * (1 - canonical/raw), rounded to 2 decimals.
func ReductionPercent(raw, canonical int) float64 {
	if raw == 0 {
		return 0
	}
	return math.Round(10000*(1-float64(canonical)/float64(raw))) / 100
}

// CountCanonical counts the distinct item codes in items.
func CountCanonical(items []model.StandardizedItem) int {
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[it.ItemCode] = struct{}{}
	}
	return len(seen)
}

func logSummary(res *Result) {
	log := zap.L().With(zap.String("stage", "standardize"))
	log.Info("standardize: summary",
		zap.Int("raw_items", len(res.Items)),
		zap.Int("canonical_items", res.CanonicalItems),
		zap.Float64("reduction_percent", res.ReductionPercent),
	)
	labels := make([]int, 0, len(res.Clusters.Diagnostics))
	for label := range res.Clusters.Diagnostics {
		labels = append(labels, label)
	}
	sort.Ints(labels)
	for _, label := range labels {
		d := res.Clusters.Diagnostics[label]
		log.Debug("standardize: cluster",
			zap.Int("cluster", label),
			zap.Int("size", d.Size),
			zap.Float64("avg_similarity", d.AvgSimilarity),
		)
	}
}
