// Package cluster groups embedding vectors into canonical item clusters.
package cluster

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
)

// Diagnostic describes one cluster.
type Diagnostic struct {
	Size int `json:"size"`
	// AvgSimilarity is the mean cosine similarity of members to the cluster
	// centroid, rounded to 3 decimals.
	AvgSimilarity float64 `json:"avg_similarity"`
}

// Result holds one label per input vector plus per-label diagnostics.
// Labels are dense, start at 0, and follow order of first discovery.
type Result struct {
	Labels      []int
	Diagnostics map[int]Diagnostic
}

// NumClusters returns the number of distinct labels.
func (r *Result) NumClusters() int {
	return len(r.Diagnostics)
}

// Members returns the input indices per label, each in ascending order.
func (r *Result) Members() map[int][]int {
	m := make(map[int][]int, len(r.Diagnostics))
	for i, l := range r.Labels {
		m[l] = append(m[l], i)
	}
	return m
}

// Clusterer partitions vectors so that every vector belongs to exactly one
// cluster.
type Clusterer interface {
	Cluster(vectors [][]float64, eps float64) (*Result, error)
}

// DBSCAN is density clustering over cosine distance (1 - cosine similarity).
// Two vectors are neighbours when their distance is <= eps. With
// MinSamples 1 every vector is a core point, so clusters are the connected
// components of the neighbour graph and there is no noise.
type DBSCAN struct {
	MinSamples int
}

// NewDBSCAN returns the clusterer used by the pipeline.
func NewDBSCAN() *DBSCAN {
	return &DBSCAN{MinSamples: 1}
}

const unassigned = -1

// Cluster implements Clusterer.
func (d *DBSCAN) Cluster(vectors [][]float64, eps float64) (*Result, error) {
	if eps <= 0 || math.IsNaN(eps) {
		return nil, eris.Errorf("cluster: eps must be positive, got %v", eps)
	}
	if err := checkDims(vectors); err != nil {
		return nil, err
	}

	minSamples := d.MinSamples
	if minSamples < 1 {
		minSamples = 1
	}

	n := len(vectors)
	norms := make([]float64, n)
	for i, v := range vectors {
		norms[i] = floats.Norm(v, 2)
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = unassigned
	}

	next := 0
	for i := range vectors {
		if labels[i] != unassigned {
			continue
		}
		seeds := neighbours(vectors, norms, i, eps)
		if len(seeds) < minSamples {
			// Border-or-noise candidates still get their own cluster so
			// every item is assigned a code.
			labels[i] = next
			next++
			continue
		}

		labels[i] = next
		queue := append([]int(nil), seeds...)
		for len(queue) > 0 {
			j := queue[0]
			queue = queue[1:]
			if labels[j] != unassigned {
				continue
			}
			labels[j] = next
			nb := neighbours(vectors, norms, j, eps)
			if len(nb) >= minSamples {
				for _, k := range nb {
					if labels[k] == unassigned {
						queue = append(queue, k)
					}
				}
			}
		}
		next++
	}

	return &Result{
		Labels:      labels,
		Diagnostics: diagnose(vectors, norms, labels),
	}, nil
}

// neighbours returns every index within eps of i, including i itself.
func neighbours(vectors [][]float64, norms []float64, i int, eps float64) []int {
	var out []int
	for j := range vectors {
		if j == i || CosineDistance(vectors[i], vectors[j], norms[i], norms[j]) <= eps {
			out = append(out, j)
		}
	}
	return out
}

// CosineDistance returns 1 - cosine similarity. Pass norms <= 0 to have
// them computed. A zero vector has similarity 0 to everything.
func CosineDistance(a, b []float64, normA, normB float64) float64 {
	return 1 - cosineSimilarity(a, b, normA, normB)
}

func cosineSimilarity(a, b []float64, normA, normB float64) float64 {
	if normA <= 0 {
		normA = floats.Norm(a, 2)
	}
	if normB <= 0 {
		normB = floats.Norm(b, 2)
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return floats.Dot(a, b) / (normA * normB)
}

func diagnose(vectors [][]float64, norms []float64, labels []int) map[int]Diagnostic {
	members := make(map[int][]int)
	for i, l := range labels {
		members[l] = append(members[l], i)
	}

	diags := make(map[int]Diagnostic, len(members))
	for l, idx := range members {
		dim := len(vectors[idx[0]])
		centroid := make([]float64, dim)
		for _, i := range idx {
			floats.Add(centroid, vectors[i])
		}
		floats.Scale(1/float64(len(idx)), centroid)
		cNorm := floats.Norm(centroid, 2)

		var sum float64
		for _, i := range idx {
			if cNorm == 0 || norms[i] == 0 {
				continue
			}
			sum += floats.Dot(vectors[i], centroid) / (norms[i] * cNorm)
		}
		diags[l] = Diagnostic{
			Size:          len(idx),
			AvgSimilarity: math.Round(sum/float64(len(idx))*1000) / 1000,
		}
	}
	return diags
}

func checkDims(vectors [][]float64) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := len(vectors[0])
	if dim == 0 {
		return eris.New("cluster: vectors must not be empty")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return eris.Errorf("cluster: vector %d has dimension %d, want %d", i, len(v), dim)
		}
	}
	return nil
}
