// Package cluster estimates how many power levels an appliance uses by
// clustering its on-state samples.
package cluster

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/hadz2damax/NILM/src/alias"
)

const maxLloydIterations = 300

// KMeans clusters one-dimensional data into k groups using k-means++ seeding
// and Lloyd iterations. Centroids are returned in ascending order and labels
// refer to that order. k is clamped to [1, len(x)].
func KMeans(x []float64, k int, rng *rand.Rand) ([]float64, []int) {
	n := len(x)
	if n == 0 {
		return nil, nil
	}
	k = max(1, min(k, n))

	centroids := seed(x, k, rng)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	sums := make([]float64, k)
	counts := make([]int, k)
	for range maxLloydIterations {
		changed := false
		for i, v := range x {
			if c := nearest(centroids, v); c != labels[i] {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		clear(sums)
		clear(counts)
		for i, v := range x {
			sums[labels[i]] += v
			counts[labels[i]]++
		}
		for c := range k {
			// an empty cluster keeps its previous centroid
			if counts[c] > 0 {
				centroids[c] = sums[c] / float64(counts[c])
			}
		}
	}

	return sortClusters(centroids, labels)
}

/* k-means++: each new centre is drawn with probability proportional to D(x)^2 */
func seed(x []float64, k int, rng *rand.Rand) []float64 {
	centroids := make([]float64, 0, k)
	centroids = append(centroids, x[rng.IntN(len(x))])

	d2 := make([]float64, len(x))
	for len(centroids) < k {
		for i, v := range x {
			d := v - centroids[nearest(centroids, v)]
			d2[i] = d * d
		}
		tbl, err := alias.New(d2)
		if err != nil {
			// every point already sits on a centre
			centroids = append(centroids, x[rng.IntN(len(x))])
			continue
		}
		centroids = append(centroids, x[tbl.Sample(rng)])
	}
	return centroids
}

func nearest(centroids []float64, v float64) int {
	best := 0
	bestDist := math.Inf(1)
	for c, m := range centroids {
		if d := math.Abs(v - m); d < bestDist {
			best = c
			bestDist = d
		}
	}
	return best
}

func sortClusters(centroids []float64, labels []int) ([]float64, []int) {
	order := make([]int, len(centroids))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return centroids[order[a]] < centroids[order[b]]
	})

	rank := make([]int, len(centroids))
	sorted := make([]float64, len(centroids))
	for newIdx, oldIdx := range order {
		rank[oldIdx] = newIdx
		sorted[newIdx] = centroids[oldIdx]
	}
	for i, l := range labels {
		labels[i] = rank[l]
	}
	return sorted, labels
}

// Silhouette returns the mean silhouette coefficient of a labelling. ok is
// false when fewer than two clusters are populated or every point is its own
// cluster, where the score is undefined. Inputs larger than sampleLimit are
// evaluated on an evenly strided subsample.
func Silhouette(x []float64, labels []int, k int) (float64, bool) {
	xs, ls := subsample(x, labels, sampleLimit)

	sizes := make([]int, k)
	for _, l := range ls {
		sizes[l]++
	}
	populated := 0
	for _, s := range sizes {
		if s > 0 {
			populated++
		}
	}
	if populated < 2 || populated >= len(xs) {
		return 0, false
	}

	dist := make([]float64, k)
	var total float64
	for i, v := range xs {
		clear(dist)
		for j, w := range xs {
			if i != j {
				dist[ls[j]] += math.Abs(v - w)
			}
		}

		own := ls[i]
		if sizes[own] == 1 {
			continue // s(i) = 0
		}
		a := dist[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c := range k {
			if c != own && sizes[c] > 0 {
				b = min(b, dist[c]/float64(sizes[c]))
			}
		}
		if m := max(a, b); m > 0 {
			total += (b - a) / m
		}
	}
	return total / float64(len(xs)), true
}

const sampleLimit = 2000

func subsample(x []float64, labels []int, limit int) ([]float64, []int) {
	if len(x) <= limit {
		return x, labels
	}
	step := float64(len(x)) / float64(limit)
	xs := make([]float64, limit)
	ls := make([]int, limit)
	for i := range limit {
		idx := int(float64(i) * step)
		xs[i] = x[idx]
		ls[i] = labels[idx]
	}
	return xs, ls
}
