package cluster

import (
	"math"
	"math/rand/v2"
	"sort"

	log "github.com/sirupsen/logrus"
)

// OnThreshold is the power in watts above which a sample counts as "on".
const OnThreshold = 10.0

// Cluster returns the power levels found in x: the centroids of the best
// k-means clustering of the on-samples for k in [1, maxClusters), plus an
// explicit 0 W off level, rounded to whole watts, deduplicated and sorted.
// An appliance that is never on yields [0]. The number of levels is the
// appliance's state count.
func Cluster(x []float64, maxClusters int, seed uint64) []float64 {
	on := make([]float64, 0, len(x))
	for _, v := range x {
		if v > OnThreshold && !math.IsInf(v, 0) {
			on = append(on, v)
		}
	}
	if len(on) == 0 {
		return []float64{0}
	}

	rng := rand.New(rand.NewPCG(seed, 0))

	best, _ := KMeans(on, 1, rng)
	bestScore := math.Inf(-1)
	for k := 2; k < maxClusters; k++ {
		centroids, labels := KMeans(on, k, rng)
		score, ok := Silhouette(on, labels, len(centroids))
		if !ok {
			continue
		}
		if score > bestScore {
			best, bestScore = centroids, score
		}
	}

	levels := uniqueRounded(append(best, 0))
	log.WithFields(log.Fields{
		"SAMPLES": len(on),
		"LEVELS":  levels,
	}).Debug("CLUSTER: ESTIMATED POWER LEVELS")
	return levels
}

func uniqueRounded(values []float64) []float64 {
	seen := make(map[float64]struct{}, len(values))
	out := make([]float64, 0, len(values))
	for _, v := range values {
		r := math.Round(v)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Float64s(out)
	return out
}

// Counter is the clustering-based state count estimator.
type Counter struct{}

func (Counter) EstimateStateCount(seq []float64, maxClusters int, seed uint64) ([]float64, error) {
	return Cluster(seq, maxClusters, seed), nil
}
