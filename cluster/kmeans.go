package cluster

import (
	"math"
	"math/rand/v2"
)

// RecordsPerCluster sets the cluster granularity: one cluster per this many
// records, and never fewer than one.
const RecordsPerCluster = 15

// maxIterations caps Lloyd iterations.
const maxIterations = 300

// ClusterCount returns the number of clusters for a document of n records.
func ClusterCount(n int) int {
	return max(1, n/RecordsPerCluster)
}

// KMeans partitions vectors into k clusters and returns one label in [0, k)
// per vector. Centres are seeded with k-means++ from rng, so a fixed seed
// gives a fixed labelling.
func KMeans(rng *rand.Rand, vectors [][]float32, k int) []int {
	n := len(vectors)
	if n == 0 {
		return nil
	}
	labels := make([]int, n)
	if k > n {
		k = n
	}
	if k <= 1 {
		return labels
	}

	centers := seedCenters(rng, vectors, k)
	for i := range labels {
		labels[i] = -1
	}

	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestDist := 0, math.Inf(1)
			for c, center := range centers {
				if d := sqDist(v, center); d < bestDist {
					best, bestDist = c, d
				}
			}
			if labels[i] != best {
				labels[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}
		centers = recompute(vectors, labels, centers)
	}
	return labels
}

// seedCenters picks k initial centres: the first uniformly, each next one
// with probability proportional to its squared distance from the nearest
// centre already chosen.
func seedCenters(rng *rand.Rand, vectors [][]float32, k int) [][]float64 {
	n := len(vectors)
	centers := make([][]float64, 0, k)
	centers = append(centers, toFloat64(vectors[rng.IntN(n)]))

	dist := make([]float64, n)
	for i, v := range vectors {
		dist[i] = sqDist(v, centers[0])
	}

	for len(centers) < k {
		total := 0.0
		for _, d := range dist {
			total += d
		}

		next := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}

		c := toFloat64(vectors[next])
		centers = append(centers, c)
		for i, v := range vectors {
			if d := sqDist(v, c); d < dist[i] {
				dist[i] = d
			}
		}
	}
	return centers
}

// recompute moves every centre to the mean of its members. An empty
// cluster takes over the point farthest from its own centre.
func recompute(vectors [][]float32, labels []int, old [][]float64) [][]float64 {
	k := len(old)
	dim := len(old[0])
	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	counts := make([]int, k)
	for i, v := range vectors {
		c := labels[i]
		counts[c]++
		for j := 0; j < dim && j < len(v); j++ {
			sums[c][j] += float64(v[j])
		}
	}

	for c := range sums {
		if counts[c] == 0 {
			continue
		}
		for j := range sums[c] {
			sums[c][j] /= float64(counts[c])
		}
	}

	for c := range sums {
		if counts[c] > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, v := range vectors {
			if counts[labels[i]] <= 1 {
				continue
			}
			if d := sqDist(v, sums[labels[i]]); d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			sums[c] = old[c]
			continue
		}
		counts[labels[far]]--
		labels[far] = c
		counts[c] = 1
		sums[c] = toFloat64(vectors[far])
	}
	return sums
}

func sqDist(v []float32, c []float64) float64 {
	var s float64
	for j := 0; j < len(v) && j < len(c); j++ {
		d := float64(v[j]) - c[j]
		s += d * d
	}
	return s
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
