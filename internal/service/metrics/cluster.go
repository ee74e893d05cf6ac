package metrics

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/ignite/vintner-crm/internal/domain"
)

const kmeansMaxIter = 20

// ComputeClusters groups clients into K-means clusters over their
// min-max-scaled (recency, frequency, monetary) components and tags each
// client with a "cN" label. Clients missing any component are skipped.
// The configured seed makes the clustering reproducible; it is recorded
// in each run's config hash.
func (s *Service) ComputeClusters(ctx context.Context, tenantID int64) (map[string]int, error) {
	clients, err := s.repo.ListClients(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var eligible []domain.Client
	var points [][3]float64
	for _, c := range clients {
		if c.Recency == nil || c.Frequency == nil || c.Monetary == nil {
			continue
		}
		eligible = append(eligible, c)
		points = append(points, [3]float64{*c.Recency, *c.Frequency, *c.Monetary})
	}
	if len(points) == 0 {
		return map[string]int{}, nil
	}

	k := s.cfg.KMeansClusters
	if k > len(points) {
		k = len(points)
	}

	minMaxScale(points)
	labels := kmeans(points, k, rand.New(rand.NewSource(s.cfg.KMeansSeed)))

	counts := make(map[string]int)
	for i := range eligible {
		label := fmt.Sprintf("c%d", labels[i])
		eligible[i].Cluster = label
		counts[label]++
	}
	if err := s.repo.UpdateClients(ctx, eligible); err != nil {
		return nil, err
	}
	return counts, nil
}

// minMaxScale normalizes each feature column to [0,1] in place.
// Constant columns map to 0.
func minMaxScale(points [][3]float64) {
	var mins, maxs [3]float64
	for j := 0; j < 3; j++ {
		mins[j] = points[0][j]
		maxs[j] = points[0][j]
	}
	for _, p := range points {
		for j := 0; j < 3; j++ {
			if p[j] < mins[j] {
				mins[j] = p[j]
			}
			if p[j] > maxs[j] {
				maxs[j] = p[j]
			}
		}
	}
	for i := range points {
		for j := 0; j < 3; j++ {
			if r := maxs[j] - mins[j]; r > 0 {
				points[i][j] = (points[i][j] - mins[j]) / r
			} else {
				points[i][j] = 0
			}
		}
	}
}

// kmeans is a fixed-iteration Lloyd's algorithm: random init from the
// data, nearest-center assignment, mean recomputation, random re-init of
// empty clusters, stopping early when assignments stabilize.
func kmeans(points [][3]float64, k int, rng *rand.Rand) []int {
	centers := make([][3]float64, k)
	for i, idx := range rng.Perm(len(points))[:k] {
		centers[i] = points[idx]
	}

	labels := make([]int, len(points))
	for iter := 0; iter < kmeansMaxIter; iter++ {
		changed := false
		for i, p := range points {
			best := nearest(p, centers)
			if best != labels[i] {
				labels[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		var sums [][3]float64 = make([][3]float64, k)
		counts := make([]int, k)
		for i, p := range points {
			c := labels[i]
			for j := 0; j < 3; j++ {
				sums[c][j] += p[j]
			}
			counts[c]++
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				centers[c] = points[rng.Intn(len(points))]
				continue
			}
			for j := 0; j < 3; j++ {
				centers[c][j] = sums[c][j] / float64(counts[c])
			}
		}
	}
	return labels
}

func nearest(p [3]float64, centers [][3]float64) int {
	best, bestDist := 0, -1.0
	for c, center := range centers {
		d := 0.0
		for j := 0; j < 3; j++ {
			diff := p[j] - center[j]
			d += diff * diff
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
