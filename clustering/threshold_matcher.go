// Package clustering holds the default proposal generator. The
// reconciliation engine accepts any generator; this one links faces whose
// descriptors sit within a distance threshold and reuses a prior cluster's
// ID as its token when the new group clearly descends from that cluster.
package clustering

import (
	"math"

	"github.com/camden-git/facesysbackend/repository"
)

// ThresholdMatcher groups descriptors by transitive closure over pairwise
// euclidean distance.
type ThresholdMatcher struct {
	// MaxDistance is the largest descriptor distance at which two faces are
	// considered the same person.
	MaxDistance float64
}

// NewThresholdMatcher creates a matcher with the given linking distance.
func NewThresholdMatcher(maxDistance float64) *ThresholdMatcher {
	return &ThresholdMatcher{MaxDistance: maxDistance}
}

// GenerateProposal groups the given descriptors and labels each group with a
// token. A group that draws the plurality of its faces from exactly one
// prior cluster keeps that cluster's ID as its token; every other group gets
// a fresh, unused token.
func (m *ThresholdMatcher) GenerateProposal(current map[uint][]uint, descriptors []repository.FaceDescriptor) (map[uint][]uint, error) {
	groups := m.linkFaces(descriptors)

	// which prior cluster each face came from
	priorCluster := make(map[uint]uint)
	for clusterID, faceIDs := range current {
		for _, faceID := range faceIDs {
			priorCluster[faceID] = clusterID
		}
	}

	nextToken := uint(1)
	for clusterID := range current {
		if clusterID >= nextToken {
			nextToken = clusterID + 1
		}
	}

	proposal := make(map[uint][]uint, len(groups))
	usedTokens := make(map[uint]bool, len(groups))

	for _, group := range groups {
		token, ok := dominantCluster(group, priorCluster)
		if !ok || usedTokens[token] {
			token = nextToken
			nextToken++
		}
		usedTokens[token] = true
		proposal[token] = group
	}

	return proposal, nil
}

// linkFaces performs single-linkage grouping: faces end up in the same group
// when a chain of below-threshold distances connects them.
func (m *ThresholdMatcher) linkFaces(descriptors []repository.FaceDescriptor) [][]uint {
	parent := make([]int, len(descriptors))
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}

	for i := 0; i < len(descriptors); i++ {
		for j := i + 1; j < len(descriptors); j++ {
			if euclideanDistance(descriptors[i].Descriptor, descriptors[j].Descriptor) <= m.MaxDistance {
				parent[find(i)] = find(j)
			}
		}
	}

	byRoot := make(map[int][]uint)
	for i := range descriptors {
		root := find(i)
		byRoot[root] = append(byRoot[root], descriptors[i].FaceID)
	}

	groups := make([][]uint, 0, len(byRoot))
	for _, group := range byRoot {
		groups = append(groups, group)
	}
	return groups
}

// dominantCluster returns the prior cluster contributing the plurality of
// the group's faces, or false when the group has no prior members or two
// prior clusters tie.
func dominantCluster(group []uint, priorCluster map[uint]uint) (uint, bool) {
	counts := make(map[uint]int)
	for _, faceID := range group {
		if clusterID, ok := priorCluster[faceID]; ok {
			counts[clusterID]++
		}
	}
	if len(counts) == 0 {
		return 0, false
	}

	var best uint
	bestCount := -1
	tied := false
	for clusterID, count := range counts {
		switch {
		case count > bestCount:
			best = clusterID
			bestCount = count
			tied = false
		case count == bestCount:
			tied = true
		}
	}
	if tied {
		return 0, false
	}
	return best, true
}

func euclideanDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
