package model

import (
	"fmt"
	"math"
	"sort"

	"github.com/yumyai/bgcnet/internal/munkres"
)

// SeqDist scores two clusters on per-instance sequence identity, using the
// DMS filled by the alignment stage. Families with one copy on each side
// are matched directly; duplicated families are matched by a minimum-cost
// assignment over their instances. Either profile empty means maximal
// distance.
func SeqDist(a, b ClusterProfile, dms DMS) PairDistance {

	if a.Empty() || b.Empty() {
		return PairDistance{Distance: 1}
	}

	setA := a.FamilySet()
	setB := b.FamilySet()
	inter := 0
	seen := make(map[string]struct{}, len(setA)+len(setB))
	union := make([]string, 0, len(setA)+len(setB))
	for f := range setA {
		seen[f] = struct{}{}
		union = append(union, f)
		if _, ok := setB[f]; ok {
			inter++
		}
	}
	for f := range setB {
		if _, ok := seen[f]; !ok {
			union = append(union, f)
		}
	}
	// Sorted iteration keeps the floating point accumulation identical
	// across runs and across argument order.
	sort.Strings(union)
	jaccard := float64(inter) / float64(len(union))

	var ddsSum, s float64
	for _, fam := range union {
		instA := a.Instances[fam]
		instB := b.Instances[fam]
		la := len(instA)
		lb := len(instB)

		switch {
		case la == 1 && lb == 1:
			ddsSum += lookupDissim(dms, fam, instA[0], instB[0])
			s++

		case la+lb == 1:
			// A single copy with no partner on the other side.
			ddsSum += 1
			s++

		default:
			n := la
			if lb > n {
				n = lb
			}
			cost := make([][]float64, n)
			for i := range cost {
				cost[i] = make([]float64, n)
				for j := range cost[i] {
					if i < la && j < lb {
						cost[i][j] = lookupDissim(dms, fam, instA[i], instB[j])
					}
				}
			}

			assignment, err := munkres.Solve(cost)
			if err != nil {
				// The matrix is square and non-empty by construction.
				panic(fmt.Sprintf("assignment solve failed for family %s: %v", fam, err))
			}
			ddsSum += munkres.Cost(cost, assignment)
			s += float64(n)
		}
	}

	dds := math.Exp(-ddsSum / s)

	dist := 1 - SeqDistJaccardWeight*jaccard - SeqDistDDSWeight*dds
	if dist < 0 {
		dist = 0
	}

	return PairDistance{Distance: dist, Jaccard: jaccard, DDS: dds}
}

func lookupDissim(dms DMS, fam, a, b string) float64 {
	if m, ok := dms.Lookup(fam, a, b); ok {
		return m.Dissim
	}
	return FallbackDissim
}
