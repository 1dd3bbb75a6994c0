package model

import "sort"

// ResolveOverlaps drops same-CDS hits whose envelopes overlap too much,
// keeping the higher-scoring hit of each offending pair. Hits with exactly
// equal scores are both kept. Survivors come back sorted by start
// coordinate; that order is the canonical synteny order downstream.
//
// Removal decisions are collected against the unmodified input first and
// applied afterwards, so the outcome does not depend on comparison order.
func ResolveOverlaps(hits []DomainHit, cutoff float64) []DomainHit {

	byCDS := make(map[string][]int)
	for i, h := range hits {
		byCDS[h.CDS] = append(byCDS[h.CDS], i)
	}

	removed := make([]bool, len(hits))

	for _, idxs := range byCDS {
		for x := 0; x < len(idxs); x++ {
			for y := x + 1; y < len(idxs); y++ {
				a := hits[idxs[x]]
				b := hits[idxs[y]]

				ov := overlapLen(a, b)
				if ov <= 0 {
					continue
				}

				// Significant relative to either hit's own length?
				if float64(ov)/float64(a.Length()) > cutoff || float64(ov)/float64(b.Length()) > cutoff {
					if a.Score > b.Score {
						removed[idxs[y]] = true
					} else if b.Score > a.Score {
						removed[idxs[x]] = true
					}
				}
			}
		}
	}

	kept := make([]DomainHit, 0, len(hits))
	for i, h := range hits {
		if !removed[i] {
			kept = append(kept, h)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// overlapLen is the number of shared positions between two hit envelopes:
// the sum of both lengths minus the span they cover together. Zero or
// negative means no overlap.
func overlapLen(a, b DomainHit) int {
	lo := a.Start
	if b.Start < lo {
		lo = b.Start
	}
	hi := a.Stop
	if b.Stop > hi {
		hi = b.Stop
	}
	return a.Length() + b.Length() - (hi - lo)
}
