package model

import "math"

// DistanceConfig is the immutable scoring configuration of a run, passed
// explicitly into every distance call.
type DistanceConfig struct {
	JaccardWeight float64
	DDSWeight     float64
	GKWeight      float64
	Nbhood        int
}

func DefaultDistanceConfig() DistanceConfig {
	return DistanceConfig{
		JaccardWeight: DefaultJaccardWeight,
		DDSWeight:     DefaultDDSWeight,
		GKWeight:      DefaultGKWeight,
		Nbhood:        DefaultNbhood,
	}
}

// DomainDist scores two clusters on domain content alone: a size-tolerant
// Jaccard over family sets, a duplication score over copy numbers and a
// synteny score over family order. Either profile empty means maximal
// distance, no sub-scores.
func DomainDist(a, b ClusterProfile, cfg DistanceConfig) PairDistance {

	if a.Empty() || b.Empty() {
		return PairDistance{Distance: 1}
	}

	setA := a.FamilySet()
	setB := b.FamilySet()
	inter := 0
	for f := range setA {
		if _, ok := setB[f]; ok {
			inter++
		}
	}

	// 2*min(|A|,|B|) - |A∩B| in place of the classical union keeps large
	// size disparities from dominating the score.
	minSize := len(setA)
	if len(setB) < minSize {
		minSize = len(setB)
	}
	jaccard := float64(inter) / float64(2*minSize-inter)

	countsA := a.Counts()
	countsB := b.Counts()
	var num, den float64
	for f, ca := range countsA {
		cb := countsB[f]
		num += math.Abs(float64(ca - cb))
		if ca > cb {
			den += float64(ca)
		} else {
			den += float64(cb)
		}
	}
	for f, cb := range countsB {
		if _, ok := countsA[f]; ok {
			continue
		}
		num += float64(cb)
		den += float64(cb)
	}
	dds := math.Exp(-num / den)

	// Both strand orientations, keeping the better synteny score.
	gk := calculateGK(a.Families, b.Families, cfg.Nbhood)
	if g := calculateGK(reversed(a.Families), b.Families, cfg.Nbhood); g > gk {
		gk = g
	}

	dist := 1 - cfg.JaccardWeight*jaccard - cfg.DDSWeight*dds - cfg.GKWeight*gk
	if dist < 0 {
		dist = 0
	}

	return PairDistance{Distance: dist, Jaccard: jaccard, DDS: dds, GK: gk}
}
