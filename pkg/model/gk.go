package model

import "math"

// calculateGK scores order concordance between two family sequences with a
// sliding neighborhood window. Sequences sharing fewer than two distinct
// families score 0. Otherwise the result is (1+gamma)/2 in [0.5, 1], where
// gamma is the Goodman-Kruskal index over windowed ordered pairs: pairs seen
// identically oriented in both sequences count as concordant, pairs seen in
// opposite orientation as discordant.
func calculateGK(a, b []string, nbhood int) float64 {

	shared := 0
	seen := make(map[string]struct{}, len(a))
	for _, f := range a {
		seen[f] = struct{}{}
	}
	counted := make(map[string]struct{})
	for _, f := range b {
		if _, ok := seen[f]; ok {
			if _, dup := counted[f]; !dup {
				counted[f] = struct{}{}
				shared++
			}
		}
	}
	if shared <= 1 {
		return 0
	}

	pairsA := windowPairs(a, nbhood)
	pairsB := windowPairs(b, nbhood)

	allPairs := make(map[[2]string]struct{}, len(pairsA)+len(pairsB))
	for p := range pairsA {
		allPairs[p] = struct{}{}
	}
	for p := range pairsB {
		allPairs[p] = struct{}{}
	}

	var ns, nr float64
	for p := range allPairs {
		rev := [2]string{p[1], p[0]}
		_, pa := pairsA[p]
		_, pb := pairsB[p]
		_, ra := pairsA[rev]
		_, rb := pairsB[rev]

		if pa && pb {
			ns++
		} else if pa && rb {
			nr++
		} else if ra && pb {
			nr++
		}
	}

	gamma := 0.0
	if ns+nr > 0 {
		gamma = math.Abs(nr-ns) / (nr + ns)
	}
	return (1 + gamma) / 2
}

// windowPairs collects the ordered pairs (seq[i], seq[j]) with j inside the
// neighborhood window after i. Windows stop opening nbhood positions before
// the end, so sequences of nbhood elements or fewer produce no pairs.
func windowPairs(seq []string, nbhood int) map[[2]string]struct{} {
	pairs := make(map[[2]string]struct{})
	for i := 0; i < len(seq)-nbhood; i++ {
		for j := i + 1; j < i+nbhood; j++ {
			pairs[[2]string{seq[i], seq[j]}] = struct{}{}
		}
	}
	return pairs
}

func reversed(seq []string) []string {
	out := make([]string, len(seq))
	for i, s := range seq {
		out[len(seq)-1-i] = s
	}
	return out
}
