package model

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Engine modes.
const (
	ModeDomainDist = "domain_dist"
	ModeSeqDist    = "seqdist"
)

// Engine bundles the immutable inputs of one pairwise run. Every distance
// call reads only from here, so pairs can be scored concurrently without
// locking.
type Engine struct {
	Profiles map[string]ClusterProfile
	Mode     string
	Config   DistanceConfig
	DMS      DMS
}

// Distance scores two clusters by name. Unknown names behave as empty
// profiles, which score maximally distant.
func (e *Engine) Distance(a, b string) PairDistance {
	pa := e.Profiles[a]
	pb := e.Profiles[b]
	if e.Mode == ModeSeqDist {
		return SeqDist(pa, pb, e.DMS)
	}
	return DomainDist(pa, pb, e.Config)
}

// NetworkTable is a sorted edge list, most similar pairs first.
type NetworkTable []NetworkEdge

// Filter keeps rows whose squared similarity strictly exceeds cutoff,
// preserving sort order.
func (t NetworkTable) Filter(cutoff float64) NetworkTable {
	out := make(NetworkTable, 0, len(t))
	for _, e := range t {
		if e.SqSim > cutoff {
			out = append(out, e)
		}
	}
	return out
}

// AssembleNetwork scores every unordered cluster pair and returns the table
// sorted ascending by log score. Ties keep enumeration order, and the
// infinite sentinel for zero similarity lands at the very end. Pairs are
// fanned out to a worker pool and merged back in enumeration order before
// sorting, so the result is deterministic for a given cluster order.
func AssembleNetwork(ctx context.Context, clusters []string, groups map[string]string, engine *Engine, workers int) (NetworkTable, error) {

	type pair struct{ i, j int }
	pairs := make([]pair, 0, len(clusters)*(len(clusters)-1)/2)
	for i := 0; i < len(clusters); i++ {
		for j := i + 1; j < len(clusters); j++ {
			pairs = append(pairs, pair{i, j})
		}
	}

	if workers < 1 {
		workers = 1
	}
	if workers > len(pairs) && len(pairs) > 0 {
		workers = len(pairs)
	}

	edges := make([]NetworkEdge, len(pairs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}
				a := clusters[pairs[k].i]
				b := clusters[pairs[k].j]
				edges[k] = newEdge(a, b, groups, engine.Distance(a, b))
			}
		}()
	}

feed:
	for k := range pairs {
		select {
		case jobs <- k:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table := NetworkTable(edges)
	sort.SliceStable(table, func(i, j int) bool { return table[i].LogScore < table[j].LogScore })
	return table, nil
}

func newEdge(a, b string, groups map[string]string, pd PairDistance) NetworkEdge {
	sim := 1 - pd.Distance
	logscore := math.Inf(1)
	switch {
	case sim >= 1:
		// Avoids the negative zero -log2(1) would produce.
		logscore = 0
	case sim > 0:
		logscore = -math.Log2(sim)
	}
	return NetworkEdge{
		ClusterA:     a,
		ClusterB:     b,
		GroupA:       groupLabel(groups, a),
		GroupB:       groupLabel(groups, b),
		LogScore:     logscore,
		SqSim:        sim * sim,
		PairDistance: pd,
	}
}

// groupLabel never fails: clusters without a recorded product group are
// reported as "unknown" instead of being dropped.
func groupLabel(groups map[string]string, cluster string) string {
	if g, ok := groups[cluster]; ok && g != "" {
		return g
	}
	return "unknown"
}
