package pipeline

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/yumyai/bgcnet/logger"
	"github.com/yumyai/bgcnet/pkg/model"
	"github.com/yumyai/bgcnet/pkg/render"
	"go.uber.org/zap"
)

type domainInstance struct {
	hit model.DomainHit
	seq string
}

type famResult struct {
	fam     string
	matches map[model.InstancePair]model.DomainMatch
	err     error
}

// align writes one fasta per domain family and aligns every family with at
// least two members. Families run through a worker pool, each mafft call
// stays on its own --thread budget. The pairwise outcomes end up in the DMS
// the sequence based distance reads from.
func (p *Pipeline) align(ctx context.Context) error {
	families, err := p.writeDomainFastas()
	if err != nil {
		return err
	}

	var aligned []string
	for fam, instances := range families {
		if len(instances) < 2 {
			// A single copy has nobody to pair with.
			continue
		}
		aligned = append(aligned, fam)
	}
	sort.Strings(aligned)
	logger.Info("Aligning families", zap.Int("families", len(aligned)), zap.Int("singletons", len(families)-len(aligned)))

	workers := p.Opts.Cores
	if workers < 1 {
		workers = 1
	}
	jobs := make(chan string, workers*2)
	results := make(chan famResult, workers*2)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case fam, ok := <-jobs:
					if !ok {
						return
					}
					matches, err := p.alignFamily(ctx, fam)
					select {
					case results <- famResult{fam: fam, matches: matches, err: err}:
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	// Collector, merges into the DMS.
	var (
		cerr error
		cwg  sync.WaitGroup
	)
	cwg.Add(1)
	go func() {
		defer cwg.Done()
		for res := range results {
			if res.err != nil {
				if p.Opts.Strict {
					if cerr == nil {
						cerr = res.err
					}
					continue
				}
				logger.Warn("Alignment failed, pairs fall back to the default dissimilarity",
					zap.String("family", res.fam), zap.String("error message", res.err.Error()))
				continue
			}
			for pair, m := range res.matches {
				p.dms.Add(res.fam, pair, m)
			}
		}
	}()

feed:
	for _, fam := range aligned {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- fam:
		}
	}
	close(jobs)
	wg.Wait()
	close(results)
	cwg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return cerr
}

// writeDomainFastas slices every domain instance out of its CDS translation
// and writes one fasta per family. Returns the instance count per family.
func (p *Pipeline) writeDomainFastas() (map[string][]domainInstance, error) {
	families := make(map[string][]domainInstance)
	for _, name := range p.allClusters() {
		for _, hit := range p.hits[name] {
			seq := p.domainSeq(hit)
			if seq == "" {
				logger.Warn("No sequence for domain instance", zap.String("instance", hit.InstanceID()))
				continue
			}
			families[hit.Accession] = append(families[hit.Accession], domainInstance{hit: hit, seq: seq})
		}
	}

	for fam, instances := range families {
		f, err := os.Create(p.Work.DomainFasta(fam))
		if err != nil {
			return nil, err
		}
		for _, inst := range instances {
			if err := render.WriteDomainFasta(f, inst.hit, inst.seq); err != nil {
				f.Close()
				return nil, err
			}
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
	}
	return families, nil
}

// domainSeq cuts the envelope out of the CDS translation. Coordinates come
// from hmmscan as 1-based inclusive, so the slice is [Start-1:Stop], clamped
// to the sequence.
func (p *Pipeline) domainSeq(hit model.DomainHit) string {
	aa := p.translations[hit.Cluster][hit.CDS]
	if aa == "" {
		return ""
	}
	start := hit.Start - 1
	if start < 0 {
		start = 0
	}
	stop := hit.Stop
	if stop > len(aa) {
		stop = len(aa)
	}
	if start >= stop {
		return ""
	}
	return aa[start:stop]
}

func (p *Pipeline) alignFamily(ctx context.Context, fam string) (map[model.InstancePair]model.DomainMatch, error) {
	cfg := model.MafftConfig{
		Bin:        p.Opts.MafftBin,
		AlMethod:   p.Opts.AlMethod,
		MaxIterate: p.Opts.MaxIterate,
		Threads:    p.Opts.MafftThreads,
		ExtraPars:  p.Opts.MafftPars,
	}
	if err := model.RunMafft(ctx, cfg, p.Work.DomainFasta(fam), p.Work.AlignFile(fam)); err != nil {
		return nil, err
	}

	if p.Opts.UsePercID {
		f, err := os.Open(p.Work.AlignFile(fam))
		if err != nil {
			return nil, err
		}
		defer f.Close()
		msa, err := model.ParseFasta(f)
		if err != nil {
			return nil, err
		}
		return model.BuildDMSFromMSA(msa), nil
	}

	hat2 := p.Work.Hat2File(fam)
	f, err := os.Open(hat2)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return model.ParseHat2(f, hat2)
}
