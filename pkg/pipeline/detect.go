package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/yumyai/bgcnet/internal/util"
	"github.com/yumyai/bgcnet/logger"
	"github.com/yumyai/bgcnet/pkg/db"
	"github.com/yumyai/bgcnet/pkg/model"
	"github.com/yumyai/bgcnet/pkg/render"
	"go.uber.org/zap"
)

// detect runs hmmscan on every cluster fasta, filters overlapping hits and
// builds the domain profiles. Clusters whose domain table cannot be parsed
// are excluded from the run unless --strict turns that into an abort.
// hmmscan itself fans out over --cpu, so clusters are processed one at a
// time.
func (p *Pipeline) detect(ctx context.Context) error {
	var (
		all_hits []model.DomainHit
		rows     []db.ClusterRow
	)

	for _, s := range p.samples {
		kept := s.clusters[:0]
		for _, name := range s.clusters {
			hits, err := p.clusterHits(ctx, name)
			if err != nil {
				var malformed *model.MalformedRecordError
				if !p.Opts.Strict && errors.As(err, &malformed) {
					logger.Warn("Excluding cluster with a bad domain table",
						zap.String("cluster", name), zap.String("error message", err.Error()))
					delete(p.groups, name)
					delete(p.translations, name)
					continue
				}
				return err
			}

			profile := model.BuildProfile(name, hits)
			p.profiles[name] = profile
			p.hits[name] = hits
			if err := p.writeProfileFiles(name, profile, hits); err != nil {
				return err
			}

			all_hits = append(all_hits, hits...)
			rows = append(rows, db.ClusterRow{Name: name, Sample: s.name, Group: p.groups[name], Domains: len(hits)})
			kept = append(kept, name)
			logger.Debug("Domains detected", zap.String("cluster", name), zap.Int("domains", len(hits)))
		}
		s.clusters = kept
	}

	if err := p.Store.SaveClusters(ctx, p.RunID, rows); err != nil {
		return err
	}
	return p.Store.SaveHits(ctx, p.RunID, all_hits)
}

// clusterHits produces the filtered hit list for one cluster, running
// hmmscan first unless the run reuses existing domain tables.
func (p *Pipeline) clusterHits(ctx context.Context, name string) ([]model.DomainHit, error) {
	domtable := p.Work.Domtable(name)

	if p.Opts.SkipHmmscan {
		if !util.FileExists(domtable) {
			return nil, fmt.Errorf("skip_hmmscan is set but %s is missing", domtable)
		}
	} else {
		args := model.HmmscanArgs(p.Opts.PfamDB, p.Work.ClusterFasta(name), domtable, p.Opts.Cores)
		if err := model.RunHmmscan(ctx, p.Opts.HmmscanBin, args); err != nil {
			return nil, err
		}
	}

	hits, err := model.ParseDomtable(domtable, name)
	if err != nil {
		return nil, err
	}
	return model.ResolveOverlaps(hits, p.Opts.OverlapCutoff), nil
}

func (p *Pipeline) writeProfileFiles(name string, profile model.ClusterProfile, hits []model.DomainHit) error {
	pfs, err := os.Create(p.Work.PFSFile(name))
	if err != nil {
		return err
	}
	if err := render.WritePFS(pfs, profile); err != nil {
		pfs.Close()
		return err
	}
	if err := pfs.Close(); err != nil {
		return err
	}

	pfd, err := os.Create(p.Work.PFDFile(name))
	if err != nil {
		return err
	}
	if err := render.WritePFD(pfd, hits); err != nil {
		pfd.Close()
		return err
	}
	return pfd.Close()
}
