package pipeline

import (
	"context"
	"os"

	"github.com/yumyai/bgcnet/logger"
	"github.com/yumyai/bgcnet/pkg/model"
	"github.com/yumyai/bgcnet/pkg/render"
	"go.uber.org/zap"
)

// AllVsAllLabel names the network spanning every sample.
const AllVsAllLabel = "all_vs_all"

// network scores the cluster pairs and writes the network files, one per
// mode, grouping and cutoff. Only the all_vs_all table goes into the store,
// the per-sample tables are subsets of it.
func (p *Pipeline) network(ctx context.Context) error {
	for _, mode := range p.Opts.EngineModes() {
		engine := &model.Engine{
			Profiles: p.profiles,
			Mode:     mode,
			Config:   p.Opts.DistanceConfig(),
			DMS:      p.dms,
		}

		for _, s := range p.samples {
			if _, err := p.writeNetworks(ctx, engine, mode, s.name, s.clusters); err != nil {
				return err
			}
		}

		table, err := p.writeNetworks(ctx, engine, mode, AllVsAllLabel, p.allClusters())
		if err != nil {
			return err
		}
		if err := p.Store.SaveEdges(ctx, p.RunID, mode, AllVsAllLabel, table); err != nil {
			return err
		}
	}
	return nil
}

// writeNetworks assembles one table and writes it once per cutoff.
func (p *Pipeline) writeNetworks(ctx context.Context, engine *model.Engine, mode, label string, clusters []string) (model.NetworkTable, error) {
	table, err := model.AssembleNetwork(ctx, clusters, p.groups, engine, p.Opts.Cores)
	if err != nil {
		return nil, err
	}

	for _, cutoff := range p.Opts.Cutoffs {
		filtered := table.Filter(cutoff)
		fname := p.Work.NetworkFile(mode, label, cutoff)

		f, err := os.Create(fname)
		if err != nil {
			return nil, err
		}
		if err := render.WriteNetwork(f, filtered); err != nil {
			f.Close()
			return nil, err
		}
		if err := f.Close(); err != nil {
			return nil, err
		}
		logger.Info("Network written", zap.String("file", fname), zap.Int("edges", len(filtered)))
	}
	return table, nil
}
