package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/yumyai/bgcnet/logger"
	"github.com/yumyai/bgcnet/pkg/config"
	"github.com/yumyai/bgcnet/pkg/db"
	"github.com/yumyai/bgcnet/pkg/model"
	"go.uber.org/zap"
)

// sample groups the cluster files found under one input subfolder. The
// cluster list shrinks when a member gets excluded later on.
type sample struct {
	name     string
	files    []string
	clusters []string
}

// Pipeline carries one run from gbk folders to network files and the
// results database. Stages fill the maps below in order, so each stage can
// rely on what the previous ones left behind.
type Pipeline struct {
	Opts  *config.Options
	Work  *db.WorkDir
	Store *db.Store
	RunID string

	samples      []*sample
	groups       map[string]string            // cluster -> product group
	translations map[string]map[string]string // cluster -> CDS header -> AA sequence
	hits         map[string][]model.DomainHit // cluster -> filtered domain hits
	profiles     map[string]model.ClusterProfile
	dms          model.DMS
}

func New(opts *config.Options, work *db.WorkDir, store *db.Store, runID string) *Pipeline {
	return &Pipeline{
		Opts:         opts,
		Work:         work,
		Store:        store,
		RunID:        runID,
		groups:       make(map[string]string),
		translations: make(map[string]map[string]string),
		hits:         make(map[string][]model.DomainHit),
		profiles:     make(map[string]model.ClusterProfile),
		dms:          make(model.DMS),
	}
}

// Run executes the stages in order. Alignment only happens when a sequence
// based mode was requested, domain content networks don't need it.
func (p *Pipeline) Run(ctx context.Context) error {
	if err := p.timed(ctx, "ingest", p.ingest); err != nil {
		return err
	}
	if err := p.timed(ctx, "detect", p.detect); err != nil {
		return err
	}
	if p.needsAlignment() {
		if err := p.timed(ctx, "align", p.align); err != nil {
			return err
		}
	}
	if err := p.timed(ctx, "network", p.network); err != nil {
		return err
	}
	return p.summary(ctx)
}

func (p *Pipeline) needsAlignment() bool {
	for _, m := range p.Opts.EngineModes() {
		if m == model.ModeSeqDist {
			return true
		}
	}
	return false
}

// timed wraps one stage with duration logging.
func (p *Pipeline) timed(ctx context.Context, name string, fn func(context.Context) error) error {
	logger.Info("Stage start", zap.String("stage", name))
	start := time.Now()
	if err := fn(ctx); err != nil {
		logger.Error("Stage failed", zap.String("stage", name), zap.String("error message", err.Error()))
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Info("Stage done", zap.String("stage", name), zap.Duration("took", time.Since(start)))
	return nil
}

// allClusters flattens the per-sample lists, keeping sample order.
func (p *Pipeline) allClusters() []string {
	var all []string
	for _, s := range p.samples {
		all = append(all, s.clusters...)
	}
	return all
}

// summary reads the run back from the store and logs the headline numbers.
func (p *Pipeline) summary(ctx context.Context) error {
	n, err := p.Store.ClusterCount(ctx, p.RunID)
	if err != nil {
		return err
	}
	logger.Info("Run stored", zap.String("run", p.RunID), zap.Int("clusters", n))

	for _, mode := range p.Opts.EngineModes() {
		edges, err := p.Store.EdgeCount(ctx, p.RunID, mode)
		if err != nil {
			return err
		}
		logger.Info("Mode finished", zap.String("mode", mode), zap.Int("pairs", edges))

		top, err := p.Store.TopEdges(ctx, p.RunID, mode, 3)
		if err != nil {
			return err
		}
		for _, e := range top {
			logger.Info("Closest pair",
				zap.String("mode", mode),
				zap.String("a", e.ClusterA),
				zap.String("b", e.ClusterB),
				zap.Float64("distance", e.Distance))
		}
	}
	return nil
}
