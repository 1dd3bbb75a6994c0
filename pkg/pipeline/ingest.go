package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yumyai/bgcnet/logger"
	"github.com/yumyai/bgcnet/pkg/genbank"
	"go.uber.org/zap"
)

// Defining possible error
var NoClusterFiles = errors.New("No cluster gbk files found")

// ingest finds the cluster files, parses them and writes one protein fasta
// per cluster into the output folder.
func (p *Pipeline) ingest(ctx context.Context) error {
	samples, err := discoverSamples(p.Opts.InputDir)
	if err != nil {
		return err
	}
	p.samples = samples
	logger.Info("Input discovered", zap.Int("samples", len(samples)))
	return p.parseClusters()
}

// discoverSamples walks the input folder and groups gbk files by the folder
// they sit in. Files with "final" in the name are whole-genome exports from
// antiSMASH, not single clusters, and get skipped.
func discoverSamples(root string) ([]*sample, error) {
	byName := make(map[string]*sample)

	walkErr := filepath.WalkDir(root, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fname := d.Name()
		if !strings.HasSuffix(fname, ".gbk") || strings.Contains(fname, "final") {
			return nil
		}

		sname, err := sampleName(root, filepath.Dir(file))
		if err != nil {
			return err
		}
		s, ok := byName[sname]
		if !ok {
			s = &sample{name: sname}
			byName[sname] = s
		}
		s.files = append(s.files, file)
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if len(byName) == 0 {
		return nil, fmt.Errorf("%w under %s", NoClusterFiles, root)
	}

	samples := make([]*sample, 0, len(byName))
	for _, s := range byName {
		samples = append(samples, s)
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].name < samples[j].name })
	return samples, nil
}

// sampleName turns the folder of a gbk file into a sample label. Files at
// the input root fall back to the root folder's own name, nested folders are
// flattened with underscores so the label stays usable in file names.
func sampleName(root, dir string) (string, error) {
	rel, err := filepath.Rel(root, dir)
	if err != nil {
		return "", err
	}
	if rel == "." {
		abs, err := filepath.Abs(root)
		if err != nil {
			return "", err
		}
		return filepath.Base(abs), nil
	}
	return strings.ReplaceAll(filepath.ToSlash(rel), "/", "_"), nil
}

func (p *Pipeline) parseClusters() error {
	total := 0
	for _, s := range p.samples {
		for _, file := range s.files {
			cluster, err := genbank.ParseFile(file)
			if err != nil {
				if p.Opts.Strict {
					return err
				}
				logger.Warn("Skipping unreadable gbk", zap.String("file", file), zap.String("error message", err.Error()))
				continue
			}
			if _, dup := p.groups[cluster.Name]; dup {
				logger.Warn("Duplicate cluster name, keeping the first", zap.String("cluster", cluster.Name), zap.String("file", file))
				continue
			}

			p.groups[cluster.Name] = cluster.Group
			trans := make(map[string]string, len(cluster.CDSs))
			for _, c := range cluster.CDSs {
				trans[c.Header()] = c.Translation
			}
			p.translations[cluster.Name] = trans

			if err := p.writeClusterFasta(cluster); err != nil {
				return err
			}
			s.clusters = append(s.clusters, cluster.Name)
			total++
		}
	}
	if total == 0 {
		return fmt.Errorf("%w: nothing parsed from %s", NoClusterFiles, p.Opts.InputDir)
	}
	logger.Info("Clusters parsed", zap.Int("clusters", total))
	return nil
}

func (p *Pipeline) writeClusterFasta(c *genbank.Cluster) error {
	f, err := os.Create(p.Work.ClusterFasta(c.Name))
	if err != nil {
		return err
	}
	if err := genbank.WriteFasta(f, c.CDSs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
