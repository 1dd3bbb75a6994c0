package db

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/yumyai/bgcnet/internal/util"
)

// Defining possible error
var OutputNotWritable = errors.New("Output folder cannot be created")

// WorkDir lays out one run's output folder. Per-cluster artifacts sit at
// the root, per-family fastas and alignments under the domains subfolder.
type WorkDir struct {
	Root       string
	DomainsSub string
}

func NewWorkDir(root, domainsSub string) (*WorkDir, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: no folder given", OutputNotWritable)
	}
	if info, err := os.Stat(root); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%w: %s exists and is not a folder", OutputNotWritable, root)
	}
	if domainsSub == "" {
		domainsSub = "domains"
	}
	return &WorkDir{Root: root, DomainsSub: domainsSub}, nil
}

// Prepare creates the folder tree.
func (w *WorkDir) Prepare() error {
	if err := util.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("%w: %s", OutputNotWritable, err)
	}
	if err := util.EnsureDir(w.DomainsDir()); err != nil {
		return fmt.Errorf("%w: %s", OutputNotWritable, err)
	}
	return nil
}

func (w *WorkDir) DomainsDir() string {
	return path.Join(w.Root, w.DomainsSub)
}

func (w *WorkDir) ClusterFasta(cluster string) string {
	return path.Join(w.Root, cluster+".fasta")
}

func (w *WorkDir) Domtable(cluster string) string {
	return path.Join(w.Root, cluster+"_domtable.txt")
}

func (w *WorkDir) PFSFile(cluster string) string {
	return path.Join(w.Root, cluster+".pfs")
}

func (w *WorkDir) PFDFile(cluster string) string {
	return path.Join(w.Root, cluster+".pfd")
}

func (w *WorkDir) DomainFasta(family string) string {
	return path.Join(w.DomainsDir(), family+".fasta")
}

func (w *WorkDir) AlignFile(family string) string {
	return path.Join(w.DomainsDir(), family+".algn")
}

// Hat2File is where mafft --distout drops the matrix, right next to the
// family fasta.
func (w *WorkDir) Hat2File(family string) string {
	return w.DomainFasta(family) + ".hat2"
}

func (w *WorkDir) NetworkFile(mode, sample string, cutoff float64) string {
	c := strconv.FormatFloat(cutoff, 'g', -1, 64)
	return path.Join(w.Root, "networkfile_"+mode+"_"+sample+"_c"+c+".network")
}

func (w *WorkDir) DBFile() string {
	return path.Join(w.Root, "data.db")
}
