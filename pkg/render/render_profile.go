package render

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/yumyai/bgcnet/pkg/model"
)

// WritePFS writes the ordered family accessions of one cluster as a single
// space separated line, duplicates included.
func WritePFS(w io.Writer, profile model.ClusterProfile) error {
	_, err := fmt.Fprintln(w, strings.Join(profile.Families, " "))
	return err
}

// WritePFD writes the retained hit table of one cluster as TSV, in gene
// order. One row per domain instance.
func WritePFD(w io.Writer, hits []model.DomainHit) error {
	bw := bufio.NewWriter(w)
	for _, h := range hits {
		_, err := fmt.Fprintf(bw, "%s\t%.1f\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
			h.Cluster, h.Score, h.GeneID, h.Start, h.Stop,
			h.Strand, h.Accession, h.Name, h.CDS)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteDomainFasta appends one instance sequence to a family fasta. The
// record title is the instance id, which ties the alignment results back
// to cluster profiles.
func WriteDomainFasta(w io.Writer, hit model.DomainHit, seq string) error {
	_, err := fmt.Fprintf(w, ">%s\n%s\n", hit.InstanceID(), seq)
	return err
}
