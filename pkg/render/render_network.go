package render

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/yumyai/bgcnet/pkg/model"
)

// WriteNetwork writes one edge table as TSV, one row per cluster pair:
// names, group labels, log score, distance and squared similarity. No
// header row, the format is meant for network tools, not people.
func WriteNetwork(w io.Writer, table model.NetworkTable) error {
	bw := bufio.NewWriter(w)
	for _, e := range table {
		_, err := fmt.Fprintf(bw, "%s\t%s\t%s\t%s\t%s\t%.4f\t%.4f\n",
			e.ClusterA, e.ClusterB, e.GroupA, e.GroupB,
			formatLogScore(e.LogScore), e.Distance, e.SqSim)
		if err != nil {
			return err
		}
	}
	return bw.Flush()
}

// formatLogScore keeps the sentinel for never-similar pairs readable.
func formatLogScore(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
