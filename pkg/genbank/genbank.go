package genbank

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// CDS is one protein coding feature. Start and Stop are zero based half
// open genomic coordinates, Strand is "+" or "-".
type CDS struct {
	GeneID      string
	ProteinID   string
	LocusTag    string
	Start       int
	Stop        int
	Strand      string
	Translation string
}

// Header is the canonical per-CDS identifier used in fasta files and domain
// tables, e.g. loc:[2341:3538](+):gid:ctg1_orf2:pid:ABC123:loc_tag:ctg1_2
func (c CDS) Header() string {
	return fmt.Sprintf("loc:[%d:%d](%s):gid:%s:pid:%s:loc_tag:%s",
		c.Start, c.Stop, c.Strand, c.GeneID, c.ProteinID, c.LocusTag)
}

// Cluster is one parsed gene cluster record. Group is the product class
// from the cluster feature, "unknown" when the file does not carry one.
type Cluster struct {
	Name  string
	Group string
	CDSs  []CDS
}

type InvalidGBKError struct {
	Path   string
	Reason string
}

func (e *InvalidGBKError) Error() string {
	return fmt.Sprintf("invalid genbank file %s: %s", e.Path, e.Reason)
}

var locNumbers = regexp.MustCompile(`[0-9]+`)

// ParseFile reads one cluster genbank file. The cluster name is the file
// stem; a file with no translated CDS features is rejected.
func ParseFile(filePath string) (*Cluster, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(path.Base(filePath), path.Ext(filePath))
	return parse(f, name, filePath)
}

func parse(r io.Reader, name, filePath string) (*Cluster, error) {
	cluster := &Cluster{Name: name, Group: "unknown"}

	in_features := false
	cur_type := ""
	cur_loc := ""
	var quals []string

	flush := func() error {
		switch cur_type {
		case "CDS":
			cds, ok, err := buildCDS(cur_loc, quals)
			if err != nil {
				return &InvalidGBKError{Path: filePath, Reason: err.Error()}
			}
			if ok {
				cluster.CDSs = append(cluster.CDSs, cds)
			}
		case "cluster", "region":
			// antiSMASH 4 wrote cluster features, newer versions region
			if product, ok := qualifier(quals, "product"); ok && product != "" {
				cluster.Group = product
			}
		}
		cur_type, cur_loc, quals = "", "", nil
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		if strings.HasPrefix(line, "FEATURES") {
			in_features = true
			continue
		}
		if !in_features {
			continue
		}
		if strings.HasPrefix(line, "ORIGIN") || strings.HasPrefix(line, "CONTIG") || strings.HasPrefix(line, "//") {
			break
		}
		if len(line) < 6 || strings.TrimSpace(line) == "" {
			continue
		}

		// Feature keywords sit at column 6, qualifiers and continuations
		// are indented past column 21.
		if line[5] != ' ' {
			if err := flush(); err != nil {
				return nil, err
			}
			fields := strings.Fields(line)
			cur_type = fields[0]
			if len(fields) > 1 {
				cur_loc = fields[1]
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "/") && len(quals) == 0 {
			// wrapped location, e.g. a long join(...)
			cur_loc += trimmed
			continue
		}
		quals = append(quals, trimmed)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	if len(cluster.CDSs) == 0 {
		return nil, &InvalidGBKError{Path: filePath, Reason: "no translated CDS features"}
	}
	return cluster, nil
}

// buildCDS assembles one CDS feature. Features without a translation are
// skipped rather than failing the whole file, pseudo genes are common.
func buildCDS(loc string, quals []string) (CDS, bool, error) {
	translation, ok := qualifier(quals, "translation")
	if !ok || translation == "" {
		return CDS{}, false, nil
	}

	start, stop, strand, err := parseLocation(loc)
	if err != nil {
		return CDS{}, false, err
	}

	gene, _ := qualifier(quals, "gene")
	protein_id, _ := qualifier(quals, "protein_id")
	locus_tag, _ := qualifier(quals, "locus_tag")

	return CDS{
		GeneID:      gene,
		ProteinID:   protein_id,
		LocusTag:    locus_tag,
		Start:       start,
		Stop:        stop,
		Strand:      strand,
		Translation: translation,
	}, true, nil
}

// qualifier joins the wrapped lines of /key="value" entries. Translations
// wrap without spaces, every other qualifier keeps one.
func qualifier(quals []string, key string) (string, bool) {
	prefix := "/" + key + "="
	for i, q := range quals {
		if !strings.HasPrefix(q, prefix) {
			continue
		}
		value := strings.TrimPrefix(q, prefix)
		for _, cont := range quals[i+1:] {
			if strings.HasPrefix(cont, "/") {
				break
			}
			if key == "translation" {
				value += cont
			} else {
				value += " " + cont
			}
		}
		return strings.Trim(value, "\""), true
	}
	return "", false
}

// parseLocation reduces a location like complement(join(<1..120,180..300))
// to its outermost coordinates. Coordinates come back zero based half open,
// so "1..300" turns into [0:300].
func parseLocation(loc string) (int, int, string, error) {
	strand := "+"
	if strings.Contains(loc, "complement") {
		strand = "-"
	}

	nums := locNumbers.FindAllString(loc, -1)
	if len(nums) == 0 {
		return 0, 0, "", fmt.Errorf("location %q has no coordinates", loc)
	}

	min, max := -1, -1
	for _, s := range nums {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, "", fmt.Errorf("location %q: %w", loc, err)
		}
		if min < 0 || v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min < 1 {
		min = 1
	}
	return min - 1, max, strand, nil
}

// WriteFasta writes the translated CDS features of one cluster, one record
// per CDS with the loc header as title.
func WriteFasta(w io.Writer, cdss []CDS) error {
	bw := bufio.NewWriter(w)
	for _, c := range cdss {
		if _, err := fmt.Fprintf(bw, ">%s\n%s\n", c.Header(), c.Translation); err != nil {
			return err
		}
	}
	return bw.Flush()
}
