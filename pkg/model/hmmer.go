package model

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// HmmscanArgs builds the argument list for scanning one cluster fasta
// against the Pfam profile database. Trusted cutoffs keep the hit list
// curated, the domain table lands in domtblFile.
func HmmscanArgs(pfamDB, fastaFile, domtblFile string, cores int) []string {
	return []string{
		"--cpu", strconv.Itoa(cores),
		"--domtblout", domtblFile,
		"--cut_tc",
		pfamDB,
		fastaFile,
	}
}

// RunHmmscan executes hmmscan and waits for it. The interesting output is
// the domain table file, so stdout is only kept for error reporting.
func RunHmmscan(ctx context.Context, bin string, args []string) error {
	cmd := exec.CommandContext(ctx, bin, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("failed to execute %s: %w - %s", bin, err, output)
	}
	return nil
}

// ParseDomtable reads one hmmscan --domtblout file into domain hits for
// clusterName. Accession versions are stripped, so PF00501.28 and PF00501.29
// count as the same family across Pfam releases.
func ParseDomtable(path, clusterName string) ([]DomainHit, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return parseDomtable(f, path, clusterName)
}

func parseDomtable(r io.Reader, path, clusterName string) ([]DomainHit, error) {
	var hits []DomainHit

	scanner := bufio.NewScanner(r)
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 21 {
			return nil, &MalformedRecordError{
				Path:   path,
				Line:   lineno,
				Reason: fmt.Sprintf("expected at least 21 columns, got %d", len(fields)),
			}
		}

		score, err := strconv.ParseFloat(fields[13], 64)
		if err != nil {
			return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: "bad domain score: " + fields[13]}
		}
		env_from, err := strconv.Atoi(fields[19])
		if err != nil {
			return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: "bad envelope start: " + fields[19]}
		}
		env_to, err := strconv.Atoi(fields[20])
		if err != nil {
			return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: "bad envelope end: " + fields[20]}
		}

		header := fields[3]
		gene, strand, err := parseQueryHeader(header)
		if err != nil {
			return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: err.Error()}
		}

		// PF00501.28 -> PF00501
		acc := fields[1]
		if i := strings.IndexByte(acc, '.'); i >= 0 {
			acc = acc[:i]
		}

		hits = append(hits, DomainHit{
			Cluster:   clusterName,
			Score:     score,
			GeneID:    gene,
			Start:     env_from,
			Stop:      env_to,
			Strand:    strand,
			Accession: acc,
			Name:      fields[0],
			CDS:       header,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return hits, nil
}

// parseQueryHeader picks gene id and strand out of a query header like
// loc:[2341:3538](+):gid:ctg1_orf2:pid:ABC123:loc_tag:ctg1_2
func parseQueryHeader(header string) (string, string, error) {
	parts := strings.Split(header, ":")
	if len(parts) < 3 || parts[0] != "loc" {
		return "", "", fmt.Errorf("query %q is not a loc header", header)
	}

	gid_idx := -1
	for i, p := range parts {
		if p == "gid" {
			gid_idx = i
			break
		}
	}
	if gid_idx < 0 || gid_idx+1 >= len(parts) {
		return "", "", fmt.Errorf("query %q has no gid field", header)
	}
	gene := parts[gid_idx+1]

	loc_parts := strings.SplitN(parts[2], "]", 2)
	if len(loc_parts) != 2 {
		return "", "", fmt.Errorf("query %q has no strand suffix", header)
	}
	strand := strings.Trim(loc_parts[1], "()")
	if strand != "+" && strand != "-" {
		return "", "", fmt.Errorf("query %q has strand %q", header, strand)
	}

	return gene, strand, nil
}
