package model

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// MafftConfig carries the alignment options for one run. AlMethod and
// ExtraPars are passed through to mafft verbatim, split on whitespace.
type MafftConfig struct {
	Bin        string
	AlMethod   string
	MaxIterate int
	Threads    int
	ExtraPars  string
}

// MafftArgs builds the argument list for aligning one family fasta.
// --distout makes mafft leave a .hat2 distance matrix next to the input.
func MafftArgs(cfg MafftConfig, fastaFile string) []string {
	args := []string{"--distout"}
	if cfg.AlMethod != "" {
		args = append(args, strings.Fields(cfg.AlMethod)...)
	}
	if cfg.MaxIterate != 0 {
		args = append(args, "--maxiterate", strconv.Itoa(cfg.MaxIterate))
	}
	args = append(args, "--thread", strconv.Itoa(cfg.Threads))
	if cfg.ExtraPars != "" {
		args = append(args, strings.Fields(cfg.ExtraPars)...)
	}
	return append(args, fastaFile)
}

// RunMafft aligns one family fasta and writes the alignment to msaFile.
// mafft prints the alignment on stdout and chatter on stderr, so the two
// are kept apart and only stderr ends up in the error.
func RunMafft(ctx context.Context, cfg MafftConfig, fastaFile, msaFile string) error {
	cmd := exec.CommandContext(ctx, cfg.Bin, MafftArgs(cfg, fastaFile)...)

	var out bytes.Buffer
	var errout bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errout

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to execute %s on %s: %w - %s", cfg.Bin, fastaFile, err, errout.String())
	}
	return os.WriteFile(msaFile, out.Bytes(), 0o644)
}

// ParseHat2 reads the matrix mafft --distout leaves behind. The layout is
// fixed: line 2 holds the sequence count, names follow from line 4 as
// " N. =name" entries, then the upper triangle of distances row by row,
// wrapped over several lines.
func ParseHat2(r io.Reader, path string) (map[InstancePair]DomainMatch, error) {
	scanner := bufio.NewScanner(r)

	lineno := 0
	n := -1
	var names []string
	var values []float64

	for scanner.Scan() {
		lineno++
		line := scanner.Text()
		switch {
		case lineno == 1 || lineno == 3:
			// header lines, ignored

		case lineno == 2:
			v, err := strconv.Atoi(strings.TrimSpace(line))
			if err != nil {
				return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: "bad sequence count: " + line}
			}
			n = v

		case lineno <= 3+n:
			eq := strings.IndexByte(line, '=')
			if eq < 0 {
				return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: "name line without ="}
			}
			names = append(names, strings.TrimSpace(line[eq+1:]))

		default:
			for _, field := range strings.Fields(line) {
				v, err := strconv.ParseFloat(field, 64)
				if err != nil {
					return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: "bad distance: " + field}
				}
				values = append(values, v)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if n < 0 {
		return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: "missing sequence count"}
	}
	if len(names) != n {
		return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: fmt.Sprintf("expected %d names, got %d", n, len(names))}
	}
	if want := n * (n - 1) / 2; len(values) != want {
		return nil, &MalformedRecordError{Path: path, Line: lineno, Reason: fmt.Sprintf("expected %d distances for %d sequences, got %d", want, n, len(values))}
	}

	pairs := make(map[InstancePair]DomainMatch, len(values))
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			pairs[NewInstancePair(names[i], names[j])] = DomainMatch{Dissim: clamp01(values[k])}
			k++
		}
	}
	return pairs, nil
}

// ParseFasta reads fasta records into header -> sequence. Headers are taken
// whole, minus the leading > and surrounding space.
func ParseFasta(r io.Reader) (map[string]string, error) {
	seqs := make(map[string]string)

	scanner := bufio.NewScanner(r)
	current := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, ">") {
			current = strings.TrimSpace(line[1:])
			if _, dup := seqs[current]; dup {
				return nil, fmt.Errorf("duplicate fasta header %q", current)
			}
			seqs[current] = ""
			continue
		}
		if current == "" {
			return nil, fmt.Errorf("sequence data before any fasta header")
		}
		seqs[current] += line
	}
	return seqs, scanner.Err()
}

// PercIdentity scores two rows of one alignment: matching non-gap columns
// over the length of the shorter sequence with terminal gaps stripped.
// Returns the identity fraction and that length.
func PercIdentity(a, b string) (float64, int) {
	la := len(strings.Trim(a, "-"))
	lb := len(strings.Trim(b, "-"))
	align_len := la
	if lb < la {
		align_len = lb
	}
	if align_len == 0 {
		return 0, 0
	}

	matches := 0
	limit := len(a)
	if len(b) < limit {
		limit = len(b)
	}
	for i := 0; i < limit; i++ {
		if a[i] == b[i] && a[i] != '-' {
			matches++
		}
	}

	return clamp01(float64(matches) / float64(align_len)), align_len
}

// BuildDMSFromMSA turns one aligned family into pairwise dissimilarities,
// the all-vs-all alternative to the hat2 matrix.
func BuildDMSFromMSA(msa map[string]string) map[InstancePair]DomainMatch {
	ids := make([]string, 0, len(msa))
	for id := range msa {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	pairs := make(map[InstancePair]DomainMatch)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			identity, align_len := PercIdentity(msa[ids[i]], msa[ids[j]])
			pairs[NewInstancePair(ids[i], ids[j])] = DomainMatch{
				Dissim:   clamp01(1 - identity),
				AlignLen: align_len,
			}
		}
	}
	return pairs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
