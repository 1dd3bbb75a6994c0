package model

import (
	"fmt"
	"strconv"
)

// DomainHit is one row of a parsed hmmscan domain table, scoped to the
// cluster it came from. Start/Stop are envelope coordinates on the
// translated CDS.
type DomainHit struct {
	Cluster   string
	Score     float64
	GeneID    string
	Start     int
	Stop      int
	Strand    string
	Accession string
	Name      string
	CDS       string
}

// InstanceID names this exact copy of a domain family. The same id shows up
// in cluster profiles, in the per-family fasta files and in the DMS, so the
// three always agree on which copy is which.
func (h DomainHit) InstanceID() string {
	return h.Cluster + "_" + h.CDS + "_" + strconv.Itoa(h.Start) + "_" + strconv.Itoa(h.Stop)
}

func (h DomainHit) Length() int {
	return h.Stop - h.Start
}

// ClusterProfile is the domain content of one cluster: the family accessions
// in synteny order (duplicates kept) and the specific instances per family.
type ClusterProfile struct {
	Cluster   string
	Families  []string
	Instances map[string][]string
}

func (p ClusterProfile) Empty() bool {
	return len(p.Families) == 0
}

// PairDistance carries a computed distance plus its sub-scores. GK is zero
// in seqdist mode, which has no synteny term.
type PairDistance struct {
	Distance float64
	Jaccard  float64
	DDS      float64
	GK       float64
}

// NetworkEdge is one row of the similarity network.
type NetworkEdge struct {
	ClusterA string
	ClusterB string
	GroupA   string
	GroupB   string
	LogScore float64
	SqSim    float64
	PairDistance
}

// InstancePair is an unordered pair of instance ids, stored sorted so it can
// key a map.
type InstancePair struct {
	A string
	B string
}

func NewInstancePair(a, b string) InstancePair {
	if b < a {
		a, b = b, a
	}
	return InstancePair{A: a, B: b}
}

// DomainMatch is one pairwise alignment outcome between two instances of the
// same family. Dissim is (1 - identity) in [0,1]. AlignLen is 0 when the
// dissimilarity came straight from mafft distance output.
type DomainMatch struct {
	Dissim   float64
	AlignLen int
}

// DMS maps family accession -> instance pair -> alignment outcome.
type DMS map[string]map[InstancePair]DomainMatch

func (d DMS) Add(fam string, pair InstancePair, m DomainMatch) {
	fammap, ok := d[fam]
	if !ok {
		fammap = make(map[InstancePair]DomainMatch)
		d[fam] = fammap
	}
	fammap[pair] = m
}

// Lookup resolves the match for two instances of fam. A pair of identical
// ids is perfectly identical and never consults the matrix. The second
// return reports whether the pair was actually present.
func (d DMS) Lookup(fam, a, b string) (DomainMatch, bool) {
	if a == b {
		return DomainMatch{Dissim: 0, AlignLen: 0}, true
	}
	fammap, ok := d[fam]
	if !ok {
		return DomainMatch{}, false
	}
	m, ok := fammap[NewInstancePair(a, b)]
	return m, ok
}

// MalformedRecordError points at the exact input record that could not be
// parsed, so a bad cluster can be reported and excluded without guessing.
type MalformedRecordError struct {
	Path   string
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record in %s line %d: %s", e.Path, e.Line, e.Reason)
}
