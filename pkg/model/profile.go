package model

// BuildProfile turns the overlap-resolved hits of one cluster into its
// domain profile. Ordered family list and instance map are filled in the
// same pass, so the nth family entry and the nth appended instance always
// describe the same hit.
func BuildProfile(cluster string, hits []DomainHit) ClusterProfile {
	p := ClusterProfile{
		Cluster:   cluster,
		Families:  make([]string, 0, len(hits)),
		Instances: make(map[string][]string),
	}

	for _, h := range hits {
		p.Families = append(p.Families, h.Accession)
		p.Instances[h.Accession] = append(p.Instances[h.Accession], h.InstanceID())
	}

	return p
}

// FamilySet is the set of distinct families in the profile.
func (p ClusterProfile) FamilySet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Families))
	for _, f := range p.Families {
		set[f] = struct{}{}
	}
	return set
}

// Counts is the copy number per family.
func (p ClusterProfile) Counts() map[string]int {
	counts := make(map[string]int, len(p.Families))
	for _, f := range p.Families {
		counts[f]++
	}
	return counts
}
