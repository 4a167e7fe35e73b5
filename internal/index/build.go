package index

import (
	"context"
	"fmt"
	"sort"

	"github.com/524D/mzsearch/internal/digest"
	"github.com/524D/mzsearch/internal/proteomics"
)

// Build digests proteins, expands modification isoforms and indexes the
// fragment ladder of every distinct compact peptide. progress, if not nil,
// is called with the number of proteins processed so far.
func Build(ctx context.Context, proteins []*proteomics.Protein, p Params, fp Fingerprint,
	progress func(done, total int)) (*Index, error) {

	terminus := p.Terminus()
	seen := make(map[proteomics.PeptideKey]bool)
	var peptides []proteomics.CompactPeptide
	for n, prot := range proteins {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if progress != nil {
				progress(n, len(proteins))
			}
		}
		peps, err := digest.Digest(prot, p.Digestion)
		if err != nil {
			return nil, fmt.Errorf("digest %s: %w", prot.Accession, err)
		}
		for pep := range peps {
			for iso := range digest.Isoforms(pep, p.Mods, p.Digestion) {
				if !iso.Valid() {
					continue
				}
				c := iso.Compact(terminus)
				k := c.Key()
				if seen[k] {
					continue
				}
				seen[k] = true
				peptides = append(peptides, c)
			}
		}
	}
	if progress != nil {
		progress(len(proteins), len(proteins))
	}

	sortPeptides(peptides)
	x := &Index{Fingerprint: fp, BinsPerDalton: p.bins(), Peptides: peptides}
	x.fillFragments(p.ProductTypes)
	return x, nil
}

// sortPeptides orders by mass, ties by key so builds are reproducible
func sortPeptides(peptides []proteomics.CompactPeptide) {
	keys := make([]proteomics.PeptideKey, len(peptides))
	for i := range peptides {
		keys[i] = peptides[i].Key()
	}
	idx := make([]int, len(peptides))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool {
		pa, pb := peptides[idx[a]], peptides[idx[b]]
		if pa.MonoisotopicMass != pb.MonoisotopicMass {
			return pa.MonoisotopicMass < pb.MonoisotopicMass
		}
		return keys[idx[a]] < keys[idx[b]]
	})
	sorted := make([]proteomics.CompactPeptide, len(peptides))
	for i, j := range idx {
		sorted[i] = peptides[j]
	}
	copy(peptides, sorted)
}

func (x *Index) fillFragments(types []proteomics.ProductType) {
	buckets := make(map[int32][]int32)
	for ord, pep := range x.Peptides {
		for _, m := range pep.ProductMasses(types) {
			b := x.Bucket(m)
			buckets[b] = append(buckets[b], int32(ord))
		}
	}
	x.Keys = make([]int32, 0, len(buckets))
	for k := range buckets {
		x.Keys = append(x.Keys, k)
	}
	sort.Slice(x.Keys, func(i, j int) bool { return x.Keys[i] < x.Keys[j] })
	x.Candidates = make([][]int32, len(x.Keys))
	for i, k := range x.Keys {
		x.Candidates[i] = buckets[k]
	}
}
