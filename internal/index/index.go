// Package index builds the fragment-mass index used by the indexed search
// engines and reads and writes it in a versioned binary format.
package index

import (
	"math"
	"sort"

	"github.com/524D/mzsearch/internal/digest"
	"github.com/524D/mzsearch/internal/proteomics"
)

// DefaultBinsPerDalton is the bucket granularity of fragment masses
const DefaultBinsPerDalton = 100

// Params holds every input that determines the content of an index
type Params struct {
	Digestion       digest.Params
	Mods            digest.ModSet
	ProductTypes    []proteomics.ProductType
	BinsPerDalton   int
	PartitionIndex  int
	TotalPartitions int
	SearchDecoys    bool
	DatabaseNames   []string
}

// Terminus returns the fragment direction the product types need
func (p Params) Terminus() proteomics.TerminusType {
	return proteomics.TerminusFor(p.ProductTypes)
}

func (p Params) bins() int {
	if p.BinsPerDalton <= 0 {
		return DefaultBinsPerDalton
	}
	return p.BinsPerDalton
}

// Index maps discretized fragment masses to the peptides producing them.
// Peptides are sorted by monoisotopic mass; Keys are sorted bucket ids and
// Candidates[i] holds the peptide ordinals of bucket Keys[i] in ascending
// order, one entry per fragment, so a peptide with two fragments in the
// same bucket is listed twice.
type Index struct {
	Fingerprint   Fingerprint
	BinsPerDalton int
	Peptides      []proteomics.CompactPeptide
	Keys          []int32
	Candidates    [][]int32
}

// Bucket returns the bucket id of a fragment mass
func (x *Index) Bucket(mass float64) int32 {
	return int32(math.Round(mass * float64(x.BinsPerDalton)))
}

// BucketRange returns the half open range [i, j) of positions in Keys whose
// bucket could hold a fragment mass between lo and hi
func (x *Index) BucketRange(lo, hi float64) (int, int) {
	kLo, kHi := x.Bucket(lo), x.Bucket(hi)
	i := sort.Search(len(x.Keys), func(n int) bool { return x.Keys[n] >= kLo })
	j := i + sort.Search(len(x.Keys)-i, func(n int) bool { return x.Keys[i+n] > kHi })
	return i, j
}

// CandidatesFor returns the candidate lists of all buckets between lo and hi
func (x *Index) CandidatesFor(lo, hi float64) [][]int32 {
	i, j := x.BucketRange(lo, hi)
	return x.Candidates[i:j]
}

// NumFragments returns the total number of bucket entries
func (x *Index) NumFragments() int {
	n := 0
	for _, c := range x.Candidates {
		n += len(c)
	}
	return n
}
