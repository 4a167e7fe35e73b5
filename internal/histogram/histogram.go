// Package histogram groups the precursor mass shifts of confident PSMs into
// bins. Open and notch searches use it to discover which unexpected
// modifications the sample carries.
package histogram

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
)

// DefaultBinTolerance is the largest gap in dalton between neighbouring
// shifts of one bin
const DefaultBinTolerance = 0.003

// Bin is a group of PSMs with nearly the same precursor mass shift
type Bin struct {
	// MassShift is the mean observed minus theoretical mass of the members
	MassShift   float64
	Count       int
	CountTarget int
	CountDecoy  int
	// FDR is the decoy fraction of the bin
	FDR float64
	// MedianLength is the median length of the best peptide of each member
	MedianLength float64
	// Mods are the keys of known modifications whose mass explains the shift
	Mods []string
}

type entry struct {
	shift  float64
	length float64
	decoy  bool
}

// Build bins the PSMs with a q-value at most qThreshold. Shifts closer than
// tol to their neighbour end up in the same bin. dict may be nil. Bins are
// ordered by descending count, then by mass shift.
func Build(psms []*search.PSM, qThreshold, tol float64, dict *proteomics.ModificationDictionary) []Bin {
	if tol <= 0 {
		tol = DefaultBinTolerance
	}
	var entries []entry
	for _, p := range psms {
		if p.QValue > qThreshold {
			continue
		}
		best := p.BestPeptide()
		if best == nil {
			continue
		}
		entries = append(entries, entry{
			shift:  p.Scan.PrecursorMass - p.PeptideMass(),
			length: float64(best.Len()),
			decoy:  p.Decoy,
		})
	}
	if len(entries) == 0 {
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].shift < entries[j].shift })

	var bins []Bin
	start := 0
	for i := 1; i <= len(entries); i++ {
		if i < len(entries) && entries[i].shift-entries[i-1].shift <= tol {
			continue
		}
		bins = append(bins, newBin(entries[start:i], tol, dict))
		start = i
	}

	sort.SliceStable(bins, func(i, j int) bool {
		if bins[i].Count != bins[j].Count {
			return bins[i].Count > bins[j].Count
		}
		return bins[i].MassShift < bins[j].MassShift
	})
	return bins
}

func newBin(members []entry, tol float64, dict *proteomics.ModificationDictionary) Bin {
	shifts := make([]float64, len(members))
	lengths := make([]float64, len(members))
	b := Bin{Count: len(members)}
	for i, e := range members {
		shifts[i] = e.shift
		lengths[i] = e.length
		if e.decoy {
			b.CountDecoy++
		} else {
			b.CountTarget++
		}
	}
	b.MassShift = stat.Mean(shifts, nil)
	b.FDR = float64(b.CountDecoy) / float64(b.Count)
	sort.Float64s(lengths)
	b.MedianLength = stat.Quantile(0.5, stat.Empirical, lengths, nil)
	b.Mods = explainingMods(b.MassShift, tol, dict)
	return b
}

func explainingMods(shift, tol float64, dict *proteomics.ModificationDictionary) []string {
	if dict == nil {
		return nil
	}
	var keys []string
	for _, k := range dict.Keys() {
		m, err := dict.Lookup(k)
		if err != nil {
			continue
		}
		if math.Abs(m.MonoisotopicMass-shift) <= tol {
			keys = append(keys, k)
		}
	}
	return keys
}
