// Package spectra holds the MS2 scan model consumed by the search engines
package spectra

import (
	"sort"

	"github.com/524D/mzsearch/internal/proteomics"
)

// Peak contains the actual ms peak info
type Peak struct {
	Mz     float64
	Intens float64
}

// Scan is an MS2 spectrum with one precursor hypothesis. RetentionTime is
// in minutes, Peaks are sorted by m/z.
type Scan struct {
	FilePath           string
	OneBasedScanNumber int
	NativeID           string
	RetentionTime      float64
	PrecursorMz        float64
	PrecursorCharge    int
	PrecursorMass      float64
	Peaks              []Peak
	TotalIonCurrent    float64
}

// NewScan fills in the neutral precursor mass and, if tic is not positive,
// the total ion current
func NewScan(file string, scanNumber int, nativeID string, rt, precursorMz float64,
	charge int, peaks []Peak, tic float64) *Scan {
	if tic <= 0 {
		tic = 0
		for _, p := range peaks {
			tic += p.Intens
		}
	}
	return &Scan{
		FilePath:           file,
		OneBasedScanNumber: scanNumber,
		NativeID:           nativeID,
		RetentionTime:      rt,
		PrecursorMz:        precursorMz,
		PrecursorCharge:    charge,
		PrecursorMass:      proteomics.ToMass(precursorMz, charge),
		Peaks:              peaks,
		TotalIonCurrent:    tic,
	}
}

// FilterParams control peak picking before the search
type FilterParams struct {
	// TopN keeps the most intense peaks, 0 keeps all
	TopN int
	// MinRatio drops peaks below this fraction of the base peak
	MinRatio float64
}

// DefaultFilter keeps the 400 most intense peaks above 1% of the base peak
func DefaultFilter() FilterParams {
	return FilterParams{TopN: 400, MinRatio: 0.01}
}

// Apply returns the retained peaks sorted by m/z. The input is not modified.
func (f FilterParams) Apply(peaks []Peak) []Peak {
	var basePeak float64
	for _, p := range peaks {
		basePeak = max(basePeak, p.Intens)
	}
	kept := make([]Peak, 0, len(peaks))
	for _, p := range peaks {
		if p.Intens > 0 && p.Intens >= f.MinRatio*basePeak {
			kept = append(kept, p)
		}
	}
	if f.TopN > 0 && len(kept) > f.TopN {
		sort.SliceStable(kept, func(i, j int) bool { return kept[i].Intens > kept[j].Intens })
		kept = kept[:f.TopN]
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Mz < kept[j].Mz })
	return kept
}

// SortByPrecursorMass orders scans by ascending neutral precursor mass,
// ties by scan number
func SortByPrecursorMass(scans []*Scan) {
	sort.SliceStable(scans, func(i, j int) bool {
		if scans[i].PrecursorMass != scans[j].PrecursorMass {
			return scans[i].PrecursorMass < scans[j].PrecursorMass
		}
		return scans[i].OneBasedScanNumber < scans[j].OneBasedScanNumber
	})
}

// FirstAtOrAbove returns the index of the first scan in mass-sorted scans
// with a precursor mass of at least mass
func FirstAtOrAbove(scans []*Scan, mass float64) int {
	return sort.Search(len(scans), func(i int) bool { return scans[i].PrecursorMass >= mass })
}
