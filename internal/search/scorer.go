package search

import (
	"math"
	"sort"

	"github.com/524D/mzsearch/internal/massdiff"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/spectra"
)

// Scorer counts theoretical fragments found among the peaks of a scan. The
// score is the number of matched fragments plus, when IntensityWeighted is
// set, the matched fraction of the total ion current.
type Scorer struct {
	ProductTypes      []proteomics.ProductType
	Tolerance         massdiff.Tolerance
	IntensityWeighted bool
}

// spectrum holds the singly charged neutral masses of the peaks of a scan
type spectrum struct {
	masses []float64
	intens []float64
	tic    float64
}

func prepare(scan *spectra.Scan) spectrum {
	sp := spectrum{
		masses: make([]float64, len(scan.Peaks)),
		intens: make([]float64, len(scan.Peaks)),
		tic:    scan.TotalIonCurrent,
	}
	for i, p := range scan.Peaks {
		sp.masses[i] = proteomics.ToMass(p.Mz, 1)
		sp.intens[i] = p.Intens
	}
	return sp
}

// closest returns the index of the peak nearest to mass within tolerance,
// or -1
func (s Scorer) closest(sp spectrum, mass float64) int {
	lo, hi := s.Tolerance.Window(mass)
	best, bestDiff := -1, math.Inf(1)
	for j := sort.SearchFloat64s(sp.masses, lo); j < len(sp.masses) && sp.masses[j] <= hi; j++ {
		if d := math.Abs(sp.masses[j] - mass); d < bestDiff {
			best, bestDiff = j, d
		}
	}
	return best
}

// score returns the score of c against sp and the number of matched ions.
// A peak matched by several ions adds its intensity once, so the intensity
// fraction never exceeds 1.
func (s Scorer) score(sp spectrum, c proteomics.CompactPeptide) (float64, int) {
	var n int
	var intens float64
	last := -1
	// product masses are sorted, so the closest peak index never decreases
	for _, m := range c.ProductMasses(s.ProductTypes) {
		j := s.closest(sp, m)
		if j < 0 {
			continue
		}
		n++
		if j != last {
			intens += sp.intens[j]
			last = j
		}
	}
	score := float64(n)
	if s.IntensityWeighted && sp.tic > 0 {
		score += intens / sp.tic
	}
	return score, n
}

// Score scores a single candidate against a scan
func (s Scorer) Score(scan *spectra.Scan, c proteomics.CompactPeptide) (float64, int) {
	return s.score(prepare(scan), c)
}

// Params are shared by all engines
type Params struct {
	Acceptor massdiff.Acceptor
	Scorer   Scorer
	// ScoreCutoff is the minimum score of a reported PSM
	ScoreCutoff float64
}

// DefaultScoreCutoff is the minimum score reported unless configured
const DefaultScoreCutoff = 5

func usable(scan *spectra.Scan) bool {
	return len(scan.Peaks) > 0 && scan.PrecursorMass > 0 && !math.IsNaN(scan.PrecursorMass)
}
