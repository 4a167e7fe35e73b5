package fdr

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
	"github.com/524D/mzsearch/internal/spectra"
)

func psm(scan int, score float64, decoy bool, notch int) *search.PSM {
	return &search.PSM{
		Scan:    &spectra.Scan{FilePath: "a.mzML", OneBasedScanNumber: scan, PrecursorMass: 1000},
		Score:   score,
		Decoy:   decoy,
		Notch:   notch,
		Matches: []*search.Match{{Peptide: proteomics.CompactPeptide{MonoisotopicMass: 1000}}},
	}
}

func qValues(psms []*search.PSM) []float64 {
	q := make([]float64, len(psms))
	for i, p := range psms {
		q[i] = p.QValue
	}
	return q
}

func TestTargetDecoyScenario(t *testing.T) {
	flags := []bool{false, false, true, false, true}
	var psms []*search.PSM
	for i, d := range flags {
		psms = append(psms, psm(i+1, float64(10-i), d, 0))
	}
	Analyze(psms, 1)
	assert.InDeltaSlice(t, []float64{0, 0, 0.25, 0.25, 0.4}, qValues(psms), 1e-12)
	assert.Equal(t, 3, psms[4].CumulativeTarget)
	assert.Equal(t, 2, psms[4].CumulativeDecoy)
	assert.InDeltaSlice(t, []float64{0, 0, 0.25, 0.25, 0.4},
		[]float64{psms[0].QValueNotch, psms[1].QValueNotch, psms[2].QValueNotch,
			psms[3].QValueNotch, psms[4].QValueNotch}, 1e-12)
	assert.Equal(t, 2, CountAtOrBelow(psms, 0.01))
}

func TestStaircaseEqualValuesKeepMinimum(t *testing.T) {
	q := []float64{0.3, 0.1, 0.2, 0.2, 0.5, 0.4}
	ptrs := make([]*float64, len(q))
	for i := range q {
		ptrs[i] = &q[i]
	}
	Staircase(ptrs, func(p *float64) float64 { return *p }, func(p *float64, v float64) { *p = v })
	assert.Equal(t, []float64{0.1, 0.1, 0.2, 0.2, 0.4, 0.4}, q)
}

func TestStaircaseIsMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		var psms []*search.PSM
		for i := 0; i < 200; i++ {
			psms = append(psms, psm(i, rng.Float64()*100, rng.Intn(3) == 0, rng.Intn(3)-1))
		}
		Order(psms)
		Analyze(psms, 2)
		for i := 1; i < len(psms); i++ {
			require.LessOrEqual(t, psms[i-1].QValue, psms[i].QValue)
		}
	}
}

func TestNotchCountsSumToTotals(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	const notches = 3
	var psms []*search.PSM
	for i := 0; i < 300; i++ {
		// notch -1 is unassigned
		psms = append(psms, psm(i, rng.Float64(), rng.Intn(4) == 0, rng.Intn(notches+1)-1))
	}
	Order(psms)
	Analyze(psms, notches)

	targets := make([]int, notches+1)
	decoys := make([]int, notches+1)
	for _, p := range psms {
		n := p.Notch
		if n == search.Unassigned {
			n = notches
		}
		assert.True(t, n >= 0 && n <= notches)
		targets[n] = p.CumulativeTargetNotch
		decoys[n] = p.CumulativeDecoyNotch
		sumT, sumD := 0, 0
		for i := range targets {
			sumT += targets[i]
			sumD += decoys[i]
		}
		require.Equal(t, p.CumulativeTarget, sumT)
		require.Equal(t, p.CumulativeDecoy, sumD)
	}
}

func TestPerNotchQValuesAreIndependent(t *testing.T) {
	psms := []*search.PSM{
		psm(1, 10, false, 0),
		psm(2, 9, true, 1),
		psm(3, 8, false, 0),
		psm(4, 7, false, 1),
	}
	Analyze(psms, 2)
	assert.Equal(t, 0.0, psms[0].QValueNotch)
	assert.Equal(t, 0.5, psms[1].QValueNotch, "lowered by the notch staircase")
	assert.Equal(t, 0.0, psms[2].QValueNotch)
	assert.Equal(t, 0.5, psms[3].QValueNotch)
	assert.InDelta(t, 0.25, psms[3].QValue, 1e-12)
}

func TestOrderAndDedup(t *testing.T) {
	a := psm(1, 10, false, 0)
	a.MassError = 0.01
	b := psm(2, 10, false, 0)
	b.MassError = -0.001
	c := psm(3, 12, true, 0)
	dup := psm(1, 8, false, 0)
	psms := []*search.PSM{a, b, c, dup}

	Order(psms)
	assert.Equal(t, []*search.PSM{c, b, a, dup}, psms)

	psms = Dedup(psms)
	assert.Equal(t, []*search.PSM{c, b, a}, psms)
}
