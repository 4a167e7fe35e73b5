package histogram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
	"github.com/524D/mzsearch/internal/spectra"
)

func shifted(seq string, shift, q float64, decoy bool) *search.PSM {
	prot := &proteomics.Protein{Accession: "P", Sequence: seq, IsDecoy: decoy}
	mp := &proteomics.ModifiedPeptide{Peptide: proteomics.Peptide{Protein: prot, Start: 1, End: len(seq)}}
	mass := mp.MonoisotopicMass()
	return &search.PSM{
		Scan: &spectra.Scan{PrecursorMass: mass + shift},
		Matches: []*search.Match{{
			Peptide:  proteomics.CompactPeptide{MonoisotopicMass: mass},
			Resolved: []*proteomics.ModifiedPeptide{mp},
		}},
		Decoy:  decoy,
		QValue: q,
	}
}

func TestBuild(t *testing.T) {
	psms := []*search.PSM{
		shifted("PEPTIDEK", 15.9950, 0, false),
		shifted("PEPTIDEMK", 15.9951, 0, false),
		shifted("AGLLVNSTR", 15.9948, 0.001, false),
		shifted("PEPTIDEK", 0.0001, 0, false),
		shifted("AGLLVNSTRK", 0, 0, false),
		shifted("KEDITPEP", 79.9663, 0.005, true),
		shifted("PEPTIDEK", 42.0106, 0.5, false),
	}
	bins := Build(psms, 0.01, DefaultBinTolerance, proteomics.Builtin())
	require.Len(t, bins, 3)

	ox := bins[0]
	assert.Equal(t, 3, ox.Count)
	assert.Equal(t, 3, ox.CountTarget)
	assert.InDelta(t, 15.99497, ox.MassShift, 1e-4)
	assert.Equal(t, []string{"Common Variable:Oxidation on M"}, ox.Mods)
	assert.Equal(t, 9.0, ox.MedianLength)
	assert.Zero(t, ox.FDR)

	zero := bins[1]
	assert.Equal(t, 2, zero.Count)
	assert.InDelta(t, 0, zero.MassShift, 1e-4)
	assert.Empty(t, zero.Mods)

	phospho := bins[2]
	assert.Equal(t, 1, phospho.CountDecoy)
	assert.Equal(t, 1.0, phospho.FDR)
	assert.Equal(t, []string{
		"Common Biological:Phosphorylation on S",
		"Common Biological:Phosphorylation on T",
		"Common Biological:Phosphorylation on Y",
	}, phospho.Mods)
}

func TestBuildSplitsDistantShifts(t *testing.T) {
	psms := []*search.PSM{
		shifted("PEPTIDEK", 1.000, 0, false),
		shifted("PEPTIDEK", 1.002, 0, false),
		shifted("PEPTIDEK", 1.004, 0, false),
		shifted("PEPTIDEK", 1.010, 0, false),
	}
	bins := Build(psms, 0.01, 0.003, nil)
	require.Len(t, bins, 2)
	assert.Equal(t, 3, bins[0].Count, "neighbours chain into one bin")
	assert.Equal(t, 1, bins[1].Count)
	assert.Nil(t, Build(nil, 0.01, 0, nil))
}
