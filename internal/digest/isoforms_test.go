package digest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/proteomics"
)

func lookup(t *testing.T, key string) proteomics.Modification {
	t.Helper()
	m, err := proteomics.Builtin().Lookup(key)
	require.NoError(t, err)
	return m
}

func fullSequences(pep proteomics.Peptide, mods ModSet, p Params) []string {
	var out []string
	for iso := range Isoforms(pep, mods, p) {
		out = append(out, iso.FullSequence())
	}
	return out
}

func TestIsoforms(t *testing.T) {
	cam := lookup(t, "Common Fixed:Carbamidomethyl on C")
	ox := lookup(t, "Common Variable:Oxidation on M")
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MCMK"}
	pep := proteomics.Peptide{Protein: prot, Start: 1, End: 4}
	mods := ModSet{Fixed: []proteomics.Modification{cam}, Variable: []proteomics.Modification{ox}}

	c := "C[Common Fixed:Carbamidomethyl on C]"
	o := "[Common Variable:Oxidation on M]"
	assert.Equal(t, []string{
		"M" + c + "MK",
		"M" + c + "M" + o + "K",
		"M" + o + c + "MK",
		"M" + o + c + "M" + o + "K",
	}, fullSequences(pep, mods, Params{MaxModsForPeptide: 2}))

	assert.Len(t, fullSequences(pep, mods, Params{MaxModsForPeptide: 1}), 3)
	assert.Len(t, fullSequences(pep, mods, Params{MaxModsForPeptide: 2, MaxModificationIsoforms: 2}), 2)
}

func TestLocalizableProteinMods(t *testing.T) {
	phos := lookup(t, "Common Biological:Phosphorylation on S")
	prot := &proteomics.Protein{Accession: "P1", Sequence: "AASAK",
		Mods: map[int][]proteomics.Modification{3: {phos}}}
	pep := proteomics.Peptide{Protein: prot, Start: 1, End: 5}

	assert.Len(t, fullSequences(pep, ModSet{}, Params{}), 1)
	got := fullSequences(pep, ModSet{Localizable: map[string]bool{phos.Key(): true}}, Params{})
	assert.Equal(t, []string{"AASAK", "AAS[Common Biological:Phosphorylation on S]AK"}, got)
}

func TestTerminalModPlacement(t *testing.T) {
	ac := lookup(t, "Common Biological:Acetylation on X")
	am := lookup(t, "Common Biological:Amidation on X")
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MPEPKAAK"}
	mods := ModSet{Variable: []proteomics.Modification{ac, am}}

	cleaved := proteomics.Peptide{Protein: prot, Start: 2, End: 5}
	assert.Equal(t, []string{"PEPK", "[Common Biological:Acetylation on X]PEPK"},
		fullSequences(cleaved, mods, Params{}))

	last := proteomics.Peptide{Protein: prot, Start: 6, End: 8}
	assert.Equal(t, []string{"AAK", "AAK-[Common Biological:Amidation on X]"},
		fullSequences(last, mods, Params{}))
}

func TestLocalizableNTermModAfterCleavedMethionine(t *testing.T) {
	ac := lookup(t, "Common Biological:Acetylation on X")
	phos := lookup(t, "Common Biological:Phosphorylation on S")
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MSEPK",
		Mods: map[int][]proteomics.Modification{1: {ac}, 2: {phos}}}
	mods := ModSet{Localizable: map[string]bool{ac.Key(): true, phos.Key(): true}}

	cleaved := proteomics.Peptide{Protein: prot, Start: 2, End: 5}
	got := fullSequences(cleaved, mods, Params{})
	assert.Contains(t, got, "[Common Biological:Acetylation on X]SEPK")
	assert.Contains(t, got, "S[Common Biological:Phosphorylation on S]EPK")
	assert.Len(t, got, 4)

	retained := proteomics.Peptide{Protein: prot, Start: 1, End: 5}
	assert.Contains(t, fullSequences(retained, mods, Params{}),
		"[Common Biological:Acetylation on X]MSEPK")
}
