package digest

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/proteomics"
)

func mustProtease(t *testing.T, name string) Protease {
	t.Helper()
	p, err := LookupProtease(name)
	require.NoError(t, err)
	return p
}

func collect(t *testing.T, prot *proteomics.Protein, p Params) []proteomics.Peptide {
	t.Helper()
	seq, err := Digest(prot, p)
	require.NoError(t, err)
	var peps []proteomics.Peptide
	for pep := range seq {
		peps = append(peps, pep)
	}
	return peps
}

func sequences(peps []proteomics.Peptide) []string {
	s := make([]string, 0, len(peps))
	for _, p := range peps {
		s = append(s, p.BaseSequence())
	}
	sort.Strings(s)
	return s
}

func TestCleavageSites(t *testing.T) {
	assert.Equal(t, []int{4}, mustProtease(t, "trypsin").CleavageSites("PEPKTIDERPAAK"))
	assert.Equal(t, []int{4, 9}, mustProtease(t, "trypsin (no proline rule)").CleavageSites("PEPKTIDERPAAK"))
	assert.Equal(t, []int{2, 5}, mustProtease(t, "Asp-N").CleavageSites("AADAADCC"))
	assert.Empty(t, mustProtease(t, "top-down").CleavageSites("AKAKAK"))

	_, err := LookupProtease("pepsin")
	assert.ErrorIs(t, err, ErrUnknownProtease)
}

func TestFullDigestion(t *testing.T) {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MAAKCCCKDDDR"}
	p := Params{Protease: mustProtease(t, "trypsin"), MaxMissedCleavages: 1}

	want := []string{"AAK", "AAKCCCK", "CCCK", "CCCKDDDR", "DDDR", "MAAK", "MAAKCCCK"}
	assert.Equal(t, want, sequences(collect(t, prot, p)))

	p.InitiatorMethionine = Retain
	assert.Equal(t, []string{"CCCK", "CCCKDDDR", "DDDR", "MAAK", "MAAKCCCK"}, sequences(collect(t, prot, p)))

	p.InitiatorMethionine = Cleave
	assert.Equal(t, []string{"AAK", "AAKCCCK", "CCCK", "CCCKDDDR", "DDDR"}, sequences(collect(t, prot, p)))

	for _, pep := range collect(t, prot, p) {
		if pep.Start == 2 {
			assert.Equal(t, "full:M cleaved", pep.Description)
		}
		assert.LessOrEqual(t, pep.MissedCleavages, 1)
	}
}

func TestDigestionIsDeterministic(t *testing.T) {
	a := &proteomics.Protein{Accession: "A", Sequence: "MAAKCCCKDDDRPEPTIDEK"}
	b := &proteomics.Protein{Accession: "B", Sequence: "GGGRSSSKTTTTKWWR"}
	p := DefaultParams()
	p.MinPeptideLength = 0

	first := collect(t, a, p)
	second := collect(t, a, p)
	if diff := cmp.Diff(sequences(first), sequences(second)); diff != "" {
		t.Errorf("repeated digestion differs (-first +second):\n%s", diff)
	}

	perProtein := func(order []*proteomics.Protein) map[string][]string {
		out := make(map[string][]string)
		for _, prot := range order {
			out[prot.Accession] = sequences(collect(t, prot, p))
		}
		return out
	}
	assert.Equal(t, perProtein([]*proteomics.Protein{a, b}), perProtein([]*proteomics.Protein{b, a}))
}

func TestLengthFilter(t *testing.T) {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MAAKCCCKDDDRPEPTIDEKWWWWWWWWWWK",
		ProteolysisProducts: []proteomics.ProteolysisProduct{{Begin: 5, End: 20, Type: "chain"}}}
	for _, spec := range []CleavageSpecificity{Full, FullMaxN, FullMaxC, SingleN, SingleC, None} {
		pr := mustProtease(t, "trypsin")
		pr.Specificity = spec
		p := Params{Protease: pr, MaxMissedCleavages: 2, MinPeptideLength: 4, MaxPeptideLength: 16}
		for _, pep := range collect(t, prot, p) {
			assert.GreaterOrEqual(t, pep.Len(), 4, "%v %v", spec, pep)
			assert.LessOrEqual(t, pep.Len(), 16, "%v %v", spec, pep)
			assert.True(t, 1 <= pep.Start && pep.Start <= pep.End && pep.End <= prot.Len())
		}
	}
}

func TestProteolysisProducts(t *testing.T) {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MAAKCCCKDDDR",
		ProteolysisProducts: []proteomics.ProteolysisProduct{{Begin: 5, End: 12, Type: "chain"}}}
	p := Params{Protease: mustProtease(t, "trypsin")}
	var descs []string
	for _, pep := range collect(t, prot, p) {
		if pep.Description == "chain start" || pep.Description == "chain end" {
			descs = append(descs, pep.Description+" "+pep.BaseSequence())
		}
	}
	assert.ElementsMatch(t, []string{"chain start CCCK", "chain end DDDR"}, descs)
}

func TestSemiSpecificDigestion(t *testing.T) {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MAAKCCCKDDDR"}
	pr := mustProtease(t, "trypsin")
	pr.Specificity = FullMaxN
	p := Params{Protease: pr, MaxMissedCleavages: 1}
	assert.Equal(t, []string{"AAKCCCK", "CCCKDDDR", "DDDR", "MAAKCCCK"}, sequences(collect(t, prot, p)))

	pr.Specificity = FullMaxC
	p.Protease = pr
	assert.Equal(t, []string{"AAKCCCK", "CCCKDDDR", "MAAK", "MAAKCCCK"}, sequences(collect(t, prot, p)))
}

func TestSingleTerminusDigestion(t *testing.T) {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "ACDEFGHIK"}
	pr := mustProtease(t, "non-specific")
	p := Params{Protease: pr, MaxPeptideLength: 5}
	peps := collect(t, prot, p)
	require.Len(t, peps, 9)
	assert.Equal(t, "ACDEF", peps[0].BaseSequence())
	assert.Equal(t, "K", peps[8].BaseSequence())

	pr.Specificity = SingleC
	p.Protease = pr
	p.MinPeptideLength = 2
	peps = collect(t, prot, p)
	require.Len(t, peps, 8)
	assert.Equal(t, "AC", peps[0].BaseSequence())
	assert.Equal(t, "FGHIK", peps[7].BaseSequence())
}

func TestNoCleavage(t *testing.T) {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MACDEK"}
	p := Params{Protease: mustProtease(t, "top-down")}
	assert.Equal(t, []string{"ACDEK", "MACDEK"}, sequences(collect(t, prot, p)))
}

func TestUnknownPolicies(t *testing.T) {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MACDEK"}
	_, err := Digest(prot, Params{Protease: Protease{Specificity: CleavageSpecificity(42)}})
	assert.ErrorIs(t, err, ErrUnknownSpecificity)
	_, err = Digest(prot, Params{InitiatorMethionine: InitiatorMethionine(7)})
	assert.ErrorIs(t, err, ErrUnknownInitiatorMethionine)
	_, err = Digest(prot, Params{MinPeptideLength: 8, MaxPeptideLength: 4})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = ParseCleavageSpecificity("HalfMaxN")
	assert.ErrorIs(t, err, ErrUnknownSpecificity)
	im, err := ParseInitiatorMethionine("cleave")
	require.NoError(t, err)
	assert.Equal(t, Cleave, im)
}

func TestDigestStopsEarly(t *testing.T) {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MAAKCCCKDDDR"}
	seq, err := Digest(prot, Params{Protease: mustProtease(t, "trypsin"), MaxMissedCleavages: 2})
	require.NoError(t, err)
	n := 0
	for range seq {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}
