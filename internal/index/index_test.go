package index

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/digest"
	"github.com/524D/mzsearch/internal/proteomics"
)

func testParams(t *testing.T) Params {
	t.Helper()
	d := digest.DefaultParams()
	d.MaxMissedCleavages = 1
	d.MinPeptideLength = 3
	ox, err := proteomics.Builtin().Lookup("Common Variable:Oxidation on M")
	require.NoError(t, err)
	return Params{
		Digestion:    d,
		Mods:         digest.ModSet{Variable: []proteomics.Modification{ox}},
		ProductTypes: []proteomics.ProductType{proteomics.B, proteomics.Y},
	}
}

func testProteins() []*proteomics.Protein {
	return []*proteomics.Protein{
		{Accession: "P1", Sequence: "MAAKCCCKDDDR"},
		{Accession: "P2", Sequence: "GGMKDDDR"},
	}
}

func build(t *testing.T, p Params) *Index {
	t.Helper()
	prots := testProteins()
	_, fp, err := Describe(p, prots)
	require.NoError(t, err)
	x, err := Build(context.Background(), prots, p, fp, nil)
	require.NoError(t, err)
	return x
}

func TestBuildDeduplicatesAndSorts(t *testing.T) {
	x := build(t, testParams(t))
	require.NotEmpty(t, x.Peptides)

	seen := map[proteomics.PeptideKey]bool{}
	for i, p := range x.Peptides {
		assert.False(t, seen[p.Key()], "duplicate peptide %d", i)
		seen[p.Key()] = true
		if i > 0 {
			assert.LessOrEqual(t, x.Peptides[i-1].MonoisotopicMass, p.MonoisotopicMass)
		}
	}

	// DDDR is produced by both proteins but indexed once
	dddr := proteomics.SequenceHash("DDDR")
	n := 0
	for _, p := range x.Peptides {
		if p.BaseHash == dddr {
			n++
		}
	}
	assert.Equal(t, 1, n)
}

func TestEveryFragmentIsFound(t *testing.T) {
	x := build(t, testParams(t))
	for i := 1; i < len(x.Keys); i++ {
		require.Less(t, x.Keys[i-1], x.Keys[i])
	}
	types := []proteomics.ProductType{proteomics.B, proteomics.Y}
	for ord, p := range x.Peptides {
		for _, m := range p.ProductMasses(types) {
			found := false
			for _, cands := range x.CandidatesFor(m-0.01, m+0.01) {
				for _, c := range cands {
					found = found || int(c) == ord
				}
			}
			assert.True(t, found, "peptide %d fragment %.4f", ord, m)
		}
	}
}

func TestBucketRange(t *testing.T) {
	x := &Index{BinsPerDalton: 100, Keys: []int32{100, 200, 300}, Candidates: make([][]int32, 3)}
	i, j := x.BucketRange(1.5, 2.5)
	assert.Equal(t, 1, i)
	assert.Equal(t, 2, j)
	i, j = x.BucketRange(0, 0.5)
	assert.Equal(t, i, j)
	i, j = x.BucketRange(0.996, 3.004)
	assert.Equal(t, 0, i)
	assert.Equal(t, 3, j)
}

func TestFingerprintChangesWithParams(t *testing.T) {
	p := testParams(t)
	prots := testProteins()
	text, fp1, err := Describe(p, prots)
	require.NoError(t, err)
	assert.Contains(t, string(text), "protease: trypsin")

	_, again, err := Describe(p, prots)
	require.NoError(t, err)
	assert.Equal(t, fp1, again)

	p.Digestion.MaxMissedCleavages = 2
	_, fp2, err := Describe(p, prots)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)

	prots[0].Sequence = "MAAKCCCKDDDK"
	_, fp3, err := Describe(testParams(t), prots)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp3)

	parsed, err := ParseFingerprint(fp1.String())
	require.NoError(t, err)
	assert.Equal(t, fp1, parsed)
}

func TestCodecRoundTrip(t *testing.T) {
	x := build(t, testParams(t))
	var peps, frags bytes.Buffer
	require.NoError(t, x.WritePeptideIndex(&peps))
	require.NoError(t, x.WriteFragmentIndex(&frags))

	got, err := ReadIndex(bytes.NewReader(peps.Bytes()), bytes.NewReader(frags.Bytes()), x.Fingerprint)
	require.NoError(t, err)
	if diff := cmp.Diff(x, got); diff != "" {
		t.Errorf("index differs after round trip (-want +got):\n%s", diff)
	}
}

func TestCodecRejectsMismatch(t *testing.T) {
	x := build(t, testParams(t))
	var peps, frags bytes.Buffer
	require.NoError(t, x.WritePeptideIndex(&peps))
	require.NoError(t, x.WriteFragmentIndex(&frags))

	other := x.Fingerprint
	other[0] ^= 0xff
	_, err := ReadIndex(bytes.NewReader(peps.Bytes()), bytes.NewReader(frags.Bytes()), other)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)

	b := bytes.Clone(peps.Bytes())
	b[8] = 99
	_, err = ReadIndex(bytes.NewReader(b), bytes.NewReader(frags.Bytes()), x.Fingerprint)
	assert.ErrorIs(t, err, ErrSchemaVersion)

	_, err = ReadIndex(bytes.NewReader(frags.Bytes()), bytes.NewReader(peps.Bytes()), x.Fingerprint)
	assert.ErrorIs(t, err, ErrBadMagic)

	trunc := peps.Bytes()[:headerSize+4]
	_, err = ReadIndex(bytes.NewReader(trunc), bytes.NewReader(frags.Bytes()), x.Fingerprint)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestBuildHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, testProteins(), testParams(t), Fingerprint{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCodecKeepsLongLadders(t *testing.T) {
	ladder := make([]float64, 70000)
	for i := range ladder {
		ladder[i] = 100 + float64(i)*110.5
	}
	x := &Index{
		BinsPerDalton: DefaultBinsPerDalton,
		Peptides: []proteomics.CompactPeptide{
			{BaseHash: 7, NTerminalMasses: ladder, MonoisotopicMass: ladder[len(ladder)-1] + 18},
			{BaseHash: 8, CTerminalMasses: []float64{175.1, 276.2}, MonoisotopicMass: 400},
		},
		Keys:       []int32{17510},
		Candidates: [][]int32{{1}},
	}
	var peps, frags bytes.Buffer
	require.NoError(t, x.WritePeptideIndex(&peps))
	require.NoError(t, x.WriteFragmentIndex(&frags))

	got, err := ReadIndex(bytes.NewReader(peps.Bytes()), bytes.NewReader(frags.Bytes()), x.Fingerprint)
	require.NoError(t, err)
	require.Len(t, got.Peptides, 2)
	assert.Len(t, got.Peptides[0].NTerminalMasses, len(ladder))
	assert.Equal(t, x.Peptides[1], got.Peptides[1])
}

func TestFragmentsSharingABucketKeepTheirEntries(t *testing.T) {
	x := &Index{BinsPerDalton: DefaultBinsPerDalton, Peptides: []proteomics.CompactPeptide{
		{BaseHash: 1, NTerminalMasses: []float64{57.021, 114.040, 114.042}, MonoisotopicMass: 300},
	}}
	x.fillFragments([]proteomics.ProductType{proteomics.B})
	require.Equal(t, x.Bucket(114.040), x.Bucket(114.042))
	entries := 0
	for _, cands := range x.CandidatesFor(114.03, 114.05) {
		entries += len(cands)
	}
	assert.Equal(t, 2, entries, "every fragment in the window has its own entry")
}
