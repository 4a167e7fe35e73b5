package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/histogram"
	"github.com/524D/mzsearch/internal/parsimony"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
	"github.com/524D/mzsearch/internal/spectra"
)

func peptide(p *proteomics.Protein, start, end int) *proteomics.ModifiedPeptide {
	return &proteomics.ModifiedPeptide{Peptide: proteomics.Peptide{Protein: p, Start: start, End: end, Description: "full"}}
}

func identified(file string, scan int, score float64, peps ...*proteomics.ModifiedPeptide) *search.PSM {
	decoy := true
	for _, p := range peps {
		decoy = decoy && p.Protein.IsDecoy
	}
	return &search.PSM{
		Scan: &spectra.Scan{FilePath: file, OneBasedScanNumber: scan, NativeID: "scan=1",
			PrecursorCharge: 2, RetentionTime: 12.5},
		Score:   score,
		Decoy:   decoy,
		Matches: []*search.Match{{Resolved: peps, MatchedIons: 7}},
	}
}

type fixture struct {
	psms   []*search.PSM
	groups []*parsimony.Group
}

func newFixture() fixture {
	a := &proteomics.Protein{Accession: "A", Name: "alpha", Sequence: "AAAAKSSSSK"}
	b := &proteomics.Protein{Accession: "B", Name: "beta", Sequence: "SSSSKGGGK", IsContaminant: true}
	c := &proteomics.Protein{Accession: "C", Name: "gamma", Sequence: "TTTTK"}
	d := &proteomics.Protein{Accession: "DECOY_X", Sequence: "YYYYK", IsDecoy: true}
	psms := []*search.PSM{
		identified("/data/a.mzML", 1, 10, peptide(a, 1, 5)),
		identified("/data/b.mzML.gz", 2, 8, peptide(a, 6, 10), peptide(b, 1, 5)),
		identified("/data/b.mzML.gz", 4, 7, peptide(d, 1, 5)),
		identified("/data/b.mzML.gz", 3, 6, peptide(c, 1, 5)),
	}
	for i, p := range psms {
		p.Notch = 0
		p.CumulativeTarget = i + 1
	}
	groups := parsimony.Score(parsimony.Build(psms, parsimony.DefaultOptions()), parsimony.DefaultOptions())
	return fixture{psms: psms, groups: groups}
}

func readTSV(t *testing.T, s string) [][]string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(s))
	r.Comma = '\t'
	rows, err := r.ReadAll()
	require.NoError(t, err)
	return rows
}

func column(t *testing.T, rows [][]string, name string) []string {
	t.Helper()
	idx := -1
	for i, h := range rows[0] {
		if h == name {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0, "column %q", name)
	var out []string
	for _, r := range rows[1:] {
		out = append(out, r[idx])
	}
	return out
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "run1", FileName("/x/run1.mzML"))
	assert.Equal(t, "run1", FileName("run1.mzML.gz"))
	assert.Equal(t, "run.1", FileName("run.1"))
}

func TestWritePSMs(t *testing.T) {
	f := newFixture()
	var buf bytes.Buffer
	require.NoError(t, WritePSMs(&buf, f.psms))
	rows := readTSV(t, buf.String())
	require.Len(t, rows, 5)
	assert.Len(t, rows[0], len(psmHeader))

	assert.Equal(t, []string{"a", "b", "b", "b"}, column(t, rows, "File Name"))
	assert.Equal(t, []string{"A", "A|B", "DECOY_X", "C"}, column(t, rows, "Protein Accession"))
	assert.Equal(t, []string{"AAAAK", "SSSSK", "YYYYK", "TTTTK"}, column(t, rows, "Base Sequence"))
	assert.Equal(t, []string{"T", "C", "D", "T"}, column(t, rows, "Decoy/Contaminant/Target"))
	assert.Equal(t, "[6 to 10]|[1 to 5]", column(t, rows, "Start and End Residues In Protein")[1])
	assert.Equal(t, "K|-", column(t, rows, "Previous Amino Acid")[1])
	assert.Equal(t, "7", column(t, rows, "Matched Ion Count")[0])
}

func TestUniquePeptidesAndByFile(t *testing.T) {
	f := newFixture()
	dup := identified("/data/a.mzML", 9, 5, f.psms[0].Peptides()...)
	psms := append(f.psms, dup)
	assert.Len(t, UniquePeptides(psms), 4)

	files, byFile := ByFile(psms)
	assert.Equal(t, []string{"/data/a.mzML", "/data/b.mzML.gz"}, files)
	assert.Len(t, byFile["/data/a.mzML"], 2)
	assert.Len(t, byFile["/data/b.mzML.gz"], 3)
}

func TestWriteProteinGroups(t *testing.T) {
	f := newFixture()
	var buf bytes.Buffer
	require.NoError(t, WriteProteinGroups(&buf, f.groups, ""))
	rows := readTSV(t, buf.String())
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"A", "DECOY_X", "C"}, column(t, rows, "Protein Accession"))
	assert.Equal(t, "AAAAK", column(t, rows, "Unique Peptides")[0])
	assert.Equal(t, "SSSSK", column(t, rows, "Shared Peptides")[0])
	assert.Equal(t, "2", column(t, rows, "Number of PSMs")[0])
	assert.Equal(t, "AAAAKSSSSK", column(t, rows, "Sequence Coverage")[0])
	assert.Equal(t, []string{"T", "D", "T"}, column(t, rows, "Protein Decoy/Contaminant/Target"))

	buf.Reset()
	subset := parsimony.SubsetForFile(f.groups, "/data/a.mzML", parsimony.DefaultOptions())
	require.NoError(t, WriteProteinGroups(&buf, subset, "/data/a.mzML"))
	rows = readTSV(t, buf.String())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"a"}, column(t, rows, "File Name"))
}

func TestIdentifications(t *testing.T) {
	f := newFixture()
	ids := Identifications(f.psms, f.groups, 0.01)
	require.Len(t, ids, 3)
	assert.Equal(t, Identification{
		File:             "/data/b.mzML.gz",
		BaseSequence:     "SSSSK",
		FullSequence:     "SSSSK",
		MonoisotopicMass: peptide(f.groups[0].Proteins[0], 6, 10).MonoisotopicMass(),
		RetentionTime:    12.5,
		Charge:           2,
		ProteinGroups:    []string{"A"},
	}, ids[1])
	assert.Equal(t, []string{"C"}, ids[2].ProteinGroups)

	var buf bytes.Buffer
	require.NoError(t, WriteIdentifications(&buf, ids))
	rows := readTSV(t, buf.String())
	assert.Equal(t, []string{"A", "A", "C"}, column(t, rows, "Protein Accession"))
}

func TestWriteHistogram(t *testing.T) {
	var buf bytes.Buffer
	bins := []histogram.Bin{{MassShift: 15.99491, Count: 3, CountTarget: 3, MedianLength: 9,
		Mods: []string{"Common Variable:Oxidation on M"}}}
	require.NoError(t, WriteHistogram(&buf, bins))
	rows := readTSV(t, buf.String())
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"15.9949", "3", "0", "3", "0.000", "9.000", "Common Variable:Oxidation on M"}, rows[1])
}

func TestWriteSummary(t *testing.T) {
	var buf bytes.Buffer
	err := WriteSummary(&buf, Summary{
		QValueThreshold: 0.01,
		Elapsed:         1500 * time.Millisecond,
		Files:           []Counts{{File: "a", Scans: 10, PSMs: 4, UniquePeptides: 3, ProteinGroups: 2}},
		Total:           Counts{Scans: 10, PSMs: 4, UniquePeptides: 3, ProteinGroups: 2},
	})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "All target PSMs within 1.0% FDR: 4")
	assert.Contains(t, out, "Unique peptides within 1.0% FDR: 3")
	assert.Contains(t, out, "Time to run search: 1.5s")
	assert.Contains(t, out, "PROTEIN GROUPS")
}
