package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/indexcache"
	"github.com/524D/mzsearch/internal/mzidentml"
	"github.com/524D/mzsearch/internal/mzml"
	"github.com/524D/mzsearch/internal/pipeline"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
	"github.com/524D/mzsearch/internal/spectra"
)

func TestParseFloat64Range(t *testing.T) {
	// Test case 1: Valid input range
	lo, hi, err := parseFloat64Range("0.5:1.5", 0.0, 2.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if lo != 0.5 || hi != 1.5 {
		t.Errorf("Expected 0.5:1.5, got: %f:%f", lo, hi)
	}

	// Test case 2: Empty input range
	lo, hi, err = parseFloat64Range("", 0.0, 2.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if lo != 0.0 || hi != 2.0 {
		t.Errorf("Expected 0.0:2.0, got: %f:%f", lo, hi)
	}

	// Test case 3: Invalid input range
	lo, hi, err = parseFloat64Range("2.5:1.5", 0.0, 2.0)
	if !errors.Is(err, ErrRangeSpec) {
		t.Errorf("Expected error: %v, got: %v", ErrRangeSpec, err)
	}
	if lo != 1.5 || hi != 1.5 {
		t.Errorf("Expected 1.5:1.5, got: %f:%f", lo, hi)
	}

	// Test case 4: Only max specified
	lo, hi, err = parseFloat64Range(":1.5", 0.0, 2.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if lo != 0.0 || hi != 1.5 {
		t.Errorf("Expected 0.0:1.5, got: %f:%f", lo, hi)
	}

	// Test case 5: Exponents in numbers
	lo, hi, err = parseFloat64Range("-2.0e10:3.0e10", -1e12, 1e12)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if lo != -2.0e10 || hi != 3.0e10 {
		t.Errorf("Expected -2.0e10:3.0e10, got: %f:%f", lo, hi)
	}

	// Test case 6: Out of range
	lo, hi, err = parseFloat64Range("-2.0:2.0", -1.0, 1.0)
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if lo != -1.0 || hi != 1.0 {
		t.Errorf("Expected -1.0:1.0, got: %f:%f", lo, hi)
	}
}

func TestParseIntRange(t *testing.T) {
	// Test case 1: Both bounds
	lo, hi, err := parseIntRange("7:30", 1, math.MaxInt32)
	if err != nil || lo != 7 || hi != 30 {
		t.Errorf("Expected 7:30, got: %d:%d (%v)", lo, hi, err)
	}

	// Test case 2: Open upper bound
	lo, hi, err = parseIntRange("5:", 1, math.MaxInt32)
	if err != nil || lo != 5 || hi != math.MaxInt32 {
		t.Errorf("Expected 5:MaxInt32, got: %d:%d (%v)", lo, hi, err)
	}

	// Test case 3: Negative and clamped
	lo, hi, err = parseIntRange("-12:6", -10, 5)
	if err != nil || lo != -10 || hi != 5 {
		t.Errorf("Expected -10:5, got: %d:%d (%v)", lo, hi, err)
	}

	// Test case 4: min above max
	_, _, err = parseIntRange("6:3", 0, 10)
	if !errors.Is(err, ErrRangeSpec) {
		t.Errorf("Expected error: %v, got: %v", ErrRangeSpec, err)
	}
}

func TestParseCharges(t *testing.T) {
	charges, err := parseCharges("2:4")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 4}, charges)

	charges, err = parseCharges(":2")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, charges)

	_, err = parseCharges("3:2")
	assert.ErrorIs(t, err, ErrRangeSpec)
}

func TestParseScoreFilter(t *testing.T) {
	filt, err := parseScoreFilter("MS:1002354(:0.01)MS:1002466(0.99:)")
	require.NoError(t, err)
	want := scoreFilter{
		"MS:1002354": {minScore: -math.MaxFloat64, maxScore: 0.01, priority: 0},
		"MS:1002466": {minScore: 0.99, maxScore: math.MaxFloat64, priority: 1},
	}
	if diff := cmp.Diff(want, filt, cmp.AllowUnexported(scoreRange{})); diff != "" {
		t.Errorf("parseScoreFilter() mismatch (-want +got):\n%s", diff)
	}

	_, err = parseScoreFilter("MS:1(0:1)MS:1(0:2)")
	assert.Error(t, err)
	_, err = parseScoreFilter("MS:1(2:1)")
	assert.ErrorIs(t, err, ErrRangeSpec)
	_, err = parseScoreFilter("nonsense")
	assert.ErrorIs(t, err, ErrRangeSpec)
}

func TestScoreFilterAccept(t *testing.T) {
	filt, err := parseScoreFilter(defaultScoreFilter)
	require.NoError(t, err)

	doc := mzidentml.Document{
		Software:    progName,
		SpectraFile: "run.mzML",
		PSMs:        testPSMs(),
	}
	var b bytes.Buffer
	require.NoError(t, mzidentml.Write(&b, doc))
	m, err := mzidentml.Read(&b)
	require.NoError(t, err)
	require.Equal(t, 2, m.NumIdents())

	good, err := m.Ident(0)
	require.NoError(t, err)
	assert.True(t, filt.accept(&good))
	bad, err := m.Ident(1)
	require.NoError(t, err)
	assert.False(t, filt.accept(&bad))

	assert.False(t, scoreFilter{}.accept(&good))
}

func TestSearchOptions(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "mzsearch.yaml")
	require.NoError(t, os.WriteFile(config, []byte(`databases:
  - a.fasta
  - contaminants.fasta
digest:
  protease: Lys-C
  length: "7:30"
  missed_cleavages: 3
mods:
  variable: []
index:
  store:
    endpoint: http://localhost:9000
    access-key: key
    secret-key: secret
    bucket: indexes
`), 0o644))
	t.Setenv("MZSEARCH_SCORING_PRECURSOR", "10ppm")

	v := newConfig()
	cmd := &cobra.Command{}
	addSearchFlags(cmd, v)
	require.NoError(t, readConfig(v, config))
	require.NoError(t, cmd.Flags().Set(missedFlagName, "1"))

	o, err := searchOptions(v, []string{"run.mzML"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.fasta", "contaminants.fasta"}, o.Databases)
	assert.Equal(t, []string{"run.mzML"}, o.SpectraFiles)
	assert.Equal(t, "Lys-C", o.Protease)
	assert.Equal(t, 7, o.MinPeptideLength)
	assert.Equal(t, 30, o.MaxPeptideLength)
	assert.Equal(t, 1, o.MaxMissedCleavages)
	assert.Equal(t, "10ppm", o.PrecursorAcceptor)
	assert.Empty(t, o.VariableMods)
	assert.Equal(t, pipeline.DefaultOptions().FixedMods, o.FixedMods)
	assert.Equal(t, []int{2, 3}, o.AssumedCharges)
	assert.Equal(t, pipeline.ModernSearch, o.SearchType)
	assert.Equal(t, defaultOutputDir, o.OutputDir)
	require.NotNil(t, o.IndexStore)
	assert.Equal(t, indexcache.MinioConfig{
		EndpointURL:     "http://localhost:9000",
		AccessKeyID:     "key",
		SecretAccessKey: "secret",
		Bucket:          "indexes",
	}, *o.IndexStore)
	assert.NoError(t, o.Validate())
}

func TestSearchOptionsDefaults(t *testing.T) {
	v := newConfig()
	cmd := &cobra.Command{}
	addSearchFlags(cmd, v)
	o, err := searchOptions(v, []string{"run.mzML"})
	require.NoError(t, err)

	d := pipeline.DefaultOptions()
	assert.Equal(t, d.MinPeptideLength, o.MinPeptideLength)
	assert.Zero(t, o.MaxPeptideLength)
	assert.Equal(t, d.IonTypes, o.IonTypes)
	assert.Equal(t, d.VariableMods, o.VariableMods)
	assert.Equal(t, d.QValueThreshold, o.QValueThreshold)
	assert.True(t, o.Decoys)
	assert.Empty(t, o.Specificity)
	assert.Nil(t, o.IndexStore)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(&pipeline.ConfigError{Option: "protease", Err: errors.New("x")}))
	assert.Equal(t, 3, exitCode(fmt.Errorf("read spectra: %w", os.ErrNotExist)))
	assert.Equal(t, 3, exitCode(&indexcache.ResourceError{Location: "x", Err: errors.New("y")}))
	assert.Equal(t, 1, exitCode(context.Canceled))
}

func testPSMs() []*search.PSM {
	prot := &proteomics.Protein{Accession: "P1", Sequence: "MSPEPTIDEKAGLLVNSTR", DatabaseFile: "db.fasta"}
	decoy := &proteomics.Protein{Accession: "DECOY_P1", Sequence: "MRTSNVLLGAKEDITPEPS", IsDecoy: true, DatabaseFile: "db.fasta"}
	psm := func(n int, p *proteomics.Protein, start, end int, q float64) *search.PSM {
		return &search.PSM{
			Scan:   &spectra.Scan{FilePath: "run.mzML", OneBasedScanNumber: n, PrecursorMz: 500.5, PrecursorCharge: 2},
			Score:  10,
			QValue: q,
			Decoy:  p.IsDecoy,
			Matches: []*search.Match{{Resolved: []*proteomics.ModifiedPeptide{
				{Peptide: proteomics.Peptide{Protein: p, Start: start, End: end}},
			}}},
		}
	}
	return []*search.PSM{psm(1, prot, 11, 19, 0.001), psm(2, decoy, 2, 11, 0.5)}
}

// ladderScan has a peak for every singly charged b and y ion of seq
func ladderScan(n int, seq string, charge int) *spectra.Scan {
	prot := &proteomics.Protein{Accession: "X", Sequence: seq}
	mp := &proteomics.ModifiedPeptide{Peptide: proteomics.Peptide{Protein: prot, Start: 1, End: len(seq)}}
	c := mp.Compact(proteomics.BothTermini)
	var peaks []spectra.Peak
	for _, m := range c.ProductMasses([]proteomics.ProductType{proteomics.B, proteomics.Y}) {
		peaks = append(peaks, spectra.Peak{Mz: proteomics.ToMz(m, 1), Intens: 100})
	}
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].Mz < peaks[j].Mz })
	return spectra.NewScan("", n, "", float64(60*n), proteomics.ToMz(c.MonoisotopicMass, charge), charge, peaks, 0)
}

func writeSearchInput(t *testing.T, dir string) (fasta, spectraFile string) {
	t.Helper()
	fasta = filepath.Join(dir, "test.fasta")
	require.NoError(t, os.WriteFile(fasta, []byte(">sp|P1|ONE_TEST first protein\n"+
		"MSPEPTIDEKAGLLVNSTRWHFEQDYK\n>sp|P2|TWO_TEST second protein\nGGQHVLNRAGLLVNSTRFFPEGDK\n"), 0o644))

	spectraFile = filepath.Join(dir, "run1.mzML")
	f, err := os.Create(spectraFile)
	require.NoError(t, err)
	scans := []*spectra.Scan{
		ladderScan(1, "MSPEPTIDEK", 2),
		ladderScan(2, "AGLLVNSTR", 2),
		ladderScan(3, "WHFEQDYK", 3),
	}
	require.NoError(t, mzml.Write(f, scans, mzml.Encoding{Zlib: true}))
	require.NoError(t, f.Close())
	return fasta, spectraFile
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestSearchCommand(t *testing.T) {
	dir := t.TempDir()
	fasta, spectraFile := writeSearchInput(t, dir)
	out := filepath.Join(dir, "results")
	logFile := filepath.Join(dir, "mzsearch.log")

	_, _, err := execute(t, "search", "--config", filepath.Join(dir, "missing.yaml"),
		"-d", fasta, "-o", out, spectraFile)
	require.Error(t, err, "an explicit config file must exist")

	stdout, _, err := execute(t, "search", "--log-file", logFile, "--debug", "2:2",
		"-d", fasta, "-o", out, spectraFile)
	require.NoError(t, err)
	assert.Contains(t, stdout, "All target PSMs within 1.0% FDR: 3")
	assert.Contains(t, stdout, "Scan:2 ")
	assert.NotContains(t, stdout, "Scan:1 ")
	assert.Contains(t, stdout, "AGLLVNSTR")

	for _, name := range []string{pipeline.AllPSMsFile, pipeline.ProteinGroupsFile, pipeline.SummaryFile,
		pipeline.ParamsFile, "run1.mzid"} {
		assert.FileExists(t, filepath.Join(out, name))
	}
	logged, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(logged), "search done")

	stdout, _, err = execute(t, "summary", filepath.Join(out, "run1.mzid"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "ACCEPTED")
	var row []string
	for _, line := range strings.Split(stdout, "\n") {
		if !strings.Contains(line, "run1.mzid") {
			continue
		}
		for _, f := range strings.Fields(line) {
			if f != "|" {
				row = append(row, f)
			}
		}
	}
	// file, identifications, rank 1, accepted, decoys, peptides, proteins
	require.Len(t, row, 7)
	assert.Equal(t, []string{"run1.mzid", "3", "3", "3", "0", "3"}, row[:6])
}

func TestSearchCommandRejectsOptions(t *testing.T) {
	dir := t.TempDir()
	fasta, spectraFile := writeSearchInput(t, dir)
	_, _, err := execute(t, "search", "--quiet", "-d", fasta, "--protease", "no-such-enzyme",
		"-o", filepath.Join(dir, "out"), spectraFile)
	var ce *pipeline.ConfigError
	require.True(t, errors.As(err, &ce), "got %v", err)
	assert.Equal(t, 2, exitCode(err))
	assert.NoDirExists(t, filepath.Join(dir, "out"))

	_, _, err = execute(t, "search", "--quiet", "-d", fasta, "--length", "9:3", spectraFile)
	assert.ErrorIs(t, err, ErrRangeSpec)
}

func TestVersionCommand(t *testing.T) {
	stdout, stderr, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, stdout+stderr, progName+" version ")
}
