package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzsearch/internal/digest"
	"github.com/524D/mzsearch/internal/mzml"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/spectra"
)

const testFasta = `>sp|P1|ONE_TEST first protein
MSPEPTIDEKAGLLVNSTRWHFEQDYK
>sp|P2|TWO_TEST second protein
GGQHVLNRAGLLVNSTRFFPEGDK
`

var identifiedPeptides = []string{"AGLLVNSTR", "MSPEPTIDEK", "WHFEQDYK"}

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

type testInput struct {
	dir     string
	fasta   string
	spectra []string
}

func writeInput(t *testing.T, files int) testInput {
	t.Helper()
	in := testInput{dir: t.TempDir()}
	in.fasta = filepath.Join(in.dir, "test.fasta")
	require.NoError(t, os.WriteFile(in.fasta, []byte(testFasta), 0o644))
	for i := 0; i < files; i++ {
		scans := []*spectra.Scan{
			ladderScan(1, "MSPEPTIDEK", 2),
			ladderScan(2, "AGLLVNSTR", 2),
			ladderScan(3, "WHFEQDYK", 3),
		}
		path := filepath.Join(in.dir, fmt.Sprintf("run%d.mzML", i+1))
		f, err := os.Create(path)
		require.NoError(t, err)
		require.NoError(t, mzml.Write(f, scans, mzml.Encoding{Zlib: true}))
		require.NoError(t, f.Close())
		in.spectra = append(in.spectra, path)
	}
	return in
}

func testOptions(in testInput) Options {
	o := DefaultOptions()
	o.Databases = []string{in.fasta}
	o.SpectraFiles = in.spectra
	o.OutputDir = filepath.Join(in.dir, "out")
	o.MaxParallelFiles = 2
	o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return o
}

func confidentSequences(res *Result, q float64) []string {
	seen := make(map[string]bool)
	for _, p := range res.PSMs {
		if p.Decoy || p.QValue > q {
			continue
		}
		for _, s := range p.BaseSequences() {
			seen[s] = true
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func TestValidate(t *testing.T) {
	in := writeInput(t, 1)

	testCases := []struct {
		name   string
		modify func(*Options)
		option string
		err    error
	}{
		{"no database", func(o *Options) { o.Databases = nil }, "databases", ErrNoInput},
		{"no spectra", func(o *Options) { o.SpectraFiles = nil }, "spectra", ErrNoInput},
		{"search type", func(o *Options) { o.SearchType = "fast" }, "search-type", ErrUnknownSearchType},
		{"protease", func(o *Options) { o.Protease = "no-such-enzyme" }, "protease", digest.ErrUnknownProtease},
		{"partitions", func(o *Options) { o.TotalPartitions = 0 }, "partitions", ErrInvalidOption},
		{"q-value", func(o *Options) { o.QValueThreshold = 0 }, "q-value", ErrInvalidOption},
		{"ions", func(o *Options) { o.IonTypes = nil }, "ions", ErrInvalidOption},
		{"roles", func(o *Options) {
			o.VariableMods = append(o.VariableMods, o.FixedMods[0])
		}, "variable", ErrModificationRoles},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			o := testOptions(in)
			tc.modify(&o)
			err := o.Validate()
			var ce *ConfigError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tc.option, ce.Option)
			assert.ErrorIs(t, err, tc.err)
		})
	}

	assert.NoError(t, testOptions(in).Validate())
}

func TestRunRejectsOptionsBeforeReading(t *testing.T) {
	o := DefaultOptions()
	o.Databases = []string{"/does/not/exist.fasta"}
	o.SpectraFiles = []string{"/does/not/exist.mzML"}
	o.Protease = "no-such-enzyme"
	_, err := Run(context.Background(), o)
	var ce *ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestRunEngines(t *testing.T) {
	for _, st := range []SearchType{ModernSearch, ClassicSearch} {
		t.Run(string(st), func(t *testing.T) {
			in := writeInput(t, 1)
			o := testOptions(in)
			o.SearchType = st
			res, err := Run(context.Background(), o)
			require.NoError(t, err)

			assert.NotEmpty(t, res.RunID)
			assert.Equal(t, 2, res.Stats.Targets)
			assert.Equal(t, 2, res.Stats.Decoys)
			assert.Len(t, res.Proteins, 4)
			assert.Equal(t, 3, res.Stats.Scans)
			assert.Equal(t, 1, res.NumNotches)
			assert.Equal(t, identifiedPeptides, confidentSequences(res, o.QValueThreshold))
			for _, p := range res.PSMs {
				assert.Equal(t, in.spectra[0], p.Scan.FilePath)
			}

			require.NotEmpty(t, res.Groups)
			assert.Contains(t, res.FileGroups, in.spectra[0])
			assert.Nil(t, res.Histogram)
			require.NotNil(t, res.Calibration)
			assert.Len(t, res.Calibration.Files, 1)
		})
	}
}

func TestRunSemi(t *testing.T) {
	in := writeInput(t, 1)
	o := testOptions(in)
	o.SearchType = SemiSearch
	res, err := Run(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Stats.Scans)
}

func TestRunSharesIndexAcrossFiles(t *testing.T) {
	in := writeInput(t, 2)
	o := testOptions(in)
	o.IndexDir = filepath.Join(in.dir, "indexes")

	var mu sync.Mutex
	stages := make(map[Stage]int)
	o.Progress = func(e Event) {
		mu.Lock()
		stages[e.Stage]++
		mu.Unlock()
	}

	res, err := Run(context.Background(), o)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Stats.IndexBuilds)
	require.Len(t, res.Stats.Files, 2)
	for i, fs := range res.Stats.Files {
		assert.Equal(t, in.spectra[i], fs.File)
		assert.Equal(t, 3, fs.Scans)
	}
	assert.Equal(t, 1, stages[StageLoad])
	assert.Equal(t, 2, stages[StageSearch])
	assert.Equal(t, 1, stages[StageDone])
	assert.Positive(t, stages[StageIndex])

	entries, err := os.ReadDir(o.IndexDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	// a second search reads the stored index
	res, err = Run(context.Background(), o)
	require.NoError(t, err)
	assert.Zero(t, res.Stats.IndexBuilds)
	assert.Equal(t, identifiedPeptides, confidentSequences(res, o.QValueThreshold))
}

func TestRunCanceled(t *testing.T) {
	in := writeInput(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testOptions(in))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteOutputs(t *testing.T) {
	in := writeInput(t, 2)
	o := testOptions(in)
	o.SoftwareVersion = "1.2.3"
	res, err := Run(context.Background(), o)
	require.NoError(t, err)
	require.NoError(t, WriteOutputs(res, o))

	for _, name := range []string{
		ParamsFile, AllPSMsFile, UniquePeptidesFile, ProteinGroupsFile, IdentificationsFile,
		CalibrationFile, SummaryFile,
		"run1_PSMs.psmtsv", "run1_Peptides.psmtsv", "run1_ProteinGroups.tsv", "run1.mzid",
		"run2_PSMs.psmtsv", "run2.mzid",
	} {
		assert.FileExists(t, filepath.Join(o.OutputDir, name))
	}
	assert.NoFileExists(t, filepath.Join(o.OutputDir, HistogramFile))

	params, err := os.ReadFile(filepath.Join(o.OutputDir, ParamsFile))
	require.NoError(t, err)
	assert.Contains(t, string(params), `"FormatVersion": "1.0"`)
	assert.NotContains(t, string(params), "Logger")

	mzid, err := os.ReadFile(filepath.Join(o.OutputDir, "run1.mzid"))
	require.NoError(t, err)
	assert.Contains(t, string(mzid), "1.2.3")

	s := Summarize(res, o)
	require.Len(t, s.Files, 2)
	assert.Equal(t, "run1", s.Files[0].File)
	assert.Equal(t, 3, s.Files[0].PSMs)
	assert.Equal(t, 6, s.Total.PSMs)
	assert.Equal(t, 3, s.Total.UniquePeptides)
}

func TestOpenSearchBuildsHistogram(t *testing.T) {
	in := writeInput(t, 1)
	o := testOptions(in)
	o.PrecursorAcceptor = "interval:[-1,200]"
	o.CalibrationMethod = ""
	res, err := Run(context.Background(), o)
	require.NoError(t, err)
	assert.Nil(t, res.Calibration)
	require.NotEmpty(t, res.Histogram)
}
