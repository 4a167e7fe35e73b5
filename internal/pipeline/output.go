package pipeline

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/524D/mzsearch/internal/calib"
	"github.com/524D/mzsearch/internal/massdiff"
	"github.com/524D/mzsearch/internal/mzidentml"
	"github.com/524D/mzsearch/internal/parsimony"
	"github.com/524D/mzsearch/internal/report"
	"github.com/524D/mzsearch/internal/search"
)

// Names of the files written to the output directory
const (
	AllPSMsFile         = "allPSMs.psmtsv"
	UniquePeptidesFile  = "allUniquePeptides.psmtsv"
	ProteinGroupsFile   = "allProteinGroups.tsv"
	IdentificationsFile = "identifications.tsv"
	HistogramFile       = "massShiftHistogram.tsv"
	CalibrationFile     = "precursorCalibration.json"
	SummaryFile         = "results.txt"
	ParamsFile          = "searchParams.json"
	filePSMsSuffix      = "_PSMs.psmtsv"
	filePeptidesSuffix  = "_Peptides.psmtsv"
	fileGroupsSuffix    = "_ProteinGroups.tsv"
	mzIdentMLSuffix     = ".mzid"
	softwareName        = "mzsearch"
	develVersion        = "devel"
)

func writeFile(dir, name string, write func(io.Writer) error) error {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", name, err)
	}
	return f.Close()
}

func confidentTargets(psms []*search.PSM, q float64) int {
	n := 0
	for _, p := range psms {
		if !p.Decoy && p.QValue <= q {
			n++
		}
	}
	return n
}

func confidentGroups(groups []*parsimony.Group, q float64) int {
	n := 0
	for _, g := range groups {
		if !g.Decoy && g.QValue <= q {
			n++
		}
	}
	return n
}

// tolerances returns what mzIdentML can express of the precursor acceptor
func tolerances(o Options) (precursor, product massdiff.Tolerance) {
	product, _ = massdiff.ParseTolerance(o.ProductTolerance)
	acc, err := massdiff.Parse(o.PrecursorAcceptor)
	if err != nil {
		return precursor, product
	}
	switch a := acc.(type) {
	case massdiff.SingleTolerance:
		precursor = a.Tol
	case massdiff.DotAcceptor:
		precursor = a.Tol
	}
	return precursor, product
}

// Summarize counts the confident results per file and in total
func Summarize(res *Result, o Options) report.Summary {
	q := o.QValueThreshold
	s := report.Summary{QValueThreshold: q, Elapsed: res.Elapsed}
	_, byFile := report.ByFile(res.PSMs)
	for _, fs := range res.Stats.Files {
		psms := byFile[fs.File]
		s.Files = append(s.Files, report.Counts{
			File:           report.FileName(fs.File),
			Scans:          fs.Scans,
			Skipped:        fs.Skipped,
			PSMs:           confidentTargets(psms, q),
			UniquePeptides: confidentTargets(report.UniquePeptides(psms), q),
			ProteinGroups:  confidentGroups(res.FileGroups[fs.File], q),
		})
	}
	s.Total = report.Counts{
		Scans:          res.Stats.Scans,
		Skipped:        res.Stats.Skipped,
		PSMs:           confidentTargets(res.PSMs, q),
		UniquePeptides: confidentTargets(report.UniquePeptides(res.PSMs), q),
		ProteinGroups:  confidentGroups(res.Groups, q),
	}
	return s
}

// WriteOutputs writes the result files of a search to o.OutputDir
func WriteOutputs(res *Result, o Options) error {
	dir := o.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	q := o.QValueThreshold

	err := writeFile(dir, ParamsFile, func(w io.Writer) error { return WriteParams(w, o) })
	if err != nil {
		return err
	}
	if err := writeFile(dir, AllPSMsFile, func(w io.Writer) error {
		return report.WritePSMs(w, res.PSMs)
	}); err != nil {
		return err
	}
	if err := writeFile(dir, UniquePeptidesFile, func(w io.Writer) error {
		return report.WritePSMs(w, report.UniquePeptides(res.PSMs))
	}); err != nil {
		return err
	}
	if err := writeFile(dir, ProteinGroupsFile, func(w io.Writer) error {
		return report.WriteProteinGroups(w, res.Groups, "")
	}); err != nil {
		return err
	}
	if err := writeFile(dir, IdentificationsFile, func(w io.Writer) error {
		return report.WriteIdentifications(w, report.Identifications(res.PSMs, res.Groups, q))
	}); err != nil {
		return err
	}

	precursorTol, productTol := tolerances(o)
	version := o.SoftwareVersion
	if version == "" {
		version = develVersion
	}
	_, byFile := report.ByFile(res.PSMs)
	for _, f := range o.SpectraFiles {
		name := report.FileName(f)
		psms := byFile[f]
		if err := writeFile(dir, name+filePSMsSuffix, func(w io.Writer) error {
			return report.WritePSMs(w, psms)
		}); err != nil {
			return err
		}
		if err := writeFile(dir, name+filePeptidesSuffix, func(w io.Writer) error {
			return report.WritePSMs(w, report.UniquePeptides(psms))
		}); err != nil {
			return err
		}
		if err := writeFile(dir, name+fileGroupsSuffix, func(w io.Writer) error {
			return report.WriteProteinGroups(w, res.FileGroups[f], f)
		}); err != nil {
			return err
		}
		if err := writeFile(dir, name+mzIdentMLSuffix, func(w io.Writer) error {
			return mzidentml.Write(w, mzidentml.Document{
				Software:           softwareName,
				Version:            version,
				SpectraFile:        f,
				Databases:          o.Databases,
				PrecursorTolerance: precursorTol,
				ProductTolerance:   productTol,
				QValueThreshold:    q,
				PSMs:               psms,
			})
		}); err != nil {
			return err
		}
	}

	if res.Histogram != nil {
		if err := writeFile(dir, HistogramFile, func(w io.Writer) error {
			return report.WriteHistogram(w, res.Histogram)
		}); err != nil {
			return err
		}
	}
	if res.Calibration != nil {
		if err := writeFile(dir, CalibrationFile, func(w io.Writer) error {
			return calib.WriteReport(w, *res.Calibration)
		}); err != nil {
			return err
		}
	}
	return writeFile(dir, SummaryFile, func(w io.Writer) error {
		return report.WriteSummary(w, Summarize(res, o))
	})
}
