package mzml

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/524D/mzsearch/internal/spectra"
)

const (
	cvParamSelectedIonMz      = `MS:1000744`
	cvParamChargeState        = `MS:1000041`
	cvIsolationWindowTargetMz = `MS:1000827`
)

// DefaultAssumedCharges are tried for precursors without a charge state
var DefaultAssumedCharges = []int{2, 3}

// ScanOptions control the conversion of MS2 spectra into search scans
type ScanOptions struct {
	Filter spectra.FilterParams
	// AssumedCharges replace a missing precursor charge, one scan per charge
	AssumedCharges []int
}

// precursorMz returns the selected ion m/z and charge of a scan. The
// isolation window target is used when no selected ion m/z is present.
// A charge of 0 means unknown.
func precursorMz(precursors []XMLprecursor) (mz float64, charge int, ok bool) {
	for _, p := range precursors {
		for _, ion := range p.SelectedIonList.SelectedIon {
			for _, cv := range ion.CvPar {
				switch cv.Accession {
				case cvParamSelectedIonMz:
					if v, err := strconv.ParseFloat(cv.Value, 64); err == nil {
						mz, ok = v, true
					}
				case cvParamChargeState:
					if v, err := strconv.Atoi(cv.Value); err == nil {
						charge = v
					}
				}
			}
		}
		if !ok {
			for _, cv := range p.IsolationWindow.CvPar {
				if cv.Accession != cvIsolationWindowTargetMz {
					continue
				}
				if v, err := strconv.ParseFloat(cv.Value, 64); err == nil {
					mz, ok = v, true
				}
			}
		}
		if ok {
			return mz, charge, true
		}
	}
	return 0, 0, false
}

// ScanNumber returns the number after "scan=" in a native id, or 0
func ScanNumber(nativeID string) int {
	for _, field := range strings.Fields(nativeID) {
		if v, found := strings.CutPrefix(field, "scan="); found {
			if n, err := strconv.Atoi(v); err == nil {
				return n
			}
		}
	}
	return 0
}

// MS2Scans converts every usable MS2 spectrum into search scans tagged
// with path. Spectra without peaks or precursor are counted as skipped.
func (f *MzML) MS2Scans(path string, opt ScanOptions) (scans []*spectra.Scan, skipped int, err error) {
	charges := opt.AssumedCharges
	if len(charges) == 0 {
		charges = DefaultAssumedCharges
	}
	for i := 0; i < f.NumSpecs(); i++ {
		level, err := f.MSLevel(i)
		if err != nil {
			return nil, 0, fmt.Errorf("spectrum %d: %w", i, err)
		}
		if level != 2 {
			continue
		}
		precursors, err := f.GetPrecursors(i)
		if err != nil {
			return nil, 0, err
		}
		mz, charge, ok := precursorMz(precursors)
		if !ok {
			skipped++
			continue
		}
		raw, err := f.ReadScan(i)
		if err != nil {
			return nil, 0, fmt.Errorf("spectrum %d: %w", i, err)
		}
		ps := make([]spectra.Peak, len(raw))
		for k, p := range raw {
			ps[k] = spectra.Peak{Mz: p.Mz, Intens: p.Intens}
		}
		ps = opt.Filter.Apply(ps)
		if len(ps) == 0 {
			skipped++
			continue
		}
		rt, err := f.RetentionTime(i)
		if err != nil {
			return nil, 0, fmt.Errorf("spectrum %d: %w", i, err)
		}
		tic, err := f.TotalIonCurrent(i)
		if err != nil || math.IsNaN(tic) {
			tic = 0
		}
		id, _ := f.ScanID(i)
		number := ScanNumber(id)
		if number == 0 {
			number = i + 1
		}
		if rt > 0 {
			rt /= 60
		}
		tried := []int{charge}
		if charge == 0 {
			tried = charges
		}
		for _, z := range tried {
			scans = append(scans, spectra.NewScan(path, number, id, rt, mz, z, ps, tic))
		}
	}
	return scans, skipped, nil
}

// profileSpectra counts the MS2 spectra not flagged as centroided
func (f *MzML) profileSpectra() (int, error) {
	n := 0
	for i := 0; i < f.NumSpecs(); i++ {
		level, err := f.MSLevel(i)
		if err != nil {
			return 0, err
		}
		if level != 2 {
			continue
		}
		centroid, err := f.Centroid(i)
		if err != nil {
			return 0, err
		}
		if !centroid {
			n++
		}
	}
	return n, nil
}

// Contents are the search scans of an mzML file and what is known about
// its acquisition
type Contents struct {
	Scans   []*spectra.Scan
	Skipped int
	// Profile counts MS2 spectra without the centroid flag. Their points are
	// searched as if they were peaks.
	Profile int
	// Analyzers are the CV accessions of the mass analyzers, if declared
	Analyzers []string
}

// ReadFile reads the MS2 scans of an mzML file, which may be gzip compressed
func ReadFile(path string, opt ScanOptions) (Contents, error) {
	var c Contents
	file, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		z, err := gzip.NewReader(file)
		if err != nil {
			return c, fmt.Errorf("%s: %w", path, err)
		}
		defer z.Close()
		r = z
	}
	m, err := Read(r)
	if err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if c.Scans, c.Skipped, err = m.MS2Scans(path, opt); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	if c.Profile, err = m.profileSpectra(); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	// a malformed instrument description does not stop the search
	c.Analyzers, _ = m.MSInstruments()
	return c, nil
}
