// Package calib fits a model of the precursor m/z error of a spectrum file
// from its confidently identified PSMs. The model tells how far the
// instrument calibration was off and by how much a recalibration would
// reduce the error.
package calib

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
)

// FormatVersion is the version of the JSON calibration report
const FormatVersion = "1.0"

// Method is the functional form of a calibration
type Method int

const (
	None Method = iota
	FTICR
	TOF
	Orbitrap
	Offset
	Poly1
	Poly2
	Poly3
	Poly4
	Poly5
)

var methodNames = []string{"NONE", "FTICR", "TOF", "ORBITRAP", "OFFSET", "POLY1", "POLY2", "POLY3", "POLY4", "POLY5"}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return "UNKNOWN"
	}
	return methodNames[m]
}

var (
	// ErrUnknownMethod means the calibration method name is not recognised
	ErrUnknownMethod = errors.New("unknown calibration method")
	// ErrTooFewCalibrants means not enough calibrants were left for a fit
	ErrTooFewCalibrants = errors.New("too few calibrants")
)

// ParseMethod accepts the names produced by String in any case
func ParseMethod(s string) (Method, error) {
	for i, n := range methodNames {
		if i > 0 && strings.EqualFold(strings.TrimSpace(s), n) {
			return Method(i), nil
		}
	}
	return None, fmt.Errorf("%w: %s", ErrUnknownMethod, s)
}

// NumParams returns the number of parameters of method m
func NumParams(m Method) int {
	switch m {
	case FTICR, Orbitrap:
		return 2
	case TOF:
		return 3
	case Offset:
		return 1
	case Poly1, Poly2, Poly3, Poly4, Poly5:
		return int(m-Poly1) + 2
	}
	return 0
}

func polyN(mzMeas float64, p []float64, degree int) float64 {
	mp := 1.0
	mz := 0.0
	for i := 0; i <= degree; i++ {
		mz += p[i] * mp
		mp *= mzMeas
	}
	return mz
}

// Recal returns the recalibrated m/z of a measured m/z
func Recal(mzMeas float64, m Method, p []float64) float64 {
	switch m {
	case FTICR:
		// Ca/((1/mzMeas)-Cb)
		return p[1] / ((1 / mzMeas) - p[0])
	case TOF:
		return p[2]*math.Sqrt(mzMeas) + p[1]*mzMeas + p[0]
	case Orbitrap:
		// A/((f-B)^2) with f = 1/sqrt(mzMeas)
		fb := 1/math.Sqrt(mzMeas) - p[0]
		return p[1] / (fb * fb)
	case Offset:
		return mzMeas + p[0]
	case Poly1, Poly2, Poly3, Poly4, Poly5:
		return polyN(mzMeas, p, int(m-Poly1)+1)
	}
	return mzMeas
}

// Calibrant pairs the theoretical m/z of an identified precursor with the
// measured one
type Calibrant struct {
	Mz         float64
	MzMeasured float64
}

// errorPPM is the error left after recalibration, in ppm
func (c Calibrant) errorPPM(m Method, p []float64) float64 {
	return 1e6 * (c.Mz - Recal(c.MzMeasured, m, p)) / c.Mz
}

// maxCalibrantError bounds the precursor mass error of a calibrant PSM in
// dalton, which keeps open search hits with a mass shift out of the fit
const maxCalibrantError = 0.1

// FromPSMs collects the calibrants of every file from target PSMs with a
// q-value at most qThreshold
func FromPSMs(psms []*search.PSM, qThreshold float64) map[string][]Calibrant {
	byFile := make(map[string][]Calibrant)
	for _, p := range psms {
		if p.Decoy || p.QValue > qThreshold || p.Notch != 0 || p.AbsMassError() > maxCalibrantError {
			continue
		}
		z := p.Scan.PrecursorCharge
		if z <= 0 || p.Scan.PrecursorMz <= 0 {
			continue
		}
		byFile[p.Scan.FilePath] = append(byFile[p.Scan.FilePath], Calibrant{
			Mz:         proteomics.ToMz(p.PeptideMass(), z),
			MzMeasured: p.Scan.PrecursorMz,
		})
	}
	return byFile
}

// Options control a fit
type Options struct {
	Method Method
	// MinCalibrants defaults to the number of parameters plus one
	MinCalibrants int
	// TargetPPM removes calibrants with a larger error after a fit. When 0,
	// outliers are removed with the interquartile range rule of mzQC.
	TargetPPM float64
}

// ErrorStats summarizes calibrant errors in ppm
type ErrorStats struct {
	Median float64
	Mean   float64
	StdDev float64
}

func errorStats(cals []Calibrant, m Method, p []float64) ErrorStats {
	if len(cals) == 0 {
		return ErrorStats{}
	}
	errs := make([]float64, len(cals))
	for i, c := range cals {
		errs[i] = c.errorPPM(m, p)
	}
	var s ErrorStats
	s.Mean, s.StdDev = stat.MeanStdDev(errs, nil)
	if len(errs) < 2 {
		s.StdDev = 0
	}
	sort.Float64s(errs)
	s.Median = stat.Quantile(0.5, stat.Empirical, errs, nil)
	return s
}

// Model is the calibration fitted for one file
type Model struct {
	File       string
	Method     string
	P          []float64 `json:",omitempty"`
	Calibrants int
	Used       int
	Before     ErrorStats
	After      ErrorStats
}

// Fit fits method opt.Method to cals. Calibrants are removed as outliers
// until every remaining one is accepted; ErrTooFewCalibrants is returned
// when fewer than opt.MinCalibrants remain. The returned model always
// carries the error statistics before calibration.
func Fit(cals []Calibrant, opt Options) (Model, error) {
	nPar := NumParams(opt.Method)
	if nPar == 0 {
		return Model{}, fmt.Errorf("%w: %v", ErrUnknownMethod, opt.Method)
	}
	minCal := opt.MinCalibrants
	if minCal == 0 {
		minCal = nPar + 1
	} else if minCal < nPar {
		minCal = nPar
	}

	// Parameter 1 is a factor for every multi parameter method
	identity := make([]float64, nPar)
	if nPar > 1 {
		identity[1] = 1
	}
	model := Model{
		Method:     opt.Method.String(),
		Calibrants: len(cals),
		Before:     errorStats(cals, Offset, []float64{0}),
	}

	remaining := append([]Calibrant(nil), cals...)
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sum := 0.0
			for _, c := range remaining {
				d := Recal(c.MzMeasured, opt.Method, x) - c.Mz
				sum += d * d
			}
			return math.Sqrt(sum)
		},
	}

	var p []float64
	satisfied := false
	for !satisfied && len(remaining) >= minCal {
		pIn := append([]float64(nil), identity...)
		res, err := optimize.Minimize(problem, pIn, nil, nil)
		if err != nil {
			return model, err
		}
		p = res.X
		if opt.TargetPPM > 0 {
			remaining, satisfied = removeOutliersPPM(remaining, opt.Method, p, -opt.TargetPPM, opt.TargetPPM)
		} else {
			remaining, satisfied = removeOutliersMzQC(remaining, opt.Method, p)
		}
	}
	if !satisfied {
		return model, fmt.Errorf("%w: %d of %d left, %d needed", ErrTooFewCalibrants, len(remaining), len(cals), minCal)
	}
	model.P = p
	model.Used = len(remaining)
	model.After = errorStats(remaining, opt.Method, p)
	return model, nil
}

// removeOutliersPPM keeps calibrants with an error between lo and hi ppm.
// It reports whether all of them were kept.
func removeOutliersPPM(cals []Calibrant, m Method, p []float64, lo, hi float64) ([]Calibrant, bool) {
	kept := cals[:0]
	for _, c := range cals {
		e := c.errorPPM(m, p)
		if e >= lo && e <= hi {
			kept = append(kept, c)
		}
	}
	return kept, len(kept) == len(cals)
}

// removeOutliersMzQC removes calibrants outside the 1.5 IQR fences of the
// mzQC outlier definition. Below 4 calibrants nothing is removed, for 4 or
// 5 the quartiles are taken one position from the extremes.
func removeOutliersMzQC(cals []Calibrant, m Method, p []float64) ([]Calibrant, bool) {
	n := len(cals)
	if n < 4 {
		return cals, true
	}
	errs := make([]float64, n)
	for i, c := range cals {
		errs[i] = c.errorPPM(m, p)
	}
	sorted := append([]float64(nil), errs...)
	sort.Float64s(sorted)

	var i1, i2 int
	if n < 6 {
		i1, i2 = 1, 1
	} else {
		half := n / 2
		i1 = (half - 1) / 2
		i2 = half / 2
	}
	q1 := (sorted[i1] + sorted[i2]) / 2
	q3 := (sorted[n-i1-1] + sorted[n-i2-1]) / 2
	iqr := q3 - q1
	lo, hi := q1-1.5*iqr, q3+1.5*iqr

	kept := cals[:0]
	for i, c := range cals {
		if errs[i] >= lo && errs[i] <= hi {
			kept = append(kept, c)
		}
	}
	return kept, len(kept) == n
}

// Report is the calibration outcome of a search
type Report struct {
	FormatVersion string
	Method        string
	Files         []Model
}

// WriteReport writes r as indented JSON
func WriteReport(w io.Writer, r Report) error {
	r.FormatVersion = FormatVersion
	e := json.NewEncoder(w)
	e.SetIndent(``, `  `)
	return e.Encode(r)
}

// ReadReport reads a report written by WriteReport
func ReadReport(r io.Reader) (Report, error) {
	var rep Report
	err := json.NewDecoder(r).Decode(&rep)
	return rep, err
}
