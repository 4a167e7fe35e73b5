package massdiff

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/524D/mzsearch/internal/proteomics"
)

// NoMatch is returned by Accepts when no notch accepts the mass difference
const NoMatch = -1

// Interval is a closed range of observed precursor masses accepted for a
// candidate, tagged with the notch it belongs to
type Interval struct {
	Min   float64
	Max   float64
	Notch int
}

// Acceptor classifies the difference between an observed precursor mass and
// a candidate peptide mass into a notch
type Acceptor interface {
	// NumNotches is the number of windows, notches run from 0 to NumNotches-1
	NumNotches() int
	// Accepts returns the first notch accepting observed-candidate, or NoMatch
	Accepts(observed, candidate float64) int
	// ObservedIntervals returns the observed masses accepted for candidate,
	// sorted by Min
	ObservedIntervals(candidate float64) []Interval
	String() string
}

// SingleTolerance accepts differences around zero within a tolerance
type SingleTolerance struct {
	Tol Tolerance
}

func (a SingleTolerance) NumNotches() int { return 1 }

func (a SingleTolerance) Accepts(observed, candidate float64) int {
	if a.Tol.Within(observed, candidate) {
		return 0
	}
	return NoMatch
}

func (a SingleTolerance) ObservedIntervals(candidate float64) []Interval {
	lo, hi := a.Tol.Window(candidate)
	return []Interval{{Min: lo, Max: hi}}
}

func (a SingleTolerance) String() string { return a.Tol.String() + "AroundZero" }

// DotAcceptor accepts differences near any of a list of mass shifts, e.g.
// missed monoisotopic peak assignments. Notch i belongs to Shifts[i].
type DotAcceptor struct {
	Name   string
	Shifts []float64
	Tol    Tolerance
}

func (a DotAcceptor) NumNotches() int { return len(a.Shifts) }

func (a DotAcceptor) Accepts(observed, candidate float64) int {
	for i, s := range a.Shifts {
		if a.Tol.Within(observed, candidate+s) {
			return i
		}
	}
	return NoMatch
}

func (a DotAcceptor) ObservedIntervals(candidate float64) []Interval {
	iv := make([]Interval, 0, len(a.Shifts))
	for i, s := range a.Shifts {
		lo, hi := a.Tol.Window(candidate + s)
		iv = append(iv, Interval{Min: lo, Max: hi, Notch: i})
	}
	sort.Slice(iv, func(i, j int) bool { return iv[i].Min < iv[j].Min })
	return iv
}

func (a DotAcceptor) String() string {
	if a.Name != "" {
		return a.Name
	}
	parts := make([]string, len(a.Shifts))
	for i, s := range a.Shifts {
		parts[i] = strconv.FormatFloat(s, 'f', -1, 64)
	}
	return "dot" + a.Tol.String() + "_" + strings.Join(parts, "_")
}

// IntervalAcceptor accepts differences inside any of a list of closed
// intervals [Min, Max]. Notch i belongs to Intervals[i].
type IntervalAcceptor struct {
	Intervals [][2]float64
}

func (a IntervalAcceptor) NumNotches() int { return len(a.Intervals) }

func (a IntervalAcceptor) Accepts(observed, candidate float64) int {
	d := observed - candidate
	for i, iv := range a.Intervals {
		if d >= iv[0] && d <= iv[1] {
			return i
		}
	}
	return NoMatch
}

func (a IntervalAcceptor) ObservedIntervals(candidate float64) []Interval {
	out := make([]Interval, 0, len(a.Intervals))
	for i, iv := range a.Intervals {
		out = append(out, Interval{Min: candidate + iv[0], Max: candidate + iv[1], Notch: i})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Min < out[j].Min })
	return out
}

func (a IntervalAcceptor) String() string {
	parts := make([]string, len(a.Intervals))
	for i, iv := range a.Intervals {
		parts[i] = fmt.Sprintf("[%g,%g]", iv[0], iv[1])
	}
	return "interval" + strings.Join(parts, "")
}

// OpenAcceptor accepts any mass difference in its single notch
type OpenAcceptor struct{}

func (OpenAcceptor) NumNotches() int { return 1 }

func (OpenAcceptor) Accepts(observed, candidate float64) int { return 0 }

func (OpenAcceptor) ObservedIntervals(candidate float64) []Interval {
	return []Interval{{Min: math.Inf(-1), Max: math.Inf(1)}}
}

func (OpenAcceptor) String() string { return "OpenSearch" }

// Parse builds an acceptor from its string form:
//
//	5ppm, 0.02da                 single window around zero
//	2mm, 3mm                     missed monoisotopic notches at 5 ppm
//	dot:<tol>:<shift>,<shift>    explicit shifts, e.g. dot:0.01da:0,1.0034
//	interval:[a,b];[c,d]         explicit intervals of observed-candidate
//	open                         accept everything
func Parse(spec string) (Acceptor, error) {
	s := strings.TrimSpace(spec)
	low := strings.ToLower(s)
	switch {
	case low == "open":
		return OpenAcceptor{}, nil
	case low == "2mm" || low == "3mm":
		n := int(low[0] - '0')
		shifts := make([]float64, n)
		for i := range shifts {
			shifts[i] = float64(i) * proteomics.MassC13Diff
		}
		return DotAcceptor{Name: low, Shifts: shifts, Tol: Tolerance{Value: 5, Unit: PPM}}, nil
	case strings.HasPrefix(low, "dot:"):
		f := strings.SplitN(s[4:], ":", 2)
		if len(f) != 2 {
			return nil, fmt.Errorf("%w: %q", ErrAcceptorSpec, spec)
		}
		tol, err := ParseTolerance(f[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrAcceptorSpec, spec, err)
		}
		var shifts []float64
		for _, v := range strings.Split(f[1], ",") {
			x, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrAcceptorSpec, spec)
			}
			shifts = append(shifts, x)
		}
		return DotAcceptor{Shifts: shifts, Tol: tol}, nil
	case strings.HasPrefix(low, "interval:"):
		var ivs [][2]float64
		for _, part := range strings.Split(s[len("interval:"):], ";") {
			part = strings.Trim(strings.TrimSpace(part), "[]")
			lh := strings.Split(part, ",")
			if len(lh) != 2 {
				return nil, fmt.Errorf("%w: %q", ErrAcceptorSpec, spec)
			}
			lo, err1 := strconv.ParseFloat(strings.TrimSpace(lh[0]), 64)
			hi, err2 := strconv.ParseFloat(strings.TrimSpace(lh[1]), 64)
			if err1 != nil || err2 != nil || lo > hi {
				return nil, fmt.Errorf("%w: %q", ErrAcceptorSpec, spec)
			}
			ivs = append(ivs, [2]float64{lo, hi})
		}
		return IntervalAcceptor{Intervals: ivs}, nil
	}
	tol, err := ParseTolerance(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrAcceptorSpec, spec)
	}
	return SingleTolerance{Tol: tol}, nil
}
