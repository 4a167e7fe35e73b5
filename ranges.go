package main

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/524D/mzsearch/internal/mzidentml"
)

// ErrRangeSpec means a min:max range has min above max
var ErrRangeSpec = errors.New("invalid range specified")

var (
	intRangeRe   = regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	floatRangeRe = regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	scoreTermRe  = regexp.MustCompile(`([^\(]+)\(([^\)]*)\)`)
)

// parseIntRange parses "-12:6" into -12 and 6. A missing bound (e.g. "-12:")
// gets lo or hi, values outside [lo,hi] are clamped.
func parseIntRange(r string, lo int, hi int) (int, int, error) {
	m := intRangeRe.FindStringSubmatch(r)
	minOut, maxOut := lo, hi
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		minOut = max(minOut, lo)
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		maxOut = min(maxOut, hi)
	}
	if minOut > maxOut {
		return maxOut, maxOut, fmt.Errorf("%w: %q", ErrRangeSpec, r)
	}
	return minOut, maxOut, nil
}

// parseFloat64Range parses "-12.01e1:+6" into -120.1 and 6.0, with the
// same defaults and clamping as parseIntRange
func parseFloat64Range(r string, lo float64, hi float64) (float64, float64, error) {
	m := floatRangeRe.FindStringSubmatch(r)
	minOut, maxOut := lo, hi
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		minOut = math.Max(minOut, lo)
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		maxOut = math.Min(maxOut, hi)
	}
	if minOut > maxOut {
		return maxOut, maxOut, fmt.Errorf("%w: %q", ErrRangeSpec, r)
	}
	return minOut, maxOut, nil
}

// parseCharges turns a charge range like "2:3" into the charges it holds
func parseCharges(r string) ([]int, error) {
	lo, hi, err := parseIntRange(r, 1, maxAssumedCharge)
	if err != nil {
		return nil, err
	}
	charges := make([]int, 0, hi-lo+1)
	for z := lo; z <= hi; z++ {
		charges = append(charges, z)
	}
	return charges, nil
}

type scoreRange struct {
	minScore float64
	maxScore float64
	priority int // lowest is preferred
}

// scoreFilter maps a CV accession or score name to its accepted range
type scoreFilter map[string]scoreRange

// parseScoreFilter parses "<term>([min]:[max])..." where the first term
// found in an identification decides
func parseScoreFilter(s string) (scoreFilter, error) {
	filt := make(scoreFilter)
	for n, m := range scoreTermRe.FindAllStringSubmatch(s, -1) {
		name := m[1]
		if _, ok := filt[name]; ok {
			return nil, fmt.Errorf("score %s defined more than once", name)
		}
		lo, hi, err := parseFloat64Range(m[2], -math.MaxFloat64, math.MaxFloat64)
		if err != nil {
			return nil, fmt.Errorf("invalid range for score %s: %w", name, err)
		}
		filt[name] = scoreRange{minScore: lo, maxScore: hi, priority: n}
	}
	if len(filt) == 0 && s != "" {
		return nil, fmt.Errorf("%w: score filter %q", ErrRangeSpec, s)
	}
	return filt, nil
}

// accept reports whether the preferred score of ident lies in its range.
// Identifications without any of the scores are rejected.
func (f scoreFilter) accept(ident *mzidentml.Identification) bool {
	ok := false
	prio := math.MaxInt32
	for name, r := range f {
		if r.priority >= prio {
			continue
		}
		v, found := ident.Score(name)
		if !found {
			continue
		}
		prio = r.priority
		ok = v >= r.minScore && v <= r.maxScore
	}
	return ok
}
