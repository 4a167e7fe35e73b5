// Package massdiff decides whether an observed precursor mass is
// compatible with a candidate peptide mass, and in which notch.
package massdiff

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Unit of a tolerance
type Unit int

const (
	PPM Unit = iota
	Absolute
)

// Tolerance is a symmetric mass window, either relative (ppm) or in dalton
type Tolerance struct {
	Value float64
	Unit  Unit
}

var (
	// ErrToleranceSpec means a tolerance string could not be parsed
	ErrToleranceSpec = errors.New("invalid tolerance")
	// ErrAcceptorSpec means a mass difference acceptor string could not be parsed
	ErrAcceptorSpec = errors.New("invalid mass difference acceptor")
)

var reTolerance = regexp.MustCompile(`(?i)^\s*([-+]?[0-9]*\.?[0-9]+([eE][-+]?[0-9]+)?)\s*(ppm|da|dalton)\s*$`)

// ParseTolerance parses strings like "10ppm" or "0.01 Da"
func ParseTolerance(s string) (Tolerance, error) {
	m := reTolerance.FindStringSubmatch(s)
	if m == nil {
		return Tolerance{}, fmt.Errorf("%w: %q", ErrToleranceSpec, s)
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v < 0 {
		return Tolerance{}, fmt.Errorf("%w: %q", ErrToleranceSpec, s)
	}
	if strings.EqualFold(m[3], "ppm") {
		return Tolerance{Value: v, Unit: PPM}, nil
	}
	return Tolerance{Value: v, Unit: Absolute}, nil
}

// Width returns the half width of the window around mass
func (t Tolerance) Width(mass float64) float64 {
	if t.Unit == PPM {
		return t.Value * math.Abs(mass) / 1e6
	}
	return t.Value
}

// Window returns the range of experimental values accepted for mass
func (t Tolerance) Window(mass float64) (float64, float64) {
	w := t.Width(mass)
	return mass - w, mass + w
}

// Within reports whether experimental lies within the tolerance of
// theoretical
func (t Tolerance) Within(experimental, theoretical float64) bool {
	return math.Abs(experimental-theoretical) <= t.Width(theoretical)
}

func (t Tolerance) String() string {
	v := strconv.FormatFloat(t.Value, 'g', -1, 64)
	if t.Unit == PPM {
		return v + "ppm"
	}
	return v + "da"
}
