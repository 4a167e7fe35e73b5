package proteomics

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
)

// TerminusType selects which fragment series a signature carries
type TerminusType int

const (
	BothTermini TerminusType = iota
	NTerminal
	CTerminal
)

func (t TerminusType) String() string {
	switch t {
	case NTerminal:
		return "N"
	case CTerminal:
		return "C"
	}
	return "both"
}

// ProductType is a fragment ion series
type ProductType int

const (
	B ProductType = iota
	BnoB1
	C
	Y
	Zdot
)

var productNames = map[ProductType]string{B: "b", BnoB1: "bnob1", C: "c", Y: "y", Zdot: "zdot"}

func (p ProductType) String() string {
	if s, ok := productNames[p]; ok {
		return s
	}
	return "unknown"
}

// IsNTerminal reports whether the series is built from peptide prefixes
func (p ProductType) IsNTerminal() bool {
	return p == B || p == BnoB1 || p == C
}

// ParseProductType parses the names produced by String
func ParseProductType(s string) (ProductType, error) {
	for p, n := range productNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return p, nil
		}
	}
	return B, fmt.Errorf("unknown ion type %q", s)
}

// TerminusFor derives the terminus direction needed for the given series
func TerminusFor(types []ProductType) TerminusType {
	var n, c bool
	for _, t := range types {
		if t.IsNTerminal() {
			n = true
		} else {
			c = true
		}
	}
	switch {
	case n && !c:
		return NTerminal
	case c && !n:
		return CTerminal
	}
	return BothTermini
}

// Mass shifts of the ion series relative to the cumulative residue masses
const (
	shiftC    = MassNH3
	shiftY    = MassH2O
	shiftZdot = MassH2O - MassNH3 + MassH
)

// CompactPeptide is the locus independent signature of a modified peptide.
// BaseHash is 0 for signatures produced by truncating a longer peptide.
type CompactPeptide struct {
	BaseHash         uint64
	NTerminalMasses  []float64
	CTerminalMasses  []float64
	MonoisotopicMass float64
}

// SequenceHash returns a non-zero 64 bit FNV-1a hash of seq
func SequenceHash(seq string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(seq))
	s := h.Sum64()
	if s == 0 {
		s = 1
	}
	return s
}

// massKeyScale is the rounding used when masses become part of a key
const massKeyScale = 1e5

// PeptideKey is a comparable identity of a CompactPeptide
type PeptideKey string

// Key returns the map key of the signature
func (c CompactPeptide) Key() PeptideKey {
	buf := make([]byte, 0, 16+9*(len(c.NTerminalMasses)+len(c.CTerminalMasses)+3))
	buf = binary.LittleEndian.AppendUint64(buf, c.BaseHash)
	buf = binary.AppendUvarint(buf, uint64(len(c.NTerminalMasses)))
	for _, m := range c.NTerminalMasses {
		buf = binary.AppendVarint(buf, int64(math.Round(m*massKeyScale)))
	}
	buf = binary.AppendUvarint(buf, uint64(len(c.CTerminalMasses)))
	for _, m := range c.CTerminalMasses {
		buf = binary.AppendVarint(buf, int64(math.Round(m*massKeyScale)))
	}
	buf = binary.AppendVarint(buf, int64(math.Round(c.MonoisotopicMass*massKeyScale)))
	return PeptideKey(buf)
}

// Len returns the number of residues the signature describes
func (c CompactPeptide) Len() int {
	return max(len(c.NTerminalMasses), len(c.CTerminalMasses)) + 1
}

// ProductMasses returns the sorted neutral fragment masses of the given
// series. Series whose terminal masses are absent are skipped.
func (c CompactPeptide) ProductMasses(types []ProductType) []float64 {
	masses := make([]float64, 0, (len(c.NTerminalMasses)+len(c.CTerminalMasses))*2)
	for _, t := range types {
		switch t {
		case B:
			masses = append(masses, c.NTerminalMasses...)
		case BnoB1:
			if len(c.NTerminalMasses) > 1 {
				masses = append(masses, c.NTerminalMasses[1:]...)
			}
		case C:
			for _, m := range c.NTerminalMasses {
				masses = append(masses, m+shiftC)
			}
		case Y:
			for _, m := range c.CTerminalMasses {
				masses = append(masses, m+shiftY)
			}
		case Zdot:
			for _, m := range c.CTerminalMasses {
				masses = append(masses, m+shiftZdot)
			}
		}
	}
	out := masses[:0]
	for _, m := range masses {
		if !math.IsNaN(m) {
			out = append(out, m)
		}
	}
	sort.Float64s(out)
	return out
}

// NTerminalTruncation returns the signature of the first k residues of a
// peptide whose N-terminal masses are known. k == Len() returns the whole
// peptide as an N-terminal signature. ok is false if k is out of range.
func (c CompactPeptide) NTerminalTruncation(k int) (CompactPeptide, bool) {
	n := len(c.NTerminalMasses) + 1
	if k < 1 || k > n {
		return CompactPeptide{}, false
	}
	t := CompactPeptide{NTerminalMasses: c.NTerminalMasses[:k-1]}
	if k == n {
		t.MonoisotopicMass = c.MonoisotopicMass
	} else {
		t.MonoisotopicMass = c.NTerminalMasses[k-1] + MassH2O
	}
	return t, true
}

// CTerminalTruncation is the mirror of NTerminalTruncation for the last k
// residues
func (c CompactPeptide) CTerminalTruncation(k int) (CompactPeptide, bool) {
	n := len(c.CTerminalMasses) + 1
	if k < 1 || k > n {
		return CompactPeptide{}, false
	}
	t := CompactPeptide{CTerminalMasses: c.CTerminalMasses[:k-1]}
	if k == n {
		t.MonoisotopicMass = c.MonoisotopicMass
	} else {
		t.MonoisotopicMass = c.CTerminalMasses[k-1] + MassH2O
	}
	return t, true
}
