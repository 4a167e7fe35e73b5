package proteomics

import "math"

// Monoisotopic masses used throughout the search
const (
	MassProton = float64(1.007276466879)
	MassH2O    = float64(18.0105647)
	MassNH3    = float64(17.02654910112)
	MassH      = float64(1.00782503207)
	// Mass difference between 13C and 12C, the spacing of isotope peaks
	MassC13Diff = float64(1.00335483)
)

// Masses of amino acids (minus H2O)
var aaMass = map[byte]float64{
	'A': 71.0371138,
	'C': 103.0091848,
	'D': 115.0269430,
	'E': 129.0425931,
	'F': 147.0684139,
	'G': 57.0214637,
	'H': 137.0589119,
	'I': 113.0840640,
	'K': 128.0949630,
	'L': 113.0840640,
	'M': 131.0404849,
	'N': 114.0429274,
	'P': 97.0527638,
	'O': 237.1477269, // Pyrrolysine
	'Q': 128.0585775,
	'R': 156.1011110,
	'S': 87.0320284,
	'T': 101.0476785,
	'U': 144.9595902, // Selenocysteine
	'V': 99.0684139,
	'W': 186.0793129,
	'Y': 163.0633285,
}

// residueTable is aaMass indexed by byte, NaN for unknown residues
var residueTable [256]float64

func init() {
	for i := range residueTable {
		residueTable[i] = math.NaN()
	}
	for aa, m := range aaMass {
		residueTable[aa] = m
	}
}

// ResidueMass returns the residue mass of amino acid aa, or NaN if
// aa is not a known residue (e.g. X, B, Z)
func ResidueMass(aa byte) float64 {
	return residueTable[aa]
}

// SequenceMass computes the monoisotopic mass of an unmodified sequence,
// NaN if it contains unknown residues
func SequenceMass(seq string) float64 {
	m := MassH2O
	for i := 0; i < len(seq); i++ {
		m += residueTable[seq[i]]
	}
	return m
}

// ToMz converts a neutral mass into the m/z of the given charge state
func ToMz(mass float64, charge int) float64 {
	return mass/float64(charge) + MassProton
}

// ToMass converts an m/z value with the given charge into a neutral mass
func ToMass(mz float64, charge int) float64 {
	return (mz - MassProton) * float64(charge)
}
