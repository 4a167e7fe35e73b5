package proteomics

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Peptide is a stretch of a protein, Start and End are 1-based and inclusive
type Peptide struct {
	Protein         *Protein
	Start           int
	End             int
	Description     string
	MissedCleavages int
}

// Len returns the number of residues
func (p Peptide) Len() int {
	return p.End - p.Start + 1
}

// BaseSequence returns the unmodified residues
func (p Peptide) BaseSequence() string {
	return p.Protein.Sequence[p.Start-1 : p.End]
}

// Residue returns the residue at 0-based index i within the peptide
func (p Peptide) Residue(i int) byte {
	return p.Protein.Sequence[p.Start-1+i]
}

// PreviousAminoAcid returns the residue before the peptide, '-' at the
// protein N-terminus
func (p Peptide) PreviousAminoAcid() byte {
	if p.Start > 1 {
		return p.Protein.Sequence[p.Start-2]
	}
	return '-'
}

// NextAminoAcid returns the residue after the peptide, '-' at the
// protein C-terminus
func (p Peptide) NextAminoAcid() byte {
	if p.End < p.Protein.Len() {
		return p.Protein.Sequence[p.End]
	}
	return '-'
}

func (p Peptide) String() string {
	return fmt.Sprintf("%s[%d-%d]", p.Protein.Accession, p.Start, p.End)
}

// ModifiedPeptide is a peptide with one concrete set of modifications.
// Mods uses position 1 for the N-terminus, i+1 for residue i (1-based)
// and Len()+2 for the C-terminus.
type ModifiedPeptide struct {
	Peptide
	Mods map[int]Modification
}

// NTermKey and CTermKey return the Mods positions of the termini
func (p *ModifiedPeptide) NTermKey() int { return 1 }
func (p *ModifiedPeptide) CTermKey() int { return p.Len() + 2 }

// NumMods returns the number of modifications
func (p *ModifiedPeptide) NumMods() int {
	return len(p.Mods)
}

// MonoisotopicMass returns the neutral monoisotopic mass, NaN when the
// sequence has residues without a known mass
func (p *ModifiedPeptide) MonoisotopicMass() float64 {
	m := SequenceMass(p.BaseSequence())
	for _, mod := range p.Mods {
		m += mod.MonoisotopicMass
	}
	return m
}

// FullSequence returns the base sequence with modifications in brackets,
// e.g. [Common Biological:Acetylation on X]MPEPM[Common Variable:Oxidation on M]K
func (p *ModifiedPeptide) FullSequence() string {
	var sb strings.Builder
	if m, ok := p.Mods[1]; ok {
		sb.WriteString("[" + m.Key() + "]")
	}
	n := p.Len()
	for i := 0; i < n; i++ {
		sb.WriteByte(p.Residue(i))
		if m, ok := p.Mods[i+2]; ok {
			sb.WriteString("[" + m.Key() + "]")
		}
	}
	if m, ok := p.Mods[n+2]; ok {
		sb.WriteString("-[" + m.Key() + "]")
	}
	return sb.String()
}

// SortedModPositions returns the occupied Mods positions in ascending order
func (p *ModifiedPeptide) SortedModPositions() []int {
	pos := make([]int, 0, len(p.Mods))
	for k := range p.Mods {
		pos = append(pos, k)
	}
	sort.Ints(pos)
	return pos
}

// terminalMasses returns the cumulative prefix masses (including an
// N-terminal modification) and suffix masses (including a C-terminal
// modification) for fragment lengths 1..n-1
func (p *ModifiedPeptide) terminalMasses() (nTerm, cTerm []float64) {
	n := p.Len()
	if n < 2 {
		return nil, nil
	}
	nTerm = make([]float64, n-1)
	m := 0.0
	if mod, ok := p.Mods[1]; ok {
		m += mod.MonoisotopicMass
	}
	for i := 0; i < n-1; i++ {
		m += ResidueMass(p.Residue(i))
		if mod, ok := p.Mods[i+2]; ok {
			m += mod.MonoisotopicMass
		}
		nTerm[i] = m
	}
	cTerm = make([]float64, n-1)
	m = 0.0
	if mod, ok := p.Mods[n+2]; ok {
		m += mod.MonoisotopicMass
	}
	for i := n - 1; i > 0; i-- {
		m += ResidueMass(p.Residue(i))
		if mod, ok := p.Mods[i+2]; ok {
			m += mod.MonoisotopicMass
		}
		cTerm[n-1-i] = m
	}
	return nTerm, cTerm
}

// Compact returns the peptide signature for the given terminus direction
func (p *ModifiedPeptide) Compact(t TerminusType) CompactPeptide {
	nTerm, cTerm := p.terminalMasses()
	c := CompactPeptide{
		BaseHash:         SequenceHash(p.BaseSequence()),
		MonoisotopicMass: p.MonoisotopicMass(),
	}
	if t != CTerminal {
		c.NTerminalMasses = nTerm
	}
	if t != NTerminal {
		c.CTerminalMasses = cTerm
	}
	return c
}

// Valid reports whether the peptide has a defined mass
func (p *ModifiedPeptide) Valid() bool {
	return !math.IsNaN(p.MonoisotopicMass())
}
