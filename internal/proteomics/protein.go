// Package proteomics holds the sequence model shared by all search stages:
// proteins, peptides, modifications, fragment ladders and the compact
// peptide signature used for indexing.
package proteomics

// ProteolysisProduct is a processed sub-region of a protein, e.g. the
// chain that remains after signal peptide removal. Begin and End are
// 1-based and inclusive, 0 means unknown.
type ProteolysisProduct struct {
	Begin int
	End   int
	Type  string
}

// Protein is an immutable database entry. Mods maps a 1-based residue
// position to the modifications known to occur there.
type Protein struct {
	Accession           string
	Name                string
	Sequence            string
	IsDecoy             bool
	IsContaminant       bool
	DatabaseFile        string
	ProteolysisProducts []ProteolysisProduct
	Mods                map[int][]Modification
}

// Len returns the sequence length
func (p *Protein) Len() int {
	return len(p.Sequence)
}

// Residue returns the residue at 0-based index i
func (p *Protein) Residue(i int) byte {
	return p.Sequence[i]
}
