package proteomics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TerminusLocalization restricts where a modification may be placed
type TerminusLocalization int

const (
	Anywhere TerminusLocalization = iota
	ProteinNTerminus
	PeptideNTerminus
	PeptideCTerminus
	ProteinCTerminus
)

var terminusNames = []string{"Anywhere.", "N-terminal.", "Peptide N-terminal.", "Peptide C-terminal.", "C-terminal."}

func (t TerminusLocalization) String() string {
	if t < 0 || int(t) >= len(terminusNames) {
		return "Unknown"
	}
	return terminusNames[t]
}

// ParseTerminusLocalization accepts the names produced by String
func ParseTerminusLocalization(s string) (TerminusLocalization, error) {
	for i, n := range terminusNames {
		if strings.EqualFold(strings.TrimSpace(s), n) ||
			strings.EqualFold(strings.TrimSpace(s)+".", n) {
			return TerminusLocalization(i), nil
		}
	}
	return Anywhere, fmt.Errorf("%w: terminus %q", ErrModificationSpec, s)
}

// Modification is a mass-bearing modification that applies to one residue
// type (Motif, 'X' meaning any residue) at the given terminus localization
type Modification struct {
	ID               string
	Type             string
	Motif            byte
	Terminus         TerminusLocalization
	MonoisotopicMass float64
}

// Key identifies a modification in parameter lists and full sequences
func (m Modification) Key() string {
	return m.Type + ":" + m.ID
}

// FitsResidue reports whether the modification motif matches amino acid aa
func (m Modification) FitsResidue(aa byte) bool {
	return m.Motif == 'X' || m.Motif == aa
}

// IsNTerminal reports whether the modification sits on an N-terminus
func (m Modification) IsNTerminal() bool {
	return m.Terminus == ProteinNTerminus || m.Terminus == PeptideNTerminus
}

// IsCTerminal reports whether the modification sits on a C-terminus
func (m Modification) IsCTerminal() bool {
	return m.Terminus == ProteinCTerminus || m.Terminus == PeptideCTerminus
}

var (
	// ErrModificationSpec means a modification definition could not be parsed
	ErrModificationSpec = errors.New("invalid modification definition")
	// ErrUnknownModification means a modification key is not in the dictionary
	ErrUnknownModification = errors.New("unknown modification")
)

// ModificationDictionary resolves modification keys to their definitions
type ModificationDictionary struct {
	mods  map[string]Modification
	order []string
}

// NewModificationDictionary creates a dictionary holding the given mods
func NewModificationDictionary(mods ...Modification) *ModificationDictionary {
	d := &ModificationDictionary{mods: make(map[string]Modification)}
	for _, m := range mods {
		d.Add(m)
	}
	return d
}

// Add adds or replaces a modification
func (d *ModificationDictionary) Add(m Modification) {
	k := m.Key()
	if _, ok := d.mods[k]; !ok {
		d.order = append(d.order, k)
	}
	d.mods[k] = m
}

// Lookup returns the modification with the given key
func (d *ModificationDictionary) Lookup(key string) (Modification, error) {
	m, ok := d.mods[key]
	if !ok {
		return Modification{}, fmt.Errorf("%w: %q", ErrUnknownModification, key)
	}
	return m, nil
}

// Resolve looks up all keys, failing on the first unknown key
func (d *ModificationDictionary) Resolve(keys []string) ([]Modification, error) {
	mods := make([]Modification, 0, len(keys))
	for _, k := range keys {
		m, err := d.Lookup(k)
		if err != nil {
			return nil, err
		}
		mods = append(mods, m)
	}
	return mods, nil
}

// ByID returns the first modification, in insertion order, with the given
// id regardless of its type
func (d *ModificationDictionary) ByID(id string) (Modification, bool) {
	for _, k := range d.order {
		if d.mods[k].ID == id {
			return d.mods[k], true
		}
	}
	return Modification{}, false
}

// Keys returns all modification keys in insertion order
func (d *ModificationDictionary) Keys() []string {
	return append([]string(nil), d.order...)
}

// Builtin returns a dictionary with commonly used modifications
func Builtin() *ModificationDictionary {
	return NewModificationDictionary(
		Modification{ID: "Carbamidomethyl on C", Type: "Common Fixed", Motif: 'C', MonoisotopicMass: 57.02146372},
		Modification{ID: "Carbamidomethyl on U", Type: "Common Fixed", Motif: 'U', MonoisotopicMass: 57.02146372},
		Modification{ID: "Oxidation on M", Type: "Common Variable", Motif: 'M', MonoisotopicMass: 15.99491462},
		Modification{ID: "Acetylation on X", Type: "Common Biological", Motif: 'X', Terminus: ProteinNTerminus, MonoisotopicMass: 42.01056468},
		Modification{ID: "Phosphorylation on S", Type: "Common Biological", Motif: 'S', MonoisotopicMass: 79.96633052},
		Modification{ID: "Phosphorylation on T", Type: "Common Biological", Motif: 'T', MonoisotopicMass: 79.96633052},
		Modification{ID: "Phosphorylation on Y", Type: "Common Biological", Motif: 'Y', MonoisotopicMass: 79.96633052},
		Modification{ID: "Deamidation on N", Type: "Common Artifact", Motif: 'N', MonoisotopicMass: 0.98401559},
		Modification{ID: "Deamidation on Q", Type: "Common Artifact", Motif: 'Q', MonoisotopicMass: 0.98401559},
		Modification{ID: "Pyro-glu from Q", Type: "Common Artifact", Motif: 'Q', Terminus: PeptideNTerminus, MonoisotopicMass: -17.02654910},
		Modification{ID: "Amidation on X", Type: "Common Biological", Motif: 'X', Terminus: ProteinCTerminus, MonoisotopicMass: -0.98401559},
	)
}

// ReadModifications parses tab separated modification definitions and
// adds them to d. Columns: type, id, motif, terminus, monoisotopic mass.
// Empty lines and lines starting with '#' are ignored.
func (d *ModificationDictionary) ReadModifications(r io.Reader) error {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.Comment = '#'
	cr.FieldsPerRecord = 5
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrModificationSpec, err)
		}
		motif := strings.TrimSpace(rec[2])
		if len(motif) != 1 {
			return fmt.Errorf("%w: motif %q", ErrModificationSpec, motif)
		}
		term, err := ParseTerminusLocalization(rec[3])
		if err != nil {
			return err
		}
		mass, err := strconv.ParseFloat(strings.TrimSpace(rec[4]), 64)
		if err != nil {
			return fmt.Errorf("%w: mass %q", ErrModificationSpec, rec[4])
		}
		d.Add(Modification{
			Type:             strings.TrimSpace(rec[0]),
			ID:               strings.TrimSpace(rec[1]),
			Motif:            motif[0],
			Terminus:         term,
			MonoisotopicMass: mass,
		})
	}
}
