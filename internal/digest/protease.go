package digest

import (
	"fmt"
	"sort"
	"strings"
)

// CleavageSpecificity is the digestion policy of a protease
type CleavageSpecificity int

const (
	Full CleavageSpecificity = iota
	FullMaxN
	FullMaxC
	SingleN
	SingleC
	None
)

var specificityNames = []string{"Full", "FullMaxN", "FullMaxC", "SingleN", "SingleC", "None"}

func (c CleavageSpecificity) String() string {
	if c < 0 || int(c) >= len(specificityNames) {
		return fmt.Sprintf("CleavageSpecificity(%d)", int(c))
	}
	return specificityNames[c]
}

// ParseCleavageSpecificity parses the names produced by String
func ParseCleavageSpecificity(s string) (CleavageSpecificity, error) {
	for i, n := range specificityNames {
		if strings.EqualFold(strings.TrimSpace(s), n) {
			return CleavageSpecificity(i), nil
		}
	}
	return Full, fmt.Errorf("%w: %q", ErrUnknownSpecificity, s)
}

// CleavageTerminus tells on which side of a motif the protease cuts
type CleavageTerminus int

const (
	// CutAfter cleaves C-terminal of the motif (trypsin)
	CutAfter CleavageTerminus = iota
	// CutBefore cleaves N-terminal of the motif (Asp-N)
	CutBefore
)

// Protease describes an enzyme by the motifs that induce cleavage and the
// motifs on the other side of the cut that prevent it
type Protease struct {
	Name        string
	Terminus    CleavageTerminus
	Inducing    []string
	Preventing  []string
	Specificity CleavageSpecificity
}

// CleavageSites returns the sorted 1-based residue indices the protease
// cleaves after, excluding 0 and len(seq)
func (p Protease) CleavageSites(seq string) []int {
	if len(p.Inducing) == 0 {
		return nil
	}
	set := make(map[int]bool)
	for i := 0; i < len(seq); i++ {
		for _, motif := range p.Inducing {
			if !strings.HasPrefix(seq[i:], motif) {
				continue
			}
			cut := i // cut before the motif
			if p.Terminus == CutAfter {
				cut = i + len(motif)
			}
			if cut <= 0 || cut >= len(seq) || p.prevented(seq, cut) {
				continue
			}
			set[cut] = true
		}
	}
	sites := make([]int, 0, len(set))
	for s := range set {
		sites = append(sites, s)
	}
	sort.Ints(sites)
	return sites
}

// prevented checks the residues on the far side of a cut after 1-based
// index cut
func (p Protease) prevented(seq string, cut int) bool {
	for _, motif := range p.Preventing {
		if p.Terminus == CutAfter {
			if strings.HasPrefix(seq[cut:], motif) {
				return true
			}
		} else if strings.HasSuffix(seq[:cut], motif) {
			return true
		}
	}
	return false
}

var proteases = map[string]Protease{
	"trypsin":                   {Name: "trypsin", Inducing: []string{"K", "R"}, Preventing: []string{"P"}},
	"trypsin (no proline rule)": {Name: "trypsin (no proline rule)", Inducing: []string{"K", "R"}},
	"Arg-C":                     {Name: "Arg-C", Inducing: []string{"R"}, Preventing: []string{"P"}},
	"Lys-C":                     {Name: "Lys-C", Inducing: []string{"K"}, Preventing: []string{"P"}},
	"Lys-C (no proline rule)":   {Name: "Lys-C (no proline rule)", Inducing: []string{"K"}},
	"Lys-N":                     {Name: "Lys-N", Terminus: CutBefore, Inducing: []string{"K"}},
	"Asp-N":                     {Name: "Asp-N", Terminus: CutBefore, Inducing: []string{"D"}},
	"Glu-C":                     {Name: "Glu-C", Inducing: []string{"E"}, Preventing: []string{"P"}},
	"chymotrypsin":              {Name: "chymotrypsin", Inducing: []string{"F", "W", "Y"}, Preventing: []string{"P"}},
	"semi-trypsin":              {Name: "semi-trypsin", Inducing: []string{"K", "R"}, Preventing: []string{"P"}, Specificity: FullMaxN},
	"non-specific":              {Name: "non-specific", Specificity: SingleN},
	"top-down":                  {Name: "top-down", Specificity: None},
}

// LookupProtease returns the protease with the given name
func LookupProtease(name string) (Protease, error) {
	p, ok := proteases[name]
	if !ok {
		return Protease{}, fmt.Errorf("%w: %q", ErrUnknownProtease, name)
	}
	p.Inducing = append([]string(nil), p.Inducing...)
	p.Preventing = append([]string(nil), p.Preventing...)
	return p, nil
}

// ProteaseNames lists the known proteases, sorted
func ProteaseNames() []string {
	names := make([]string, 0, len(proteases))
	for n := range proteases {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
