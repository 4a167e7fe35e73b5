// Package parsimony selects the smallest set of protein groups that explains
// the identified peptides, then scores and FDR-ranks the groups.
package parsimony

import (
	"fmt"
	"sort"
	"strings"

	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
)

// DefaultQValueThreshold selects the PSMs that count towards group scores
const DefaultQValueThreshold = 0.01

// Options control parsimony and scoring
type Options struct {
	// ModPeptidesAreUnique treats differently modified forms of a sequence
	// as separate evidence
	ModPeptidesAreUnique bool
	// NoOneHitWonders drops groups supported by a single peptide
	NoOneHitWonders bool
	// MergeIndistinguishable merges groups left with identical evidence
	// after scoring
	MergeIndistinguishable bool
	QValueThreshold        float64
}

// DefaultOptions returns the options of a standard search
func DefaultOptions() Options {
	return Options{
		ModPeptidesAreUnique:   true,
		MergeIndistinguishable: true,
		QValueThreshold:        DefaultQValueThreshold,
	}
}

func (o Options) threshold() float64 {
	if o.QValueThreshold <= 0 {
		return DefaultQValueThreshold
	}
	return o.QValueThreshold
}

// unitKey returns the evidence unit of a peptide
func (o Options) unitKey(p *proteomics.ModifiedPeptide) string {
	if o.ModPeptidesAreUnique {
		return p.FullSequence()
	}
	return p.BaseSequence()
}

func peptideID(p *proteomics.ModifiedPeptide) string {
	return fmt.Sprintf("%s\x00%d\x00%s", p.Protein.Accession, p.Start, p.FullSequence())
}

type proteinSet map[*proteomics.Protein]bool

// evidence is the peptide to protein relation all groups are built from
type evidence struct {
	opts         Options
	unitProteins map[string]proteinSet
	proteinUnits map[*proteomics.Protein]map[string]bool
	unitPeptides map[string][]*proteomics.ModifiedPeptide
	unitPSMs     map[string][]*search.PSM
}

func newEvidence(psms []*search.PSM, opts Options) *evidence {
	e := &evidence{
		opts:         opts,
		unitProteins: make(map[string]proteinSet),
		proteinUnits: make(map[*proteomics.Protein]map[string]bool),
		unitPeptides: make(map[string][]*proteomics.ModifiedPeptide),
		unitPSMs:     make(map[string][]*search.PSM),
	}
	seen := make(map[string]bool)
	for _, psm := range psms {
		psmUnits := make(map[string]bool)
		for _, pep := range psm.Peptides() {
			u := opts.unitKey(pep)
			if e.unitProteins[u] == nil {
				e.unitProteins[u] = make(proteinSet)
			}
			e.unitProteins[u][pep.Protein] = true
			if e.proteinUnits[pep.Protein] == nil {
				e.proteinUnits[pep.Protein] = make(map[string]bool)
			}
			e.proteinUnits[pep.Protein][u] = true
			if id := peptideID(pep); !seen[id] {
				seen[id] = true
				e.unitPeptides[u] = append(e.unitPeptides[u], pep)
			}
			if !psmUnits[u] {
				psmUnits[u] = true
				e.unitPSMs[u] = append(e.unitPSMs[u], psm)
			}
		}
	}
	return e
}

// class is a set of proteins with identical evidence
type class struct {
	proteins []*proteomics.Protein
	units    []string
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortProteins(ps []*proteomics.Protein) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].Accession < ps[j].Accession })
}

// classes partitions the proteins by their evidence sets
func (e *evidence) classes() []*class {
	bySignature := make(map[string]*class)
	for prot, units := range e.proteinUnits {
		keys := sortedKeys(units)
		sig := strings.Join(keys, "\x00")
		c := bySignature[sig]
		if c == nil {
			c = &class{units: keys}
			bySignature[sig] = c
		}
		c.proteins = append(c.proteins, prot)
	}
	out := make([]*class, 0, len(bySignature))
	for _, c := range bySignature {
		sortProteins(c.proteins)
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].proteins[0].Accession < out[j].proteins[0].Accession
	})
	return out
}

// cover greedily picks the class explaining most uncovered units, ties by
// larger evidence and then by smallest accession, until all are covered
func cover(classes []*class, numUnits int) []*class {
	covered := make(map[string]bool, numUnits)
	used := make([]bool, len(classes))
	var chosen []*class
	for len(covered) < numUnits {
		best, bestNew := -1, 0
		for i, c := range classes {
			if used[i] {
				continue
			}
			n := 0
			for _, u := range c.units {
				if !covered[u] {
					n++
				}
			}
			if n == 0 {
				continue
			}
			// classes are in accession order, so the first of equals wins
			if best < 0 || n > bestNew || (n == bestNew && len(c.units) > len(classes[best].units)) {
				best, bestNew = i, n
			}
		}
		if best < 0 {
			break
		}
		used[best] = true
		chosen = append(chosen, classes[best])
		for _, u := range classes[best].units {
			covered[u] = true
		}
	}
	return chosen
}

// Group is a set of indistinguishable proteins with its peptide evidence
type Group struct {
	Proteins []*proteomics.Protein
	// Peptides are the distinct concrete peptides of the group's proteins
	Peptides []*proteomics.ModifiedPeptide
	// UniquePeptides are peptides whose evidence maps only into this group
	UniquePeptides []*proteomics.ModifiedPeptide
	// PSMs support the group's evidence and pass the q-value threshold
	PSMs []*search.PSM

	Score            float64
	Decoy            bool
	Contaminant      bool
	CumulativeTarget int
	CumulativeDecoy  int
	QValue           float64

	Coverage []Coverage

	units []string
	ev    *evidence
}

// Name joins the accessions of the member proteins
func (g *Group) Name() string {
	acc := make([]string, len(g.Proteins))
	for i, p := range g.Proteins {
		acc[i] = p.Accession
	}
	return strings.Join(acc, "|")
}

// Units returns the evidence units of the group
func (g *Group) Units() []string {
	return g.units
}

func (g *Group) member(p *proteomics.Protein) bool {
	for _, q := range g.Proteins {
		if q == p {
			return true
		}
	}
	return false
}

func newGroup(c *class, e *evidence) *Group {
	g := &Group{Proteins: c.proteins, units: c.units, ev: e}
	for _, p := range c.proteins {
		g.Decoy = g.Decoy || p.IsDecoy
		g.Contaminant = g.Contaminant || p.IsContaminant
	}
	for _, u := range c.units {
		unique := true
		for prot := range e.unitProteins[u] {
			if !g.member(prot) {
				unique = false
			}
		}
		for _, pep := range e.unitPeptides[u] {
			if !g.member(pep.Protein) {
				continue
			}
			g.Peptides = append(g.Peptides, pep)
			if unique {
				g.UniquePeptides = append(g.UniquePeptides, pep)
			}
		}
	}
	return g
}

// Build runs parsimony over resolved PSMs and returns the unscored groups
func Build(psms []*search.PSM, opts Options) []*Group {
	e := newEvidence(psms, opts)
	chosen := cover(e.classes(), len(e.unitProteins))
	groups := make([]*Group, len(chosen))
	for i, c := range chosen {
		groups[i] = newGroup(c, e)
	}
	return groups
}
