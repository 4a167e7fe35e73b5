package parsimony

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"

	"github.com/524D/mzsearch/internal/fdr"
	"github.com/524D/mzsearch/internal/proteomics"
	"github.com/524D/mzsearch/internal/search"
)

// checkShared panics if a member protein lacks evidence of the group
func (g *Group) checkShared() {
	for _, p := range g.Proteins {
		units := g.ev.proteinUnits[p]
		for _, u := range g.units {
			if !units[u] {
				panic(fmt.Sprintf("parsimony: protein %s of group %s lacks evidence %q",
					p.Accession, g.Name(), u))
			}
		}
	}
}

// score sets Score and PSMs from the confident PSMs accepted by keep and
// returns the units that have confident support
func (g *Group) score(opts Options, keep func(*search.PSM) bool) []string {
	g.checkShared()
	thr := opts.threshold()
	var best []float64
	var supported []string
	seen := make(map[*search.PSM]bool)
	g.PSMs = nil
	for _, u := range g.units {
		top, found := 0.0, false
		for _, p := range g.ev.unitPSMs[u] {
			if p.QValue > thr || !keep(p) {
				continue
			}
			if !seen[p] {
				seen[p] = true
				g.PSMs = append(g.PSMs, p)
			}
			if !found || p.Score > top {
				top, found = p.Score, true
			}
		}
		if found {
			best = append(best, top)
			supported = append(supported, u)
		}
	}
	g.Score = floats.Sum(best)
	return supported
}

func keepAll(*search.PSM) bool { return true }

// Score scores the groups, drops groups without confident support, merges
// groups left with identical support and ranks the rest by q-value. The
// returned groups are ordered by descending score.
func Score(groups []*Group, opts Options) []*Group {
	return rank(scoreAndFilter(groups, opts, keepAll, opts.MergeIndistinguishable), opts)
}

// SubsetForFile scores copies of groups against the PSMs of one file only.
// Subset groups are never merged.
func SubsetForFile(groups []*Group, file string, opts Options) []*Group {
	copies := make([]*Group, len(groups))
	for i, g := range groups {
		c := *g
		c.Coverage = nil
		copies[i] = &c
	}
	keep := func(p *search.PSM) bool { return p.Scan.FilePath == file }
	return rank(scoreAndFilter(copies, opts, keep, false), opts)
}

func scoreAndFilter(groups []*Group, opts Options, keep func(*search.PSM) bool, merge bool) []*Group {
	var kept []*Group
	supports := make(map[*Group][]string)
	for _, g := range groups {
		supported := g.score(opts, keep)
		if g.Score == 0 || (opts.NoOneHitWonders && len(supported) < 2) {
			continue
		}
		supports[g] = supported
		kept = append(kept, g)
	}
	if !merge {
		return kept
	}

	bySupport := make(map[string]*Group)
	var merged []*Group
	for _, g := range kept {
		sig := strings.Join(supports[g], "\x00")
		m := bySupport[sig]
		if m == nil {
			bySupport[sig] = g
			merged = append(merged, g)
			continue
		}
		m.absorb(g)
		m.units = supports[g]
	}
	return merged
}

// absorb adds the proteins and peptides of o, which has the same support
func (g *Group) absorb(o *Group) {
	g.Proteins = append(g.Proteins, o.Proteins...)
	sortProteins(g.Proteins)
	g.Peptides = append(g.Peptides, o.Peptides...)
	g.UniquePeptides = append(g.UniquePeptides, o.UniquePeptides...)
	seen := make(map[*search.PSM]bool)
	for _, p := range g.PSMs {
		seen[p] = true
	}
	for _, p := range o.PSMs {
		if !seen[p] {
			g.PSMs = append(g.PSMs, p)
		}
	}
	g.Decoy = g.Decoy || o.Decoy
	g.Contaminant = g.Contaminant || o.Contaminant
}

// rank orders groups by score and sets cumulative counts and q-values
func rank(groups []*Group, opts Options) []*Group {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Score != groups[j].Score {
			return groups[i].Score > groups[j].Score
		}
		return groups[i].Name() < groups[j].Name()
	})
	var targets, decoys int
	for _, g := range groups {
		if g.Decoy {
			decoys++
		} else {
			targets++
		}
		g.CumulativeTarget, g.CumulativeDecoy = targets, decoys
		g.QValue = float64(decoys) / float64(targets+decoys)
	}
	fdr.Staircase(groups,
		func(g *Group) float64 { return g.QValue },
		func(g *Group, q float64) { g.QValue = q })
	for _, g := range groups {
		g.calculateCoverage(opts)
	}
	return groups
}

// ConfidentPeptides returns the distinct peptides of member proteins found
// by the group's PSMs
func (g *Group) ConfidentPeptides() []*proteomics.ModifiedPeptide {
	seen := make(map[string]bool)
	var out []*proteomics.ModifiedPeptide
	for _, psm := range g.PSMs {
		for _, pep := range psm.Peptides() {
			if !g.member(pep.Protein) {
				continue
			}
			if id := peptideID(pep); !seen[id] {
				seen[id] = true
				out = append(out, pep)
			}
		}
	}
	return out
}
