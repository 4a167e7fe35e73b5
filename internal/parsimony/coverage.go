package parsimony

import (
	"fmt"
	"sort"
	"strings"

	"github.com/524D/mzsearch/internal/proteomics"
)

// Coverage describes which residues of one protein the confident peptides
// of its group cover
type Coverage struct {
	Protein  *proteomics.Protein
	Fraction float64
	// Display has covered residues in upper case and the rest in lower case
	Display string
	// DisplayWithMods adds the modification ids seen at every position
	DisplayWithMods string
	// ModsInfo lists the occupancy of every observed modification site
	ModsInfo string
}

// modSite collects, for one protein position, how many peptides cover it
// and how many of them carry each modification
type modSite struct {
	covering int
	mods     map[string]int
}

func (g *Group) calculateCoverage(opts Options) {
	peps := g.ConfidentPeptides()
	g.Coverage = g.Coverage[:0]
	for _, prot := range g.Proteins {
		var own []*proteomics.ModifiedPeptide
		for _, p := range peps {
			if p.Protein == prot {
				own = append(own, p)
			}
		}
		g.Coverage = append(g.Coverage, proteinCoverage(prot, own))
	}
}

// proteinCoverage uses protein positions 1..L for residues, 0 for the
// N-terminus and L+1 for the C-terminus
func proteinCoverage(prot *proteomics.Protein, peps []*proteomics.ModifiedPeptide) Coverage {
	l := prot.Len()
	covered := make([]bool, l+2)
	sites := make([]modSite, l+2)
	for _, p := range peps {
		n := p.Len()
		for pos := p.Start; pos <= p.End; pos++ {
			covered[pos] = true
			sites[pos].covering++
		}
		if p.Start == 1 {
			sites[0].covering++
		}
		if p.End == l {
			sites[l+1].covering++
		}
		for key, mod := range p.Mods {
			var pos int
			switch {
			case key == 1:
				if p.Start != 1 {
					continue
				}
				pos = 0
			case key == n+2:
				if p.End != l {
					continue
				}
				pos = l + 1
			default:
				pos = p.Start + key - 2
			}
			if sites[pos].mods == nil {
				sites[pos].mods = make(map[string]int)
			}
			sites[pos].mods[mod.ID]++
		}
	}

	var disp, withMods strings.Builder
	var info []string
	modIDs := func(pos int) []string {
		ids := make([]string, 0, len(sites[pos].mods))
		for id := range sites[pos].mods {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	}
	addInfo := func(pos int) {
		for _, id := range modIDs(pos) {
			n, d := sites[pos].mods[id], sites[pos].covering
			info = append(info, fmt.Sprintf("#aa%d[%s,info:occupancy=%.2f(%d/%d)]",
				pos, id, float64(n)/float64(d), n, d))
		}
	}
	bracket := func(ids []string) string {
		return "[" + strings.Join(ids, "][") + "]"
	}

	if ids := modIDs(0); len(ids) > 0 {
		withMods.WriteString(bracket(ids) + "-")
	}
	addInfo(0)
	nCovered := 0
	for pos := 1; pos <= l; pos++ {
		aa := prot.Sequence[pos-1 : pos]
		if covered[pos] {
			nCovered++
		} else {
			aa = strings.ToLower(aa)
		}
		disp.WriteString(aa)
		withMods.WriteString(aa)
		if ids := modIDs(pos); len(ids) > 0 {
			withMods.WriteString(bracket(ids))
		}
		addInfo(pos)
	}
	if ids := modIDs(l + 1); len(ids) > 0 {
		withMods.WriteString("-" + bracket(ids))
	}
	addInfo(l + 1)

	c := Coverage{
		Protein:         prot,
		Display:         disp.String(),
		DisplayWithMods: withMods.String(),
		ModsInfo:        strings.Join(info, ";"),
	}
	if l > 0 {
		c.Fraction = float64(nCovered) / float64(l)
	}
	return c
}
