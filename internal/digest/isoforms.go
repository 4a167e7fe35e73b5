package digest

import (
	"iter"
	"maps"
	"sort"

	"github.com/524D/mzsearch/internal/proteomics"
)

// ModSet holds the modifications a search considers. Localizable lists the
// keys of protein annotated modifications that may be placed.
type ModSet struct {
	Fixed       []proteomics.Modification
	Variable    []proteomics.Modification
	Localizable map[string]bool
}

// applies reports whether mod can sit at Mods position key of pep
func applies(mod proteomics.Modification, pep proteomics.Peptide, key int) bool {
	n := pep.Len()
	switch {
	case key == 1:
		if !mod.IsNTerminal() || !mod.FitsResidue(pep.Residue(0)) {
			return false
		}
		if mod.Terminus == proteomics.ProteinNTerminus {
			return pep.Start == 1 || (pep.Start == 2 && pep.Protein.Residue(0) == 'M')
		}
		return true
	case key == n+2:
		if !mod.IsCTerminal() || !mod.FitsResidue(pep.Residue(n-1)) {
			return false
		}
		if mod.Terminus == proteomics.ProteinCTerminus {
			return pep.End == pep.Protein.Len()
		}
		return true
	}
	return mod.Terminus == proteomics.Anywhere && mod.FitsResidue(pep.Residue(key-2))
}

// Isoforms returns the modified forms of pep: fixed modifications are
// always placed, variable and localizable protein modifications are
// combined up to MaxModsForPeptide per isoform and MaxModificationIsoforms
// isoforms. The unmodified (fixed only) form comes first.
func Isoforms(pep proteomics.Peptide, mods ModSet, p Params) iter.Seq[*proteomics.ModifiedPeptide] {
	return func(yield func(*proteomics.ModifiedPeptide) bool) {
		n := pep.Len()
		fixed := make(map[int]proteomics.Modification)
		for key := 1; key <= n+2; key++ {
			for _, m := range mods.Fixed {
				if applies(m, pep, key) {
					fixed[key] = m
					break
				}
			}
		}

		options := make(map[int][]proteomics.Modification)
		seen := make(map[int]map[string]bool)
		add := func(key int, m proteomics.Modification) {
			if _, isFixed := fixed[key]; isFixed {
				return
			}
			if seen[key] == nil {
				seen[key] = make(map[string]bool)
			}
			if seen[key][m.Key()] {
				return
			}
			seen[key][m.Key()] = true
			options[key] = append(options[key], m)
		}
		for key := 1; key <= n+2; key++ {
			for _, m := range mods.Variable {
				if applies(m, pep, key) {
					add(key, m)
				}
			}
		}
		// protein N-terminal mods annotated on a cleaved initiator M move
		// to the new N-terminus
		cleavedMet := pep.Start == 2 && pep.Protein.Residue(0) == 'M'
		for pos, pmods := range pep.Protein.Mods {
			onMet := cleavedMet && pos == 1
			if (pos < pep.Start || pos > pep.End) && !onMet {
				continue
			}
			for _, m := range pmods {
				if !mods.Localizable[m.Key()] {
					continue
				}
				if onMet && m.Terminus != proteomics.ProteinNTerminus {
					continue
				}
				key := pos - pep.Start + 2
				switch {
				case m.IsNTerminal() && (pos == pep.Start || onMet):
					key = 1
				case m.IsCTerminal() && pos == pep.End:
					key = n + 2
				}
				if applies(m, pep, key) {
					add(key, m)
				}
			}
		}

		positions := make([]int, 0, len(options))
		for k := range options {
			positions = append(positions, k)
		}
		sort.Ints(positions)

		current := maps.Clone(fixed)
		count := 0
		var walk func(i, used int) bool
		walk = func(i, used int) bool {
			if i == len(positions) {
				if p.MaxModificationIsoforms > 0 && count >= p.MaxModificationIsoforms {
					return false
				}
				count++
				return yield(&proteomics.ModifiedPeptide{Peptide: pep, Mods: maps.Clone(current)})
			}
			if !walk(i+1, used) {
				return false
			}
			if p.MaxModsForPeptide > 0 && used >= p.MaxModsForPeptide {
				return true
			}
			key := positions[i]
			for _, m := range options[key] {
				current[key] = m
				ok := walk(i+1, used+1)
				delete(current, key)
				if !ok {
					return false
				}
			}
			return true
		}
		walk(0, 0)
	}
}
