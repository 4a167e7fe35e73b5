package search

import (
	"context"
	"fmt"

	"github.com/524D/mzsearch/internal/digest"
	"github.com/524D/mzsearch/internal/proteomics"
)

// Resolver maps the signatures of PSMs back to the concrete peptides that
// produce them by digesting the proteins again
type Resolver struct {
	Proteins  []*proteomics.Protein
	Digestion digest.Params
	Mods      digest.ModSet
	// ProductTypes must be the types the signatures were built for
	ProductTypes []proteomics.ProductType
	// Semi resolves truncated signatures of a semi-specific search
	Semi bool
}

type occurrence struct {
	seen  map[string]bool
	match []*Match
}

func occurrenceID(p *proteomics.ModifiedPeptide) string {
	return fmt.Sprintf("%s\x00%d\x00%d\x00%s", p.Protein.Accession, p.Start, p.End, p.FullSequence())
}

func (o *occurrence) add(p *proteomics.ModifiedPeptide) {
	id := occurrenceID(p)
	if o.seen[id] {
		return
	}
	o.seen[id] = true
	for _, m := range o.match {
		m.Resolved = append(m.Resolved, p)
	}
}

// Resolve attaches concrete peptides to every match, drops matches and PSMs
// that cannot be resolved and sets the decoy flag. It returns the kept PSMs
// and the number dropped.
func (r Resolver) Resolve(ctx context.Context, psms []*PSM) ([]*PSM, int, error) {
	wanted := make(map[proteomics.PeptideKey]*occurrence)
	for _, p := range psms {
		for _, m := range p.Matches {
			m.Resolved = nil
			o := wanted[m.Key]
			if o == nil {
				o = &occurrence{seen: make(map[string]bool)}
				wanted[m.Key] = o
			}
			o.match = append(o.match, m)
		}
	}

	var err error
	if r.Semi {
		nDig, cDig := r.Digestion, r.Digestion
		nDig.Protease.Specificity = digest.FullMaxN
		cDig.Protease.Specificity = digest.FullMaxC
		err = r.walk(ctx, nDig, wanted, proteomics.NTerminal, true)
		if err == nil {
			err = r.walk(ctx, cDig, wanted, proteomics.CTerminal, true)
		}
	} else {
		err = r.walk(ctx, r.Digestion, wanted, proteomics.TerminusFor(r.ProductTypes), false)
	}
	if err != nil {
		return nil, 0, err
	}

	kept := psms[:0]
	dropped := 0
	for _, p := range psms {
		matches := p.Matches[:0]
		for _, m := range p.Matches {
			if len(m.Resolved) > 0 {
				sortPeptides(m.Resolved)
				matches = append(matches, m)
			}
		}
		p.Matches = matches
		if len(matches) == 0 {
			dropped++
			continue
		}
		p.Decoy = true
		for _, m := range matches {
			for _, pep := range m.Resolved {
				p.Decoy = p.Decoy && pep.Protein.IsDecoy
			}
		}
		kept = append(kept, p)
	}
	return kept, dropped, nil
}

func (r Resolver) walk(ctx context.Context, dig digest.Params, wanted map[proteomics.PeptideKey]*occurrence,
	terminus proteomics.TerminusType, truncate bool) error {

	for _, prot := range r.Proteins {
		if err := ctx.Err(); err != nil {
			return err
		}
		peps, err := digest.Digest(prot, dig)
		if err != nil {
			return fmt.Errorf("digest %s: %w", prot.Accession, err)
		}
		for pep := range peps {
			for iso := range digest.Isoforms(pep, r.Mods, dig) {
				if !iso.Valid() {
					continue
				}
				c := iso.Compact(terminus)
				if !truncate {
					if o := wanted[c.Key()]; o != nil {
						o.add(iso)
					}
					continue
				}
				for k := 1; k <= c.Len(); k++ {
					var t proteomics.CompactPeptide
					if terminus == proteomics.NTerminal {
						t, _ = c.NTerminalTruncation(k)
					} else {
						t, _ = c.CTerminalTruncation(k)
					}
					if o := wanted[t.Key()]; o != nil {
						o.add(truncatePeptide(iso, k, terminus == proteomics.NTerminal))
					}
				}
			}
		}
	}
	return nil
}

// truncatePeptide returns the first (nTerm) or last k residues of p with
// the modifications that lie on them
func truncatePeptide(p *proteomics.ModifiedPeptide, k int, nTerm bool) *proteomics.ModifiedPeptide {
	n := p.Len()
	if k == n {
		return p
	}
	t := &proteomics.ModifiedPeptide{Peptide: p.Peptide, Mods: make(map[int]proteomics.Modification)}
	t.Description = "semi"
	if nTerm {
		t.End = p.Start + k - 1
		for pos, m := range p.Mods {
			if pos <= k+1 {
				t.Mods[pos] = m
			}
		}
		return t
	}
	t.Start = p.End - k + 1
	shift := n - k
	for pos, m := range p.Mods {
		if pos >= shift+2 && pos <= n+1 {
			t.Mods[pos-shift] = m
		} else if pos == n+2 {
			t.Mods[k+2] = m
		}
	}
	return t
}
